package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a local account for the session login flow. Accounts from the external
// identity provider never land here; they arrive as bearer-token identities.
type User struct {
	UserID       uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	DisplayName  *string        `gorm:"column:display_name" json:"display_name"`
	Email        string         `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "Users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

// Identity is the authenticated caller as seen by the marketplace: an opaque uid and
// an optional display name. A nil *Identity means unauthenticated.
type Identity struct {
	UID         string  `json:"uid"`
	DisplayName *string `json:"displayName"`
}

// NameOr returns the display name, or fallback when the provider did not supply one.
func (i Identity) NameOr(fallback string) string {
	if i.DisplayName == nil || *i.DisplayName == "" {
		return fallback
	}
	return *i.DisplayName
}
