package auth

import (
	"context"
	"errors"
	"strings"

	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/infrastructure/database"
	"wattswap-backend/internal/pkg/validation"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LoginInput for login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// UserFinder abstracts user lookup by email+password (for production GORM or test doubles).
type UserFinder interface {
	FindByEmailAndPassword(ctx context.Context, email, password string) (*domain.User, error)
}

// UserRegistrar creates local accounts.
type UserRegistrar interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
}

// GormUserFinder implements UserFinder and UserRegistrar using GORM and bcrypt.
type GormUserFinder struct{ DB *gorm.DB }

func (g *GormUserFinder) FindByEmailAndPassword(ctx context.Context, email, password string) (*domain.User, error) {
	return LoginUser(ctx, g.DB, LoginInput{Email: email, Password: password})
}

func (g *GormUserFinder) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	return RegisterUser(ctx, g.DB, input)
}

// LoginUser finds user by email and verifies password.
func LoginUser(ctx context.Context, db *gorm.DB, input LoginInput) (*domain.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrEmailPasswordRequired
	}
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidEmail
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidEmail
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrIncorrectPassword
	}
	return &u, nil
}

// RegisterUser creates a local account with a bcrypt-hashed password.
func RegisterUser(ctx context.Context, db *gorm.DB, input RegisterInput) (*domain.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrEmailPasswordRequired
	}
	if !validation.IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !validation.IsValidPassword(input.Password) {
		return nil, ErrWeakPassword
	}
	var displayName *string
	if name := strings.TrimSpace(input.DisplayName); name != "" {
		if !validation.IsValidDisplayName(name) {
			return nil, ErrInvalidDisplayName
		}
		displayName = &name
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// IdentityOf is the marketplace view of a local account.
func IdentityOf(u *domain.User) domain.Identity {
	return domain.Identity{UID: u.UserID.String(), DisplayName: u.DisplayName}
}

// VerifyUser validates the session user map and returns the caller's identity.
func VerifyUser(sessionUser interface{}) (*domain.Identity, error) {
	if sessionUser == nil {
		return nil, ErrNotAuthenticated
	}
	m, ok := sessionUser.(map[string]interface{})
	if !ok {
		return nil, ErrNotAuthenticated
	}
	uid, _ := m["uid"].(string)
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	out := &domain.Identity{UID: uid}
	if name, ok := m["display_name"].(string); ok && name != "" {
		out.DisplayName = &name
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
