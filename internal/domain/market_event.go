package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventListingCreated = "CREATED"
	EventListingSold    = "SOLD"
)

// MarketEvent is the append-only audit trail of listing state changes.
type MarketEvent struct {
	EventID   uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	ListingID uuid.UUID      `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	EventData datatypes.JSON `gorm:"column:event_data;not null" json:"event_data"`
	ActorID   *string        `gorm:"column:actor_id;type:varchar(128)" json:"actor_id"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"createdAt"`
}

func (MarketEvent) TableName() string {
	return "MarketEvents"
}

func (e *MarketEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
