package repository

import (
	"context"
	"encoding/json"
	"time"

	"wattswap-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventRepository struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{DB: tx, Now: r.Now}
}

func (r *EventRepository) Append(ctx context.Context, listingID uuid.UUID, eventType string, actorID *string, data map[string]interface{}) (*domain.MarketEvent, error) {
	eventDataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, domain.PersistenceFailed("Failed to encode market event", err)
	}
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	event := &domain.MarketEvent{
		ListingID: listingID,
		EventType: eventType,
		EventData: datatypes.JSON(eventDataBytes),
		ActorID:   actorID,
		CreatedAt: now.UTC(),
	}
	if err := r.DB.WithContext(ctx).Create(event).Error; err != nil {
		return nil, domain.PersistenceFailed("Failed to create market event", err)
	}
	return event, nil
}

// ListByListing returns the events of one listing in the order they happened.
func (r *EventRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]domain.MarketEvent, error) {
	events := []domain.MarketEvent{}
	if err := r.DB.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, domain.QueryFailed("Failed to fetch listing events", err)
	}
	return events, nil
}
