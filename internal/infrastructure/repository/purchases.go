package repository

import (
	"context"
	"fmt"
	"time"

	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseRepository appends purchase records; records are never updated or deleted.
type PurchaseRepository struct {
	DB  *gorm.DB
	Now func() time.Time
}

type NewPurchase struct {
	ListingID    uuid.UUID
	BuyerID      string
	SellerID     string
	EnergyAmount float64
	PricePerKWh  float64
	TotalPrice   float64
}

func (r *PurchaseRepository) WithTx(tx *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{DB: tx, Now: r.Now}
}

func (r *PurchaseRepository) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Record stores a completed purchase. The unique index on listing_id rejects a second
// purchase of the same listing; that surfaces as ErrAlreadySold.
func (r *PurchaseRepository) Record(ctx context.Context, in NewPurchase) (*domain.Purchase, error) {
	purchase := &domain.Purchase{
		ListingID:    in.ListingID,
		BuyerID:      in.BuyerID,
		SellerID:     in.SellerID,
		EnergyAmount: in.EnergyAmount,
		PricePerKWh:  in.PricePerKWh,
		TotalPrice:   in.TotalPrice,
		PurchaseDate: r.now(),
		Status:       domain.PurchaseCompleted,
	}
	if err := r.DB.WithContext(ctx).Create(purchase).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("record purchase of %s: %w", in.ListingID, domain.ErrAlreadySold)
		}
		return nil, domain.PersistenceFailed("Failed to record purchase", err)
	}
	return purchase, nil
}

// ListByBuyer returns one buyer's purchases, most recent first.
func (r *PurchaseRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Purchase, error) {
	purchases := []domain.Purchase{}
	if err := r.DB.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("purchase_date DESC").Order("id DESC").
		Find(&purchases).Error; err != nil {
		return nil, domain.QueryFailed("Failed to fetch your purchases", err)
	}
	return purchases, nil
}

// ListBySeller returns the purchases of one seller's listings, most recent first.
func (r *PurchaseRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Purchase, error) {
	purchases := []domain.Purchase{}
	if err := r.DB.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("purchase_date DESC").Order("id DESC").
		Find(&purchases).Error; err != nil {
		return nil, domain.QueryFailed("Failed to fetch your sales", err)
	}
	return purchases, nil
}

func (r *PurchaseRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]domain.Purchase, error) {
	purchases := []domain.Purchase{}
	if err := r.DB.WithContext(ctx).Where("listing_id = ?", listingID).Find(&purchases).Error; err != nil {
		return nil, domain.QueryFailed("Failed to fetch purchases", err)
	}
	return purchases, nil
}
