package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wattswap-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingRepository persists energy listings.
type ListingRepository struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewListing is the seller-supplied part of a listing; id, status and timestamps are store-assigned.
type NewListing struct {
	SellerID     string
	SellerName   string
	EnergyAmount float64
	PricePerKWh  float64
	Location     string
}

// WithTx returns a copy bound to tx so several repositories can share one transaction.
func (r *ListingRepository) WithTx(tx *gorm.DB) *ListingRepository {
	return &ListingRepository{DB: tx, Now: r.Now}
}

func (r *ListingRepository) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *ListingRepository) Create(ctx context.Context, in NewListing) (*domain.Listing, error) {
	listing := &domain.Listing{
		SellerID:     in.SellerID,
		SellerName:   in.SellerName,
		EnergyAmount: in.EnergyAmount,
		PricePerKWh:  in.PricePerKWh,
		Location:     in.Location,
		Status:       domain.ListingAvailable,
		CreatedAt:    r.now(),
	}
	if err := r.DB.WithContext(ctx).Create(listing).Error; err != nil {
		return nil, domain.PersistenceFailed("Failed to create listing", err)
	}
	return listing, nil
}

func (r *ListingRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.QueryFailed("Failed to fetch listing", err)
	}
	return &listing, nil
}

// ListAvailable returns available listings, newest first.
func (r *ListingRepository) ListAvailable(ctx context.Context) ([]domain.Listing, error) {
	listings := []domain.Listing{}
	if err := r.DB.WithContext(ctx).
		Where("status = ?", domain.ListingAvailable).
		Order("created_at DESC").Order("id DESC").
		Find(&listings).Error; err != nil {
		return nil, domain.QueryFailed("Failed to fetch listings", err)
	}
	return listings, nil
}

// ListBySeller returns every listing of one seller regardless of status, newest first.
func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error) {
	listings := []domain.Listing{}
	if err := r.DB.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").Order("id DESC").
		Find(&listings).Error; err != nil {
		return nil, domain.QueryFailed("Failed to fetch your listings", err)
	}
	return listings, nil
}

// MarkSold flips available -> sold with a conditional update, so the transition happens
// at most once no matter how many writers race on the same listing.
func (r *ListingRepository) MarkSold(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	soldAt := r.now()
	res := r.DB.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("id = ? AND status = ?", id, domain.ListingAvailable).
		Updates(map[string]interface{}{
			"status":  domain.ListingSold,
			"sold_at": soldAt,
		})
	if res.Error != nil {
		return nil, domain.PersistenceFailed("Failed to update listing status", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the id is gone or someone else sold it first.
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("mark sold %s: %w", id, domain.ErrAlreadySold)
	}
	return r.Get(ctx, id)
}
