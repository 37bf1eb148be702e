package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

// Purchase is the point-in-time record of a buyer taking a listing (energyPurchases).
// Energy and price fields are copied from the listing and never updated afterwards.
type Purchase struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ListingID    uuid.UUID      `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:uq_purchases_listing" json:"listingId"`
	BuyerID      string         `gorm:"column:buyer_id;type:varchar(128);not null;index:idx_purchases_buyer_date,priority:1" json:"buyerId"`
	SellerID     string         `gorm:"column:seller_id;type:varchar(128);not null;index:idx_purchases_seller_date,priority:1" json:"sellerId"`
	EnergyAmount float64        `gorm:"column:energy_amount;not null" json:"energyAmount"`
	PricePerKWh  float64        `gorm:"column:price_per_kwh;not null" json:"pricePerKWh"`
	TotalPrice   float64        `gorm:"column:total_price;not null" json:"totalPrice"`
	PurchaseDate time.Time      `gorm:"column:purchase_date;not null;index:idx_purchases_buyer_date,priority:2,sort:desc;index:idx_purchases_seller_date,priority:2,sort:desc" json:"purchaseDate"`
	Status       PurchaseStatus `gorm:"column:status;type:varchar(20);not null;default:'completed'" json:"status"`
}

func (Purchase) TableName() string {
	return "EnergyPurchases"
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
