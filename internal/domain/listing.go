package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListingStatus string

const (
	ListingAvailable ListingStatus = "available"
	ListingSold      ListingStatus = "sold"
)

// Listing is a seller's offer of surplus energy credits (energyListings).
type Listing struct {
	ID           uuid.UUID     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SellerID     string        `gorm:"column:seller_id;type:varchar(128);not null;index:idx_listings_seller_created,priority:1" json:"sellerId"`
	SellerName   string        `gorm:"column:seller_name;not null" json:"sellerName"`
	EnergyAmount float64       `gorm:"column:energy_amount;not null" json:"energyAmount"`
	PricePerKWh  float64       `gorm:"column:price_per_kwh;not null" json:"pricePerKWh"`
	TotalPrice   float64       `gorm:"column:total_price;not null" json:"totalPrice"`
	Location     string        `gorm:"column:location;not null" json:"location"`
	Status       ListingStatus `gorm:"column:status;type:varchar(20);not null;default:'available';index:idx_listings_status_created,priority:1" json:"status"`
	CreatedAt    time.Time     `gorm:"column:created_at;not null;index:idx_listings_status_created,priority:2,sort:desc;index:idx_listings_seller_created,priority:2,sort:desc" json:"createdAt"`
	SoldAt       *time.Time    `gorm:"column:sold_at" json:"soldAt,omitempty"`
}

func (Listing) TableName() string {
	return "EnergyListings"
}

// BeforeCreate sets id if not already set (DBs without default uuid).
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.TotalPrice = l.EnergyAmount * l.PricePerKWh
	return nil
}

// AfterFind derives the total price on every read so it can never drift from amount × price.
func (l *Listing) AfterFind(tx *gorm.DB) error {
	l.TotalPrice = l.EnergyAmount * l.PricePerKWh
	return nil
}

func (l *Listing) Available() bool {
	return l.Status == ListingAvailable
}
