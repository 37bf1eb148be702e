// Package feed pushes full-replacement marketplace snapshots to live subscribers.
package feed

import (
	"context"
	"time"

	"wattswap-backend/internal/domain"
)

type TopicKind string

const (
	TopicAvailableListings TopicKind = "listings.available"
	TopicSellerListings    TopicKind = "listings.seller"
	TopicBuyerPurchases    TopicKind = "purchases.buyer"
)

// Topic names one live view. Owner is the seller or buyer id for per-user topics.
type Topic struct {
	Kind  TopicKind `json:"kind"`
	Owner string    `json:"owner,omitempty"`
}

func AvailableListings() Topic {
	return Topic{Kind: TopicAvailableListings}
}

func SellerListings(sellerID string) Topic {
	return Topic{Kind: TopicSellerListings, Owner: sellerID}
}

func BuyerPurchases(buyerID string) Topic {
	return Topic{Kind: TopicBuyerPurchases, Owner: buyerID}
}

// Affected reports whether a change can alter the view behind t.
func (t Topic) Affected(c Change) bool {
	switch t.Kind {
	case TopicAvailableListings:
		return true
	case TopicSellerListings:
		return c.SellerID == t.Owner
	case TopicBuyerPurchases:
		return c.BuyerID != "" && c.BuyerID == t.Owner
	}
	return false
}

// Change is the notification broadcast after a committed marketplace write.
type Change struct {
	Type      string    `json:"type"`
	ListingID string    `json:"listing_id"`
	SellerID  string    `json:"seller_id"`
	BuyerID   string    `json:"buyer_id,omitempty"`
	At        time.Time `json:"at"`
}

// Snapshot is an immutable copy of one view. Consumers replace their whole view with it.
type Snapshot struct {
	Topic     Topic             `json:"topic"`
	Version   string            `json:"version"`
	Listings  []domain.Listing  `json:"listings,omitempty"`
	Purchases []domain.Purchase `json:"purchases,omitempty"`
	TakenAt   time.Time         `json:"takenAt"`
	// Err is set when the view could not be loaded; the previous snapshot stays valid.
	Err error `json:"-"`
}

// Source loads the current contents of each view.
type Source interface {
	ListAvailable(ctx context.Context) ([]domain.Listing, error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error)
	ListPurchases(ctx context.Context, buyerID string) ([]domain.Purchase, error)
}

// Notifier fans committed changes out to every hub, in-process or across instances.
type Notifier interface {
	Publish(ctx context.Context, c Change) error
	Listen(ctx context.Context) (<-chan Change, error)
}

// Handler receives snapshots for one subscription, never concurrently.
type Handler func(Snapshot)
