package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"

	"wattswap-backend/internal/application/feed"
	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/infrastructure/repository"
	"wattswap-backend/internal/pkg/validation"

	ozzo "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	defaultTimeout   = 10 * time.Second
	anonymousSeller  = "Anonymous"
	maxLocationChars = 120
)

// Service runs the marketplace workflow: listing creation, discovery and purchase.
type Service struct {
	DB        *gorm.DB
	Listings  *repository.ListingRepository
	Purchases *repository.PurchaseRepository
	Events    *repository.EventRepository
	Notifier  feed.Notifier
	Timeout   time.Duration
}

func NewService(db *gorm.DB, notifier feed.Notifier, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		DB:        db,
		Listings:  &repository.ListingRepository{DB: db},
		Purchases: &repository.PurchaseRepository{DB: db},
		Events:    &repository.EventRepository{DB: db},
		Notifier:  notifier,
		Timeout:   timeout,
	}
}

// CreateListingInput is the seller's form. Amounts may arrive as JSON numbers or numeric strings.
type CreateListingInput struct {
	EnergyAmount interface{} `json:"energyAmount"`
	PricePerKWh  interface{} `json:"pricePerKWh"`
	Location     string      `json:"location"`
}

func positiveNumber(value interface{}) error {
	_, err := validation.ParsePositive(value)
	return err
}

func (in *CreateListingInput) Validate() error {
	in.Location = strings.TrimSpace(in.Location)
	return ozzo.ValidateStruct(in,
		ozzo.Field(&in.EnergyAmount, ozzo.By(positiveNumber)),
		ozzo.Field(&in.PricePerKWh, ozzo.By(positiveNumber)),
		ozzo.Field(&in.Location, ozzo.Required, ozzo.Length(1, maxLocationChars)),
	)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func requireIdentity(id domain.Identity) error {
	if strings.TrimSpace(id.UID) == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

// CreateListing validates the form before anything is written, then stores the listing and its
// CREATED event in one transaction.
func (s *Service) CreateListing(ctx context.Context, seller domain.Identity, in CreateListingInput) (*domain.Listing, error) {
	if err := requireIdentity(seller); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, domain.Validation(err.Error())
	}
	energy, _ := validation.ParsePositive(in.EnergyAmount)
	price, _ := validation.ParsePositive(in.PricePerKWh)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var listing *domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		listing, err = s.Listings.WithTx(tx).Create(ctx, repository.NewListing{
			SellerID:     seller.UID,
			SellerName:   seller.NameOr(anonymousSeller),
			EnergyAmount: energy,
			PricePerKWh:  price,
			Location:     in.Location,
		})
		if err != nil {
			return err
		}
		_, err = s.Events.WithTx(tx).Append(ctx, listing.ID, domain.EventListingCreated, &seller.UID, map[string]interface{}{
			"energy_amount": listing.EnergyAmount,
			"price_per_kwh": listing.PricePerKWh,
			"total_price":   listing.TotalPrice,
			"location":      listing.Location,
		})
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("seller_id", seller.UID).Msg("create listing failed")
		return nil, asPersistence("Failed to create listing", err)
	}

	log.Info().Str("listing_id", listing.ID.String()).Str("seller_id", seller.UID).
		Float64("energy_amount", listing.EnergyAmount).Float64("price_per_kwh", listing.PricePerKWh).
		Msg("listing created")
	s.publish(feed.Change{
		Type:      domain.EventListingCreated,
		ListingID: listing.ID.String(),
		SellerID:  listing.SellerID,
		At:        listing.CreatedAt,
	})
	return listing, nil
}

// Purchase moves a listing from available to sold and records the purchase atomically.
// The conditional status update inside the transaction is what decides a race: of N concurrent
// buyers exactly one commits, the rest get ErrAlreadySold and write nothing.
func (s *Service) Purchase(ctx context.Context, listingID uuid.UUID, buyer domain.Identity) (*domain.Purchase, error) {
	if err := requireIdentity(buyer); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	listing, err := s.Listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.Available() {
		s.logRejected(listingID, buyer.UID, domain.KindAlreadySold)
		return nil, domain.ErrAlreadySold
	}
	if listing.SellerID == buyer.UID {
		s.logRejected(listingID, buyer.UID, domain.KindSelfPurchase)
		return nil, domain.ErrSelfPurchase
	}

	var purchase *domain.Purchase
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sold, err := s.Listings.WithTx(tx).MarkSold(ctx, listingID)
		if err != nil {
			return err
		}
		purchase, err = s.Purchases.WithTx(tx).Record(ctx, repository.NewPurchase{
			ListingID:    sold.ID,
			BuyerID:      buyer.UID,
			SellerID:     sold.SellerID,
			EnergyAmount: sold.EnergyAmount,
			PricePerKWh:  sold.PricePerKWh,
			TotalPrice:   sold.EnergyAmount * sold.PricePerKWh,
		})
		if err != nil {
			return err
		}
		_, err = s.Events.WithTx(tx).Append(ctx, sold.ID, domain.EventListingSold, &buyer.UID, map[string]interface{}{
			"purchase_id":   purchase.ID.String(),
			"buyer_id":      buyer.UID,
			"energy_amount": purchase.EnergyAmount,
			"total_price":   purchase.TotalPrice,
		})
		return err
	})
	if err != nil {
		if kind := domain.KindOf(err); kind == domain.KindAlreadySold || kind == domain.KindNotFound {
			s.logRejected(listingID, buyer.UID, kind)
			return nil, err
		}
		log.Error().Err(err).Str("listing_id", listingID.String()).Str("buyer_id", buyer.UID).Msg("purchase failed")
		return nil, asPersistence("Failed to complete purchase", err)
	}

	log.Info().Str("listing_id", listingID.String()).Str("purchase_id", purchase.ID.String()).
		Str("buyer_id", buyer.UID).Str("seller_id", purchase.SellerID).
		Float64("total_price", purchase.TotalPrice).Msg("listing purchased")
	s.publish(feed.Change{
		Type:      domain.EventListingSold,
		ListingID: listingID.String(),
		SellerID:  purchase.SellerID,
		BuyerID:   buyer.UID,
		At:        purchase.PurchaseDate,
	})
	return purchase, nil
}

func (s *Service) Get(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.Listings.Get(ctx, listingID)
}

func (s *Service) ListAvailable(ctx context.Context) ([]domain.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.Listings.ListAvailable(ctx)
}

func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.Listings.ListBySeller(ctx, sellerID)
}

func (s *Service) ListPurchases(ctx context.Context, buyerID string) ([]domain.Purchase, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.Purchases.ListByBuyer(ctx, buyerID)
}

func (s *Service) ListSales(ctx context.Context, sellerID string) ([]domain.Purchase, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.Purchases.ListBySeller(ctx, sellerID)
}

// ListEvents returns the audit trail of one listing, oldest first.
func (s *Service) ListEvents(ctx context.Context, listingID uuid.UUID) ([]domain.MarketEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.Listings.Get(ctx, listingID); err != nil {
		return nil, err
	}
	return s.Events.ListByListing(ctx, listingID)
}

// publish runs after commit. A lost notification only delays live views; the write already stands.
func (s *Service) publish(c feed.Change) {
	if s.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Notifier.Publish(ctx, c); err != nil {
		log.Warn().Err(err).Str("listing_id", c.ListingID).Str("type", c.Type).Msg("market change not published")
	}
}

func (s *Service) logRejected(listingID uuid.UUID, buyerID string, kind domain.ErrorKind) {
	log.Warn().Str("listing_id", listingID.String()).Str("buyer_id", buyerID).Str("reason", string(kind)).Msg("purchase rejected")
}

// asPersistence keeps typed errors as they are and classifies anything else as a failed write.
func asPersistence(msg string, err error) error {
	var typed *domain.Error
	if errors.As(err, &typed) {
		return err
	}
	return domain.PersistenceFailed(msg, err)
}
