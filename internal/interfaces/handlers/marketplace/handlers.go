package marketplace

import (
	"encoding/json"
	"time"

	"wattswap-backend/internal/application/feed"
	mktsvc "wattswap-backend/internal/application/marketplace"
	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/middleware"
	"wattswap-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service   *mktsvc.Service
	Hub       *feed.Hub
	KeepAlive time.Duration
}

// POST /api/v1/marketplace/listings
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return writeError(c, domain.ErrUnauthenticated)
	}
	var in mktsvc.CreateListingInput
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	listing, err := h.Service.CreateListing(c.UserContext(), *id, in)
	if err != nil {
		return writeError(c, err)
	}
	return response.SuccessCreated(c, "Listing created successfully", listing, nil)
}

// GET /api/v1/marketplace/listings
func (h *Handlers) ListAvailable(c *fiber.Ctx) error {
	listings, err := h.Service.ListAvailable(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Listings fetched successfully", listings, fiber.Map{"count": len(listings)})
}

// GET /api/v1/marketplace/listings/mine
func (h *Handlers) ListMine(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return writeError(c, domain.ErrUnauthenticated)
	}
	listings, err := h.Service.ListBySeller(c.UserContext(), id.UID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Your listings fetched successfully", listings, fiber.Map{"count": len(listings)})
}

// GET /api/v1/marketplace/listings/:listing_id
func (h *Handlers) GetListing(c *fiber.Ctx) error {
	listingID, ok := parseListingID(c)
	if !ok {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	listing, err := h.Service.Get(c.UserContext(), listingID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Listing fetched successfully", listing, nil)
}

// GET /api/v1/marketplace/listings/:listing_id/events
func (h *Handlers) ListEvents(c *fiber.Ctx) error {
	listingID, ok := parseListingID(c)
	if !ok {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	events, err := h.Service.ListEvents(c.UserContext(), listingID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Listing events fetched successfully", events, fiber.Map{"count": len(events)})
}

// POST /api/v1/marketplace/listings/:listing_id/purchase
func (h *Handlers) Purchase(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return writeError(c, domain.ErrUnauthenticated)
	}
	listingID, ok := parseListingID(c)
	if !ok {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	purchase, err := h.Service.Purchase(c.UserContext(), listingID, *id)
	if err != nil {
		return writeError(c, err)
	}
	return response.SuccessCreated(c, "Purchase completed successfully", purchase, nil)
}

// GET /api/v1/marketplace/purchases/mine
func (h *Handlers) ListMyPurchases(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return writeError(c, domain.ErrUnauthenticated)
	}
	purchases, err := h.Service.ListPurchases(c.UserContext(), id.UID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Your purchases fetched successfully", purchases, fiber.Map{"count": len(purchases)})
}

// GET /api/v1/marketplace/sales/mine
func (h *Handlers) ListMySales(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return writeError(c, domain.ErrUnauthenticated)
	}
	sales, err := h.Service.ListSales(c.UserContext(), id.UID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Your sales fetched successfully", sales, fiber.Map{"count": len(sales)})
}

// GET /api/v1/marketplace/stats
func (h *Handlers) Stats(c *fiber.Ctx) error {
	stats, err := h.Service.Stats(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Market stats fetched successfully", stats, nil)
}

func parseListingID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("listing_id"))
	return id, err == nil
}
