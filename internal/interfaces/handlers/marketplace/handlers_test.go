package marketplace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wattswap-backend/internal/application/feed"
	mktsvc "wattswap-backend/internal/application/marketplace"
	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/infrastructure/database"
	"wattswap-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testUserHeader = "X-Test-User"

func setupMarketplaceTest(t *testing.T) (*fiber.App, *gorm.DB) {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	svc := mktsvc.NewService(db, feed.NewLocalNotifier(), 5*time.Second)
	h := &Handlers{Service: svc, Hub: feed.NewHub(svc, time.Second)}

	app := fiber.New()
	// Stand-in for the identity middleware: the header names the caller.
	app.Use(func(c *fiber.Ctx) error {
		if uid := c.Get(testUserHeader); uid != "" {
			name := "User " + uid
			middleware.SetIdentity(c, &domain.Identity{UID: uid, DisplayName: &name})
		}
		return c.Next()
	})
	g := app.Group("/api/v1/marketplace")
	g.Post("/listings", h.CreateListing)
	g.Get("/listings", h.ListAvailable)
	g.Get("/listings/mine", h.ListMine)
	g.Get("/listings/:listing_id", h.GetListing)
	g.Get("/listings/:listing_id/events", h.ListEvents)
	g.Post("/listings/:listing_id/purchase", h.Purchase)
	g.Get("/purchases/mine", h.ListMyPurchases)
	g.Get("/sales/mine", h.ListMySales)
	g.Get("/stats", h.Stats)
	g.Get("/stream/listings/mine", h.StreamMyListings)
	g.Get("/stream/purchases/mine", h.StreamMyPurchases)
	return app, db
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
		Kind       string `json:"kind"`
	} `json:"error"`
}

func do(t *testing.T, app *fiber.App, method, path, user string, body interface{}) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func createListing(t *testing.T, app *fiber.App, seller string) domain.Listing {
	t.Helper()
	code, env := do(t, app, "POST", "/api/v1/marketplace/listings", seller, map[string]interface{}{
		"energyAmount": 10, "pricePerKWh": 0.5, "location": "Austin",
	})
	require.Equal(t, fiber.StatusCreated, code)
	var l domain.Listing
	require.NoError(t, json.Unmarshal(env.Data, &l))
	return l
}

func TestCreateListing_Created(t *testing.T) {
	app, _ := setupMarketplaceTest(t)
	l := createListing(t, app, "seller-1")
	assert.Equal(t, 5.0, l.TotalPrice)
	assert.Equal(t, domain.ListingAvailable, l.Status)
	assert.Equal(t, "User seller-1", l.SellerName)
}

func TestCreateListing_InvalidAmount(t *testing.T) {
	app, db := setupMarketplaceTest(t)
	code, env := do(t, app, "POST", "/api/v1/marketplace/listings", "seller-1", map[string]interface{}{
		"energyAmount": "abc", "pricePerKWh": 0.5, "location": "Austin",
	})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Error.Message, "energyAmount")

	var count int64
	require.NoError(t, db.Model(&domain.Listing{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateListing_BadBodyAndNoIdentity(t *testing.T) {
	app, _ := setupMarketplaceTest(t)

	req := httptest.NewRequest("POST", "/api/v1/marketplace/listings", strings.NewReader("{"))
	req.Header.Set(testUserHeader, "seller-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	code, _ := do(t, app, "POST", "/api/v1/marketplace/listings", "", map[string]interface{}{
		"energyAmount": 1, "pricePerKWh": 1, "location": "x",
	})
	assert.Equal(t, fiber.StatusUnauthorized, code)
}

func TestPurchase_StatusMapping(t *testing.T) {
	app, _ := setupMarketplaceTest(t)
	l := createListing(t, app, "seller-1")
	path := "/api/v1/marketplace/listings/" + l.ID.String() + "/purchase"

	code, env := do(t, app, "POST", path, "seller-1", nil)
	assert.Equal(t, fiber.StatusForbidden, code)
	assert.Equal(t, "You cannot purchase your own listing", env.Error.Message)
	assert.Equal(t, "self_purchase", env.Error.Kind)

	code, env = do(t, app, "POST", path, "buyer-1", nil)
	require.Equal(t, fiber.StatusCreated, code)
	var p domain.Purchase
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 5.0, p.TotalPrice)
	assert.Equal(t, l.ID, p.ListingID)

	code, env = do(t, app, "POST", path, "buyer-2", nil)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "This listing is no longer available", env.Error.Message)
	assert.Equal(t, "already_sold", env.Error.Kind)

	code, env = do(t, app, "POST", "/api/v1/marketplace/listings/"+uuid.NewString()+"/purchase", "buyer-1", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Kind)

	code, _ = do(t, app, "POST", "/api/v1/marketplace/listings/not-a-uuid/purchase", "buyer-1", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, _ = do(t, app, "POST", path, "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)
}

func TestListings_ViewsAfterSale(t *testing.T) {
	app, _ := setupMarketplaceTest(t)
	sold := createListing(t, app, "seller-1")
	kept := createListing(t, app, "seller-1")
	code, _ := do(t, app, "POST", "/api/v1/marketplace/listings/"+sold.ID.String()+"/purchase", "buyer-1", nil)
	require.Equal(t, fiber.StatusCreated, code)

	code, env := do(t, app, "GET", "/api/v1/marketplace/listings", "", nil)
	require.Equal(t, fiber.StatusOK, code)
	var available []domain.Listing
	require.NoError(t, json.Unmarshal(env.Data, &available))
	require.Len(t, available, 1)
	assert.Equal(t, kept.ID, available[0].ID)

	code, env = do(t, app, "GET", "/api/v1/marketplace/listings/mine", "seller-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	var mine []domain.Listing
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 2)

	code, env = do(t, app, "GET", "/api/v1/marketplace/purchases/mine", "buyer-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	var purchases []domain.Purchase
	require.NoError(t, json.Unmarshal(env.Data, &purchases))
	assert.Len(t, purchases, 1)

	code, env = do(t, app, "GET", "/api/v1/marketplace/sales/mine", "seller-1", nil)
	require.Equal(t, fiber.StatusOK, code)
	var sales []domain.Purchase
	require.NoError(t, json.Unmarshal(env.Data, &sales))
	assert.Len(t, sales, 1)

	code, env = do(t, app, "GET", "/api/v1/marketplace/listings/"+sold.ID.String(), "", nil)
	require.Equal(t, fiber.StatusOK, code)
	var got domain.Listing
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, domain.ListingSold, got.Status)

	code, env = do(t, app, "GET", "/api/v1/marketplace/listings/"+sold.ID.String()+"/events", "", nil)
	require.Equal(t, fiber.StatusOK, code)
	var events []domain.MarketEvent
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventListingSold, events[1].EventType)

	code, env = do(t, app, "GET", "/api/v1/marketplace/stats", "", nil)
	require.Equal(t, fiber.StatusOK, code)
	var stats mktsvc.MarketStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.AvailableListings)
	assert.Equal(t, 10.0, stats.AvailableEnergyKWh)
}

func TestListAvailable_QueryFailureIsRetryLater(t *testing.T) {
	app, db := setupMarketplaceTest(t)
	require.NoError(t, db.Migrator().DropTable(&domain.Listing{}))

	code, env := do(t, app, "GET", "/api/v1/marketplace/listings", "", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, msgRetryLater, env.Error.Message)
}

func TestStreams_RequireIdentity(t *testing.T) {
	app, _ := setupMarketplaceTest(t)
	for _, path := range []string{"/api/v1/marketplace/stream/listings/mine", "/api/v1/marketplace/stream/purchases/mine"} {
		req := httptest.NewRequest("GET", path, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestWriteEvents_FramesSnapshotsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	snaps := make(chan feed.Snapshot, 3)
	snaps <- feed.Snapshot{Topic: feed.AvailableListings(), Version: "01HV0000000000000000000001"}
	snaps <- feed.Snapshot{Topic: feed.BuyerPurchases("b"), Version: "01HV0000000000000000000002",
		Purchases: []domain.Purchase{{BuyerID: "b", TotalPrice: 5}}}
	snaps <- feed.Snapshot{Topic: feed.AvailableListings(), Version: "01HV0000000000000000000003",
		Err: domain.QueryFailed("Failed to fetch listings", context.DeadlineExceeded)}
	close(snaps)

	require.NoError(t, writeEvents(context.Background(), w, snaps, time.Hour))
	out := buf.String()

	frames := strings.Split(strings.TrimSpace(out), "\n\n")
	require.Len(t, frames, 3)
	assert.Contains(t, frames[0], "id: 01HV0000000000000000000001\nevent: snapshot\n")
	assert.Contains(t, frames[0], `"listings":[]`)
	assert.Contains(t, frames[1], `"purchases":[{`)
	assert.NotContains(t, frames[1], `"listings"`)
	assert.Contains(t, frames[2], "event: error\n")
	assert.Contains(t, frames[2], `"statusCode":503`)
	assert.Contains(t, frames[2], `"kind":"query"`)
}
