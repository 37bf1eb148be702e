package router

import (
	"context"
	"net/http"
	"sync"
	"time"

	analysissvc "wattswap-backend/internal/application/analysis"
	authsvc "wattswap-backend/internal/application/auth"
	"wattswap-backend/internal/application/feed"
	healthsvc "wattswap-backend/internal/application/health"
	mktsvc "wattswap-backend/internal/application/marketplace"
	"wattswap-backend/internal/config"
	"wattswap-backend/internal/infrastructure/cache"
	"wattswap-backend/internal/infrastructure/database"
	analysishandler "wattswap-backend/internal/interfaces/handlers/analysis"
	authhandler "wattswap-backend/internal/interfaces/handlers/auth"
	healthhandler "wattswap-backend/internal/interfaces/handlers/health"
	mkthandler "wattswap-backend/internal/interfaces/handlers/marketplace"
	"wattswap-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	defaultDatabaseURL = "sqlite:file:wattswap.db?_pragma=busy_timeout(5000)"
	shutdownTimeout    = 10 * time.Second
)

// App is the assembled HTTP app and the resources it owns.
type App struct {
	Fiber *fiber.App
	DB    *gorm.DB
	Rdb   *redis.Client // nil when REDIS_URL is unset
	Hub   *feed.Hub

	stop     context.CancelFunc
	once     sync.Once
	closeErr error
}

// Shutdown ends live streams, drains in-flight requests and closes connections.
// Calls after the first return the first result.
func (a *App) Shutdown() error {
	a.once.Do(func() {
		a.stop()
		a.Hub.Close()
		a.closeErr = a.Fiber.ShutdownWithTimeout(shutdownTimeout)
		if a.Rdb != nil {
			_ = a.Rdb.Close()
		}
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return a.closeErr
}

func CreateApp(cfg *config.Config) (*App, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = defaultDatabaseURL
		log.Warn().Str("dsn", dsn).Msg("DATABASE_URL not set, using local sqlite")
	}
	db, err := database.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = cache.Open(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	var notifier feed.Notifier = feed.NewLocalNotifier()
	if rdb != nil {
		notifier = feed.NewRedisNotifier(rdb)
	}

	market := mktsvc.NewService(db, notifier, cfg.OperationTimeout)
	hub := feed.NewHub(market, cfg.OperationTimeout)
	ctx, stop := context.WithCancel(context.Background())
	if err := hub.Run(ctx, notifier); err != nil {
		stop()
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler(rdb),
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	if rdb != nil {
		app.Use(middleware.Session(rdb))
		app.Use(middleware.HealthMarker(rdb))
		middleware.MarkStart(ctx, rdb)
	}
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	// A nil *TokenVerifier must not reach Identify as a non-nil interface.
	var verifier middleware.IdentityVerifier
	if v := authsvc.NewTokenVerifier(cfg.IdentityTokenSecret); v != nil {
		verifier = v
	}
	app.Use(middleware.Identify(verifier))

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &healthsvc.GormPinger{DB: db},
		Feed:           hub,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	sessionCfg := middleware.SessionConfig{
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.IsProduction(),
	}
	authGroup := app.Group("/api/v1/auth")
	if rdb != nil {
		accounts := &authsvc.GormUserFinder{DB: db}
		ah := &authhandler.Handlers{
			UserFinder: accounts,
			Registrar:  accounts,
			Rdb:        rdb,
			Config:     sessionCfg,
		}
		authGroup.Post("/register", ah.Register)
		authGroup.Post("/login", ah.Login)
		authGroup.Delete("/logout", ah.Logout)
		authGroup.Get("/me", ah.Me)
	} else {
		authGroup.Get("/me", (&authhandler.Handlers{}).Me)
	}

	mh := &mkthandler.Handlers{Service: market, Hub: hub}
	mg := app.Group("/api/v1/marketplace")
	mg.Get("/listings", mh.ListAvailable)
	mg.Get("/stats", mh.Stats)
	mg.Get("/stream/listings", mh.StreamAvailable)
	mg.Get("/listings/mine", middleware.RequireAuth(), mh.ListMine)
	mg.Get("/listings/:listing_id", mh.GetListing)
	mg.Get("/listings/:listing_id/events", mh.ListEvents)
	mg.Post("/listings", middleware.RequireAuth(), mh.CreateListing)
	mg.Post("/listings/:listing_id/purchase", middleware.RequireAuth(), mh.Purchase)
	mg.Get("/purchases/mine", middleware.RequireAuth(), mh.ListMyPurchases)
	mg.Get("/sales/mine", middleware.RequireAuth(), mh.ListMySales)
	mg.Get("/stream/listings/mine", middleware.RequireAuth(), mh.StreamMyListings)
	mg.Get("/stream/purchases/mine", middleware.RequireAuth(), mh.StreamMyPurchases)

	ah := &analysishandler.Handlers{Service: &analysissvc.Service{}}
	app.Post("/api/v1/analysis/analyze-driving", ah.AnalyzeDriving)

	return &App{Fiber: app, DB: db, Rdb: rdb, Hub: hub, stop: stop}, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
