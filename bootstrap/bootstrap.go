package bootstrap

import (
	"wattswap-backend/internal/config"
	"wattswap-backend/internal/interfaces/router"
	"wattswap-backend/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// New creates the Fiber app for Vercel serverless (api handler imports this package, not internal).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.IsProduction())
	a, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	return a.Fiber, nil
}
