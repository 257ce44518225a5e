package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	httpapi "github.com/haavardst/solar-estimation/internal/api/http"
	"github.com/haavardst/solar-estimation/internal/config"
	"github.com/haavardst/solar-estimation/internal/scheduler"
	"github.com/haavardst/solar-estimation/internal/solar"
	"github.com/haavardst/solar-estimation/internal/solar/sources"
	"github.com/haavardst/solar-estimation/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.FrostClientID == "" {
		log.Printf("WARN: FROST_CLIENT_ID is not set; weather lookups will be rejected upstream")
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Outbound sources.
	frost := sources.NewFrostClient(httpClient, cfg.FrostBaseURL, cfg.FrostClientID, cfg.FrostClientSecret)
	pvgis := sources.NewPVGISClient(httpClient, cfg.PVGISBaseURL)
	prices := sources.NewSpotPriceClient(httpClient, cfg.SpotPriceBaseURL)
	addresses := sources.NewAddressClient(httpClient, cfg.AddressBaseURL)

	// Estimation pipeline and saved-location store.
	estimator := solar.NewEstimator(pvgis, frost)
	memStore := store.NewMemoryStore()

	// Scheduler that keeps the per-day spot price cache warm.
	sched := scheduler.New(prices, cfg.PriceRefreshInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "solar-estimation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "solar-estimation",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Estimator:   estimator,
		Addresses:   addresses,
		Prices:      prices,
		Store:       memStore,
		SellPriceKr: cfg.SellPriceKr,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
