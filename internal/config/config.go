package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all runtime configuration. Outbound base URLs are
// configurable so tests and staging can point the clients elsewhere.
type AppConfig struct {
	Port string

	// HTTPTimeout bounds every outbound API call; relying on transport
	// defaults would mean no timeout at all.
	HTTPTimeout time.Duration

	// Frost requires HTTP basic credentials. They must come from the
	// environment, never from source.
	FrostClientID     string
	FrostClientSecret string

	FrostBaseURL     string
	PVGISBaseURL     string
	SpotPriceBaseURL string
	AddressBaseURL   string

	// PriceRefreshInterval controls how often the scheduler warms the
	// per-day spot price cache.
	PriceRefreshInterval time.Duration

	// SellPriceKr is the flat grid sell-back tariff used in savings
	// calculations.
	SellPriceKr float64
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "15s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.FrostClientID = os.Getenv("FROST_CLIENT_ID")
	cfg.FrostClientSecret = os.Getenv("FROST_CLIENT_SECRET")

	cfg.FrostBaseURL = getenvDefault("FROST_BASE_URL", "https://frost.met.no")
	cfg.PVGISBaseURL = getenvDefault("PVGIS_BASE_URL", "https://re.jrc.ec.europa.eu/api/v5_2")
	cfg.SpotPriceBaseURL = getenvDefault("SPOT_PRICE_BASE_URL", "https://www.hvakosterstrommen.no/api/v1/prices")
	cfg.AddressBaseURL = getenvDefault("ADDRESS_BASE_URL", "https://ws.geonorge.no/adresser/v1")

	intervalStr := getenvDefault("PRICE_REFRESH_INTERVAL", "6h")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_REFRESH_INTERVAL: %w", err)
	}
	cfg.PriceRefreshInterval = interval

	cfg.SellPriceKr = getenvFloat("SELL_PRICE_KR", 0.60)

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
