package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL string

	// Kafka (optional; run events are not published when empty)
	KafkaBrokers string

	// API Configuration
	APIPort string
	APIHost string

	// Storefront (Shopify Admin API)
	ShopifyShopDomain  string
	ShopifyAccessToken string

	// Supplier (CJ Dropshipping API)
	CJAccessToken string

	// Sync daemon
	SyncInterval time.Duration

	// Environment
	Env      string
	LogLevel string
}

func Load() (*Config, error) {
	// Load .env file
	godotenv.Load()

	return &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "sqlite://pricesync.db"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		APIPort:            getEnv("API_PORT", "8080"),
		APIHost:            getEnv("API_HOST", "0.0.0.0"),
		ShopifyShopDomain:  getEnv("SHOPIFY_SHOP_DOMAIN", ""),
		ShopifyAccessToken: getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		CJAccessToken:      getEnv("CJ_ACCESS_TOKEN", ""),
		SyncInterval:       getEnvAsDuration("SYNC_INTERVAL", 6*time.Hour),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}, nil
}

// ValidateSync checks the credentials the sync pipeline cannot run without.
// A missing credential is a configuration error: fatal to the operation,
// surfaced before any work is attempted.
func (c *Config) ValidateSync() error {
	if c.ShopifyShopDomain == "" {
		return fmt.Errorf("SHOPIFY_SHOP_DOMAIN is not set")
	}
	if c.ShopifyAccessToken == "" {
		return fmt.Errorf("SHOPIFY_ACCESS_TOKEN is not set")
	}
	if c.CJAccessToken == "" {
		return fmt.Errorf("CJ_ACCESS_TOKEN is not set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
