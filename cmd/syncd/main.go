package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricesync/internal/config"
	"pricesync/internal/database"
	"pricesync/internal/events"
	"pricesync/internal/logger"
	"pricesync/internal/policy"
	"pricesync/internal/runlog"
	"pricesync/internal/services/shopify"
	"pricesync/internal/services/supplier"
	"pricesync/internal/sync"
)

// syncd periodically re-prices the storefront catalog against current
// supplier costs.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	if err := cfg.ValidateSync(); err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Build the sync pipeline
	storefront := shopify.NewClient(cfg.ShopifyShopDomain, cfg.ShopifyAccessToken, logger)
	supplierClient := supplier.NewClient(cfg.CJAccessToken, logger)
	matcher := sync.NewMatcher(supplierClient, storefront, logger)

	var runPublisher sync.RunPublisher
	publisher := events.NewPublisher(cfg.KafkaBrokers, logger)
	if publisher != nil {
		runPublisher = publisher
		defer publisher.Close()
	}

	orchestrator := sync.NewOrchestrator(
		storefront,
		matcher,
		policy.NewStore(db.DB),
		runlog.NewStore(db.DB),
		runPublisher,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())

	// Run on the configured interval until interrupted. A cancel stops the
	// current run before its next product, never mid-update.
	go func() {
		runOnce(ctx, orchestrator, logger)

		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runOnce(ctx, orchestrator, logger)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down sync daemon...")
	cancel()
}

func runOnce(ctx context.Context, orchestrator *sync.Orchestrator, logger *logger.Logger) {
	logger.Info("Starting price sync run...")

	result, err := orchestrator.Execute(ctx, nil, nil)
	if err != nil {
		logger.Error("Price sync run failed: %v", err)
		return
	}

	logger.Info("Price sync run finished: updated=%d failed=%d skipped=%d unmatched=%d total=%d in %s",
		result.Updated, result.Failed, result.Skipped, result.Unmatched, result.Total, result.Duration)
}
