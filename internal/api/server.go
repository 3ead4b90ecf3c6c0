package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pricesync/internal/api/handlers"
	"pricesync/internal/api/middleware"
	"pricesync/internal/config"
	"pricesync/internal/database"
	"pricesync/internal/events"
	"pricesync/internal/linker"
	"pricesync/internal/logger"
	"pricesync/internal/policy"
	"pricesync/internal/runlog"
	"pricesync/internal/services/shopify"
	"pricesync/internal/services/supplier"
	"pricesync/internal/sync"
)

type Server struct {
	config *config.Config
	logger *logger.Logger
	db     *database.Database
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, db *database.Database) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	// Collaborator clients
	storefront := shopify.NewClient(cfg.ShopifyShopDomain, cfg.ShopifyAccessToken, logger)
	supplierClient := supplier.NewClient(cfg.CJAccessToken, logger)

	// Stores
	policyStore := policy.NewStore(db.DB)
	runStore := runlog.NewStore(db.DB)

	// Sync pipeline
	matcher := sync.NewMatcher(supplierClient, storefront, logger)
	var publisher sync.RunPublisher
	if p := events.NewPublisher(cfg.KafkaBrokers, logger); p != nil {
		publisher = p
	}
	orchestrator := sync.NewOrchestrator(storefront, matcher, policyStore, runStore, publisher, logger)

	// Initialize handlers
	syncHandler := handlers.NewSyncHandler(orchestrator, runStore, logger)
	policyHandler := handlers.NewPolicyHandler(policyStore, logger)
	linkHandler := handlers.NewLinkHandler(
		linker.New(supplierClient, supplierClient, storefront, logger), logger)

	// Routes
	v1 := router.Group("/api/v1")
	{
		// Price sync
		syncGroup := v1.Group("/sync")
		{
			syncGroup.POST("/preview", syncHandler.Preview)
			syncGroup.POST("/execute", syncHandler.Execute)
			syncGroup.POST("/products/:id", syncHandler.SyncProduct)
		}

		// Pricing policy
		v1.GET("/policy", policyHandler.Get)
		v1.PUT("/policy", policyHandler.Put)

		// Supplier linking
		v1.POST("/products/:id/link", linkHandler.Link)
		v1.POST("/link/import", linkHandler.ImportCSV)

		// Run log
		v1.GET("/runs/:day", syncHandler.Runs)
	}

	return &Server{
		config: cfg,
		logger: logger,
		db:     db,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		// Execute runs are slow by design: storefront writes are spaced out
		// to respect the platform rate limit.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}
