// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockops/internal/domain/ledger"
	"stockops/internal/domain/operation"
	"stockops/internal/infrastructure/http/v1/handlers"
	"stockops/internal/infrastructure/http/v1/middleware"
	"stockops/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// OperationService drives the stock operation lifecycle
	OperationService *operation.Service

	// LedgerService answers availability queries
	LedgerService *ledger.Service

	// Version is the build version reported by /health/info
	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		protected := apiV1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		baseHandler := handlers.NewBaseHandler()

		operationHandler := handlers.NewOperationHandler(baseHandler, cfg.OperationService)
		operationHandler.RegisterRoutes(protected.Group("/operations"))

		ledgerHandler := handlers.NewLedgerHandler(baseHandler, cfg.LedgerService)
		ledgerHandler.RegisterRoutes(protected.Group("/ledger"))
	}

	return router
}
