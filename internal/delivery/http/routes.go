package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/shelfscan/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *slog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if cfg.Server.MaxUploadMB > 0 {
		router.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	}

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/scans", handler.SubmitScan)

		ledger := v1.Group("/ledger")
		{
			ledger.GET("", handler.GetLedger)
			ledger.GET("/count", handler.GetLedgerCount)
			ledger.GET("/csv", handler.DownloadCSV)
			ledger.GET("/xlsx", handler.DownloadXLSX)
			ledger.POST("/save", handler.SaveLedger)
			ledger.POST("/clear", handler.ClearLedger)
		}
	}

	return router
}
