package http

import (
	"github.com/gin-gonic/gin"
	"github.com/tirewatch/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		v1.POST("/compare", handler.Compare)
		v1.POST("/fragments/extract", handler.ExtractFragments)

		snapshots := v1.Group("/snapshots")
		{
			snapshots.GET("", handler.ListSnapshots)
			snapshots.GET("/latest", handler.LatestSnapshot)
			snapshots.GET("/latest/csv", handler.LatestSnapshotCSV)
			snapshots.GET("/:id", handler.GetSnapshot)
			snapshots.GET("/:id/csv", handler.SnapshotCSV)
		}
	}

	return router
}
