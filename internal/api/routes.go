package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports storage reachability for the health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SetupRoutes configures the engine's HTTP surface. The write path requires
// the ingestion capability token; health, metrics and the read path do not.
func SetupRoutes(router *gin.Engine, handler *IngestHandler, health HealthChecker, gatherer prometheus.Gatherer, ingestToken string) {
	router.GET("/health", func(c *gin.Context) {
		if err := health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")

	ingest := v1.Group("/ingest", IngestAuth(ingestToken))
	ingest.POST("/job", handler.IngestJob)
	ingest.POST("/jobs", handler.IngestJobs)
	ingest.DELETE("/jobs/:id", handler.RetractJob)

	v1.GET("/jobs/:id", handler.GetJob)
	v1.GET("/jobs/:id/attempts", handler.GetJobAttempts)
}
