package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/middleware"
)

// RegisterRoutes mounts the v1 API. Everything except the health check
// requires the admin token.
func RegisterRoutes(v1 *gin.RouterGroup, health *HealthHandler, sync *SyncHandlers, adminToken string) {
	v1.GET("/health", health.HealthCheck)

	admin := v1.Group("", middleware.AdminToken(adminToken), middleware.AuditMiddleware())
	{
		admin.POST("/realms/:realm/sync/full", sync.FullSync)
		admin.POST("/sync/pending", sync.DrainPending)
		admin.POST("/events", sync.IngestEvent)
		admin.GET("/jobs/abandoned", sync.ListAbandonedJobs)
		admin.GET("/jobs/stats", sync.QueueStats)
		admin.POST("/jobs/:id/revive", sync.ReviveJob)
	}
}
