package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"go.uber.org/zap"
)

// AuditMiddleware logs every successful operator write: sweeps, drains,
// revivals and ingested events
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/v1/health") || strings.HasPrefix(path, "/metrics") {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}

		fields := []zap.Field{
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("action", auditAction(c.FullPath())),
			zap.String("method", method),
			zap.String("endpoint", path),
			zap.String("ip_address", c.ClientIP()),
			zap.Int("response_status", status),
		}
		for _, p := range c.Params {
			fields = append(fields, zap.String("param_"+p.Key, p.Value))
		}
		observability.Logger().Info("audit", fields...)
	}
}

// auditAction names the operator action of a route
func auditAction(route string) string {
	switch {
	case strings.HasSuffix(route, "/sync/full"):
		return "full_sync"
	case strings.HasSuffix(route, "/sync/pending"):
		return "drain"
	case strings.HasSuffix(route, "/revive"):
		return "revive_job"
	case strings.HasSuffix(route, "/events"):
		return "ingest_event"
	case route == "":
		return "unknown"
	}
	return strings.Trim(strings.ReplaceAll(route, "/", "_"), "_")
}
