package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAuditMiddleware_PassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), AuditMiddleware())
	router.POST("/v1/jobs/:id/revive", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.GET("/v1/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/v1/jobs/j1/revive"},
		{http.MethodGet, "/v1/health"},
	} {
		req, _ := http.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestAuditAction(t *testing.T) {
	tests := map[string]string{
		"/v1/realms/:realm/sync/full": "full_sync",
		"/v1/sync/pending":            "drain",
		"/v1/jobs/:id/revive":         "revive_job",
		"/v1/events":                  "ingest_event",
		"/v1/other":                   "v1_other",
		"":                            "unknown",
	}
	for route, want := range tests {
		assert.Equal(t, want, auditAction(route), route)
	}
}
