package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	original := logging.Logger
	logging.Logger = logging.New(zap.New(core))
	defer func() { logging.Logger = original }()

	router := gin.New()
	router.Use(RequestID(), RequestLogger())
	router.GET("/jobs/:id", func(c *gin.Context) {
		switch c.Param("id") {
		case "bad":
			c.Status(http.StatusBadRequest)
		case "boom":
			c.Status(http.StatusInternalServerError)
		default:
			c.Status(http.StatusOK)
		}
	})

	tests := []struct {
		path    string
		level   zapcore.Level
		message string
		route   string
	}{
		{"/jobs/ok?verbose=1", zapcore.InfoLevel, "request completed", "/jobs/:id"},
		{"/jobs/bad", zapcore.WarnLevel, "request rejected", "/jobs/:id"},
		{"/jobs/boom", zapcore.ErrorLevel, "request failed", "/jobs/:id"},
		{"/missing", zapcore.WarnLevel, "request rejected", "unmatched"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Request-ID", "req-1")
			router.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.message, entries[0].Message)
			assert.Equal(t, tt.route, entries[0].ContextMap()["route"])
			assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
		})
	}
}

func TestRequestTracker(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestTracker())

	var inFlight float64
	router.GET("/test", func(c *gin.Context) {
		inFlight = testutil.ToFloat64(observability.ActiveRequests)
		c.Status(http.StatusNoContent)
	})

	before := testutil.ToFloat64(observability.ActiveRequests)
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, before+1, inFlight)
	assert.Equal(t, before, testutil.ToFloat64(observability.ActiveRequests))
}

func TestRequestID_Generated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())

	var seen string
	router.GET("/test", func(c *gin.Context) {
		seen = c.GetString(RequestIDKey)
		c.Status(http.StatusNoContent)
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
