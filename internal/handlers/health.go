package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Pinger checks one dependency
type Pinger func(ctx context.Context) error

// HealthHandler reports the state of the job store and the configured dependencies
type HealthHandler struct {
	logger  *logging.SafeLogger
	store   jobstore.Store
	pingers map[string]Pinger
}

// NewHealthHandler creates a health handler. pingers is keyed by service name.
func NewHealthHandler(logger *logging.SafeLogger, store jobstore.Store, pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{logger: logger, store: store, pingers: pingers}
}

// HealthCheck godoc
// @Summary Verificação de saúde
// @Description Verifica a saúde da API e suas dependências (fila de jobs, MongoDB e Redis quando configurados).
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse "Todos os serviços estão saudáveis"
// @Failure 503 {object} HealthResponse "Um ou mais serviços estão indisponíveis"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "HealthCheck")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.logger.Warn("job store health check failed", zap.Error(err))
		health.Status = "unhealthy"
		health.Services["job_store"] = "unhealthy"
	} else {
		health.Services["job_store"] = "healthy"
		health.Queue = &stats
	}

	names := make([]string, 0, len(h.pingers))
	for name := range h.pingers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.pingers[name](ctx); err != nil {
			h.logger.Warn("dependency health check failed", zap.String("service", name), zap.Error(err))
			health.Status = "unhealthy"
			health.Services[name] = "unhealthy"
			continue
		}
		health.Services[name] = "healthy"
	}

	span.SetAttributes(attribute.String("health.status", health.Status))
	if health.Status == "healthy" {
		c.JSON(http.StatusOK, health)
		return
	}
	c.JSON(http.StatusServiceUnavailable, health)
}
