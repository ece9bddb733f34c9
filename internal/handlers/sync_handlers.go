package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultJobListLimit = 100
	maxJobListLimit     = 1000
)

// SyncHandlers exposes the operator actions and event ingestion
type SyncHandlers struct {
	logger     *logging.SafeLogger
	sync       *services.SyncService
	translator *services.EventTranslator
	store      jobstore.Store
}

// NewSyncHandlers creates a new sync handlers instance
func NewSyncHandlers(logger *logging.SafeLogger, sync *services.SyncService, translator *services.EventTranslator, store jobstore.Store) *SyncHandlers {
	return &SyncHandlers{
		logger:     logger,
		sync:       sync,
		translator: translator,
		store:      store,
	}
}

// FullSync godoc
// @Summary Sincronização completa de um realm
// @Description Provisiona no serviço SCIM todos os usuários habilitados do realm vinculados a uma configuração SCIM. Aguarda o término e retorna os contadores.
// @Tags sync
// @Produce json
// @Param realm path string true "ID do realm"
// @Security BearerAuth
// @Success 200 {object} SyncResponse "Sincronização concluída"
// @Failure 401 {object} ErrorResponse "Token de autenticação não fornecido ou inválido"
// @Failure 404 {object} ErrorResponse "Realm não encontrado"
// @Failure 409 {object} ErrorResponse "Sincronização do realm já em andamento"
// @Failure 500 {object} ErrorResponse
// @Router /realms/{realm}/sync/full [post]
func (h *SyncHandlers) FullSync(c *gin.Context) {
	start := time.Now()
	realmID := c.Param("realm")

	ctx, span := otel.Tracer("").Start(c.Request.Context(), "FullSync")
	defer span.End()
	span.SetAttributes(attribute.String("realm_id", realmID))

	counters, err := h.sync.RunFullSync(ctx, realmID)
	if err != nil {
		h.runError(c, err, zap.String("realm_id", realmID))
		return
	}

	c.JSON(http.StatusOK, SyncResponse{
		Mode:     services.ModeFullSync,
		RealmID:  realmID,
		Counters: counters,
		Duration: time.Since(start).String(),
	})
}

// DrainPending godoc
// @Summary Processar fila pendente
// @Description Executa os jobs pendentes da fila, do mais antigo ao mais recente, e retorna os contadores.
// @Tags sync
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SyncResponse "Fila processada"
// @Failure 401 {object} ErrorResponse "Token de autenticação não fornecido ou inválido"
// @Failure 409 {object} ErrorResponse "Processamento da fila já em andamento"
// @Failure 500 {object} ErrorResponse
// @Router /sync/pending [post]
func (h *SyncHandlers) DrainPending(c *gin.Context) {
	start := time.Now()
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "DrainPending")
	defer span.End()

	counters, err := h.sync.RunDrain(ctx)
	if err != nil {
		h.runError(c, err)
		return
	}

	c.JSON(http.StatusOK, SyncResponse{
		Mode:     services.ModeDrain,
		Counters: counters,
		Duration: time.Since(start).String(),
	})
}

func (h *SyncHandlers) runError(c *gin.Context, err error, fields ...zap.Field) {
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrRealmNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Realm not found"})
	default:
		h.logger.Error("sync run failed", append(fields, zap.Error(err))...)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

// IngestEvent godoc
// @Summary Receber evento do diretório
// @Description Traduz um evento de alteração do diretório em jobs de sincronização. Eventos duplicados reaproveitam o job pendente.
// @Tags events
// @Accept json
// @Produce json
// @Param event body services.Event true "Evento do diretório"
// @Security BearerAuth
// @Success 202 {object} EventResponse "Evento aceito"
// @Failure 400 {object} ErrorResponse "Evento inválido"
// @Failure 401 {object} ErrorResponse "Token de autenticação não fornecido ou inválido"
// @Failure 500 {object} ErrorResponse
// @Router /events [post]
func (h *SyncHandlers) IngestEvent(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "IngestEvent")
	defer span.End()

	var ev services.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid event: " + err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("realm_id", ev.RealmID),
		attribute.String("resource_type", ev.ResourceType),
		attribute.String("operation_type", ev.OperationType),
	)

	jobs, err := h.translator.Translate(ctx, ev)
	if err != nil {
		if errors.Is(err, services.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("failed to translate event",
			zap.String("realm_id", ev.RealmID),
			zap.String("resource_type", ev.ResourceType),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}
	c.JSON(http.StatusAccepted, EventResponse{Jobs: jobs})
}

// ListAbandonedJobs godoc
// @Summary Listar jobs abandonados
// @Description Lista os jobs que excederam o limite de tentativas ou foram estacionados por erro de configuração.
// @Tags jobs
// @Produce json
// @Param limit query int false "Máximo de jobs (padrão: 100, máximo: 1000)" minimum(1) maximum(1000)
// @Security BearerAuth
// @Success 200 {object} JobListResponse
// @Failure 400 {object} ErrorResponse "Parâmetros inválidos"
// @Failure 401 {object} ErrorResponse "Token de autenticação não fornecido ou inválido"
// @Failure 500 {object} ErrorResponse
// @Router /jobs/abandoned [get]
func (h *SyncHandlers) ListAbandonedJobs(c *gin.Context) {
	limit := defaultJobListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxJobListLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit parameter"})
			return
		}
		limit = n
	}

	jobs, err := h.store.ListAbandoned(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list abandoned jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: jobs, Count: len(jobs)})
}

// ReviveJob godoc
// @Summary Reativar job abandonado
// @Description Zera o contador de tentativas de um job abandonado para que volte a ser processado.
// @Tags jobs
// @Produce json
// @Param id path string true "ID do job"
// @Security BearerAuth
// @Success 200 {object} models.SyncJob
// @Failure 401 {object} ErrorResponse "Token de autenticação não fornecido ou inválido"
// @Failure 404 {object} ErrorResponse "Job não encontrado"
// @Failure 409 {object} ErrorResponse "Já existe um job pendente para o mesmo alvo"
// @Failure 500 {object} ErrorResponse
// @Router /jobs/{id}/revive [post]
func (h *SyncHandlers) ReviveJob(c *gin.Context) {
	id := c.Param("id")
	job, err := h.store.Revive(c.Request.Context(), id)
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Job not found"})
		return
	case errors.Is(err, jobstore.ErrDuplicateDue):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("failed to revive job", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	h.logger.Info("job revived", zap.String("job_id", job.ID), zap.String("action", job.Action.String()))
	c.JSON(http.StatusOK, job)
}

// QueueStats godoc
// @Summary Estatísticas da fila
// @Description Conta os jobs pendentes e abandonados.
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} jobstore.Stats
// @Failure 401 {object} ErrorResponse "Token de autenticação não fornecido ou inválido"
// @Failure 500 {object} ErrorResponse
// @Router /jobs/stats [get]
func (h *SyncHandlers) QueueStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read queue stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
