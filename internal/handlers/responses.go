package handlers

import (
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Queue     *jobstore.Stats   `json:"queue,omitempty"`
}

// SyncResponse reports the counters of a finished run
type SyncResponse struct {
	Mode     string              `json:"mode"`
	RealmID  string              `json:"realm_id,omitempty"`
	Counters models.SyncCounters `json:"counters"`
	Duration string              `json:"duration"`
}

// EventResponse lists the jobs an event was translated to. Jobs that were
// already due are returned as well.
type EventResponse struct {
	Jobs []*models.SyncJob `json:"jobs"`
}

type JobListResponse struct {
	Jobs  []*models.SyncJob `json:"jobs"`
	Count int               `json:"count"`
}
