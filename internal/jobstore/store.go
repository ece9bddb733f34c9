// Package jobstore persists SCIM sync jobs: a deduplicating queue with
// retry counting, where jobs past the retry ceiling are kept for inspection.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// ErrDuplicateDue is returned by Revive when a due job for the same target already exists
var ErrDuplicateDue = errors.New("a due job for this target already exists")

// EnqueueRequest describes the job to enqueue
type EnqueueRequest struct {
	Action      models.Action
	RealmID     string
	UserID      string
	GroupID     string
	RoleID      string
	ComponentID string
	ExternalID  string
}

// Target returns the dedup identity of the request
func (r EnqueueRequest) Target() models.JobTarget {
	return models.JobTarget{
		RealmID: r.RealmID,
		Action:  r.Action,
		UserID:  r.UserID,
		GroupID: r.GroupID,
		RoleID:  r.RoleID,
	}
}

// Stats is a point-in-time count of queue rows
type Stats struct {
	Due       int64 `json:"due"`
	Abandoned int64 `json:"abandoned"`
}

// TxFunc runs inside a unit of work. It must use the Store it receives.
type TxFunc func(ctx context.Context, tx Store) error

// Store is the job queue boundary
type Store interface {
	// Enqueue inserts a job unless a due job with the same target exists,
	// in which case that job is returned unchanged and created is false.
	Enqueue(ctx context.Context, req EnqueueRequest) (job *models.SyncJob, created bool, err error)
	// FetchDue returns due jobs oldest first
	FetchDue(ctx context.Context, limit int) ([]*models.SyncJob, error)
	// MarkRetry increments the retry count of job in place
	MarkRetry(ctx context.Context, job *models.SyncJob) error
	// Requeue moves job to the back of the queue in one write: the retry
	// count goes up by one, created_at becomes now and the id is kept.
	Requeue(ctx context.Context, job *models.SyncJob) error
	// Remove deletes the job. Removing a missing job is not an error.
	Remove(ctx context.Context, job *models.SyncJob) error
	// Get loads a job by id
	Get(ctx context.Context, id string) (*models.SyncJob, error)
	// ListAbandoned returns jobs past the retry ceiling, oldest first
	ListAbandoned(ctx context.Context, limit int) ([]*models.SyncJob, error)
	// FindAbandoned returns the oldest abandoned job for target, or models.ErrJobNotFound
	FindAbandoned(ctx context.Context, target models.JobTarget) (*models.SyncJob, error)
	// Park moves a job past the retry ceiling without deleting it
	Park(ctx context.Context, job *models.SyncJob) error
	// Revive resets an abandoned job's retry count to zero
	Revive(ctx context.Context, id string) (*models.SyncJob, error)
	// Stats counts due and abandoned jobs
	Stats(ctx context.Context) (Stats, error)
	// InTx runs fn in one unit of work. Nested calls join the outer unit.
	InTx(ctx context.Context, fn TxFunc) error
	// Close releases backend resources
	Close() error
}

// Option configures a Store
type Option func(*options)

type options struct {
	ceiling int
	now     func() time.Time
	newID   func() string
}

// WithRetryCeiling sets the highest retry count at which a job is still due
func WithRetryCeiling(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.ceiling = n
		}
	}
}

// WithClock overrides the time source used for created_at
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		ceiling: models.DefaultRetryCeiling,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   newJobID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newJobID returns a time-ordered id so ties on created_at keep insertion order
func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (o options) newJob(req EnqueueRequest) *models.SyncJob {
	return &models.SyncJob{
		ID:          o.newID(),
		Action:      req.Action,
		UserID:      req.UserID,
		GroupID:     req.GroupID,
		RoleID:      req.RoleID,
		RealmID:     req.RealmID,
		ComponentID: req.ComponentID,
		ExternalID:  req.ExternalID,
		RetryCount:  0,
		CreatedAt:   o.now(),
	}
}

// parkedCount is the retry count given to parked jobs
func (o options) parkedCount() int {
	return o.ceiling + 1
}

func validateRequest(req EnqueueRequest) error {
	if !req.Action.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownAction, req.Action)
	}
	if req.RealmID == "" {
		return models.ErrMissingRealm
	}
	return nil
}

// Ensure every backend implements Store at compile time.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = (*MongoStore)(nil)
)
