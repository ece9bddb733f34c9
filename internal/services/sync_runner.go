package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run modes, used for metrics and run locks
const (
	ModeFullSync = "full"
	ModeDrain    = "drain"
)

// DefaultPageSize is the sweep and drain page size
const DefaultPageSize = 1000

// maxAttemptsPerTarget bounds how often one drain runs the same target, so a
// requeued job gets one more chance after its dependencies ran but a job
// whose dependencies keep failing cannot spin the drain.
const maxAttemptsPerTarget = 2

// RunnerConfig tunes a SyncRunner
type RunnerConfig struct {
	PageSize int
	// DrainMaxPages caps the pages fetched by one drain; 0 means no cap
	DrainMaxPages int
	WorkerCount   int
}

// SyncRunner performs full sweeps and queue drains
type SyncRunner struct {
	store    jobstore.Store
	dir      directory.Directory
	executor *Executor
	cfg      RunnerConfig
	logger   *logging.SafeLogger
}

// NewSyncRunner creates a runner
func NewSyncRunner(store jobstore.Store, dir directory.Directory, executor *Executor, cfg RunnerConfig, logger *logging.SafeLogger) *SyncRunner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &SyncRunner{
		store:    store,
		dir:      dir,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// FullSync provisions every enabled user of the realm that is linked to a
// SCIM component, or to a component forwarding its users to SCIM. Users are
// scanned in pages ordered by id; an interrupted sweep is simply run again.
func (r *SyncRunner) FullSync(ctx context.Context, realmID string) (models.SyncCounters, error) {
	start := time.Now()
	result := &models.SynchronizationResult{}
	logger := r.logger.With(zap.String("mode", ModeFullSync), zap.String("realm_id", realmID))

	err := r.fullSync(ctx, realmID, result, logger)
	counters := result.Snapshot()
	r.finish(ModeFullSync, start, counters, err, logger)
	return counters, err
}

func (r *SyncRunner) fullSync(ctx context.Context, realmID string, result *models.SynchronizationResult, logger *logging.SafeLogger) error {
	if _, err := r.dir.GetRealm(ctx, realmID); err != nil {
		return fmt.Errorf("full sync of realm %s: %w", realmID, err)
	}

	scimComponents, err := r.executor.Resolver().ScimComponents(ctx, realmID)
	if err != nil {
		return fmt.Errorf("list remote configurations: %w", err)
	}
	if len(scimComponents) == 0 {
		logger.Info("realm has no remote configuration, nothing to sync")
		return nil
	}
	all, err := r.dir.ListComponents(ctx, realmID, "")
	if err != nil {
		return fmt.Errorf("list components: %w", err)
	}

	for _, comp := range scimComponents {
		links := []string{comp.ID}
		for _, c := range all {
			if c.ID != comp.ID && c.ScimEventsEnabled() {
				links = append(links, c.ID)
			}
		}

		for offset := 0; ; offset += r.cfg.PageSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			users, err := r.dir.SearchUsers(ctx, realmID, directory.UserQuery{
				FederationLinks: links,
				Enabled:         directory.Enabled(true),
				Offset:          offset,
				Limit:           r.cfg.PageSize,
			})
			if err != nil {
				return fmt.Errorf("search users at offset %d: %w", offset, err)
			}
			logger.Debug("sweeping user page",
				zap.String("component_id", comp.ID),
				zap.Int("offset", offset),
				zap.Int("users", len(users)))

			err = r.parallel(ctx, len(users), func(ctx context.Context, i int) error {
				return r.syncUser(ctx, comp, users[i], result, logger)
			})
			if err != nil {
				return err
			}
			if len(users) < r.cfg.PageSize {
				break
			}
		}
	}
	return nil
}

// syncUser enqueues and runs the create-or-update job of one user in its own unit of work
func (r *SyncRunner) syncUser(ctx context.Context, comp *models.Component, user *models.User, result *models.SynchronizationResult, logger *logging.SafeLogger) error {
	var attempt *models.SynchronizationResult
	err := r.store.InTx(ctx, func(ctx context.Context, tx jobstore.Store) error {
		// a backend may run fn again; only the committed attempt counts
		attempt = &models.SynchronizationResult{}
		enq := NewEnqueuer(tx, logger)
		var (
			job *models.SyncJob
			err error
		)
		if user.FederationLink == comp.ID {
			job, err = enq.EnqueueUserCreate(ctx, user.RealmID, comp.ID, user.ID)
		} else {
			job, err = enq.EnqueueUserCreateExternal(ctx, user.RealmID, comp.ID, user.ID)
		}
		if err != nil {
			return err
		}
		_, err = r.executor.Execute(ctx, tx, job, attempt)
		return err
	})
	return r.settled(ctx, err, attempt, result, logger.With(zap.String("user_id", user.ID)))
}

// Drain executes due jobs oldest first until the queue holds nothing new for
// this pass. Jobs retried during the pass are left for the next one.
func (r *SyncRunner) Drain(ctx context.Context) (models.SyncCounters, error) {
	start := time.Now()
	result := &models.SynchronizationResult{}
	logger := r.logger.With(zap.String("mode", ModeDrain))

	err := r.drain(ctx, result, logger)
	counters := result.Snapshot()
	r.finish(ModeDrain, start, counters, err, logger)
	return counters, err
}

func (r *SyncRunner) drain(ctx context.Context, result *models.SynchronizationResult, logger *logging.SafeLogger) error {
	// a requeued job comes back with a new created_at and gets another attempt
	type attemptKey struct {
		id        string
		createdAt int64
	}
	seen := make(map[attemptKey]bool)
	attempts := make(map[models.JobTarget]int)

	for page := 0; r.cfg.DrainMaxPages <= 0 || page < r.cfg.DrainMaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		jobs, err := r.store.FetchDue(ctx, r.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("fetch due jobs: %w", err)
		}

		fresh := jobs[:0]
		for _, job := range jobs {
			target := job.Target()
			key := attemptKey{job.ID, job.CreatedAt.UnixNano()}
			if seen[key] || attempts[target] >= maxAttemptsPerTarget {
				continue
			}
			seen[key] = true
			attempts[target]++
			fresh = append(fresh, job)
		}
		if len(fresh) == 0 {
			break
		}
		logger.Debug("draining page", zap.Int("page", page), zap.Int("jobs", len(fresh)))

		err = r.parallel(ctx, len(fresh), func(ctx context.Context, i int) error {
			job := fresh[i]
			var attempt *models.SynchronizationResult
			err := r.store.InTx(ctx, func(ctx context.Context, tx jobstore.Store) error {
				attempt = &models.SynchronizationResult{}
				_, err := r.executor.Execute(ctx, tx, job.Clone(), attempt)
				return err
			})
			return r.settled(ctx, err, attempt, result, logger.With(zap.String("job_id", job.ID)))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// parallel runs fn for 0..n-1 on at most WorkerCount goroutines
func (r *SyncRunner) parallel(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.WorkerCount)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// settled folds a unit of work into the run. The attempt's counters are kept
// only when it committed.
func (r *SyncRunner) settled(ctx context.Context, err error, attempt, result *models.SynchronizationResult, logger *logging.SafeLogger) error {
	if err == nil {
		result.Merge(attempt)
		return nil
	}
	return r.absorb(ctx, err, result, logger)
}

// absorb counts and logs a unit of work that could not commit. Only
// cancellation stops the run.
func (r *SyncRunner) absorb(ctx context.Context, err error, result *models.SynchronizationResult, logger *logging.SafeLogger) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	result.IncreaseFailed()
	logger.Error("unit of work rolled back", zap.Error(err))
	return nil
}

func (r *SyncRunner) finish(mode string, start time.Time, counters models.SyncCounters, err error, logger *logging.SafeLogger) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.Runs.WithLabelValues(mode, status).Inc()

	fields := []zap.Field{
		zap.Int64("added", counters.Added),
		zap.Int64("updated", counters.Updated),
		zap.Int64("removed", counters.Removed),
		zap.Int64("failed", counters.Failed),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.Error("sync run failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("sync run finished", fields...)
}
