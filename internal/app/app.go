// Package app assembles the sync engine from configuration. The api server,
// the headless scheduler and the operator CLI all build their engine here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/handlers"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/redisclient"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
	"github.com/prefeitura-rio/app-scim-sync/internal/services"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ErrMongoRequired is returned when a Mongo backend is selected without a connection
var ErrMongoRequired = errors.New("MongoDB backend selected but no database connection was provided")

// Deps are the connections opened by the caller. Either may be nil.
type Deps struct {
	Mongo *mongo.Database
	Redis *redisclient.Client
}

// App is a fully wired engine
type App struct {
	Config     *config.Config
	Store      jobstore.Store
	Directory  directory.Directory
	Registry   *services.ClientRegistry
	Executor   *services.Executor
	Runner     *services.SyncRunner
	Sync       *services.SyncService
	Translator *services.EventTranslator

	deps   Deps
	logger *logging.SafeLogger
}

// New builds the engine. It ensures Mongo indexes when Mongo backends are selected.
func New(ctx context.Context, cfg *config.Config, deps Deps, logger *logging.SafeLogger) (*App, error) {
	store, err := NewJobStore(ctx, cfg, deps.Mongo)
	if err != nil {
		return nil, err
	}
	if cfg.JobStoreBackend == config.BackendMongo && !cfg.MongoTransactions {
		logger.Warn("mongo job store runs without transactions; each job settles with one document write " +
			"but a failed unit of work is not rolled back")
	}

	dir, err := NewDirectory(ctx, cfg, deps.Mongo)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := services.NewClientRegistry(services.HTTPFactory(scim.HTTPOptions{
		Timeout:   cfg.ScimRequestTimeout,
		RateLimit: cfg.ScimRateLimit,
		TokenPath: cfg.ScimTokenPath,
	}), logger)

	executor := services.NewExecutor(dir, registry, services.ExecutorConfig{
		ProviderID:                cfg.ScimProviderID,
		RetryCeiling:              cfg.MaxRetries,
		UnclassifiedFailurePolicy: cfg.UnclassifiedFailurePolicy,
		PhoneRegion:               services.DefaultPhoneRegion,
	}, logger)

	runner := services.NewSyncRunner(store, dir, executor, services.RunnerConfig{
		PageSize:      cfg.PageSize,
		DrainMaxPages: cfg.DrainMaxPages,
		WorkerCount:   cfg.WorkerCount,
	}, logger)

	var lock services.RunLock
	if deps.Redis != nil {
		lock = services.NewRedisRunLock(deps.Redis, cfg.RunLockTTL)
	} else {
		lock = services.NewLocalRunLock(cfg.RunLockTTL)
	}

	syncService := services.NewSyncService(runner, lock, services.SchedulerConfig{
		Realms:           cfg.SyncRealms,
		DrainInterval:    cfg.DrainInterval,
		FullSyncInterval: cfg.FullSyncInterval,
	}, logger)

	logger.Info("sync engine assembled",
		zap.String("job_store", cfg.JobStoreBackend),
		zap.String("directory", cfg.DirectoryBackend),
		zap.Bool("shared_run_lock", deps.Redis != nil),
		zap.Int("workers", cfg.WorkerCount),
	)

	return &App{
		Config:     cfg,
		Store:      store,
		Directory:  dir,
		Registry:   registry,
		Executor:   executor,
		Runner:     runner,
		Sync:       syncService,
		Translator: services.NewEventTranslator(dir, store, cfg.ScimProviderID, logger),
		deps:       deps,
		logger:     logger,
	}, nil
}

// NewJobStore opens the configured job store backend
func NewJobStore(ctx context.Context, cfg *config.Config, db *mongo.Database) (jobstore.Store, error) {
	opts := []jobstore.Option{jobstore.WithRetryCeiling(cfg.MaxRetries)}

	switch cfg.JobStoreBackend {
	case config.BackendMongo:
		if db == nil {
			return nil, ErrMongoRequired
		}
		store := jobstore.NewMongoStore(db, cfg.JobCollection, cfg.MongoTransactions, opts...)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("failed to create job indexes: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := jobstore.OpenSQLite(cfg.SQLitePath, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open job store at %s: %w", cfg.SQLitePath, err)
		}
		return store, nil
	case config.BackendMemory:
		return jobstore.NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown job store backend %q", cfg.JobStoreBackend)
	}
}

// NewDirectory opens the configured directory backend. The memory backend is
// loaded from DIRECTORY_SEED_FILE when one is set.
func NewDirectory(ctx context.Context, cfg *config.Config, db *mongo.Database) (directory.Directory, error) {
	switch cfg.DirectoryBackend {
	case config.BackendMongo:
		if db == nil {
			return nil, ErrMongoRequired
		}
		dir := directory.NewMongo(db, directory.CollectionsFromConfig(cfg))
		if err := dir.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("failed to create directory indexes: %w", err)
		}
		return dir, nil
	case config.BackendMemory:
		if cfg.DirectorySeedFile == "" {
			return directory.NewMemory(), nil
		}
		return directory.LoadSeedFile(cfg.DirectorySeedFile)
	default:
		return nil, fmt.Errorf("unknown directory backend %q", cfg.DirectoryBackend)
	}
}

// Pingers returns the health checks of the connections the engine uses
func (a *App) Pingers() map[string]handlers.Pinger {
	pingers := make(map[string]handlers.Pinger)
	if a.deps.Mongo != nil {
		db := a.deps.Mongo
		pingers["mongodb"] = func(ctx context.Context) error {
			return db.Client().Ping(ctx, readpref.Primary())
		}
	}
	if a.deps.Redis != nil {
		client := a.deps.Redis
		pingers["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return pingers
}

// Close stops the scheduler and releases the job store
func (a *App) Close() error {
	a.Sync.Stop()
	if err := a.Store.Close(); err != nil {
		a.logger.Warn("failed to close job store", zap.Error(err))
		return err
	}
	return nil
}
