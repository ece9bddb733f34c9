package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"go.uber.org/zap"
)

// SchedulerConfig controls the background runs of a SyncService
type SchedulerConfig struct {
	// Realms receive a periodic full sweep
	Realms []string
	// DrainInterval is the queue drain period; 0 disables draining
	DrainInterval time.Duration
	// FullSyncInterval is the full sweep period; 0 disables sweeps
	FullSyncInterval time.Duration
}

// SyncService runs drains and full sweeps on timers and on demand. Every run
// holds the run lock of its mode and scope.
type SyncService struct {
	runner *SyncRunner
	lock   RunLock
	cfg    SchedulerConfig
	logger *logging.SafeLogger

	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

// NewSyncService creates a sync service
func NewSyncService(runner *SyncRunner, lock RunLock, cfg SchedulerConfig, logger *logging.SafeLogger) *SyncService {
	return &SyncService{
		runner:   runner,
		lock:     lock,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start starts the sync service
func (s *SyncService) Start() {
	s.logger.Info("starting sync service",
		zap.Duration("drain_interval", s.cfg.DrainInterval),
		zap.Duration("full_sync_interval", s.cfg.FullSyncInterval),
		zap.Strings("realms", s.cfg.Realms))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.cfg.DrainInterval > 0 {
		s.every(ctx, s.cfg.DrainInterval, func(ctx context.Context) {
			s.RunDrain(ctx)
		})
	}
	if s.cfg.FullSyncInterval > 0 && len(s.cfg.Realms) > 0 {
		s.every(ctx, s.cfg.FullSyncInterval, func(ctx context.Context) {
			for _, realm := range s.cfg.Realms {
				if ctx.Err() != nil {
					return
				}
				s.RunFullSync(ctx, realm)
			}
		})
	}

	s.logger.Info("sync service started successfully")
}

// Stop stops the timers, interrupts runs in progress and waits for them
func (s *SyncService) Stop() {
	s.once.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stopChan)
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.logger.Info("sync service stopped")
	})
}

func (s *SyncService) every(ctx context.Context, interval time.Duration, run func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()
}

// RunDrain drains the queue under the drain lock
func (s *SyncService) RunDrain(ctx context.Context) (models.SyncCounters, error) {
	return s.locked(ctx, RunLockKey(ModeDrain, "all"), func() (models.SyncCounters, error) {
		return s.runner.Drain(ctx)
	})
}

// RunFullSync sweeps one realm under that realm's lock
func (s *SyncService) RunFullSync(ctx context.Context, realmID string) (models.SyncCounters, error) {
	return s.locked(ctx, RunLockKey(ModeFullSync, realmID), func() (models.SyncCounters, error) {
		return s.runner.FullSync(ctx, realmID)
	})
}

func (s *SyncService) locked(ctx context.Context, key string, run func() (models.SyncCounters, error)) (models.SyncCounters, error) {
	release, err := s.lock.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Info("skipping run, lock is held", zap.String("lock", key))
		} else {
			s.logger.Error("failed to acquire run lock", zap.String("lock", key), zap.Error(err))
		}
		return models.SyncCounters{}, err
	}
	defer release()
	return run()
}
