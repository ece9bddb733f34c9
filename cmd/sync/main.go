package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prefeitura-rio/app-scim-sync/internal/app"
	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Initialize logging
	if err := logging.InitLogger(); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logging.Logger.Sync()

	logging.Logger.Info("Starting SCIM Sync Service")

	observability.InitTracer("app-scim-sync-worker")
	defer observability.ShutdownTracer()

	ctx := context.Background()

	// Replicas share run locks through Redis when it is configured
	if err := config.InitRedis(ctx); err != nil {
		logging.Logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}

	if config.AppConfig.JobStoreBackend == config.BackendMongo || config.AppConfig.DirectoryBackend == config.BackendMongo {
		if err := config.InitMongoDB(ctx); err != nil {
			logging.Logger.Fatal("Failed to initialize MongoDB", zap.Error(err))
		}
		defer config.CloseMongoDB(context.Background())
	}

	engine, err := app.New(ctx, config.AppConfig, app.Deps{Mongo: config.MongoDB, Redis: config.Redis}, logging.Logger)
	if err != nil {
		logging.Logger.Fatal("Failed to build sync engine", zap.Error(err))
	}

	if config.AppConfig.DrainInterval <= 0 && config.AppConfig.FullSyncInterval <= 0 {
		logging.Logger.Warn("DRAIN_INTERVAL and FULL_SYNC_INTERVAL are both disabled, nothing will be scheduled")
	}

	// Start sync service
	engine.Sync.Start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logging.Logger.Info("Shutdown signal received")

	// Stop sync service and release the job store
	if err := engine.Close(); err != nil {
		logging.Logger.Warn("Sync engine did not close cleanly", zap.Error(err))
	}

	logging.Logger.Info("SCIM Sync Service stopped")
}
