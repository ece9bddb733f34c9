package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/app"
	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/handlers"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/middleware"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/prefeitura-rio/app-scim-sync/docs"
)

// @title           SCIM Sync API
// @version         1.0
// @description     API de sincronização de usuários, grupos e papéis do diretório com um serviço SCIM 2.0. Executa sincronizações completas por realm, processa a fila durável de jobs e recebe eventos de alteração do diretório.

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @tag.name sync
// @tag.description Sincronização completa e processamento da fila

// @tag.name events
// @tag.description Eventos de alteração do diretório

// @tag.name jobs
// @tag.description Inspeção da fila de jobs

// @tag.name health
// @tag.description Health check operations

func main() {
	// Initialize logger first
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logging.Logger.Sync()

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}

	// Initialize observability
	observability.InitTracer("app-scim-sync-api")
	defer observability.ShutdownTracer()

	ctx := context.Background()

	// Initialize database connections
	if usesMongo(config.AppConfig) {
		if err := config.InitMongoDB(ctx); err != nil {
			logging.Logger.Fatal("failed to initialize MongoDB", zap.Error(err))
		}
		defer config.CloseMongoDB(context.Background())
	}
	if err := config.InitRedis(ctx); err != nil {
		logging.Logger.Fatal("failed to initialize Redis", zap.Error(err))
	}

	engine, err := app.New(ctx, config.AppConfig, app.Deps{Mongo: config.MongoDB, Redis: config.Redis}, logging.Logger)
	if err != nil {
		logging.Logger.Fatal("failed to build sync engine", zap.Error(err))
	}
	defer engine.Close()

	engine.Sync.Start()

	// Set Gin mode
	if config.AppConfig.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router with middleware
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.RequestTracker(),
		middleware.RequestTiming(),
		cors.Default(),
	)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/v1")
	handlers.RegisterRoutes(v1,
		handlers.NewHealthHandler(logging.Logger, engine.Store, engine.Pingers()),
		handlers.NewSyncHandlers(logging.Logger, engine.Sync, engine.Translator, engine.Store),
		config.AppConfig.AdminToken,
	)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Full sweeps of large realms run inside the request, hence the long write timeout
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.AppConfig.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logging.Logger.Info("starting server",
			zap.Int("port", config.AppConfig.Port),
			zap.String("environment", config.AppConfig.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logging.Logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Error("server forced to shutdown", zap.Error(err))
	}

	logging.Logger.Info("server exited gracefully")
}

func usesMongo(cfg *config.Config) bool {
	return cfg.JobStoreBackend == config.BackendMongo || cfg.DirectoryBackend == config.BackendMongo
}
