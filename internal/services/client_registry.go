package services

import (
	"context"
	"sync"

	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
	"go.uber.org/zap"
)

type registryEntry struct {
	hash   uint64
	client scim.Client
}

// ClientRegistry caches one remote client per component. A cached client is
// replaced as soon as the component's connection settings hash changes.
type ClientRegistry struct {
	mu      sync.Mutex
	clients map[string]registryEntry
	factory scim.Factory
	logger  *logging.SafeLogger
}

// NewClientRegistry creates a registry that builds clients with factory
func NewClientRegistry(factory scim.Factory, logger *logging.SafeLogger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]registryEntry),
		factory: factory,
		logger:  logger,
	}
}

// HTTPFactory builds scim.HTTPClient instances with opts
func HTTPFactory(opts scim.HTTPOptions) scim.Factory {
	return func(ctx context.Context, cfg scim.Config) (scim.Client, error) {
		return scim.NewHTTPClient(ctx, cfg, opts)
	}
}

// Get returns the client for component, building it when absent or stale.
// Construction failures are configuration errors and are not cached, so the
// next call tries again.
func (r *ClientRegistry) Get(ctx context.Context, component *models.Component) (scim.Client, error) {
	cfg := scim.ConfigFromComponent(component)
	hash := cfg.Hash()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[component.ID]; ok {
		if entry.hash == hash {
			return entry.client, nil
		}
		delete(r.clients, component.ID)
		r.logger.Info("remote configuration changed, rebuilding client",
			zap.String("component_id", component.ID))
	}

	client, err := r.factory(ctx, cfg)
	if err != nil {
		observability.ClientBuilds.WithLabelValues("error").Inc()
		r.logger.Warn("failed to build remote client",
			zap.String("component_id", component.ID),
			zap.String("endpoint", cfg.BaseURL()),
			zap.Any("config", observability.MaskComponentConfig(component.Config)),
			zap.Error(err))
		return nil, models.ConfigError("build remote client", err)
	}

	observability.ClientBuilds.WithLabelValues("success").Inc()
	r.clients[component.ID] = registryEntry{hash: hash, client: client}
	return client, nil
}

// Invalidate drops the cached client of a component
func (r *ClientRegistry) Invalidate(componentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, componentID)
}

// Len returns the number of cached clients
func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
