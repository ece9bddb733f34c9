package observability

import (
	"testing"

	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_NilConfig(t *testing.T) {
	original := config.AppConfig
	defer func() { config.AppConfig = original }()
	config.AppConfig = nil

	InitTracer("scim-sync-test")
	assert.Nil(t, tracerProvider)
}

func TestInitTracer_Disabled(t *testing.T) {
	original := config.AppConfig
	defer func() { config.AppConfig = original }()
	config.AppConfig = &config.Config{TracingEnabled: false}

	InitTracer("scim-sync-test")
	assert.Nil(t, tracerProvider)
}

func TestInitTracer_Enabled(t *testing.T) {
	original := config.AppConfig
	defer func() { config.AppConfig = original }()
	config.AppConfig = &config.Config{
		TracingEnabled:  true,
		TracingEndpoint: "invalid-endpoint:4317",
		Environment:     "test",
	}

	// exporter creation is lazy, so an unreachable endpoint still yields a provider
	InitTracer("scim-sync-test")
	assert.NotNil(t, otel.GetTracerProvider())

	ShutdownTracer()
	assert.Nil(t, tracerProvider)
}

func TestShutdownTracer_NilProvider(t *testing.T) {
	tracerProvider = nil

	// Should not panic
	ShutdownTracer()
}

func TestTracer(t *testing.T) {
	assert.NotNil(t, Tracer("scim"))
}
