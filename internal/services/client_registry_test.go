package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingFactory builds real HTTP clients and counts the calls
type countingFactory struct {
	builds int
	fail   error
}

func (f *countingFactory) build(ctx context.Context, cfg scim.Config) (scim.Client, error) {
	f.builds++
	if f.fail != nil {
		return nil, f.fail
	}
	return scim.NewHTTPClient(ctx, cfg, scim.HTTPOptions{})
}

func registryComponent(password string) *models.Component {
	return &models.Component{
		ID:         "c1",
		ProviderID: testProvider,
		Config: map[string]string{
			models.ConfigEndpoint: "https://scim.example.com/scim/v2",
			models.ConfigUsername: "svc",
			models.ConfigPassword: password,
		},
	}
}

func TestClientRegistry_ReusesClientForUnchangedConfig(t *testing.T) {
	factory := &countingFactory{}
	r := NewClientRegistry(factory.build, logging.New(zap.NewNop()))

	first, err := r.Get(context.Background(), registryComponent("secret"))
	require.NoError(t, err)
	second, err := r.Get(context.Background(), registryComponent("secret"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, factory.builds)
	assert.Equal(t, 1, r.Len())
}

func TestClientRegistry_RebuildsOnCredentialChange(t *testing.T) {
	factory := &countingFactory{}
	r := NewClientRegistry(factory.build, logging.New(zap.NewNop()))

	first, err := r.Get(context.Background(), registryComponent("secret"))
	require.NoError(t, err)
	second, err := r.Get(context.Background(), registryComponent("rotated"))
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, factory.builds)
	assert.Equal(t, 1, r.Len())
}

func TestClientRegistry_DoesNotCacheFailures(t *testing.T) {
	factory := &countingFactory{fail: errors.New("bad endpoint")}
	r := NewClientRegistry(factory.build, logging.New(zap.NewNop()))

	_, err := r.Get(context.Background(), registryComponent("secret"))
	require.Error(t, err)
	assert.True(t, models.IsConfig(err))
	assert.Zero(t, r.Len())

	factory.fail = nil
	_, err = r.Get(context.Background(), registryComponent("secret"))
	require.NoError(t, err)
	assert.Equal(t, 2, factory.builds)
}

func TestClientRegistry_Invalidate(t *testing.T) {
	factory := &countingFactory{}
	r := NewClientRegistry(factory.build, logging.New(zap.NewNop()))

	_, err := r.Get(context.Background(), registryComponent("secret"))
	require.NoError(t, err)
	r.Invalidate("c1")
	assert.Zero(t, r.Len())

	_, err = r.Get(context.Background(), registryComponent("secret"))
	require.NoError(t, err)
	assert.Equal(t, 2, factory.builds)
}

func TestHTTPFactory_RejectsInvalidConfig(t *testing.T) {
	r := NewClientRegistry(HTTPFactory(scim.HTTPOptions{}), logging.New(zap.NewNop()))
	comp := &models.Component{ID: "c1", ProviderID: testProvider, Config: map[string]string{}}

	_, err := r.Get(context.Background(), comp)
	require.Error(t, err)
	assert.True(t, models.IsConfig(err))
}
