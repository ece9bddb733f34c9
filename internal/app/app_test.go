package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/scimtest"
	"github.com/prefeitura-rio/app-scim-sync/internal/services"
	"github.com/prefeitura-rio/app-scim-sync/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:               "test",
		JobStoreBackend:           config.BackendMemory,
		DirectoryBackend:          config.BackendMemory,
		JobCollection:             "scim_sync_jobs",
		PageSize:                  100,
		MaxRetries:                2,
		DrainMaxPages:             10,
		WorkerCount:               2,
		UnclassifiedFailurePolicy: config.FailurePolicyRetry,
		RunLockTTL:                time.Minute,
		ScimRequestTimeout:        5 * time.Second,
		ScimProviderID:            "scim",
		ScimTokenPath:             "/oauth2/token",
	}
}

func writeSeed(t *testing.T, endpoint string) string {
	t.Helper()
	seed := fmt.Sprintf(`
realms:
  - id: acme
    name: Acme
    components:
      - id: scim-1
        name: scim
        provider_id: scim
        config:
          endPoint: %s
    groups:
      - id: g1
        name: Engineering
    users:
      - id: u1
        username: alice
        email: alice@example.com
        enabled: true
        federation_link: scim-1
        group_ids: [g1]
      - id: u2
        username: bob
        enabled: false
        federation_link: scim-1
`, endpoint)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	return path
}

func TestNew_MemoryBackendsFromSeed(t *testing.T) {
	remote := scimtest.NewServer()
	t.Cleanup(remote.Close)

	cfg := testConfig()
	cfg.DirectorySeedFile = writeSeed(t, remote.Config().Endpoint)

	a, err := New(context.Background(), cfg, Deps{}, logging.New(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &jobstore.MemoryStore{}, a.Store)
	assert.IsType(t, &directory.Memory{}, a.Directory)
	assert.Empty(t, a.Pingers())

	counters, err := a.Sync.RunFullSync(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Added)

	_, ok := remote.UserByName("alice")
	assert.True(t, ok)
	_, ok = remote.UserByName("bob")
	assert.False(t, ok, "disabled users are not provisioned")

	counters, err = a.Sync.RunDrain(context.Background())
	require.NoError(t, err)
	group, ok := remote.GroupByName("Engineering")
	require.True(t, ok)
	assert.Len(t, group.Members, 1)
	assert.Positive(t, counters.Added)
}

func TestNew_SQLiteJobStore(t *testing.T) {
	cfg := testConfig()
	cfg.JobStoreBackend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "jobs.db")

	a, err := New(context.Background(), cfg, Deps{}, logging.New(zap.NewNop()))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &jobstore.SQLStore{}, a.Store)
	stats, err := a.Store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Due)
}

func TestNew_MongoBackendsRequireConnection(t *testing.T) {
	tests := []struct {
		name      string
		jobs      string
		directory string
	}{
		{"job store", config.BackendMongo, config.BackendMemory},
		{"directory", config.BackendMemory, config.BackendMongo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.JobStoreBackend = tt.jobs
			cfg.DirectoryBackend = tt.directory

			_, err := New(context.Background(), cfg, Deps{}, logging.New(zap.NewNop()))
			assert.ErrorIs(t, err, ErrMongoRequired)
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.JobStoreBackend = "postgres"

	_, err := New(context.Background(), cfg, Deps{}, logging.New(zap.NewNop()))
	assert.ErrorContains(t, err, "postgres")
}

func TestNew_MissingSeedFile(t *testing.T) {
	cfg := testConfig()
	cfg.DirectorySeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, Deps{}, logging.New(zap.NewNop()))
	assert.Error(t, err)
}

func TestNew_MongoAndRedis(t *testing.T) {
	db := testenv.MongoDB(t, "scim_sync_app_test")
	redis := testenv.Redis(t)

	cfg := testConfig()
	cfg.JobStoreBackend = config.BackendMongo
	cfg.DirectoryBackend = config.BackendMongo
	cfg.UserCollection = "users"
	cfg.GroupCollection = "groups"
	cfg.RoleCollection = "roles"
	cfg.RealmCollection = "realms"
	cfg.ComponentCollection = "components"

	a, err := New(context.Background(), cfg, Deps{Mongo: db, Redis: redis}, logging.New(zap.NewNop()))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &jobstore.MongoStore{}, a.Store)

	pingers := a.Pingers()
	require.Contains(t, pingers, "mongodb")
	require.Contains(t, pingers, "redis")
	for name, ping := range pingers {
		assert.NoError(t, ping(context.Background()), name)
	}

	// The shared lock rejects a second holder across engines
	release, err := services.NewRedisRunLock(redis, time.Minute).Acquire(context.Background(), services.RunLockKey(services.ModeDrain, "all"))
	require.NoError(t, err)
	defer release()

	_, err = a.Sync.RunDrain(context.Background())
	assert.ErrorIs(t, err, services.ErrRunInProgress)
}
