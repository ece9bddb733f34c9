package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
	"github.com/prefeitura-rio/app-scim-sync/internal/scimtest"
	"github.com/prefeitura-rio/app-scim-sync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testRealm = "r1"
	testToken = "operator-token"
)

type testEnv struct {
	router *gin.Engine
	dir    *directory.Memory
	store  *jobstore.MemoryStore
	remote *scimtest.Server
	lock   *services.LocalRunLock
}

func setupSyncHandlersTest(t *testing.T, pingers map[string]Pinger) *testEnv {
	gin.SetMode(gin.TestMode)

	remote := scimtest.NewServer()
	t.Cleanup(remote.Close)

	logger := logging.New(zap.NewNop())
	dir := directory.NewMemory()
	dir.PutRealm(&models.Realm{ID: testRealm})
	dir.PutComponent(&models.Component{
		ID: "scim-1", RealmID: testRealm, Name: "scim", ProviderID: "scim",
		Config: map[string]string{models.ConfigEndpoint: remote.Config().Endpoint},
	})
	dir.PutUser(&models.User{
		ID: "u1", RealmID: testRealm, Username: "alice", Email: "alice@example.com",
		Enabled: true, FederationLink: "scim-1", GroupIDs: []string{"g1"},
	})
	dir.PutGroup(&models.Group{ID: "g1", RealmID: testRealm, Name: "admins"})

	store := jobstore.NewMemoryStore()
	registry := services.NewClientRegistry(services.HTTPFactory(scim.HTTPOptions{}), logger)
	executor := services.NewExecutor(dir, registry, services.ExecutorConfig{ProviderID: "scim"}, logger)
	runner := services.NewSyncRunner(store, dir, executor, services.RunnerConfig{}, logger)
	lock := services.NewLocalRunLock(time.Minute)
	syncService := services.NewSyncService(runner, lock, services.SchedulerConfig{}, logger)
	translator := services.NewEventTranslator(dir, store, "scim", logger)

	router := gin.New()
	RegisterRoutes(router.Group("/v1"),
		NewHealthHandler(logger, store, pingers),
		NewSyncHandlers(logger, syncService, translator, store),
		testToken)

	return &testEnv{router: router, dir: dir, store: store, remote: remote, lock: lock}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestFullSync_Success(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)

	w := env.do(http.MethodPost, "/v1/realms/r1/sync/full", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, services.ModeFullSync, resp.Mode)
	assert.Equal(t, testRealm, resp.RealmID)
	assert.Equal(t, int64(1), resp.Counters.Added)

	_, ok := env.remote.UserByName("alice")
	assert.True(t, ok)
}

func TestFullSync_UnknownRealm(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)

	w := env.do(http.MethodPost, "/v1/realms/nope/sync/full", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFullSync_AlreadyRunning(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)
	release, err := env.lock.Acquire(context.Background(), services.RunLockKey(services.ModeFullSync, testRealm))
	require.NoError(t, err)
	defer release()

	w := env.do(http.MethodPost, "/v1/realms/r1/sync/full", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFullSync_RequiresToken(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)

	req, _ := http.NewRequest(http.MethodPost, "/v1/realms/r1/sync/full", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, env.remote.RequestCount())
}

func TestEventThenDrain(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)

	w := env.do(http.MethodPost, "/v1/events", services.Event{
		RealmID:       testRealm,
		ResourceType:  services.ResourceGroupMembership,
		OperationType: services.OperationCreate,
		ResourcePath:  "users/u1/groups/g1",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.Len(t, accepted.Jobs, 1)
	assert.Equal(t, models.ActionJoinGroup, accepted.Jobs[0].Action)

	w = env.do(http.MethodPost, "/v1/sync/pending", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, services.ModeDrain, resp.Mode)
	assert.Equal(t, int64(2), resp.Counters.Added)
	assert.Zero(t, env.store.Len())

	group, ok := env.remote.GroupByName("admins")
	require.True(t, ok)
	assert.Len(t, group.Members, 1)
}

func TestIngestEvent_Invalid(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)

	w := env.do(http.MethodPost, "/v1/events", map[string]string{"resourceType": "GROUP"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "realm id is required")

	w = env.do(http.MethodPost, "/v1/events", services.Event{
		RealmID: testRealm, ResourceType: services.ResourceGroupMembership,
		OperationType: services.OperationCreate, ResourcePath: "users/u1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestEvent_NothingToDo(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)

	w := env.do(http.MethodPost, "/v1/events", services.Event{RealmID: testRealm, ResourceType: "CLIENT"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Jobs)
	assert.Empty(t, resp.Jobs)
}

func TestAbandonedJobsAndRevive(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)
	ctx := context.Background()
	job, _, err := env.store.Enqueue(ctx, jobstore.EnqueueRequest{Action: models.ActionCreateGroup, RealmID: testRealm, GroupID: "g1"})
	require.NoError(t, err)
	require.NoError(t, env.store.Park(ctx, job))

	w := env.do(http.MethodGet, "/v1/jobs/abandoned?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list JobListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, job.ID, list.Jobs[0].ID)

	w = env.do(http.MethodPost, "/v1/jobs/"+job.ID+"/revive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var revived models.SyncJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &revived))
	assert.Equal(t, 0, revived.RetryCount)

	w = env.do(http.MethodGet, "/v1/jobs/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats jobstore.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Due)
	assert.Zero(t, stats.Abandoned)
}

func TestReviveJob_Errors(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)
	ctx := context.Background()

	w := env.do(http.MethodPost, "/v1/jobs/missing/revive", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	parked, _, err := env.store.Enqueue(ctx, jobstore.EnqueueRequest{Action: models.ActionCreateGroup, RealmID: testRealm, GroupID: "g1"})
	require.NoError(t, err)
	require.NoError(t, env.store.Park(ctx, parked))
	_, _, err = env.store.Enqueue(ctx, jobstore.EnqueueRequest{Action: models.ActionCreateGroup, RealmID: testRealm, GroupID: "g1"})
	require.NoError(t, err)

	w = env.do(http.MethodPost, "/v1/jobs/"+parked.ID+"/revive", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListAbandonedJobs_InvalidLimit(t *testing.T) {
	env := setupSyncHandlersTest(t, nil)

	for _, limit := range []string{"0", "abc", "5000"} {
		w := env.do(http.MethodGet, "/v1/jobs/abandoned?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestHealthCheck(t *testing.T) {
	env := setupSyncHandlersTest(t, map[string]Pinger{
		"redis": func(context.Context) error { return nil },
	})

	req, _ := http.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Services["job_store"])
	assert.Equal(t, "healthy", health.Services["redis"])
	require.NotNil(t, health.Queue)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	env := setupSyncHandlersTest(t, map[string]Pinger{
		"mongodb": func(context.Context) error { return errors.New("connection refused") },
	})

	req, _ := http.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy", health.Services["mongodb"])
}
