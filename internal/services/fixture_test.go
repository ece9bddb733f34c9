package services

import (
	"context"
	"testing"

	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
	"github.com/prefeitura-rio/app-scim-sync/internal/scimtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testRealm    = "r1"
	testProvider = "scim"
	testComp     = "scim-1"
)

// fixture wires the engine to an in-memory directory, job store and SCIM server
type fixture struct {
	t        *testing.T
	ctx      context.Context
	dir      *directory.Memory
	store    *jobstore.MemoryStore
	remote   *scimtest.Server
	registry *ClientRegistry
	executor *Executor
	runner   *SyncRunner
	logger   *logging.SafeLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	remote := scimtest.NewServer()
	t.Cleanup(remote.Close)

	logger := logging.New(zap.NewNop())
	dir := directory.NewMemory()
	dir.PutRealm(&models.Realm{ID: testRealm, Name: "acme"})
	dir.PutComponent(&models.Component{
		ID:         testComp,
		RealmID:    testRealm,
		Name:       testProvider,
		ProviderID: testProvider,
		Config:     map[string]string{models.ConfigEndpoint: remote.Config().Endpoint},
	})

	store := jobstore.NewMemoryStore()
	registry := NewClientRegistry(HTTPFactory(scim.HTTPOptions{}), logger)
	executor := NewExecutor(dir, registry, ExecutorConfig{ProviderID: testProvider}, logger)
	runner := NewSyncRunner(store, dir, executor, RunnerConfig{PageSize: DefaultPageSize, WorkerCount: 1}, logger)

	return &fixture{
		t:        t,
		ctx:      context.Background(),
		dir:      dir,
		store:    store,
		remote:   remote,
		registry: registry,
		executor: executor,
		runner:   runner,
		logger:   logger,
	}
}

func (f *fixture) addUser(id, username string, groups ...string) *models.User {
	u := &models.User{
		ID:             id,
		RealmID:        testRealm,
		Username:       username,
		FirstName:      "First " + username,
		LastName:       "Last",
		Email:          username + "@example.com",
		Enabled:        true,
		FederationLink: testComp,
		GroupIDs:       groups,
	}
	f.dir.PutUser(u)
	return u
}

func (f *fixture) addGroup(id, name string) *models.Group {
	g := &models.Group{ID: id, RealmID: testRealm, Name: name}
	f.dir.PutGroup(g)
	return g
}

func (f *fixture) user(id string) *models.User {
	u, err := f.dir.GetUser(f.ctx, testRealm, id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) group(id string) *models.Group {
	g, err := f.dir.GetGroup(f.ctx, testRealm, id)
	require.NoError(f.t, err)
	return g
}

func (f *fixture) enqueue(req jobstore.EnqueueRequest) *models.SyncJob {
	if req.RealmID == "" {
		req.RealmID = testRealm
	}
	job, _, err := f.store.Enqueue(f.ctx, req)
	require.NoError(f.t, err)
	return job
}

// execute runs job in a unit of work and returns the outcome and counters
func (f *fixture) execute(job *models.SyncJob) (Outcome, models.SyncCounters) {
	f.t.Helper()
	result := &models.SynchronizationResult{}
	var outcome Outcome
	err := f.store.InTx(f.ctx, func(ctx context.Context, tx jobstore.Store) error {
		var err error
		outcome, err = f.executor.Execute(ctx, tx, job, result)
		return err
	})
	require.NoError(f.t, err)
	return outcome, result.Snapshot()
}

// jobs returns the queued jobs by action
func (f *fixture) jobs() map[models.Action][]*models.SyncJob {
	out := make(map[models.Action][]*models.SyncJob)
	for _, j := range f.store.All() {
		out[j.Action] = append(out[j.Action], j)
	}
	return out
}

func (f *fixture) requested(request string) bool {
	for _, r := range f.remote.Requests() {
		if r == request {
			return true
		}
	}
	return false
}
