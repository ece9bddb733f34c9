package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/app"
	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/scimtest"
	"github.com/prefeitura-rio/app-scim-sync/internal/services"
	"github.com/prefeitura-rio/app-scim-sync/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const seedTemplate = `
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
        enabled: true
        federation_link: scim-1
        group_ids: [g1]
`

type cliEnv struct {
	app    *app.App
	remote *scimtest.Server
	seed   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	remote := scimtest.NewServer()
	t.Cleanup(remote.Close)

	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(fmt.Sprintf(seedTemplate, remote.Config().Endpoint)), 0o600))

	cfg := &config.Config{
		JobStoreBackend:           config.BackendMemory,
		DirectoryBackend:          config.BackendMemory,
		DirectorySeedFile:         seed,
		PageSize:                  100,
		MaxRetries:                2,
		WorkerCount:               1,
		UnclassifiedFailurePolicy: config.FailurePolicyRetry,
		RunLockTTL:                time.Minute,
		ScimProviderID:            "scim",
	}

	a, err := app.New(context.Background(), cfg, app.Deps{}, logging.New(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return &cliEnv{app: a, remote: remote, seed: seed}
}

func (e *cliEnv) opener() Opener {
	return func(context.Context) (*app.App, func(), error) {
		return e.app, func() {}, nil
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand(e.opener())
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	commands := [][]string{
		{"sync", "full"},
		{"sync", "drain"},
		{"jobs", "abandoned"},
		{"jobs", "revive"},
		{"jobs", "stats"},
		{"directory", "validate"},
		{"directory", "import"},
	}

	for _, path := range commands {
		t.Run(path[0]+" "+path[1], func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[1], sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "jobs", "stats", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestSyncFullThenDrain(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "sync", "full", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "full finished")
	assert.Contains(t, out, "added=1")

	out, err = env.run(t, "sync", "drain", "--format", "json")
	require.NoError(t, err, out)

	var resp struct {
		Status string    `json:"status"`
		Data   RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, services.ModeDrain, resp.Data.Mode)
	assert.Positive(t, resp.Data.Counters.Added)

	group, ok := env.remote.GroupByName("Engineering")
	require.True(t, ok)
	assert.Len(t, group.Members, 1)
}

func TestSyncFullUnknownRealm(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "sync", "full", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, models.ErrRealmNotFound)
}

func TestSyncDrainReportsFailures(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.app.Store.Enqueue(context.Background(), jobstore.EnqueueRequest{
		Action: models.ActionCreateUser, RealmID: "acme", UserID: "u1", ComponentID: "scim-1",
	})
	require.NoError(t, err)
	env.remote.FailNext("GET", 502, 502, 502, 502)

	_, err = env.run(t, "sync", "drain")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestJobsAbandonedAndRevive(t *testing.T) {
	env := newCLIEnv(t)
	ctx := context.Background()
	job, _, err := env.app.Store.Enqueue(ctx, jobstore.EnqueueRequest{Action: models.ActionCreateGroup, RealmID: "acme", GroupID: "g1"})
	require.NoError(t, err)
	require.NoError(t, env.app.Store.Park(ctx, job))

	out, err := env.run(t, "jobs", "abandoned")
	require.NoError(t, err)
	assert.Contains(t, out, job.ID)
	assert.Contains(t, out, "ACTION")

	out, err = env.run(t, "jobs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "due=0 abandoned=1")

	out, err = env.run(t, "jobs", "revive", job.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "revived "+job.ID)

	out, err = env.run(t, "jobs", "abandoned")
	require.NoError(t, err)
	assert.Contains(t, out, "no abandoned jobs")
}

func TestJobsRevive_Errors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "jobs", "revive", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run(t, "jobs", "abandoned", "--limit", "0")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDirectoryValidate(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "directory", "validate", env.seed)
	require.NoError(t, err)
	assert.Contains(t, out, "1 realm(s), 1 component(s), 0 role(s), 1 group(s), 1 user(s)")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("realms:\n  - name: no-id\n"), 0o600))
	_, err = env.run(t, "directory", "validate", bad)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDirectoryImportRequiresMongo(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "directory", "import", env.seed)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "DIRECTORY_BACKEND=mongo")
}

func TestDirectoryImportMongo(t *testing.T) {
	db := testenv.MongoDB(t, "scimctl_test")
	env := newCLIEnv(t)

	cfg := &config.Config{
		JobStoreBackend:     config.BackendMemory,
		DirectoryBackend:    config.BackendMongo,
		UserCollection:      "users",
		GroupCollection:     "groups",
		RoleCollection:      "roles",
		RealmCollection:     "realms",
		ComponentCollection: "components",
		RunLockTTL:          time.Minute,
		PageSize:            100,
		WorkerCount:         1,
	}
	mongoApp, err := app.New(context.Background(), cfg, app.Deps{Mongo: db}, logging.New(zap.NewNop()))
	require.NoError(t, err)
	defer mongoApp.Close()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand(func(context.Context) (*app.App, func(), error) { return mongoApp, func() {}, nil })
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"directory", "import", env.seed, "--format", "json"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data SeedSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Positive(t, resp.Data.Imported)

	user, err := mongoApp.Directory.GetUserByUsername(context.Background(), "acme", "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestOpenerError(t *testing.T) {
	cmd := NewRootCommand(func(context.Context) (*app.App, func(), error) {
		return nil, nil, errors.New("connection refused")
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"jobs", "stats"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
