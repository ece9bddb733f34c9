package scimtest

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/patch"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, srv *Server) *scim.HTTPClient {
	t.Helper()
	c, err := scim.NewHTTPClient(context.Background(), srv.Config(), scim.HTTPOptions{})
	require.NoError(t, err)
	return c
}

func TestServer_UserLifecycle(t *testing.T) {
	srv := NewServer()
	defer srv.Close()
	srv.RequireBasicAuth("svc", "pw")
	c := newClient(t, srv)
	ctx := context.Background()

	desired := &models.ScimUser{
		UserName: "alice",
		Name:     &models.ScimName{GivenName: "Alice"},
		Active:   true,
		Emails:   []models.MultiValue{{Type: "work", Value: "alice@example.com", Primary: true}},
	}
	created, err := c.CreateUser(ctx, desired)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	_, err = c.CreateUser(ctx, &models.ScimUser{UserName: "alice"})
	assert.True(t, scim.IsTransient(err), "duplicate create is a 409")

	found, err := c.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	updated := patch.CloneUser(desired)
	updated.Active = false
	updated.Emails = []models.MultiValue{{Type: "home", Value: "a@home.example.com"}}
	_, err = c.PatchUser(ctx, found.ID, patch.DiffUser(found, updated))
	require.NoError(t, err)

	stored, ok := srv.User(found.ID)
	require.True(t, ok)
	assert.False(t, stored.Active)
	assert.Equal(t, []models.MultiValue{{Type: "home", Value: "a@home.example.com"}}, stored.Emails)
	assert.Empty(t, patch.DiffUser(stored, updated))

	require.NoError(t, c.DeleteUser(ctx, found.ID))
	require.NoError(t, c.DeleteUser(ctx, found.ID))
	_, err = c.GetUser(ctx, found.ID)
	assert.True(t, errors.Is(err, scim.ErrNotFound))
}

func TestServer_GroupMembershipAndRoles(t *testing.T) {
	srv := NewServer()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	userID := srv.PutUser(models.ScimUser{UserName: "bob"})
	group, err := c.CreateGroup(ctx, &models.ScimGroup{DisplayName: "admins"})
	require.NoError(t, err)

	_, err = c.PatchGroup(ctx, group.ID, []models.PatchOperation{
		{Op: models.PatchAdd, Path: patch.PathMembers, Value: []models.Member{{Value: userID, Display: "bob"}}},
		{Op: models.PatchAdd, Path: patch.PathRoles, Value: []map[string]string{{"value": "auditor"}}},
	})
	require.NoError(t, err)

	got, err := c.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Member{{Value: userID, Display: "bob"}}, got.Members)
	assert.Equal(t, []models.MultiValue{{Value: "auditor"}}, got.Roles)

	_, err = c.PatchGroup(ctx, group.ID, []models.PatchOperation{
		{Op: models.PatchRemove, Path: patch.RoleFilter("auditor")},
	})
	require.NoError(t, err)

	_, err = c.PatchGroup(ctx, group.ID, patch.DiffGroup(got, &models.ScimGroup{DisplayName: "operators"}))
	require.NoError(t, err)

	byName, err := c.FindGroupByDisplayName(ctx, "operators")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Empty(t, byName.Roles)
	assert.Len(t, byName.Members, 1)

	require.NoError(t, c.DeleteGroup(ctx, group.ID))
	assert.Empty(t, srv.Groups())
}

func TestServer_InjectedFailuresAndAuth(t *testing.T) {
	srv := NewServer()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	srv.FailNext(http.MethodGet, http.StatusServiceUnavailable)
	_, err := c.FindUserByUsername(ctx, "nobody")
	assert.True(t, scim.IsTransient(err))

	user, err := c.FindUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Equal(t, []string{"GET /scim/v2/Users", "GET /scim/v2/Users"}, srv.Requests())

	srv.ResetRequests()
	assert.Zero(t, srv.RequestCount())

	srv.RequireBasicAuth("svc", "pw")
	_, err = c.FindUserByUsername(ctx, "nobody")
	assert.True(t, scim.IsUnauthorized(err))
}

func TestParseFilter(t *testing.T) {
	attr, value, ok := parseFilter(`userName eq "a \"b\""`)
	require.True(t, ok)
	assert.Equal(t, "userName", attr)
	assert.Equal(t, `a "b"`, value)

	_, _, ok = parseFilter(`userName co "a"`)
	assert.False(t, ok)
	_, _, ok = parseFilter(`userName eq a`)
	assert.False(t, ok)
}
