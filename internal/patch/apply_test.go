package patch

import (
	"testing"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		raw     string
		want    Path
		wantErr bool
	}{
		{raw: "displayName", want: Path{Attr: "displayName"}},
		{raw: PathPartyCode, want: Path{Attr: PathPartyCode}},
		{raw: `emails[type eq "work"].value`, want: Path{Attr: "emails", FilterAttr: "type", FilterValue: "work", Sub: "value"}},
		{raw: `addresses[type eq "home"]`, want: Path{Attr: "addresses", FilterAttr: "type", FilterValue: "home"}},
		{raw: PathClaims + `[key eq "a \"b\""].value`, want: Path{Attr: PathClaims, FilterAttr: "key", FilterValue: `a "b"`, Sub: "value"}},
		{raw: `roles[value eq "admin role"]`, want: Path{Attr: "roles", FilterAttr: "value", FilterValue: "admin role"}},
		{raw: "", wantErr: true},
		{raw: `emails[type eq "work"`, wantErr: true},
		{raw: `emails[type sw "w"]`, wantErr: true},
		{raw: `emails[type eq "w"]value`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePath(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, `roles[value eq "a\"b"]`, RoleFilter(`a"b`))
	assert.Equal(t, `members[value eq "r-1"]`, MemberFilter("r-1"))
}

func TestApplyUser_DoesNotMutateInput(t *testing.T) {
	original := sampleUser()
	_, err := ApplyUser(original, []models.PatchOperation{
		{Op: models.PatchReplace, Path: `emails[type eq "work"].value`, Value: "new@example.com"},
		{Op: models.PatchRemove, Path: PathClaims + `[key eq "department"].value`},
		{Op: models.PatchReplace, Path: PathName, Value: models.ScimName{GivenName: "X"}},
	})
	require.NoError(t, err)
	assert.Equal(t, sampleUser(), original)
}

func TestApplyUser_Errors(t *testing.T) {
	tests := []models.PatchOperation{
		{Op: "move", Path: PathTitle, Value: "x"},
		{Op: models.PatchAdd, Path: "unknownAttr", Value: "x"},
		{Op: models.PatchAdd, Path: PathTitle},
		{Op: models.PatchAdd, Path: PathActive, Value: "yes"},
		{Op: models.PatchAdd, Path: `emails[type eq "work"].display`, Value: "x"},
	}
	for _, op := range tests {
		_, err := ApplyUser(sampleUser(), []models.PatchOperation{op})
		assert.Error(t, err, "%s %s", op.Op, op.Path)
	}
}

func TestApplyUser_WholeListOperations(t *testing.T) {
	u, err := ApplyUser(&models.ScimUser{}, []models.PatchOperation{
		{Op: models.PatchAdd, Path: PathEmails, Value: []models.MultiValue{{Type: "work", Value: "a"}}},
		{Op: models.PatchAdd, Path: PathEmails, Value: []models.MultiValue{{Type: "work", Value: "b"}, {Type: "home", Value: "c"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.MultiValue{{Type: "work", Value: "b"}, {Type: "home", Value: "c"}}, u.Emails)

	u, err = ApplyUser(u, []models.PatchOperation{{Op: models.PatchRemove, Path: PathEmails}})
	require.NoError(t, err)
	assert.Empty(t, u.Emails)
}

func TestApplyGroup(t *testing.T) {
	g := &models.ScimGroup{ID: "g-1", DisplayName: "admins"}

	g, err := ApplyGroup(g, []models.PatchOperation{
		{Op: models.PatchAdd, Path: PathMembers, Value: []models.Member{{Value: "u-1", Display: "alice"}}},
		{Op: models.PatchAdd, Path: PathMembers, Value: []interface{}{map[string]interface{}{"value": "u-2"}}},
		{Op: models.PatchAdd, Path: PathMembers, Value: []models.Member{{Value: "u-1", Display: "alice"}}},
		{Op: models.PatchAdd, Path: PathRoles, Value: []map[string]string{{"value": "auditor"}}},
		{Op: models.PatchAdd, Path: PathRoles, Value: "operator"},
		{Op: models.PatchReplace, Path: PathDisplayName, Value: "administrators"},
	})
	require.NoError(t, err)
	assert.Equal(t, "administrators", g.DisplayName)
	assert.Equal(t, []models.Member{{Value: "u-1", Display: "alice"}, {Value: "u-2"}}, g.Members)
	assert.Equal(t, []models.MultiValue{{Value: "auditor"}, {Value: "operator"}}, g.Roles)

	g, err = ApplyGroup(g, []models.PatchOperation{
		{Op: models.PatchRemove, Path: PathMembers, Value: []models.Member{{Value: "u-1"}}},
		{Op: models.PatchRemove, Path: RoleFilter("auditor")},
		{Op: models.PatchRemove, Path: MemberFilter("u-2")},
	})
	require.NoError(t, err)
	assert.Empty(t, g.Members)
	assert.Equal(t, []models.MultiValue{{Value: "operator"}}, g.Roles)

	_, err = ApplyGroup(g, []models.PatchOperation{{Op: models.PatchAdd, Path: PathNickName, Value: "x"}})
	assert.Error(t, err)
}
