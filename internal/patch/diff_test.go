package patch

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleUser() *models.ScimUser {
	return &models.ScimUser{
		UserName:    "alice",
		Name:        &models.ScimName{GivenName: "Alice", FamilyName: "Liddell"},
		DisplayName: "Alice Liddell",
		Title:       "Engineer",
		Active:      true,
		Emails:      []models.MultiValue{{Type: "work", Value: "alice@example.com", Primary: true}},
		PhoneNumbers: []models.MultiValue{
			{Type: "mobile", Value: "+5521999990000"},
		},
		Addresses: []models.ScimAddress{{Type: "home", Locality: "Rio de Janeiro", Country: "BR"}},
		Roles:     []models.MultiValue{{Type: "direct", Value: "viewer", Display: "viewer"}},
		Extension: &models.ScimUserExtension{
			PartyCode: "P-1",
			Claims:    []models.Claim{{Key: "department", Value: "IT"}},
		},
	}
}

func TestDiffUser_IdenticalRecordsYieldNothing(t *testing.T) {
	u := sampleUser()
	assert.Empty(t, DiffUser(u, CloneUser(u)))
	assert.Empty(t, DiffUser(&models.ScimUser{}, &models.ScimUser{}))
}

func TestDiffUser_SingleScalarChange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(u *models.ScimUser)
		want   models.PatchOperation
	}{
		{
			name:   "replace title",
			mutate: func(u *models.ScimUser) { u.Title = "Manager" },
			want:   models.PatchOperation{Op: models.PatchReplace, Path: PathTitle, Value: "Manager"},
		},
		{
			name:   "add nickname",
			mutate: func(u *models.ScimUser) { u.NickName = "ali" },
			want:   models.PatchOperation{Op: models.PatchAdd, Path: PathNickName, Value: "ali"},
		},
		{
			name:   "remove display name",
			mutate: func(u *models.ScimUser) { u.DisplayName = "" },
			want:   models.PatchOperation{Op: models.PatchRemove, Path: PathDisplayName},
		},
		{
			name:   "deactivate",
			mutate: func(u *models.ScimUser) { u.Active = false },
			want:   models.PatchOperation{Op: models.PatchReplace, Path: PathActive, Value: false},
		},
		{
			name:   "replace name",
			mutate: func(u *models.ScimUser) { u.Name = &models.ScimName{GivenName: "Alicia", FamilyName: "Liddell"} },
			want: models.PatchOperation{Op: models.PatchReplace, Path: PathName,
				Value: models.ScimName{GivenName: "Alicia", FamilyName: "Liddell"}},
		},
		{
			name:   "replace party code",
			mutate: func(u *models.ScimUser) { u.Extension.PartyCode = "P-2" },
			want:   models.PatchOperation{Op: models.PatchReplace, Path: PathPartyCode, Value: "P-2"},
		},
		{
			name:   "block",
			mutate: func(u *models.ScimUser) { u.Extension.Blocked = true },
			want:   models.PatchOperation{Op: models.PatchReplace, Path: PathBlocked, Value: true},
		},
		{
			name:   "replace claim",
			mutate: func(u *models.ScimUser) { u.Extension.Claims[0].Value = "HR" },
			want: models.PatchOperation{Op: models.PatchReplace,
				Path: PathClaims + `[key eq "department"].value`, Value: "HR"},
		},
		{
			name:   "replace phone",
			mutate: func(u *models.ScimUser) { u.PhoneNumbers[0].Value = "+5521988880000" },
			want: models.PatchOperation{Op: models.PatchReplace,
				Path: `phoneNumbers[type eq "mobile"].value`, Value: "+5521988880000"},
		},
		{
			name:   "replace address",
			mutate: func(u *models.ScimUser) { u.Addresses[0].Locality = "Niteroi" },
			want: models.PatchOperation{Op: models.PatchReplace, Path: `addresses[type eq "home"]`,
				Value: models.ScimAddress{Locality: "Niteroi", Country: "BR"}},
		},
		{
			name: "grant role",
			mutate: func(u *models.ScimUser) {
				u.Roles = append(u.Roles, models.MultiValue{Type: "direct", Value: "admin", Display: "admin"})
			},
			want: models.PatchOperation{Op: models.PatchAdd, Path: `roles[value eq "admin"]`,
				Value: models.MultiValue{Type: "direct", Value: "admin", Display: "admin"}},
		},
		{
			name:   "revoke role",
			mutate: func(u *models.ScimUser) { u.Roles = nil },
			want:   models.PatchOperation{Op: models.PatchRemove, Path: `roles[value eq "viewer"]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := sampleUser()
			modified := CloneUser(original)
			tt.mutate(modified)

			ops := DiffUser(original, modified)
			require.Len(t, ops, 1)
			assert.Equal(t, tt.want, ops[0])
		})
	}
}

func TestDiffUser_TypeKeyedLists(t *testing.T) {
	original := &models.ScimUser{Emails: []models.MultiValue{{Type: "work", Value: "a@x.com"}}}
	modified := &models.ScimUser{Emails: []models.MultiValue{
		{Type: "work", Value: "b@x.com"},
		{Type: "home", Value: "c@x.com"},
	}}

	assert.Equal(t, []models.PatchOperation{
		{Op: models.PatchReplace, Path: `emails[type eq "work"].value`, Value: "b@x.com"},
		{Op: models.PatchAdd, Path: `emails[type eq "home"].value`, Value: "c@x.com"},
	}, DiffUser(original, modified))

	original = &models.ScimUser{Emails: []models.MultiValue{{Type: "work", Value: "a"}}}
	assert.Equal(t, []models.PatchOperation{
		{Op: models.PatchRemove, Path: `emails[type eq "work"].value`},
	}, DiffUser(original, &models.ScimUser{}))
}

func TestDiffUser_OrderIndependentAndCallerOwnedListsUntouched(t *testing.T) {
	original := &models.ScimUser{PhoneNumbers: []models.MultiValue{
		{Type: "work", Value: "1"},
		{Type: "mobile", Value: "2"},
	}}
	modified := &models.ScimUser{PhoneNumbers: []models.MultiValue{
		{Type: "mobile", Value: "2"},
		{Type: "work", Value: "1"},
	}}
	before := append([]models.MultiValue(nil), original.PhoneNumbers...)

	assert.Empty(t, DiffUser(original, modified))
	assert.Equal(t, before, original.PhoneNumbers)
}

func TestDiffUser_NilOriginalAddsEverything(t *testing.T) {
	ops := DiffUser(nil, sampleUser())
	paths := make([]string, 0, len(ops))
	for _, op := range ops {
		assert.NotEqual(t, models.PatchRemove, op.Op)
		paths = append(paths, op.Path)
	}
	assert.Contains(t, paths, PathName)
	assert.Contains(t, paths, PathActive)
	assert.Contains(t, paths, `emails[type eq "work"].value`)
	assert.Contains(t, paths, PathClaims+`[key eq "department"].value`)
	assert.Contains(t, paths, `roles[value eq "viewer"]`)
}

func TestDiffUser_Idempotence(t *testing.T) {
	pairs := [][2]*models.ScimUser{
		{&models.ScimUser{}, sampleUser()},
		{sampleUser(), &models.ScimUser{}},
		{sampleUser(), sampleUser()},
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		pairs = append(pairs, [2]*models.ScimUser{randomUser(rng), randomUser(rng)})
	}

	for i, pair := range pairs {
		original, modified := pair[0], pair[1]
		ops := DiffUser(original, modified)

		applied, err := ApplyUser(original, ops)
		require.NoError(t, err, "pair %d", i)
		assert.Empty(t, DiffUser(applied, modified), "pair %d: %s", i, dump(ops))
		assert.Empty(t, DiffUser(modified, modified), "pair %d", i)
	}
}

// the applier must also accept values that went through JSON, as they do on a server
func TestDiffUser_IdempotenceOverTheWire(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		original, modified := randomUser(rng), randomUser(rng)

		data, err := json.Marshal(models.NewPatchRequest(DiffUser(original, modified)))
		require.NoError(t, err)
		var req models.PatchRequest
		require.NoError(t, json.Unmarshal(data, &req))

		applied, err := ApplyUser(original, req.Operations)
		require.NoError(t, err)
		assert.Empty(t, DiffUser(applied, modified), "case %d", i)
	}
}

func TestDiffGroup(t *testing.T) {
	assert.Empty(t, DiffGroup(&models.ScimGroup{DisplayName: "admins"}, &models.ScimGroup{DisplayName: "admins"}))
	assert.Equal(t, []models.PatchOperation{
		{Op: models.PatchReplace, Path: PathDisplayName, Value: "operators"},
	}, DiffGroup(&models.ScimGroup{DisplayName: "admins"}, &models.ScimGroup{DisplayName: "operators"}))
	assert.Equal(t, []models.PatchOperation{
		{Op: models.PatchAdd, Path: PathDisplayName, Value: "admins"},
	}, DiffGroup(nil, &models.ScimGroup{DisplayName: "admins"}))
}

func dump(ops []models.PatchOperation) string {
	data, _ := json.Marshal(ops)
	return string(data)
}

func pick(rng *rand.Rand, values ...string) string {
	return values[rng.Intn(len(values))]
}

func randomMulti(rng *rand.Rand, types []string, values ...string) []models.MultiValue {
	var out []models.MultiValue
	for _, typ := range types {
		if rng.Intn(2) == 0 {
			out = append(out, models.MultiValue{Type: typ, Value: pick(rng, values...)})
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func randomUser(rng *rand.Rand) *models.ScimUser {
	u := &models.ScimUser{
		UserName:    "user",
		DisplayName: pick(rng, "", "Alice", "Bob"),
		NickName:    pick(rng, "", "al"),
		Title:       pick(rng, "", "Engineer", "Manager"),
		Locale:      pick(rng, "", "pt-BR", "en-US"),
		Timezone:    pick(rng, "", "America/Sao_Paulo"),
		Active:      rng.Intn(2) == 0,
		Emails:      randomMulti(rng, []string{"work", "home", "other"}, "", "a@x.com", "b@x.com"),
		PhoneNumbers: randomMulti(rng, []string{"work", "mobile"},
			"", "+5521999990000", "+5521988880000"),
	}
	if rng.Intn(3) > 0 {
		u.Name = &models.ScimName{
			GivenName:  pick(rng, "", "Alice", "Bob"),
			FamilyName: pick(rng, "", "Liddell", "Builder"),
		}
	}
	for _, typ := range []string{"home", "work"} {
		if rng.Intn(2) == 0 {
			u.Addresses = append(u.Addresses, models.ScimAddress{
				Type:     typ,
				Locality: pick(rng, "", "Rio", "Niteroi"),
				Country:  pick(rng, "", "BR"),
			})
		}
	}
	for _, role := range []string{"viewer", "editor", "admin"} {
		if rng.Intn(2) == 0 {
			u.Roles = append(u.Roles, models.MultiValue{Type: "direct", Value: role, Display: pick(rng, "", role)})
		}
	}
	if rng.Intn(3) > 0 {
		ext := &models.ScimUserExtension{
			PartyCode: pick(rng, "", "P-1", "P-2"),
			Blocked:   rng.Intn(2) == 0,
		}
		for _, key := range []string{"department", "cost_center", "badge"} {
			if rng.Intn(2) == 0 {
				ext.Claims = append(ext.Claims, models.Claim{Key: key, Value: pick(rng, "", "A", "B")})
			}
		}
		u.Extension = ext
	}
	return u
}
