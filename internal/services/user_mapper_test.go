package services

import (
	"testing"

	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUserMapper_Build(t *testing.T) {
	m := NewUserMapper("", logging.New(zap.NewNop()))
	user := &models.User{
		ID:        "u1",
		Username:  "alice",
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     "alice@example.com",
		Enabled:   true,
		Attributes: map[string][]string{
			AttrHonorificPrefix:  {"Dr."},
			AttrTitle:            {"Engineer"},
			AttrPhonesPrimary:    {`{"type":"mobile","value":"(21) 98765-4321","primary":true}`},
			AttrAddressesPrimary: {`{"type":"work","locality":"Rio de Janeiro","country":"BR"}`},
			"PartyCode":          {"P-42"},
			AttrBlocked:          {"true"},
			"department":         {"IT"},
			"costCenter":         {"  "},
			"email":              {"ignored@example.com"},
		},
	}

	rec := m.Build(user, []string{"viewer"})

	assert.Equal(t, []string{models.ScimUserSchema, models.ScimUserExtensionID}, rec.Schemas)
	assert.Equal(t, "alice", rec.UserName)
	assert.Equal(t, "u1", rec.ExternalID)
	assert.True(t, rec.Active)
	require.NotNil(t, rec.Name)
	assert.Equal(t, "Alice", rec.Name.GivenName)
	assert.Equal(t, "Dr.", rec.Name.HonorificPrefix)
	assert.Equal(t, "Alice Liddell", rec.DisplayName)
	assert.Equal(t, "Engineer", rec.Title)
	assert.Equal(t, []models.MultiValue{{Type: "work", Value: "alice@example.com", Primary: true}}, rec.Emails)

	require.Len(t, rec.PhoneNumbers, 1)
	assert.Equal(t, "+5521987654321", rec.PhoneNumbers[0].Value)
	assert.Equal(t, "mobile", rec.PhoneNumbers[0].Type)
	require.Len(t, rec.Addresses, 1)
	assert.Equal(t, "Rio de Janeiro", rec.Addresses[0].Locality)

	require.NotNil(t, rec.Extension)
	assert.Equal(t, "P-42", rec.Extension.PartyCode)
	assert.True(t, rec.Extension.Blocked)
	assert.Equal(t, []models.Claim{{Key: "department", Value: "IT"}}, rec.Extension.Claims)

	assert.Equal(t, []models.MultiValue{{Type: "direct", Value: "viewer", Display: "viewer"}}, rec.Roles)
}

func TestUserMapper_BuildFallbacks(t *testing.T) {
	m := NewUserMapper("", logging.New(zap.NewNop()))
	user := &models.User{
		ID:       "u2",
		Username: "bob",
		Attributes: map[string][]string{
			AttrDisplayName:   {"Bobby"},
			AttrPhonesPrimary: {"not json"},
		},
	}

	rec := m.Build(user, nil)

	assert.False(t, rec.Active)
	assert.Equal(t, "bob", rec.Name.GivenName)
	assert.Equal(t, "Bobby", rec.DisplayName)
	assert.Empty(t, rec.Emails)
	assert.Empty(t, rec.PhoneNumbers)
	assert.Empty(t, rec.Roles)
	assert.False(t, rec.Ext().Blocked)
}

func TestUserMapper_NormalizePhone(t *testing.T) {
	m := NewUserMapper("BR", logging.New(zap.NewNop()))

	tests := []struct {
		raw  string
		want string
	}{
		{"21987654321", "+5521987654321"},
		{" +55 (21) 98765-4321 ", "+5521987654321"},
		{"+1 650-253-0000", "+16502530000"},
		{"12345", "12345"},
		{"call me", "call me"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, m.NormalizePhone(tt.raw))
		})
	}
}
