package services

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"go.uber.org/zap"
)

// User attributes with a dedicated place in the remote record
const (
	AttrHonorificPrefix  = "honorificPrefix"
	AttrHonorificSuffix  = "honorificSuffix"
	AttrDisplayName      = "displayName"
	AttrNickName         = "nickName"
	AttrTitle            = "title"
	AttrAddressesPrimary = "addresses_primary"
	AttrPhonesPrimary    = "phoneNumbers_primary"
	AttrPartyCode        = "partycode"
	AttrBlocked          = "blocked"
)

// DefaultPhoneRegion is assumed for phone numbers without a country code
const DefaultPhoneRegion = "BR"

// claims never carry the core profile fields or attributes mapped to their own field
var profileAttributes = map[string]bool{
	"firstName":          true,
	"lastName":           true,
	"username":           true,
	"email":              true,
	AttrHonorificPrefix:  true,
	AttrHonorificSuffix:  true,
	AttrDisplayName:      true,
	AttrNickName:         true,
	AttrTitle:            true,
	AttrAddressesPrimary: true,
	AttrPhonesPrimary:    true,
}

// UserMapper builds the desired remote record of a directory user
type UserMapper struct {
	phoneRegion string
	logger      *logging.SafeLogger
}

// NewUserMapper creates a mapper. An empty region means DefaultPhoneRegion.
func NewUserMapper(phoneRegion string, logger *logging.SafeLogger) *UserMapper {
	if phoneRegion == "" {
		phoneRegion = DefaultPhoneRegion
	}
	return &UserMapper{phoneRegion: phoneRegion, logger: logger}
}

// Build maps user and the names of its roles to a SCIM user
func (m *UserMapper) Build(user *models.User, roleNames []string) *models.ScimUser {
	rec := &models.ScimUser{
		Schemas:    []string{models.ScimUserSchema, models.ScimUserExtensionID},
		UserName:   user.Username,
		ExternalID: user.ID,
		Active:     user.Enabled,
	}

	name := &models.ScimName{GivenName: user.FirstName, FamilyName: user.LastName}
	if name.GivenName == "" {
		name.GivenName = user.Username
	}
	if user.HasAttribute(AttrHonorificPrefix) {
		name.HonorificPrefix = user.FirstAttribute(AttrHonorificPrefix)
	}
	if user.HasAttribute(AttrHonorificSuffix) {
		name.HonorificSuffix = user.FirstAttribute(AttrHonorificSuffix)
	}
	rec.Name = name

	if user.HasAttribute(AttrDisplayName) {
		rec.DisplayName = user.FirstAttribute(AttrDisplayName)
	} else {
		rec.DisplayName = strings.TrimSpace(name.GivenName + " " + name.FamilyName)
	}
	if user.HasAttribute(AttrNickName) {
		rec.NickName = user.FirstAttribute(AttrNickName)
	}
	if user.HasAttribute(AttrTitle) {
		rec.Title = user.FirstAttribute(AttrTitle)
	}

	if user.Email != "" {
		rec.Emails = []models.MultiValue{{Type: "work", Value: user.Email, Primary: true}}
	}

	if user.HasAttribute(AttrAddressesPrimary) {
		var addr models.ScimAddress
		if err := json.Unmarshal([]byte(user.FirstAttribute(AttrAddressesPrimary)), &addr); err != nil {
			m.logger.Warn("ignoring unparseable address attribute",
				zap.String("user_id", user.ID), zap.Error(err))
		} else {
			rec.Addresses = []models.ScimAddress{addr}
		}
	}

	if user.HasAttribute(AttrPhonesPrimary) {
		var phone models.MultiValue
		if err := json.Unmarshal([]byte(user.FirstAttribute(AttrPhonesPrimary)), &phone); err != nil {
			m.logger.Warn("ignoring unparseable phone attribute",
				zap.String("user_id", user.ID), zap.Error(err))
		} else {
			phone.Value = m.NormalizePhone(phone.Value)
			rec.PhoneNumbers = []models.MultiValue{phone}
		}
	}

	ext := rec.Ext()
	keys := make([]string, 0, len(user.Attributes))
	for k := range user.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch {
		case strings.EqualFold(k, AttrPartyCode):
			if user.HasAttribute(k) {
				ext.PartyCode = user.FirstAttribute(k)
			}
		case strings.EqualFold(k, AttrBlocked):
			ext.Blocked = user.FirstAttribute(k) == "true"
		case profileAttributes[k]:
		case user.HasAttribute(k):
			ext.Claims = append(ext.Claims, models.Claim{Key: k, Value: user.FirstAttribute(k)})
		}
	}

	for _, role := range roleNames {
		rec.Roles = append(rec.Roles, models.MultiValue{Type: "direct", Value: role, Display: role})
	}
	return rec
}

// NormalizePhone formats raw as E.164. Numbers that do not parse as valid
// are returned trimmed but otherwise unchanged.
func (m *UserMapper) NormalizePhone(raw string) string {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return clean
	}
	num, err := phonenumbers.Parse(clean, m.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return clean
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
