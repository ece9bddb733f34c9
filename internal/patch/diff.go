// Package patch computes and applies SCIM PATCH operations.
package patch

import (
	"strings"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

type builder struct {
	ops []models.PatchOperation
}

func (b *builder) add(kind models.PatchOpKind, path string, value interface{}) {
	b.ops = append(b.ops, models.PatchOperation{Op: kind, Path: path, Value: value})
}

// value applies the scalar rule: absent to present is ADD, present to
// absent is REMOVE, a changed value is REPLACE and equal values emit nothing.
func value[T comparable](b *builder, path string, original, modified T, empty func(T) bool) {
	switch {
	case empty(original):
		if !empty(modified) {
			b.add(models.PatchAdd, path, modified)
		}
	case empty(modified):
		b.add(models.PatchRemove, path, nil)
	case original != modified:
		b.add(models.PatchReplace, path, modified)
	}
}

// keyed diffs a type-keyed multi-valued attribute. Each modified entry is
// matched against a private pool of remaining original entries by exact
// key. Unmatched original entries are removed.
func keyed[T any, V comparable](b *builder, original, modified []T, key func(T) string, val func(T) V, empty func(V) bool, path func(string) string) {
	remaining := make([]T, len(original))
	copy(remaining, original)

	var zero V
	for _, m := range modified {
		k := key(m)
		match := -1
		for i, o := range remaining {
			if key(o) == k {
				match = i
				break
			}
		}
		if match < 0 {
			value(b, path(k), zero, val(m), empty)
			continue
		}
		value(b, path(k), val(remaining[match]), val(m), empty)
		remaining = append(remaining[:match], remaining[match+1:]...)
	}

	for _, o := range remaining {
		b.add(models.PatchRemove, path(key(o)), nil)
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func blankName(n models.ScimName) bool {
	return n == models.ScimName{}
}

func blankAddress(a models.ScimAddress) bool {
	a.Type = ""
	a.Primary = false
	return a == models.ScimAddress{}
}

func nameOf(u *models.ScimUser) models.ScimName {
	if u.Name == nil {
		return models.ScimName{}
	}
	return *u.Name
}

func extOf(u *models.ScimUser) models.ScimUserExtension {
	if u.Extension == nil {
		return models.ScimUserExtension{}
	}
	return *u.Extension
}

func multiType(v models.MultiValue) string { return v.Type }
func multiValue(v models.MultiValue) string { return v.Value }
func roleEntry(v models.MultiValue) models.MultiValue { return v }
func blankRole(v models.MultiValue) bool { return v == models.MultiValue{} }
func addrType(a models.ScimAddress) string { return a.Type }
func claimKey(c models.Claim) string { return c.Key }
func claimValue(c models.Claim) string { return c.Value }

// addrValue is the comparable part of an address, its discriminator stripped
func addrValue(a models.ScimAddress) models.ScimAddress {
	a.Type = ""
	a.Primary = false
	return a
}

func valuePath(attr string) func(string) string {
	return func(k string) string { return Filtered(attr, "type", k, "value") }
}

// DiffUser returns the operations that turn original into modified.
// A nil original is treated as an empty record.
func DiffUser(original, modified *models.ScimUser) []models.PatchOperation {
	if original == nil {
		original = &models.ScimUser{}
	}
	b := &builder{}

	value(b, PathName, nameOf(original), nameOf(modified), blankName)
	value(b, PathDisplayName, original.DisplayName, modified.DisplayName, blank)
	value(b, PathNickName, original.NickName, modified.NickName, blank)
	value(b, PathProfileURL, original.ProfileURL, modified.ProfileURL, blank)
	value(b, PathTitle, original.Title, modified.Title, blank)
	value(b, PathUserType, original.UserType, modified.UserType, blank)
	value(b, PathPreferredLanguage, original.PreferredLanguage, modified.PreferredLanguage, blank)
	value(b, PathLocale, original.Locale, modified.Locale, blank)
	value(b, PathTimezone, original.Timezone, modified.Timezone, blank)
	value(b, PathPassword, original.Password, modified.Password, blank)

	if original.Active != modified.Active {
		b.add(models.PatchReplace, PathActive, modified.Active)
	}

	oext, mext := extOf(original), extOf(modified)
	value(b, PathPartyCode, oext.PartyCode, mext.PartyCode, blank)
	if oext.Blocked != mext.Blocked {
		b.add(models.PatchReplace, PathBlocked, mext.Blocked)
	}
	keyed(b, oext.Claims, mext.Claims, claimKey, claimValue, blank, func(k string) string {
		return Filtered(PathClaims, "key", k, "value")
	})

	keyed(b, original.Emails, modified.Emails, multiType, multiValue, blank, valuePath(PathEmails))
	keyed(b, original.PhoneNumbers, modified.PhoneNumbers, multiType, multiValue, blank, valuePath(PathPhoneNumbers))
	keyed(b, original.Addresses, modified.Addresses, addrType, addrValue, blankAddress, func(k string) string {
		return Filtered(PathAddresses, "type", k, "")
	})
	// roles are keyed by their value, the type only says how they were granted
	keyed(b, original.Roles, modified.Roles, multiValue, roleEntry, blankRole, RoleFilter)

	return b.ops
}

// DiffGroup returns the operations that turn original into modified.
// Membership and roles are reconciled by their own jobs and are not diffed.
func DiffGroup(original, modified *models.ScimGroup) []models.PatchOperation {
	if original == nil {
		original = &models.ScimGroup{}
	}
	b := &builder{}
	value(b, PathDisplayName, original.DisplayName, modified.DisplayName, blank)
	return b.ops
}
