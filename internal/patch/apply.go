package patch

import (
	"encoding/json"
	"fmt"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// ApplyUser returns a copy of user with ops applied. It understands every
// path DiffUser emits plus whole-list operations on multi-valued attributes.
func ApplyUser(user *models.ScimUser, ops []models.PatchOperation) (*models.ScimUser, error) {
	u := CloneUser(user)
	for i, op := range ops {
		if err := applyUserOp(u, op); err != nil {
			return nil, fmt.Errorf("operation %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return u, nil
}

// ApplyGroup returns a copy of group with ops applied
func ApplyGroup(group *models.ScimGroup, ops []models.PatchOperation) (*models.ScimGroup, error) {
	g := CloneGroup(group)
	for i, op := range ops {
		if err := applyGroupOp(g, op); err != nil {
			return nil, fmt.Errorf("operation %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return g, nil
}

func applyUserOp(u *models.ScimUser, op models.PatchOperation) error {
	p, err := ParsePath(op.Path)
	if err != nil {
		return err
	}
	if err := checkKind(op.Op); err != nil {
		return err
	}
	remove := op.Op == models.PatchRemove

	if p.Filtered() {
		return applyUserFilter(u, p, op)
	}

	if field := stringField(u, p.Attr); field != nil {
		if remove {
			*field = ""
			return nil
		}
		return decode(op.Value, field)
	}

	switch p.Attr {
	case PathName:
		if remove {
			u.Name = nil
			return nil
		}
		var n models.ScimName
		if err := decode(op.Value, &n); err != nil {
			return err
		}
		u.Name = &n
	case PathActive:
		if remove {
			u.Active = false
			return nil
		}
		return decode(op.Value, &u.Active)
	case PathPartyCode:
		if remove {
			u.Ext().PartyCode = ""
			return nil
		}
		return decode(op.Value, &u.Ext().PartyCode)
	case PathBlocked:
		if remove {
			u.Ext().Blocked = false
			return nil
		}
		return decode(op.Value, &u.Ext().Blocked)
	case PathClaims:
		return applyList(&u.Ext().Claims, op, func(a, b models.Claim) bool { return a.Key == b.Key })
	case PathEmails:
		return applyList(&u.Emails, op, sameType)
	case PathPhoneNumbers:
		return applyList(&u.PhoneNumbers, op, sameType)
	case PathRoles:
		return applyList(&u.Roles, op, sameValue)
	case PathAddresses:
		return applyList(&u.Addresses, op, func(a, b models.ScimAddress) bool { return a.Type == b.Type })
	default:
		return fmt.Errorf("unsupported attribute %q", p.Attr)
	}
	return nil
}

func stringField(u *models.ScimUser, attr string) *string {
	switch attr {
	case PathDisplayName:
		return &u.DisplayName
	case PathNickName:
		return &u.NickName
	case PathProfileURL:
		return &u.ProfileURL
	case PathTitle:
		return &u.Title
	case PathUserType:
		return &u.UserType
	case PathPreferredLanguage:
		return &u.PreferredLanguage
	case PathLocale:
		return &u.Locale
	case PathTimezone:
		return &u.Timezone
	case PathPassword:
		return &u.Password
	}
	return nil
}

func applyUserFilter(u *models.ScimUser, p Path, op models.PatchOperation) error {
	remove := op.Op == models.PatchRemove

	switch {
	case (p.Attr == PathEmails || p.Attr == PathPhoneNumbers) && p.FilterAttr == "type":
		list := &u.Emails
		if p.Attr == PathPhoneNumbers {
			list = &u.PhoneNumbers
		}
		match := func(v models.MultiValue) bool { return v.Type == p.FilterValue }
		if remove {
			*list = without(*list, match)
			return nil
		}
		entry := models.MultiValue{Type: p.FilterValue}
		if i := index(*list, match); i >= 0 {
			entry = (*list)[i]
		}
		switch p.Sub {
		case "value":
			if err := decode(op.Value, &entry.Value); err != nil {
				return err
			}
		case "":
			if err := decode(op.Value, &entry); err != nil {
				return err
			}
			entry.Type = p.FilterValue
		default:
			return fmt.Errorf("unsupported sub-attribute %q", p.Sub)
		}
		*list = upsert(*list, match, entry)

	case p.Attr == PathAddresses && p.FilterAttr == "type" && p.Sub == "":
		match := func(a models.ScimAddress) bool { return a.Type == p.FilterValue }
		if remove {
			u.Addresses = without(u.Addresses, match)
			return nil
		}
		var addr models.ScimAddress
		if err := decode(op.Value, &addr); err != nil {
			return err
		}
		addr.Type = p.FilterValue
		u.Addresses = upsert(u.Addresses, match, addr)

	case p.Attr == PathClaims && p.FilterAttr == "key" && (p.Sub == "value" || p.Sub == ""):
		ext := u.Ext()
		match := func(c models.Claim) bool { return c.Key == p.FilterValue }
		if remove {
			ext.Claims = without(ext.Claims, match)
			return nil
		}
		claim := models.Claim{Key: p.FilterValue}
		if p.Sub == "value" {
			if err := decode(op.Value, &claim.Value); err != nil {
				return err
			}
		} else if err := decode(op.Value, &claim); err != nil {
			return err
		}
		claim.Key = p.FilterValue
		ext.Claims = upsert(ext.Claims, match, claim)

	case p.Attr == PathRoles && p.FilterAttr == "value" && p.Sub == "":
		match := func(v models.MultiValue) bool { return v.Value == p.FilterValue }
		if remove {
			u.Roles = without(u.Roles, match)
			return nil
		}
		var role models.MultiValue
		if err := decode(op.Value, &role); err != nil {
			return err
		}
		role.Value = p.FilterValue
		u.Roles = upsert(u.Roles, match, role)

	default:
		return fmt.Errorf("unsupported filtered path %q", op.Path)
	}
	return nil
}

func applyGroupOp(g *models.ScimGroup, op models.PatchOperation) error {
	p, err := ParsePath(op.Path)
	if err != nil {
		return err
	}
	if err := checkKind(op.Op); err != nil {
		return err
	}
	remove := op.Op == models.PatchRemove

	switch {
	case p.Attr == PathDisplayName && !p.Filtered():
		if remove {
			g.DisplayName = ""
			return nil
		}
		return decode(op.Value, &g.DisplayName)
	case p.Attr == PathMembers && !p.Filtered():
		return applyList(&g.Members, op, func(a, b models.Member) bool { return a.Value == b.Value })
	case p.Attr == PathMembers && p.FilterAttr == "value" && remove:
		g.Members = without(g.Members, func(m models.Member) bool { return m.Value == p.FilterValue })
	case p.Attr == PathRoles && !p.Filtered():
		// a bare role name is accepted as shorthand for [{"value": name}]
		if name, ok := op.Value.(string); ok {
			op.Value = []models.MultiValue{{Value: name}}
		}
		return applyList(&g.Roles, op, sameValue)
	case p.Attr == PathRoles && p.FilterAttr == "value" && remove:
		g.Roles = without(g.Roles, func(v models.MultiValue) bool { return v.Value == p.FilterValue })
	default:
		return fmt.Errorf("unsupported group path %q", op.Path)
	}
	return nil
}

// applyList handles operations addressing a whole multi-valued attribute.
// ADD merges by identity, REPLACE overwrites, REMOVE drops the given
// entries or everything when no value is given.
func applyList[T any](list *[]T, op models.PatchOperation, same func(a, b T) bool) error {
	if op.Op == models.PatchRemove && op.Value == nil {
		*list = nil
		return nil
	}
	var entries []T
	if err := decode(op.Value, &entries); err != nil {
		return err
	}
	switch op.Op {
	case models.PatchReplace:
		*list = entries
	case models.PatchAdd:
		for _, e := range entries {
			*list = upsert(*list, func(x T) bool { return same(x, e) }, e)
		}
	case models.PatchRemove:
		for _, e := range entries {
			*list = without(*list, func(x T) bool { return same(x, e) })
		}
	}
	return nil
}

func checkKind(kind models.PatchOpKind) error {
	switch kind {
	case models.PatchAdd, models.PatchReplace, models.PatchRemove:
		return nil
	}
	return fmt.Errorf("unknown op %q", kind)
}

func sameType(a, b models.MultiValue) bool { return a.Type == b.Type }
func sameValue(a, b models.MultiValue) bool { return a.Value == b.Value }

// decode converts a JSON-decoded or native value into out
func decode(v interface{}, out interface{}) error {
	if v == nil {
		return fmt.Errorf("missing value")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	return nil
}

func index[T any](list []T, match func(T) bool) int {
	for i, v := range list {
		if match(v) {
			return i
		}
	}
	return -1
}

func upsert[T any](list []T, match func(T) bool, v T) []T {
	if i := index(list, match); i >= 0 {
		list[i] = v
		return list
	}
	return append(list, v)
}

func without[T any](list []T, match func(T) bool) []T {
	out := list[:0:0]
	for _, v := range list {
		if !match(v) {
			out = append(out, v)
		}
	}
	return out
}

// CloneUser returns a deep copy of u
func CloneUser(u *models.ScimUser) *models.ScimUser {
	if u == nil {
		return &models.ScimUser{}
	}
	c := *u
	if u.Name != nil {
		n := *u.Name
		c.Name = &n
	}
	if u.Extension != nil {
		e := *u.Extension
		e.Claims = append([]models.Claim(nil), u.Extension.Claims...)
		c.Extension = &e
	}
	c.Schemas = append([]string(nil), u.Schemas...)
	c.Emails = append([]models.MultiValue(nil), u.Emails...)
	c.PhoneNumbers = append([]models.MultiValue(nil), u.PhoneNumbers...)
	c.Roles = append([]models.MultiValue(nil), u.Roles...)
	c.Addresses = append([]models.ScimAddress(nil), u.Addresses...)
	c.Groups = append([]models.GroupRef(nil), u.Groups...)
	return &c
}

// CloneGroup returns a deep copy of g
func CloneGroup(g *models.ScimGroup) *models.ScimGroup {
	if g == nil {
		return &models.ScimGroup{}
	}
	c := *g
	c.Schemas = append([]string(nil), g.Schemas...)
	c.Members = append([]models.Member(nil), g.Members...)
	c.Roles = append([]models.MultiValue(nil), g.Roles...)
	return &c
}
