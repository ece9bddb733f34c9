package patch

import (
	"fmt"
	"strings"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// Attribute paths used by the sync engine
const (
	PathName              = "name"
	PathDisplayName       = "displayName"
	PathNickName          = "nickName"
	PathProfileURL        = "profileUrl"
	PathTitle             = "title"
	PathUserType          = "userType"
	PathPreferredLanguage = "preferredLanguage"
	PathLocale            = "locale"
	PathTimezone          = "timezone"
	PathPassword          = "password"
	PathActive            = "active"
	PathEmails            = "emails"
	PathPhoneNumbers      = "phoneNumbers"
	PathAddresses         = "addresses"
	PathMembers           = "members"
	PathRoles             = "roles"
	PathPartyCode         = models.ScimUserExtensionID + ":partyCode"
	PathBlocked           = models.ScimUserExtensionID + ":blocked"
	PathClaims            = models.ScimUserExtensionID + ":claims"
)

// Filtered addresses one entry of a multi-valued attribute, e.g.
// emails[type eq "work"].value. sub may be empty.
func Filtered(attr, key, value, sub string) string {
	p := fmt.Sprintf(`%s[%s eq "%s"]`, attr, key, quote(value))
	if sub != "" {
		p += "." + sub
	}
	return p
}

// RoleFilter addresses one role of a group by name
func RoleFilter(name string) string {
	return Filtered(PathRoles, "value", name, "")
}

// MemberFilter addresses one member of a group by remote user id
func MemberFilter(id string) string {
	return Filtered(PathMembers, "value", id, "")
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func unquote(s string) string {
	return strings.NewReplacer(`\\`, `\`, `\"`, `"`).Replace(s)
}

// Path is a parsed attribute path
type Path struct {
	Attr        string
	FilterAttr  string
	FilterValue string
	Sub         string
}

// Filtered reports whether the path selects entries of a multi-valued attribute
func (p Path) Filtered() bool {
	return p.FilterAttr != ""
}

// ParsePath understands plain attributes, optionally URN-qualified, and the
// single `attr[key eq "value"].sub` filter form.
func ParsePath(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Path{}, fmt.Errorf("empty path")
	}

	open := strings.IndexByte(raw, '[')
	if open < 0 {
		return Path{Attr: raw}, nil
	}
	closing := strings.LastIndexByte(raw, ']')
	if closing < open {
		return Path{}, fmt.Errorf("unbalanced filter in path %q", raw)
	}

	p := Path{Attr: raw[:open]}
	filter := strings.TrimSpace(raw[open+1 : closing])
	parts := strings.SplitN(filter, " ", 3)
	if len(parts) != 3 || !strings.EqualFold(parts[1], "eq") {
		return Path{}, fmt.Errorf("unsupported filter %q in path %q", filter, raw)
	}
	p.FilterAttr = parts[0]
	value := strings.TrimSpace(parts[2])
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = unquote(value[1 : len(value)-1])
	}
	p.FilterValue = value

	rest := raw[closing+1:]
	if rest != "" {
		if rest[0] != '.' || len(rest) == 1 {
			return Path{}, fmt.Errorf("invalid sub-attribute in path %q", raw)
		}
		p.Sub = rest[1:]
	}
	return p, nil
}
