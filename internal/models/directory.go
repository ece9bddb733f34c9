package models

import "strings"

// Component configuration keys
const (
	ConfigEndpoint          = "endPoint"
	ConfigAuthorityURL      = "authorityUrl"
	ConfigUsername          = "username"
	ConfigPassword          = "password"
	ConfigClientID          = "clientId"
	ConfigClientSecret      = "clientSecret"
	ConfigScimEventsEnabled = "scimEventsEnabled"
)

// AttrMigrationData holds {"id": ...}, the remote id of a group imported from a previous sync setup
const AttrMigrationData = "migration_data"

// Realm is a tenant of the primary directory
type Realm struct {
	ID   string `json:"id" bson:"_id" yaml:"id"`
	Name string `json:"name" bson:"name" yaml:"name"`
}

// User is a directory user
type User struct {
	ID             string              `json:"id" bson:"_id" yaml:"id"`
	RealmID        string              `json:"realm_id" bson:"realm_id" yaml:"realm_id"`
	Username       string              `json:"username" bson:"username" yaml:"username"`
	FirstName      string              `json:"first_name,omitempty" bson:"first_name" yaml:"first_name"`
	LastName       string              `json:"last_name,omitempty" bson:"last_name" yaml:"last_name"`
	Email          string              `json:"email,omitempty" bson:"email" yaml:"email"`
	Enabled        bool                `json:"enabled" bson:"enabled" yaml:"enabled"`
	FederationLink string              `json:"federation_link,omitempty" bson:"federation_link" yaml:"federation_link"`
	Attributes     map[string][]string `json:"attributes,omitempty" bson:"attributes" yaml:"attributes"`
	GroupIDs       []string            `json:"group_ids,omitempty" bson:"group_ids" yaml:"group_ids"`
	RoleIDs        []string            `json:"role_ids,omitempty" bson:"role_ids" yaml:"role_ids"`
	// ExternalIDs maps component id to the remote correlation id
	ExternalIDs map[string]string `json:"external_ids,omitempty" bson:"external_ids,omitempty" yaml:"external_ids"`
}

// FirstAttribute returns the first value of the named attribute, or ""
func (u *User) FirstAttribute(name string) string {
	if u == nil || u.Attributes == nil {
		return ""
	}
	values := u.Attributes[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// HasAttribute reports whether the attribute carries a usable value.
// The literal "null" counts as absent.
func (u *User) HasAttribute(name string) bool {
	v := strings.TrimSpace(u.FirstAttribute(name))
	return v != "" && v != "null"
}

// ExternalID returns the correlation id for componentID, or ""
func (u *User) ExternalID(componentID string) string {
	if u == nil || u.ExternalIDs == nil {
		return ""
	}
	return u.ExternalIDs[componentID]
}

// MemberOf reports whether the user belongs to the group
func (u *User) MemberOf(groupID string) bool {
	for _, id := range u.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// Group is a directory group
type Group struct {
	ID         string              `json:"id" bson:"_id" yaml:"id"`
	RealmID    string              `json:"realm_id" bson:"realm_id" yaml:"realm_id"`
	Name       string              `json:"name" bson:"name" yaml:"name"`
	RoleIDs    []string            `json:"role_ids,omitempty" bson:"role_ids" yaml:"role_ids"`
	Attributes map[string][]string `json:"attributes,omitempty" bson:"attributes,omitempty" yaml:"attributes"`
	// ExternalIDs maps component id to the remote correlation id
	ExternalIDs map[string]string `json:"external_ids,omitempty" bson:"external_ids,omitempty" yaml:"external_ids"`
}

// FirstAttribute returns the first value of the named attribute, or ""
func (g *Group) FirstAttribute(name string) string {
	if g == nil || len(g.Attributes[name]) == 0 {
		return ""
	}
	return g.Attributes[name][0]
}

// ExternalID returns the correlation id for componentID, or ""
func (g *Group) ExternalID(componentID string) string {
	if g == nil || g.ExternalIDs == nil {
		return ""
	}
	return g.ExternalIDs[componentID]
}

// Role is a directory role
type Role struct {
	ID      string `json:"id" bson:"_id" yaml:"id"`
	RealmID string `json:"realm_id" bson:"realm_id" yaml:"realm_id"`
	Name    string `json:"name" bson:"name" yaml:"name"`
}

// Component is a remote-sync configuration attached to a realm
type Component struct {
	ID         string            `json:"id" bson:"_id" yaml:"id"`
	RealmID    string            `json:"realm_id" bson:"realm_id" yaml:"realm_id"`
	Name       string            `json:"name" bson:"name" yaml:"name"`
	ProviderID string            `json:"provider_id" bson:"provider_id" yaml:"provider_id"`
	Config     map[string]string `json:"config,omitempty" bson:"config" yaml:"config"`
}

// Get returns a configuration value, trimmed
func (c *Component) Get(key string) string {
	if c == nil || c.Config == nil {
		return ""
	}
	return strings.TrimSpace(c.Config[key])
}

// ScimEventsEnabled reports whether a non-SCIM component (e.g. LDAP) forwards its users
func (c *Component) ScimEventsEnabled() bool {
	return strings.EqualFold(c.Get(ConfigScimEventsEnabled), "true")
}

// Clone returns a deep copy of u
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.GroupIDs = append([]string(nil), u.GroupIDs...)
	c.RoleIDs = append([]string(nil), u.RoleIDs...)
	c.ExternalIDs = cloneStrings(u.ExternalIDs)
	c.Attributes = cloneAttributes(u.Attributes)
	return &c
}

// Clone returns a deep copy of g
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.RoleIDs = append([]string(nil), g.RoleIDs...)
	c.ExternalIDs = cloneStrings(g.ExternalIDs)
	c.Attributes = cloneAttributes(g.Attributes)
	return &c
}

// Clone returns a deep copy of c
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Config = cloneStrings(c.Config)
	return &cp
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAttributes(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
