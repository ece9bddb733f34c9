// Package directory is the read/write boundary to the primary identity directory.
package directory

import (
	"context"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// UserQuery selects users for a sweep. Results are ordered by id.
type UserQuery struct {
	// FederationLinks restricts results to users linked to one of these components
	FederationLinks []string
	// Enabled, when set, filters on the enabled flag
	Enabled *bool
	Offset  int
	Limit   int
}

// Directory reads directory objects and stores remote correlation ids.
// Lookups of missing objects return the matching models.ErrXNotFound.
type Directory interface {
	GetRealm(ctx context.Context, realmID string) (*models.Realm, error)
	GetUser(ctx context.Context, realmID, userID string) (*models.User, error)
	GetUserByUsername(ctx context.Context, realmID, username string) (*models.User, error)
	GetGroup(ctx context.Context, realmID, groupID string) (*models.Group, error)
	GetGroupByName(ctx context.Context, realmID, name string) (*models.Group, error)
	GetRole(ctx context.Context, realmID, roleID string) (*models.Role, error)
	ListGroups(ctx context.Context, realmID string) ([]*models.Group, error)
	SearchUsers(ctx context.Context, realmID string, q UserQuery) ([]*models.User, error)

	SetUserExternalID(ctx context.Context, realmID, userID, componentID, externalID string) error
	SetGroupExternalID(ctx context.Context, realmID, groupID, componentID, externalID string) error
	ClearGroupExternalID(ctx context.Context, realmID, groupID, componentID string) error
	// RemoveGroupAttribute drops a group attribute; removing an absent attribute is not an error
	RemoveGroupAttribute(ctx context.Context, realmID, groupID, name string) error

	// ListComponents returns the realm's components, optionally filtered by provider id
	ListComponents(ctx context.Context, realmID, providerID string) ([]*models.Component, error)
	GetComponent(ctx context.Context, realmID, componentID string) (*models.Component, error)
}

// Enabled is a convenience for UserQuery.Enabled
func Enabled(v bool) *bool {
	return &v
}

var (
	_ Directory = (*Memory)(nil)
	_ Directory = (*Mongo)(nil)
)
