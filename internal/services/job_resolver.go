package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// JobContext is a job plus the directory objects it refers to. Any of the
// objects may be nil when the reference no longer resolves. It is built
// fresh for every attempt.
type JobContext struct {
	Job       *models.SyncJob
	Realm     *models.Realm
	User      *models.User
	Group     *models.Group
	Role      *models.Role
	Component *models.Component
}

// JobResolver hydrates jobs from the directory
type JobResolver struct {
	dir        directory.Directory
	providerID string
}

// NewJobResolver creates a resolver. providerID selects the components that
// are SCIM remote configurations.
func NewJobResolver(dir directory.Directory, providerID string) *JobResolver {
	return &JobResolver{dir: dir, providerID: providerID}
}

// Resolve loads the job's references. Missing objects resolve to nil; only
// directory failures are returned as errors.
func (r *JobResolver) Resolve(ctx context.Context, job *models.SyncJob) (*JobContext, error) {
	jc := &JobContext{Job: job}
	var err error

	if jc.Realm, err = absent(r.dir.GetRealm(ctx, job.RealmID)); err != nil {
		return nil, fmt.Errorf("resolve realm %s: %w", job.RealmID, err)
	}
	if job.UserID != "" {
		if jc.User, err = absent(r.dir.GetUser(ctx, job.RealmID, job.UserID)); err != nil {
			return nil, fmt.Errorf("resolve user %s: %w", job.UserID, err)
		}
	}
	if job.GroupID != "" {
		if jc.Group, err = absent(r.dir.GetGroup(ctx, job.RealmID, job.GroupID)); err != nil {
			return nil, fmt.Errorf("resolve group %s: %w", job.GroupID, err)
		}
	}
	if job.RoleID != "" {
		if jc.Role, err = absent(r.dir.GetRole(ctx, job.RealmID, job.RoleID)); err != nil {
			return nil, fmt.Errorf("resolve role %s: %w", job.RoleID, err)
		}
	}

	if jc.Component, err = r.component(ctx, jc); err != nil {
		return nil, fmt.Errorf("resolve remote configuration: %w", err)
	}
	return jc, nil
}

// component picks the remote configuration: the job's own, then the user's
// federation link when it is a SCIM component, then the realm default.
// Delete-style jobs only use the component recorded at enqueue time.
func (r *JobResolver) component(ctx context.Context, jc *JobContext) (*models.Component, error) {
	job := jc.Job
	if job.ComponentID != "" {
		return absent(r.dir.GetComponent(ctx, job.RealmID, job.ComponentID))
	}
	if job.Action.DeleteStyle() {
		return nil, nil
	}
	if jc.User != nil && jc.User.FederationLink != "" {
		c, err := absent(r.dir.GetComponent(ctx, job.RealmID, jc.User.FederationLink))
		if err != nil {
			return nil, err
		}
		if c != nil && c.ProviderID == r.providerID {
			return c, nil
		}
	}
	return r.DefaultComponent(ctx, job.RealmID)
}

// DefaultComponent returns the realm's SCIM component, preferring one named
// after the provider id. It is nil when the realm has none.
func (r *JobResolver) DefaultComponent(ctx context.Context, realmID string) (*models.Component, error) {
	components, err := r.dir.ListComponents(ctx, realmID, r.providerID)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, nil
	}
	for _, c := range components {
		if c.Name == r.providerID {
			return c, nil
		}
	}
	return components[0], nil
}

// ScimComponents returns every SCIM component of the realm
func (r *JobResolver) ScimComponents(ctx context.Context, realmID string) ([]*models.Component, error) {
	return r.dir.ListComponents(ctx, realmID, r.providerID)
}

// absent turns a not-found lookup into a nil value
func absent[T any](v *T, err error) (*T, error) {
	if err == nil {
		return v, nil
	}
	if isNotFound(err) {
		return nil, nil
	}
	return nil, err
}

func isNotFound(err error) bool {
	for _, target := range []error{
		models.ErrRealmNotFound,
		models.ErrUserNotFound,
		models.ErrGroupNotFound,
		models.ErrRoleNotFound,
		models.ErrComponentNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
