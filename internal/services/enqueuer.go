package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"go.uber.org/zap"
)

// Enqueuer offers typed helpers over jobstore.Store.Enqueue
type Enqueuer struct {
	store  jobstore.Store
	logger *logging.SafeLogger
}

// NewEnqueuer creates an enqueuer writing to store. Inside a unit of work
// pass the transactional store.
func NewEnqueuer(store jobstore.Store, logger *logging.SafeLogger) *Enqueuer {
	return &Enqueuer{store: store, logger: logger}
}

// Enqueue adds a job, coalescing with an identical due job
func (e *Enqueuer) Enqueue(ctx context.Context, req jobstore.EnqueueRequest) (*models.SyncJob, error) {
	job, created, err := e.store.Enqueue(ctx, req)
	if err != nil {
		e.logger.Error("failed to enqueue sync job",
			zap.String("action", req.Action.String()),
			zap.String("realm_id", req.RealmID),
			zap.Error(err))
		return nil, err
	}

	observability.JobsEnqueued.WithLabelValues(req.Action.String(), strconv.FormatBool(!created)).Inc()
	e.logger.Debug("sync job enqueued",
		zap.String("job_id", job.ID),
		zap.String("action", job.Action.String()),
		zap.String("realm_id", job.RealmID),
		zap.String("user_id", job.UserID),
		zap.String("group_id", job.GroupID),
		zap.Bool("deduplicated", !created))
	return job, nil
}

// EnqueueUserCreate enqueues the create-or-update of a user linked to componentID
func (e *Enqueuer) EnqueueUserCreate(ctx context.Context, realmID, componentID, userID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionCreateUser, RealmID: realmID, ComponentID: componentID, UserID: userID,
	})
}

// EnqueueUserCreateExternal enqueues the create-or-update of a user federated elsewhere
func (e *Enqueuer) EnqueueUserCreateExternal(ctx context.Context, realmID, componentID, userID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionCreateUserExternal, RealmID: realmID, ComponentID: componentID, UserID: userID,
	})
}

// EnqueueUserDelete records the component and correlation id, since the local user is gone
func (e *Enqueuer) EnqueueUserDelete(ctx context.Context, realmID, componentID, userID, externalID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionDeleteUser, RealmID: realmID, ComponentID: componentID, UserID: userID, ExternalID: externalID,
	})
}

// EnqueueGroupCreate enqueues the provisioning of a group
func (e *Enqueuer) EnqueueGroupCreate(ctx context.Context, realmID, componentID, groupID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionCreateGroup, RealmID: realmID, ComponentID: componentID, GroupID: groupID,
	})
}

// EnqueueGroupUpdate enqueues a display name refresh of a provisioned group
func (e *Enqueuer) EnqueueGroupUpdate(ctx context.Context, realmID, componentID, groupID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionUpdateGroup, RealmID: realmID, ComponentID: componentID, GroupID: groupID,
	})
}

// EnqueueGroupDelete records the correlation id known when the group was deleted
func (e *Enqueuer) EnqueueGroupDelete(ctx context.Context, realmID, groupID, externalID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionDeleteGroup, RealmID: realmID, GroupID: groupID, ExternalID: externalID,
	})
}

// EnqueueGroupJoin enqueues adding the user to the remote group
func (e *Enqueuer) EnqueueGroupJoin(ctx context.Context, realmID, componentID, groupID, userID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionJoinGroup, RealmID: realmID, ComponentID: componentID, GroupID: groupID, UserID: userID,
	})
}

// EnqueueGroupLeave enqueues removing the user from the remote group
func (e *Enqueuer) EnqueueGroupLeave(ctx context.Context, realmID, componentID, groupID, userID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionLeaveGroup, RealmID: realmID, ComponentID: componentID, GroupID: groupID, UserID: userID,
	})
}

// EnqueueGroupRoleAdd enqueues granting the role to the remote group
func (e *Enqueuer) EnqueueGroupRoleAdd(ctx context.Context, realmID, groupID, roleID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionAddRoleToGroup, RealmID: realmID, GroupID: groupID, RoleID: roleID,
	})
}

// EnqueueGroupRoleRemove enqueues revoking the role from the remote group
func (e *Enqueuer) EnqueueGroupRoleRemove(ctx context.Context, realmID, groupID, roleID string) (*models.SyncJob, error) {
	return e.Enqueue(ctx, jobstore.EnqueueRequest{
		Action: models.ActionRemoveRoleFromGroup, RealmID: realmID, GroupID: groupID, RoleID: roleID,
	})
}

// EnqueueDependency enqueues a job that another job waits on. When the same
// work was already abandoned it returns models.ErrDependencyAbandoned rather
// than adding another copy behind it.
func (e *Enqueuer) EnqueueDependency(ctx context.Context, req jobstore.EnqueueRequest) (*models.SyncJob, error) {
	abandoned, err := e.store.FindAbandoned(ctx, req.Target())
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s job %s", models.ErrDependencyAbandoned, req.Action, abandoned.ID)
	case !errors.Is(err, models.ErrJobNotFound):
		return nil, err
	}
	return e.Enqueue(ctx, req)
}
