package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/observability"
	"github.com/prefeitura-rio/app-scim-sync/internal/patch"
	"github.com/prefeitura-rio/app-scim-sync/internal/scim"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Outcome is how one execution of a job settled
type Outcome int

const (
	// OutcomeCompleted means the job ran and was removed
	OutcomeCompleted Outcome = iota
	// OutcomeRequeued means the job went to the back of the queue, behind its dependencies
	OutcomeRequeued
	// OutcomeRetried means the retry count was incremented and the job is still due
	OutcomeRetried
	// OutcomeAbandoned means the job can never succeed and was removed
	OutcomeAbandoned
	// OutcomeParked means the job is kept past the retry ceiling for inspection
	OutcomeParked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRequeued:
		return "requeued"
	case OutcomeRetried:
		return "retried"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeParked:
		return "parked"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome counts as a failed job
func (o Outcome) Failed() bool {
	return o == OutcomeRetried || o == OutcomeAbandoned || o == OutcomeParked
}

// Classify maps a handler error to an outcome. policy decides what happens
// to errors that carry no classification: config.FailurePolicyAbandon drops
// them, anything else retries them.
func Classify(err error, policy string) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case models.IsPrecondition(err):
		return OutcomeAbandoned
	case models.IsConfig(err), scim.IsUnauthorized(err):
		return OutcomeParked
	case models.IsTransient(err), scim.IsTransient(err):
		return OutcomeRetried
	case scim.IsRemote(err):
		// the remote rejected the payload; keep it visible rather than hammer it
		return OutcomeParked
	case policy == config.FailurePolicyAbandon:
		return OutcomeAbandoned
	default:
		return OutcomeRetried
	}
}

// ExecutorConfig tunes an Executor
type ExecutorConfig struct {
	ProviderID                string
	RetryCeiling              int
	UnclassifiedFailurePolicy string
	PhoneRegion               string
}

// Executor runs one job against the remote store and settles it in the job store
type Executor struct {
	dir      directory.Directory
	resolver *JobResolver
	clients  *ClientRegistry
	mapper   *UserMapper
	cfg      ExecutorConfig
	logger   *logging.SafeLogger
}

// NewExecutor creates an executor
func NewExecutor(dir directory.Directory, clients *ClientRegistry, cfg ExecutorConfig, logger *logging.SafeLogger) *Executor {
	if cfg.ProviderID == "" {
		cfg.ProviderID = "scim"
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = models.DefaultRetryCeiling
	}
	return &Executor{
		dir:      dir,
		resolver: NewJobResolver(dir, cfg.ProviderID),
		clients:  clients,
		mapper:   NewUserMapper(cfg.PhoneRegion, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Resolver returns the resolver the executor hydrates jobs with
func (e *Executor) Resolver() *JobResolver {
	return e.resolver
}

// execution is the state of one attempt
type execution struct {
	*JobContext
	tx       jobstore.Store
	enqueuer *Enqueuer
	result   *models.SynchronizationResult
	logger   *logging.SafeLogger
	requeued bool
}

type handler func(ctx context.Context, x *execution) error

// handlerFor returns the handler of an action, or nil for an unknown one
func (e *Executor) handlerFor(action models.Action) handler {
	switch action {
	case models.ActionCreateUser:
		return e.createUser
	case models.ActionCreateUserExternal:
		return e.createUserExternal
	case models.ActionDeleteUser:
		return e.deleteUser
	case models.ActionCreateGroup:
		return e.createGroup
	case models.ActionUpdateGroup:
		return e.updateGroup
	case models.ActionDeleteGroup:
		return e.deleteGroup
	case models.ActionJoinGroup:
		return e.joinGroup
	case models.ActionLeaveGroup:
		return e.leaveGroup
	case models.ActionAddRoleToGroup:
		return e.addRoleToGroup
	case models.ActionRemoveRoleFromGroup:
		return e.removeRoleFromGroup
	}
	return nil
}

// Execute runs job inside the unit of work tx and settles it. The returned
// error is non-nil only when the job could not be settled, in which case the
// caller must roll back; a canceled ctx leaves the job untouched.
func (e *Executor) Execute(ctx context.Context, tx jobstore.Store, job *models.SyncJob, result *models.SynchronizationResult) (Outcome, error) {
	start := time.Now()
	ctx, span := otel.Tracer("scim-sync").Start(ctx, "job."+job.Action.String())
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.realm_id", job.RealmID),
	)

	logger := e.logger.With(
		zap.String("job_id", job.ID),
		zap.String("action", job.Action.String()),
		zap.String("realm_id", job.RealmID),
		zap.String("user_id", job.UserID),
		zap.String("group_id", job.GroupID),
		zap.Int("retry_count", job.RetryCount),
	)

	x := &execution{
		tx:       tx,
		enqueuer: NewEnqueuer(tx, logger),
		result:   result,
		logger:   logger,
	}
	cause := e.run(ctx, job, x)

	if err := ctx.Err(); err != nil {
		logger.Info("job interrupted", zap.Error(err))
		return OutcomeRetried, err
	}

	outcome, err := e.settle(ctx, tx, job, x, cause)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settle failed")
		logger.Error("failed to settle job", zap.Error(err), zap.NamedError("cause", cause))
		return outcome, fmt.Errorf("settle job %s: %w", job.ID, err)
	}

	observability.JobsProcessed.WithLabelValues(job.Action.String(), outcome.String()).Inc()
	observability.JobDuration.WithLabelValues(job.Action.String()).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("job.outcome", outcome.String()))

	if outcome.Failed() {
		if cause == nil {
			cause = models.ErrDependenciesPending
		}
		result.IncreaseFailed()
		span.RecordError(cause)
		span.SetStatus(codes.Error, outcome.String())
		logger.Warn("sync job failed", zap.String("outcome", outcome.String()), zap.Error(cause))
	} else {
		logger.Debug("sync job settled", zap.String("outcome", outcome.String()))
	}
	return outcome, nil
}

func (e *Executor) run(ctx context.Context, job *models.SyncJob, x *execution) error {
	if err := job.Validate(); err != nil {
		return models.Precondition("validate job", err)
	}
	h := e.handlerFor(job.Action)
	if h == nil {
		return models.Preconditionf("dispatch", models.ErrUnknownAction, "%q", job.Action)
	}

	jc, err := e.resolver.Resolve(ctx, job)
	if err != nil {
		return models.Transient("resolve job", err)
	}
	if jc.Realm == nil {
		return models.Preconditionf("resolve job", models.ErrRealmNotFound, "realm %s", job.RealmID)
	}
	x.JobContext = jc
	return h(ctx, x)
}

func (e *Executor) settle(ctx context.Context, tx jobstore.Store, job *models.SyncJob, x *execution, cause error) (Outcome, error) {
	if cause == nil {
		if !x.requeued {
			return OutcomeCompleted, tx.Remove(ctx, job)
		}
		// requeues count as retries so a dependency that never lands parks the job
		if err := tx.Requeue(ctx, job); err != nil {
			return OutcomeRequeued, err
		}
		if !job.IsDue(e.cfg.RetryCeiling) {
			return OutcomeParked, nil
		}
		return OutcomeRequeued, nil
	}

	switch outcome := Classify(cause, e.cfg.UnclassifiedFailurePolicy); outcome {
	case OutcomeRetried:
		if err := tx.MarkRetry(ctx, job); err != nil {
			return outcome, err
		}
		if !job.IsDue(e.cfg.RetryCeiling) {
			return OutcomeParked, nil
		}
		return OutcomeRetried, nil
	case OutcomeParked:
		return outcome, tx.Park(ctx, job)
	default:
		return OutcomeAbandoned, tx.Remove(ctx, job)
	}
}

// dependOn enqueues the jobs x waits on; settle then requeues x behind them
func (x *execution) dependOn(ctx context.Context, deps ...jobstore.EnqueueRequest) error {
	for _, req := range deps {
		if _, err := x.enqueuer.EnqueueDependency(ctx, req); err != nil {
			return models.Transient("enqueue "+req.Action.String(), err)
		}
	}
	x.requeued = true
	x.logger.Info("dependencies enqueued, job requeued", zap.Int("dependencies", len(deps)))
	return nil
}

func groupCreateRequest(x *execution, comp *models.Component) jobstore.EnqueueRequest {
	return jobstore.EnqueueRequest{
		Action: models.ActionCreateGroup, RealmID: x.Job.RealmID, ComponentID: comp.ID, GroupID: x.Group.ID,
	}
}

// staleGroup forgets a remote group that is gone. When the job adds to the
// group it waits for the group to be provisioned again.
func (e *Executor) staleGroup(ctx context.Context, x *execution, comp *models.Component, groupRef string, recreate bool) error {
	x.logger.Info("remote group is gone, clearing correlation id", zap.String("external_id", groupRef))
	if err := e.dir.ClearGroupExternalID(ctx, x.Group.RealmID, x.Group.ID, comp.ID); err != nil {
		return models.Transient("clear group correlation id", err)
	}
	if !recreate {
		return nil
	}
	return x.dependOn(ctx, groupCreateRequest(x, comp))
}

// scimComponent returns the resolved component when it is a SCIM configuration
func (e *Executor) scimComponent(x *execution, op string) (*models.Component, error) {
	comp := x.Component
	if comp == nil {
		return nil, models.Preconditionf(op, models.ErrComponentNotFound, "realm %s has no remote configuration for this job", x.Job.RealmID)
	}
	if comp.ProviderID != e.cfg.ProviderID {
		return nil, models.Preconditionf(op, models.ErrWrongProvider, "component %s has provider %q", comp.ID, comp.ProviderID)
	}
	return comp, nil
}

func (e *Executor) client(ctx context.Context, comp *models.Component) (scim.Client, error) {
	return e.clients.Get(ctx, comp)
}

func (e *Executor) createUser(ctx context.Context, x *execution) error {
	const op = "create user"
	u := x.User
	if u == nil {
		return models.Preconditionf(op, models.ErrUserNotFound, "user %s", x.Job.UserID)
	}
	if u.FederationLink == "" {
		return models.Preconditionf(op, models.ErrNotFederated, "user %s", u.ID)
	}
	comp, err := e.scimComponent(x, op)
	if err != nil {
		return err
	}
	if comp.ID != u.FederationLink {
		return models.Preconditionf(op, models.ErrNotFederated, "user %s is linked to %s, not %s", u.ID, u.FederationLink, comp.ID)
	}
	return e.upsertUser(ctx, x, comp)
}

func (e *Executor) createUserExternal(ctx context.Context, x *execution) error {
	const op = "create external user"
	if x.User == nil {
		return models.Preconditionf(op, models.ErrUserNotFound, "user %s", x.Job.UserID)
	}
	comp, err := e.scimComponent(x, op)
	if err != nil {
		return err
	}
	return e.upsertUser(ctx, x, comp)
}

// upsertUser creates the remote user or patches the one sharing its
// username, records the correlation id and reconciles group membership.
func (e *Executor) upsertUser(ctx context.Context, x *execution, comp *models.Component) error {
	u := x.User
	client, err := e.client(ctx, comp)
	if err != nil {
		return err
	}
	roles, err := e.roleNames(ctx, u)
	if err != nil {
		return err
	}
	desired := e.mapper.Build(u, roles)

	found, err := client.FindUserByUsername(ctx, u.Username)
	if err != nil {
		return fmt.Errorf("look up remote user %q: %w", u.Username, err)
	}

	var remoteID string
	if found == nil {
		created, err := client.CreateUser(ctx, desired)
		if err != nil {
			return fmt.Errorf("create remote user %q: %w", u.Username, err)
		}
		remoteID = created.ID
		x.result.IncreaseAdded()
		x.logger.Info("remote user created", zap.String("external_id", remoteID))
	} else {
		remoteID = found.ID
		if ops := patch.DiffUser(found, desired); len(ops) > 0 {
			if _, err := client.PatchUser(ctx, found.ID, ops); err != nil {
				return fmt.Errorf("patch remote user %s: %w", found.ID, err)
			}
			x.logger.Info("remote user patched",
				zap.String("external_id", remoteID),
				zap.Int("operations", len(ops)))
		}
		x.result.IncreaseUpdated()
	}

	if u.ExternalID(comp.ID) != remoteID {
		if err := e.dir.SetUserExternalID(ctx, u.RealmID, u.ID, comp.ID, remoteID); err != nil {
			return models.Transient("store user correlation id", err)
		}
	}

	groups, err := e.dir.ListGroups(ctx, x.Job.RealmID)
	if err != nil {
		return models.Transient("list groups", err)
	}
	for _, g := range groups {
		if u.MemberOf(g.ID) {
			_, err = x.enqueuer.EnqueueGroupJoin(ctx, x.Job.RealmID, comp.ID, g.ID, u.ID)
		} else {
			_, err = x.enqueuer.EnqueueGroupLeave(ctx, x.Job.RealmID, comp.ID, g.ID, u.ID)
		}
		if err != nil {
			return models.Transient("enqueue membership", err)
		}
	}
	return nil
}

// roleNames resolves the user's role ids, skipping roles that no longer exist
func (e *Executor) roleNames(ctx context.Context, u *models.User) ([]string, error) {
	names := make([]string, 0, len(u.RoleIDs))
	for _, id := range u.RoleIDs {
		role, err := absent(e.dir.GetRole(ctx, u.RealmID, id))
		if err != nil {
			return nil, models.Transient("resolve roles", err)
		}
		if role != nil {
			names = append(names, role.Name)
		}
	}
	return names, nil
}

func (e *Executor) deleteUser(ctx context.Context, x *execution) error {
	const op = "delete user"
	if x.Component == nil {
		return models.Preconditionf(op, models.ErrComponentNotFound, "component %q", x.Job.ComponentID)
	}
	if x.Job.ExternalID == "" {
		return models.Preconditionf(op, models.ErrUserNotFound, "no correlation id recorded for user %s", x.Job.UserID)
	}
	comp, err := e.scimComponent(x, op)
	if err != nil {
		return err
	}
	client, err := e.client(ctx, comp)
	if err != nil {
		return err
	}
	if err := client.DeleteUser(ctx, x.Job.ExternalID); err != nil {
		return fmt.Errorf("delete remote user %s: %w", x.Job.ExternalID, err)
	}
	x.result.IncreaseRemoved()
	return nil
}

func desiredGroup(g *models.Group) *models.ScimGroup {
	return &models.ScimGroup{DisplayName: g.Name, ExternalID: g.ID}
}

func (e *Executor) groupTarget(ctx context.Context, x *execution, op string) (*models.Group, *models.Component, scim.Client, error) {
	g := x.Group
	if g == nil {
		return nil, nil, nil, models.Preconditionf(op, models.ErrGroupNotFound, "group %s", x.Job.GroupID)
	}
	comp, err := e.scimComponent(x, op)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := e.client(ctx, comp)
	if err != nil {
		return nil, nil, nil, err
	}
	return g, comp, client, nil
}

func (e *Executor) createGroup(ctx context.Context, x *execution) error {
	g, comp, client, err := e.groupTarget(ctx, x, "create group")
	if err != nil {
		return err
	}

	if local := g.ExternalID(comp.ID); local != "" {
		remote, err := client.GetGroup(ctx, local)
		switch {
		case err == nil:
			return e.patchGroup(ctx, x, client, remote, g)
		case !errors.Is(err, scim.ErrNotFound):
			return fmt.Errorf("read remote group %s: %w", local, err)
		}
		x.logger.Info("stored group correlation id is stale", zap.String("external_id", local))
	}

	found, err := client.FindGroupByDisplayName(ctx, g.Name)
	if err != nil {
		return fmt.Errorf("look up remote group %q: %w", g.Name, err)
	}
	if found != nil {
		return e.adoptGroup(ctx, x, comp, found)
	}

	created, err := client.CreateGroup(ctx, desiredGroup(g))
	if err != nil {
		return fmt.Errorf("create remote group %q: %w", g.Name, err)
	}
	if err := e.dir.SetGroupExternalID(ctx, g.RealmID, g.ID, comp.ID, created.ID); err != nil {
		return models.Transient("store group correlation id", err)
	}
	x.result.IncreaseAdded()
	x.logger.Info("remote group created", zap.String("external_id", created.ID))
	return nil
}

func (e *Executor) updateGroup(ctx context.Context, x *execution) error {
	g, comp, client, err := e.groupTarget(ctx, x, "update group")
	if err != nil {
		return err
	}

	local := g.ExternalID(comp.ID)
	if local == "" {
		found, err := client.FindGroupByDisplayName(ctx, g.Name)
		if err != nil {
			return fmt.Errorf("look up remote group %q: %w", g.Name, err)
		}
		if found == nil {
			x.logger.Info("no remote group to update")
			return nil
		}
		return e.adoptGroup(ctx, x, comp, found)
	}

	remote, err := client.GetGroup(ctx, local)
	if errors.Is(err, scim.ErrNotFound) {
		x.logger.Info("remote group is gone, clearing correlation id", zap.String("external_id", local))
		if err := e.dir.ClearGroupExternalID(ctx, g.RealmID, g.ID, comp.ID); err != nil {
			return models.Transient("clear group correlation id", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read remote group %s: %w", local, err)
	}
	return e.patchGroup(ctx, x, client, remote, g)
}

// adoptGroup links g to an existing remote group without touching its data
func (e *Executor) adoptGroup(ctx context.Context, x *execution, comp *models.Component, found *models.ScimGroup) error {
	if err := e.dir.SetGroupExternalID(ctx, x.Group.RealmID, x.Group.ID, comp.ID, found.ID); err != nil {
		return models.Transient("store group correlation id", err)
	}
	x.logger.Info("adopted existing remote group", zap.String("external_id", found.ID))
	return nil
}

func (e *Executor) patchGroup(ctx context.Context, x *execution, client scim.Client, remote *models.ScimGroup, g *models.Group) error {
	ops := patch.DiffGroup(remote, desiredGroup(g))
	if len(ops) == 0 {
		return nil
	}
	if _, err := client.PatchGroup(ctx, remote.ID, ops); err != nil {
		return fmt.Errorf("patch remote group %s: %w", remote.ID, err)
	}
	x.result.IncreaseUpdated()
	return nil
}

func (e *Executor) deleteGroup(ctx context.Context, x *execution) error {
	components, err := e.resolver.ScimComponents(ctx, x.Job.RealmID)
	if err != nil {
		return models.Transient("list remote configurations", err)
	}

	recorded := x.Job.ComponentID
	if recorded == "" && x.Job.ExternalID != "" {
		def, err := e.resolver.DefaultComponent(ctx, x.Job.RealmID)
		if err != nil {
			return models.Transient("resolve remote configuration", err)
		}
		if def != nil {
			recorded = def.ID
		}
	}

	deleted := 0
	for _, comp := range components {
		id := x.Group.ExternalID(comp.ID)
		if id == "" && comp.ID == recorded {
			id = x.Job.ExternalID
		}
		if id == "" {
			continue
		}
		client, err := e.client(ctx, comp)
		if err != nil {
			return err
		}
		if err := client.DeleteGroup(ctx, id); err != nil {
			return fmt.Errorf("delete remote group %s: %w", id, err)
		}
		if x.Group != nil {
			if err := e.dir.ClearGroupExternalID(ctx, x.Group.RealmID, x.Group.ID, comp.ID); err != nil {
				return models.Transient("clear group correlation id", err)
			}
		}
		x.result.IncreaseRemoved()
		deleted++
	}
	if deleted == 0 {
		x.logger.Info("group has no remote counterpart to delete")
	}
	return nil
}

func (e *Executor) joinGroup(ctx context.Context, x *execution) error {
	return e.membership(ctx, x, "join group", true)
}

func (e *Executor) leaveGroup(ctx context.Context, x *execution) error {
	return e.membership(ctx, x, "leave group", false)
}

func (e *Executor) membership(ctx context.Context, x *execution, op string, join bool) error {
	u := x.User
	if u == nil {
		return models.Preconditionf(op, models.ErrUserNotFound, "user %s", x.Job.UserID)
	}
	if u.FederationLink == "" {
		return models.Preconditionf(op, models.ErrNotFederated, "user %s", u.ID)
	}
	if x.Group == nil {
		return models.Preconditionf(op, models.ErrGroupNotFound, "group %s", x.Job.GroupID)
	}
	comp, err := e.scimComponent(x, op)
	if err != nil {
		return err
	}

	userRef := u.ExternalID(comp.ID)
	groupRef := x.Group.ExternalID(comp.ID)

	var deps []jobstore.EnqueueRequest
	if groupRef == "" {
		deps = append(deps, groupCreateRequest(x, comp))
	}
	if userRef == "" {
		action := models.ActionCreateUser
		if u.FederationLink != comp.ID {
			action = models.ActionCreateUserExternal
		}
		deps = append(deps, jobstore.EnqueueRequest{
			Action: action, RealmID: x.Job.RealmID, ComponentID: comp.ID, UserID: u.ID,
		})
	}
	if len(deps) > 0 {
		return x.dependOn(ctx, deps...)
	}

	client, err := e.client(ctx, comp)
	if err != nil {
		return err
	}
	var ops []models.PatchOperation
	if join {
		ops = []models.PatchOperation{{
			Op:    models.PatchAdd,
			Path:  patch.PathMembers,
			Value: []models.Member{{Value: userRef, Display: u.Username}},
		}}
	} else {
		ops = []models.PatchOperation{{Op: models.PatchRemove, Path: patch.MemberFilter(userRef)}}
	}
	if _, err := client.PatchGroup(ctx, groupRef, ops); err != nil {
		if errors.Is(err, scim.ErrNotFound) {
			return e.staleGroup(ctx, x, comp, groupRef, true)
		}
		return fmt.Errorf("%s %s: %w", op, groupRef, err)
	}
	x.result.IncreaseUpdated()
	return nil
}

func (e *Executor) addRoleToGroup(ctx context.Context, x *execution) error {
	return e.groupRole(ctx, x, "add role to group", true)
}

func (e *Executor) removeRoleFromGroup(ctx context.Context, x *execution) error {
	return e.groupRole(ctx, x, "remove role from group", false)
}

func (e *Executor) groupRole(ctx context.Context, x *execution, op string, add bool) error {
	if x.Group == nil {
		return models.Preconditionf(op, models.ErrGroupNotFound, "group %s", x.Job.GroupID)
	}
	if x.Role == nil {
		return models.Preconditionf(op, models.ErrRoleNotFound, "role %s", x.Job.RoleID)
	}
	comp, err := e.scimComponent(x, op)
	if err != nil {
		return err
	}

	groupRef := x.Group.ExternalID(comp.ID)
	if groupRef == "" {
		if !add {
			return nil
		}
		return x.dependOn(ctx, groupCreateRequest(x, comp))
	}

	client, err := e.client(ctx, comp)
	if err != nil {
		return err
	}
	var ops []models.PatchOperation
	if add {
		ops = []models.PatchOperation{{
			Op:    models.PatchAdd,
			Path:  patch.PathRoles,
			Value: []models.MultiValue{{Value: x.Role.Name}},
		}}
	} else {
		ops = []models.PatchOperation{{Op: models.PatchRemove, Path: patch.RoleFilter(x.Role.Name)}}
	}
	if _, err := client.PatchGroup(ctx, groupRef, ops); err != nil {
		if errors.Is(err, scim.ErrNotFound) {
			return e.staleGroup(ctx, x, comp, groupRef, add)
		}
		return fmt.Errorf("%s %s: %w", op, groupRef, err)
	}
	x.result.IncreaseUpdated()
	return nil
}
