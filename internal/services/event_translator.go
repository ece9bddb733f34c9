package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prefeitura-rio/app-scim-sync/internal/directory"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"go.uber.org/zap"
)

// Directory event vocabulary
const (
	ResourceUser              = "USER"
	ResourceGroup             = "GROUP"
	ResourceGroupMembership   = "GROUP_MEMBERSHIP"
	ResourceRealmRoleMapping  = "REALM_ROLE_MAPPING"
	ResourceClientRoleMapping = "CLIENT_ROLE_MAPPING"
	ResourceRealm             = "REALM"

	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"

	EventUpdateProfile = "UPDATE_PROFILE"
)

// ErrInvalidEvent is returned for events that cannot be translated
var ErrInvalidEvent = errors.New("invalid directory event")

// Event is a directory mutation notification. Admin events carry a resource
// type and operation; user events carry a type and a user id.
type Event struct {
	RealmID       string `json:"realmId" binding:"required"`
	Type          string `json:"type,omitempty"`
	UserID        string `json:"userId,omitempty"`
	ResourceType  string `json:"resourceType,omitempty"`
	OperationType string `json:"operationType,omitempty"`
	ResourcePath  string `json:"resourcePath,omitempty"`
	// Representation is the changed object, either as JSON or as a JSON-encoded string
	Representation json.RawMessage `json:"representation,omitempty" swaggertype:"object"`
}

type userRepresentation struct {
	ID             string            `json:"id"`
	Username       string            `json:"username"`
	FederationLink string            `json:"federationLink"`
	ExternalIDs    map[string]string `json:"externalIds"`
}

type groupRepresentation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type roleRepresentation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EventTranslator turns directory events into sync jobs
type EventTranslator struct {
	dir      directory.Directory
	store    jobstore.Store
	resolver *JobResolver
	logger   *logging.SafeLogger
}

// NewEventTranslator creates a translator enqueueing into store
func NewEventTranslator(dir directory.Directory, store jobstore.Store, providerID string, logger *logging.SafeLogger) *EventTranslator {
	return &EventTranslator{
		dir:      dir,
		store:    store,
		resolver: NewJobResolver(dir, providerID),
		logger:   logger,
	}
}

// Translate enqueues the jobs an event calls for in one unit of work and
// returns them. Events that need no work return no jobs and no error;
// malformed events return ErrInvalidEvent.
func (t *EventTranslator) Translate(ctx context.Context, ev Event) ([]*models.SyncJob, error) {
	if ev.RealmID == "" {
		return nil, fmt.Errorf("%w: missing realm id", ErrInvalidEvent)
	}
	logger := t.logger.With(
		zap.String("realm_id", ev.RealmID),
		zap.String("resource_type", ev.ResourceType),
		zap.String("operation_type", ev.OperationType),
		zap.String("event_type", ev.Type),
	)
	var jobs []*models.SyncJob
	err := t.store.InTx(ctx, func(ctx context.Context, tx jobstore.Store) error {
		var err error
		jobs, err = t.translate(ctx, NewEnqueuer(tx, logger), ev, logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (t *EventTranslator) translate(ctx context.Context, enq *Enqueuer, ev Event, logger *logging.SafeLogger) ([]*models.SyncJob, error) {
	var (
		job  *models.SyncJob
		jobs []*models.SyncJob
		err  error
	)
	switch {
	case ev.Type == EventUpdateProfile:
		if ev.UserID == "" {
			return nil, fmt.Errorf("%w: %s without user id", ErrInvalidEvent, ev.Type)
		}
		job, err = t.userChanged(ctx, enq, ev.RealmID, userRepresentation{ID: ev.UserID}, logger)
	case ev.ResourceType == ResourceUser:
		jobs, err = t.userEvent(ctx, enq, ev, logger)
	case ev.ResourceType == ResourceGroup:
		job, err = t.groupEvent(ctx, enq, ev, logger)
	case ev.ResourceType == ResourceGroupMembership:
		job, err = t.membershipEvent(ctx, enq, ev)
	case ev.ResourceType == ResourceRealmRoleMapping, ev.ResourceType == ResourceClientRoleMapping:
		jobs, err = t.roleMappingEvent(ctx, enq, ev, logger)
	case ev.ResourceType == ResourceRealm && strings.HasPrefix(strings.TrimPrefix(ev.ResourcePath, "/"), "groups"):
		err = t.adoptMigratedGroup(ctx, ev, logger)
	default:
		logger.Debug("ignoring directory event")
	}
	if err != nil {
		return nil, err
	}
	if job != nil {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (t *EventTranslator) userEvent(ctx context.Context, enq *Enqueuer, ev Event, logger *logging.SafeLogger) ([]*models.SyncJob, error) {
	var rep userRepresentation
	if len(ev.Representation) > 0 {
		if err := decodeRepresentation(ev.Representation, &rep); err != nil {
			logger.Warn("dropping event with unparseable representation", zap.Error(err))
			return nil, nil
		}
	}
	if rep.ID == "" {
		rep.ID = lastSegment(ev.ResourcePath, "users")
	}

	switch ev.OperationType {
	case OperationCreate, OperationUpdate:
		job, err := t.userChanged(ctx, enq, ev.RealmID, rep, logger)
		if job == nil || err != nil {
			return nil, err
		}
		return []*models.SyncJob{job}, nil
	case OperationDelete:
		job, err := t.userDeleted(ctx, enq, ev.RealmID, rep, logger)
		if job == nil || err != nil {
			return nil, err
		}
		return []*models.SyncJob{job}, nil
	}
	return nil, nil
}

// userChanged enqueues the create-or-update job matching the user's federation
func (t *EventTranslator) userChanged(ctx context.Context, enq *Enqueuer, realmID string, rep userRepresentation, logger *logging.SafeLogger) (*models.SyncJob, error) {
	user, err := t.lookupUser(ctx, realmID, rep)
	if err != nil {
		return nil, err
	}
	link := rep.FederationLink
	userID := rep.ID
	if user != nil {
		userID = user.ID
		if link == "" {
			link = user.FederationLink
		}
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user event without id or username", ErrInvalidEvent)
	}
	if link == "" {
		logger.Debug("user is not federated, nothing to sync", zap.String("user_id", userID))
		return nil, nil
	}

	comp, err := absent(t.dir.GetComponent(ctx, realmID, link))
	if err != nil {
		return nil, err
	}
	switch {
	case comp == nil:
		logger.Warn("user is linked to an unknown component",
			zap.String("user_id", userID), zap.String("component_id", link))
		return nil, nil
	case comp.ProviderID == t.resolver.providerID:
		return enq.EnqueueUserCreate(ctx, realmID, comp.ID, userID)
	case comp.ScimEventsEnabled():
		return enq.EnqueueUserCreateExternal(ctx, realmID, "", userID)
	}
	logger.Debug("user federation does not forward to SCIM",
		zap.String("user_id", userID), zap.String("component_id", link))
	return nil, nil
}

// userDeleted records the remote id while it can still be found
func (t *EventTranslator) userDeleted(ctx context.Context, enq *Enqueuer, realmID string, rep userRepresentation, logger *logging.SafeLogger) (*models.SyncJob, error) {
	user, err := t.lookupUser(ctx, realmID, rep)
	if err != nil {
		return nil, err
	}
	link, ext := rep.FederationLink, rep.ExternalIDs
	if user != nil {
		if link == "" {
			link = user.FederationLink
		}
		if len(ext) == 0 {
			ext = user.ExternalIDs
		}
	}

	var comp *models.Component
	if link != "" {
		if comp, err = absent(t.dir.GetComponent(ctx, realmID, link)); err != nil {
			return nil, err
		}
	}
	if comp == nil || comp.ProviderID != t.resolver.providerID {
		if comp, err = t.resolver.DefaultComponent(ctx, realmID); err != nil {
			return nil, err
		}
	}
	if comp == nil || ext[comp.ID] == "" {
		logger.Info("deleted user was never provisioned, nothing to remove", zap.String("user_id", rep.ID))
		return nil, nil
	}
	return enq.EnqueueUserDelete(ctx, realmID, comp.ID, rep.ID, ext[comp.ID])
}

func (t *EventTranslator) lookupUser(ctx context.Context, realmID string, rep userRepresentation) (*models.User, error) {
	switch {
	case rep.ID != "":
		return absent(t.dir.GetUser(ctx, realmID, rep.ID))
	case rep.Username != "":
		return absent(t.dir.GetUserByUsername(ctx, realmID, rep.Username))
	}
	return nil, nil
}

func (t *EventTranslator) groupEvent(ctx context.Context, enq *Enqueuer, ev Event, logger *logging.SafeLogger) (*models.SyncJob, error) {
	if ev.OperationType == OperationDelete {
		// resource path: groups/{id}
		groupID := lastSegment(ev.ResourcePath, "groups")
		if groupID == "" {
			return nil, fmt.Errorf("%w: group delete without resource path", ErrInvalidEvent)
		}
		externalID := ""
		if g, err := absent(t.dir.GetGroup(ctx, ev.RealmID, groupID)); err != nil {
			return nil, err
		} else if g != nil {
			def, err := t.resolver.DefaultComponent(ctx, ev.RealmID)
			if err != nil {
				return nil, err
			}
			if def != nil {
				externalID = g.ExternalID(def.ID)
			}
		}
		return enq.EnqueueGroupDelete(ctx, ev.RealmID, groupID, externalID)
	}

	var rep groupRepresentation
	if len(ev.Representation) > 0 {
		if err := decodeRepresentation(ev.Representation, &rep); err != nil {
			logger.Warn("dropping event with unparseable representation", zap.Error(err))
			return nil, nil
		}
	}
	if rep.ID == "" {
		rep.ID = lastSegment(ev.ResourcePath, "groups")
	}
	if rep.ID == "" {
		return nil, fmt.Errorf("%w: group event without id", ErrInvalidEvent)
	}

	switch ev.OperationType {
	case OperationCreate:
		return enq.EnqueueGroupCreate(ctx, ev.RealmID, "", rep.ID)
	case OperationUpdate:
		return enq.EnqueueGroupUpdate(ctx, ev.RealmID, "", rep.ID)
	}
	return nil, nil
}

func (t *EventTranslator) membershipEvent(ctx context.Context, enq *Enqueuer, ev Event) (*models.SyncJob, error) {
	// resource path: users/{userId}/groups/{groupId}
	parts := strings.Split(strings.Trim(ev.ResourcePath, "/"), "/")
	if len(parts) != 4 || parts[0] != "users" || parts[2] != "groups" || parts[1] == "" || parts[3] == "" {
		return nil, fmt.Errorf("%w: unexpected membership path %q", ErrInvalidEvent, ev.ResourcePath)
	}
	userID, groupID := parts[1], parts[3]

	switch ev.OperationType {
	case OperationCreate:
		return enq.EnqueueGroupJoin(ctx, ev.RealmID, "", groupID, userID)
	case OperationDelete:
		return enq.EnqueueGroupLeave(ctx, ev.RealmID, "", groupID, userID)
	}
	return nil, nil
}

func (t *EventTranslator) roleMappingEvent(ctx context.Context, enq *Enqueuer, ev Event, logger *logging.SafeLogger) ([]*models.SyncJob, error) {
	// resource path: groups/{id}/role-mappings/... or users/{id}/role-mappings/...
	parts := strings.Split(strings.Trim(ev.ResourcePath, "/"), "/")
	if len(parts) < 3 || parts[2] != "role-mappings" || parts[1] == "" {
		return nil, fmt.Errorf("%w: unexpected role mapping path %q", ErrInvalidEvent, ev.ResourcePath)
	}

	if parts[0] == "users" {
		// roles are part of the user record
		job, err := t.userChanged(ctx, enq, ev.RealmID, userRepresentation{ID: parts[1]}, logger)
		if job == nil || err != nil {
			return nil, err
		}
		return []*models.SyncJob{job}, nil
	}
	if parts[0] != "groups" {
		return nil, nil
	}

	var roles []roleRepresentation
	if err := decodeRepresentation(ev.Representation, &roles); err != nil {
		logger.Warn("dropping event with unparseable representation", zap.Error(err))
		return nil, nil
	}

	var jobs []*models.SyncJob
	for _, role := range roles {
		if role.ID == "" {
			continue
		}
		var (
			job *models.SyncJob
			err error
		)
		switch ev.OperationType {
		case OperationCreate:
			job, err = enq.EnqueueGroupRoleAdd(ctx, ev.RealmID, parts[1], role.ID)
		case OperationDelete:
			job, err = enq.EnqueueGroupRoleRemove(ctx, ev.RealmID, parts[1], role.ID)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// adoptMigratedGroup handles a realm import of a group: when the group carries
// migration data naming its remote id, that id becomes the group's correlation
// id on every SCIM component and the attribute is dropped.
func (t *EventTranslator) adoptMigratedGroup(ctx context.Context, ev Event, logger *logging.SafeLogger) error {
	var rep groupRepresentation
	if err := decodeRepresentation(ev.Representation, &rep); err != nil {
		logger.Warn("dropping event with unparseable representation", zap.Error(err))
		return nil
	}
	if rep.Name == "" {
		return nil
	}
	group, err := absent(t.dir.GetGroupByName(ctx, ev.RealmID, rep.Name))
	if err != nil || group == nil {
		return err
	}
	raw := group.FirstAttribute(models.AttrMigrationData)
	if raw == "" {
		return nil
	}
	logger = logger.With(zap.String("group_id", group.ID))

	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil || data.ID == "" {
		logger.Warn("ignoring malformed group migration data", zap.String("migration_data", raw), zap.Error(err))
		return nil
	}

	comps, err := t.resolver.ScimComponents(ctx, ev.RealmID)
	if err != nil {
		return err
	}
	for _, comp := range comps {
		if err := t.dir.SetGroupExternalID(ctx, ev.RealmID, group.ID, comp.ID, data.ID); err != nil {
			return fmt.Errorf("adopt group %s: %w", group.ID, err)
		}
	}
	// dropped last so a failed write is retried on redelivery
	if err := t.dir.RemoveGroupAttribute(ctx, ev.RealmID, group.ID, models.AttrMigrationData); err != nil {
		return fmt.Errorf("adopt group %s: %w", group.ID, err)
	}
	logger.Info("adopted migrated group", zap.String("external_id", data.ID), zap.Int("components", len(comps)))
	return nil
}

// decodeRepresentation accepts the object itself or a string holding its JSON
func decodeRepresentation(raw json.RawMessage, out interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.New("empty representation")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}
	return json.Unmarshal(raw, out)
}

// lastSegment returns the id in a "<collection>/<id>" path
func lastSegment(path, collection string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != collection {
		return ""
	}
	return parts[1]
}
