package models

import (
	"fmt"
	"time"
)

// Action identifies the kind of work a SyncJob carries
type Action string

const (
	ActionCreateUser          Action = "userCreate"
	ActionCreateUserExternal  Action = "userCreateExternal"
	ActionDeleteUser          Action = "userDelete"
	ActionCreateGroup         Action = "groupCreate"
	ActionUpdateGroup         Action = "groupUpdate"
	ActionDeleteGroup         Action = "groupDelete"
	ActionJoinGroup           Action = "groupJoin"
	ActionLeaveGroup          Action = "groupLeave"
	ActionAddRoleToGroup      Action = "groupRoleAdd"
	ActionRemoveRoleFromGroup Action = "groupRoleRemove"
)

// DefaultRetryCeiling is the highest retry count at which a job is still due.
const DefaultRetryCeiling = 2

// AllActions lists every action the executor must handle
var AllActions = []Action{
	ActionCreateUser,
	ActionCreateUserExternal,
	ActionDeleteUser,
	ActionCreateGroup,
	ActionUpdateGroup,
	ActionDeleteGroup,
	ActionJoinGroup,
	ActionLeaveGroup,
	ActionAddRoleToGroup,
	ActionRemoveRoleFromGroup,
}

// ParseAction converts a stored action code into an Action
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	for _, known := range AllActions {
		if a == known {
			return true
		}
	}
	return false
}

// String returns the stored action code
func (a Action) String() string {
	return string(a)
}

// DeleteStyle reports whether the job targets an object that no longer exists locally.
func (a Action) DeleteStyle() bool {
	return a == ActionDeleteUser || a == ActionDeleteGroup
}

// SyncJob is a unit of deferred work persisted in the job store
type SyncJob struct {
	ID          string    `json:"id" bson:"_id"`
	Action      Action    `json:"action" bson:"action"`
	UserID      string    `json:"user_id,omitempty" bson:"user_id"`
	GroupID     string    `json:"group_id,omitempty" bson:"group_id"`
	RoleID      string    `json:"role_id,omitempty" bson:"role_id"`
	RealmID     string    `json:"realm_id" bson:"realm_id"`
	ComponentID string    `json:"component_id,omitempty" bson:"component_id"`
	RetryCount  int       `json:"retry_count" bson:"retry_count"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	ExternalID  string    `json:"external_id,omitempty" bson:"external_id"`
}

// JobTarget is the identity used to coalesce duplicate work
type JobTarget struct {
	RealmID string
	Action  Action
	UserID  string
	GroupID string
	RoleID  string
}

// Target returns the dedup identity of the job
func (j *SyncJob) Target() JobTarget {
	return JobTarget{
		RealmID: j.RealmID,
		Action:  j.Action,
		UserID:  j.UserID,
		GroupID: j.GroupID,
		RoleID:  j.RoleID,
	}
}

// IsDue reports whether the job is still eligible for execution
func (j *SyncJob) IsDue(ceiling int) bool {
	return j.RetryCount >= 0 && j.RetryCount <= ceiling
}

// Clone returns a copy that can be mutated without affecting j
func (j *SyncJob) Clone() *SyncJob {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Validate checks the fields required by every action
func (j *SyncJob) Validate() error {
	if !j.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, j.Action)
	}
	if j.RealmID == "" {
		return ErrMissingRealm
	}
	return nil
}
