package models

import (
	"errors"
	"fmt"
)

// Error constants for sync job handling
var (
	ErrUnknownAction       = errors.New("unknown sync action")
	ErrMissingRealm        = errors.New("sync job has no realm")
	ErrJobNotFound         = errors.New("sync job not found")
	ErrRealmNotFound       = errors.New("realm not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrRoleNotFound        = errors.New("role not found")
	ErrComponentNotFound   = errors.New("remote configuration not found")
	ErrNotFederated        = errors.New("user has no federation link")
	ErrWrongProvider       = errors.New("component is not a SCIM provider")
	ErrDependencyAbandoned = errors.New("a job this one depends on was abandoned")
	ErrDependenciesPending = errors.New("dependencies still pending at the retry ceiling")
)

// SyncErrorKind tells the executor how a failure must be handled
type SyncErrorKind int

const (
	// KindPrecondition marks failures that retrying can never fix
	KindPrecondition SyncErrorKind = iota + 1
	// KindConfig marks remote-configuration failures
	KindConfig
	// KindTransient marks failures of a dependency that may recover, such as the directory
	KindTransient
)

func (k SyncErrorKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// SyncError is a classified job failure
type SyncError struct {
	Kind SyncErrorKind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Precondition wraps err as a data/precondition failure
func Precondition(op string, err error) error {
	return &SyncError{Kind: KindPrecondition, Op: op, Err: err}
}

// Preconditionf builds a data/precondition failure wrapping base
func Preconditionf(op string, base error, format string, args ...interface{}) error {
	return &SyncError{Kind: KindPrecondition, Op: op, Err: fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))}
}

// ConfigError wraps err as a remote-configuration failure
func ConfigError(op string, err error) error {
	return &SyncError{Kind: KindConfig, Op: op, Err: err}
}

// Transient wraps err as a failure worth retrying
func Transient(op string, err error) error {
	return &SyncError{Kind: KindTransient, Op: op, Err: err}
}

// IsPrecondition reports whether err is a data/precondition failure
func IsPrecondition(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Kind == KindPrecondition
}

// IsConfig reports whether err is a remote-configuration failure
func IsConfig(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Kind == KindConfig
}

// IsTransient reports whether err was marked as worth retrying
func IsTransient(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Kind == KindTransient
}
