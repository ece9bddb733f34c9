package scim

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is matched by errors.Is for 404 responses
var ErrNotFound = errors.New("scim resource not found")

// Error is a failed remote call. StatusCode is 0 when no response was received.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("scim %s %s: %v", e.Method, e.Path, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("scim %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("scim %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Transient reports whether retrying the call may succeed
func (e *Error) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusConflict,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Unauthorized reports whether the remote rejected our credentials
func (e *Error) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsTransient reports whether err is a remote failure worth retrying
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Transient()
}

// IsUnauthorized reports whether err is a credential rejection
func IsUnauthorized(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Unauthorized()
}

// IsRemote reports whether err came from a remote call at all
func IsRemote(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
