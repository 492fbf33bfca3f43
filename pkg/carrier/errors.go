package carrier

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a remote failure for control flow.
type ErrorKind string

const (
	KindAPI               ErrorKind = "api"
	KindTransport         ErrorKind = "transport"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindNotFound          ErrorKind = "not_found"
	KindOwnershipConflict ErrorKind = "ownership_conflict"
	KindCallbackConflict  ErrorKind = "callback_conflict"
)

// Sentinel errors matched against *ValidationError and *RemoteError with errors.Is.
var (
	// ErrValidation indicates the desired state or credentials are malformed.
	ErrValidation = errors.New("validation failed")

	// ErrOwnershipConflict indicates the carrier service exists but cannot be
	// modified by this app.
	ErrOwnershipConflict = errors.New("carrier service owned by another app")

	// ErrCallbackConflict indicates the callback URL is already registered
	// on another carrier service.
	ErrCallbackConflict = errors.New("callback url already configured")

	// ErrNotFound indicates the carrier service does not exist.
	ErrNotFound = errors.New("carrier service not found")

	// ErrUnauthorized indicates the access token was missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports a malformed input field. It is raised before any
// remote call and is never worth retrying.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteError represents a failed call against the carrier service API.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
	Messages   []string
	Kind       ErrorKind
	Cause      error
}

// NewRemoteError creates a RemoteError of kind KindAPI.
func NewRemoteError(op string, statusCode int, body string) *RemoteError {
	return &RemoteError{
		Op:         op,
		StatusCode: statusCode,
		Body:       body,
		Kind:       KindAPI,
	}
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("carrier service %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
	}
	if len(e.Messages) > 0 {
		msg += ": " + e.Messages[0]
		for _, m := range e.Messages[1:] {
			msg += "; " + m
		}
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels, or another RemoteError of the same kind.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrOwnershipConflict:
		return e.Kind == KindOwnershipConflict
	case ErrCallbackConflict:
		return e.Kind == KindCallbackConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	}
	t, ok := target.(*RemoteError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithKind sets the error classification.
func (e *RemoteError) WithKind(kind ErrorKind) *RemoteError {
	e.Kind = kind
	return e
}

// WithMessages attaches the error messages reported by the remote.
func (e *RemoteError) WithMessages(messages []string) *RemoteError {
	e.Messages = messages
	return e
}

// WithCause adds a cause to the error.
func (e *RemoteError) WithCause(err error) *RemoteError {
	e.Cause = err
	return e
}

// FailureCause names the step a reconciliation failed at.
type FailureCause string

const (
	CauseListFailed         FailureCause = "listFailed"
	CauseUpdateFailed       FailureCause = "updateFailed"
	CauseCreateFailed       FailureCause = "createFailed"
	CauseConflictUnresolved FailureCause = "conflictUnresolved"
	CauseDeactivateFailed   FailureCause = "deactivateFailed"
	CauseDeleteFailed       FailureCause = "deleteFailed"
)

// ReconcileError is the terminal failure of a reconciliation.
type ReconcileError struct {
	Cause FailureCause
	Err   error
}

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconciliation failed (%s): %v", e.Cause, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// CauseOf returns the failure cause if err is, or wraps, a *ReconcileError.
func CauseOf(err error) (FailureCause, bool) {
	var rerr *ReconcileError
	if errors.As(err, &rerr) {
		return rerr.Cause, true
	}
	return "", false
}

// StatusCode returns the HTTP status carried by a *RemoteError in err's chain, or 0.
func StatusCode(err error) int {
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return rerr.StatusCode
	}
	return 0
}
