package cloudmanager

import (
	"errors"
	"fmt"
)

var (
	// ErrRemote matches every *RemoteError via errors.Is.
	ErrRemote = errors.New("cloudmanager remote error")
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("cloudmanager validation error")
	// ErrUnavailable is wrapped by the *RemoteError returned when a mutating
	// call is refused because the compatibility probe could not reach the
	// service.
	ErrUnavailable = errors.New("cloudmanager unavailable")

	errMissingControllerName = errors.New("response missing controller_name")
)

// RemoteError is the single error shape for every failed CloudManager call.
// HTTP rejections carry StatusCode (and Body when the service sent one);
// transport failures carry StatusCode 0 and the underlying Cause.
type RemoteError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Body       string
	// Timeout is set when the transport gave up waiting. For a mutating call
	// this means the request may have been applied remotely.
	Timeout  bool
	Mutating bool
	Cause    error
}

// HasStatus reports whether the service answered with an HTTP status.
func (e *RemoteError) HasStatus() bool {
	return e.StatusCode != 0
}

// OutcomeUnknown reports whether a mutating call may or may not have taken
// effect: it timed out in transit, so the caller cannot tell.
func (e *RemoteError) OutcomeUnknown() bool {
	return e.Mutating && !e.HasStatus() && e.Timeout
}

func (e *RemoteError) Error() string {
	switch {
	case e.HasStatus() && e.Cause != nil:
		return fmt.Sprintf("cloudmanager %s: status %d: %v", e.Op, e.StatusCode, e.Cause)
	case e.HasStatus():
		return fmt.Sprintf("cloudmanager %s: API returned status %d", e.Op, e.StatusCode)
	case e.Timeout:
		return fmt.Sprintf("cloudmanager %s: timeout: %v", e.Op, e.Cause)
	default:
		return fmt.Sprintf("cloudmanager %s: %v", e.Op, e.Cause)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// ValidationError reports a caller argument that violates a precondition.
// The request is never dispatched.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
