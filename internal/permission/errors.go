package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized is returned when the tool is disabled or has no permission record.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrToolNotFound is returned when the registry has no callable for a tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved is returned when resolving an action that is no longer pending.
	ErrAlreadyResolved = errors.New("pending action already resolved")

	ErrInvalidState    = errors.New("invalid tool state")
	ErrInvalidStatus   = errors.New("invalid pending action status")
	ErrInvalidDecision = errors.New("invalid decision")
)

// BackendError wraps a failure raised by a capability backend.
type BackendError struct {
	Key ToolKey
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed: %v", e.Key, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// errorPayload converts an execution failure into the in-band result shape
// stored on a pending action.
func errorPayload(err error) map[string]any {
	var be *BackendError
	if errors.As(err, &be) {
		return map[string]any{"error": be.Err.Error()}
	}
	return map[string]any{"error": err.Error()}
}
