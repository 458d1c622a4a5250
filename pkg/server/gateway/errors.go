package gateway

import (
	"fmt"
)

// ValidationError is a malformed payload or session id. Joins surface the
// message to the client; GM updates only log it.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// The requested content could not be resolved into a state. The session
// keeps its previous state.
var ErrResolution = fmt.Errorf("map resolution failed")

// An unexpected fault while handling a single event.
var ErrInternal = fmt.Errorf("internal failure")

// The update was queued until the connection is back under its rate limit.
var ErrRateLimited = fmt.Errorf("update deferred by rate limit")
