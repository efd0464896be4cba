package dispatch

import "errors"

var (
	// ErrInvalidAssignment is returned when a worker acts on a task that is
	// not assigned to them.
	ErrInvalidAssignment = errors.New("dispatch: invalid assignment")
	// ErrInvalidRequest rejects task or worker requests missing mandatory
	// fields.
	ErrInvalidRequest = errors.New("dispatch: invalid request")
	// ErrUnknownAction rejects acknowledgments with an unsupported action.
	ErrUnknownAction = errors.New("dispatch: unknown ack action")
)
