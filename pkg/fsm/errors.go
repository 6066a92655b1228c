package fsm

import (
	"errors"
	"fmt"

	"pibooth/pkg/state"
)

var (
	// ErrInvalidTransition is the sentinel wrapped by InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotStarted is returned when ticking a machine before Start.
	ErrNotStarted = errors.New("state machine not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("state machine already started")

	// ErrStopped is returned by Step once Stop was called.
	ErrStopped = errors.New("state machine stopped")
)

// InvalidTransitionError reports a validate hook naming a state that is not
// part of the graph. It is fatal: the machine stays where it was and the
// tick loop ends.
type InvalidTransitionError struct {
	From   state.Name
	Target any
	Plugin string
}

func (e *InvalidTransitionError) Error() string {
	if e.Plugin == "" {
		return fmt.Sprintf("invalid transition from %s to %q", e.From, fmt.Sprint(e.Target))
	}
	return fmt.Sprintf("invalid transition from %s to %q (voted by plugin %s)", e.From, fmt.Sprint(e.Target), e.Plugin)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
