package hook

import "errors"

var (
	// ErrUnknownHook is returned when a hook name is not in the catalogue.
	ErrUnknownHook = errors.New("unknown hook")

	// ErrDuplicateHook is returned when a hook name is registered twice.
	ErrDuplicateHook = errors.New("duplicate hook")
)
