package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureMismatch is returned when an implementation does not match
	// the parameter contract of its hook.
	ErrSignatureMismatch = errors.New("hook signature mismatch")

	// ErrReentrantDispatch is returned when a hook is dispatched again from
	// inside one of its own implementations.
	ErrReentrantDispatch = errors.New("re-entrant hook dispatch")

	// ErrPluginPanic wraps a value recovered from a panicking hook.
	ErrPluginPanic = errors.New("plugin panicked")
)

// PluginError reports a failure raised inside a plugin's hook body. It is
// never fatal: the failing plugin is skipped and dispatch goes on.
type PluginError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: hook %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the hook panicked rather than returning an error.
func (e *PluginError) Panicked() bool {
	return errors.Is(e.Err, ErrPluginPanic)
}
