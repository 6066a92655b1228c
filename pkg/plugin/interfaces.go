// Package plugin holds the ordered set of plugins of the booth and
// dispatches hook calls to them. A plugin is any value with a name; which
// hooks it implements is discovered once, when it is registered, and cached
// as a capability table so that ticks never look methods up again.
package plugin

import (
	"pibooth/pkg/input"
	"pibooth/pkg/state"
)

// Plugin is the only interface every plugin must implement. Hook
// implementations are optional: omitting one means no contribution.
type Plugin interface {
	// Name identifies the plugin in logs and failure reports.
	// It does not need to be unique.
	Name() string
}

// HookProvider is implemented by plugins that list their hook
// implementations explicitly instead of exposing methods. Keys are hook
// names, values are functions of one of the types below.
type HookProvider interface {
	Hooks() map[string]any
}

// Hook implementation types, one per hook signature. Plugins exposing
// methods may also omit the error result of AppFunc, StateFunc, DoFunc and
// ValidateFunc.
type (
	// AppFunc implements pibooth_startup and pibooth_cleanup.
	AppFunc func(app *Context) error

	// StateFunc implements state enter and exit hooks.
	StateFunc func(ctx *Context) error

	// DoFunc implements state do hooks.
	DoFunc func(ctx *Context, events []input.Event) error

	// ValidateFunc implements state validate hooks. An empty name means no
	// transition.
	ValidateFunc func(ctx *Context, events []input.Event) (state.Name, error)

	// FactoryFunc implements pibooth_setup_picture_factory. A nil result
	// keeps the current factory.
	FactoryFunc func(cfg Config, optIndex int, factory any) (any, error)
)

// Observer is notified of dispatches and plugin failures.
type Observer interface {
	HookDispatched(hook string, called int)
	PluginFailed(err *PluginError)
}

// Factory creates a plugin instance given the application context.
type Factory func(ctx *Context) (Plugin, error)
