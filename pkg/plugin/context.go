package plugin

import (
	"go.uber.org/zap"
)

// Config is the read-only configuration handed to every hook. The core
// never inspects it.
type Config interface {
	// Get returns the raw value of option in section.
	Get(section, option string) (any, bool)
}

// Context is the application context threaded unchanged through every hook
// call of the run. It is created once at startup and shared by pointer; the
// core never copies or mutates it, plugins may mutate App and Window.
type Context struct {
	// Config is the application configuration.
	Config Config

	// App is the shared mutable application handle.
	App any

	// Window is the display the booth draws on.
	Window any

	// Logger is a structured logger for hook bodies.
	// Plugins should use Logger.Named("pluginname") for namespacing.
	Logger *zap.Logger
}

// NewContext creates the application context. A nil logger is replaced by
// a no-op logger.
func NewContext(cfg Config, app any, win any, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		Config: cfg,
		App:    app,
		Window: win,
		Logger: logger,
	}
}
