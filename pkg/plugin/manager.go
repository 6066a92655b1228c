package plugin

import (
	"fmt"
	"sync"

	"pibooth/pkg/hook"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Outcome is the result of one dispatch.
type Outcome struct {
	// Value is the winning result of a first-result hook, nil otherwise.
	Value any

	// Plugin names the plugin that produced Value.
	Plugin string

	// Called is the number of implementations invoked.
	Called int

	// Failures lists the plugins that failed during the call.
	Failures []*PluginError
}

// Err combines the failures of the call, or returns nil.
func (o Outcome) Err() error {
	var err error
	for _, f := range o.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

type implementation struct {
	plugin string
	call   caller
}

// Manager holds the ordered plugins and dispatches hooks to them.
type Manager struct {
	registry  *hook.Registry
	logger    *zap.Logger
	observers []Observer

	mu      sync.RWMutex
	plugins []Plugin
	impls   map[string][]implementation

	activeMu sync.Mutex
	active   map[string]bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithObserver reports dispatches and failures to o. It may be given more
// than once.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// NewManager creates a manager dispatching the hooks declared in reg.
func NewManager(reg *hook.Registry, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		registry: reg,
		logger:   logger.Named("plugins"),
		impls:    make(map[string][]implementation),
		active:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the hook catalogue the manager dispatches.
func (m *Manager) Registry() *hook.Registry {
	return m.registry
}

// Register appends p to the plugin list. Its implementations are resolved
// and checked against the catalogue now; a plugin with an unknown hook or a
// mismatched signature is rejected. Registering the same plugin twice is
// not checked.
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	table, err := capabilities(p, m.registry, m.logger)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.plugins = append(m.plugins, p)
	hooks := make([]string, 0, len(table))
	for _, spec := range m.registry.Specs() {
		call, ok := table[spec.Name]
		if !ok {
			continue
		}
		m.impls[spec.Name] = append(m.impls[spec.Name], implementation{plugin: p.Name(), call: call})
		hooks = append(hooks, spec.Name)
	}

	m.logger.Info("Plugin registered",
		zap.String("plugin", p.Name()),
		zap.Int("position", len(m.plugins)),
		zap.Strings("hooks", hooks))
	return nil
}

// Plugins returns the registered plugins in registration order.
func (m *Manager) Plugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Plugin, len(m.plugins))
	copy(result, m.plugins)
	return result
}

// Implementers returns the names of the plugins implementing hookName, in
// the order they are called.
func (m *Manager) Implementers(hookName string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	impls := m.impls[hookName]
	names := make([]string, len(impls))
	for i, impl := range impls {
		names[i] = impl.plugin
	}
	return names
}

// Dispatch calls the implementations of hookName in registration order.
//
// The returned error is only set for an unknown hook or a re-entrant call.
// Failures inside plugins are logged, reported to the observer and listed
// in the Outcome; the failing plugin is skipped (or, for first-result hooks,
// counts as abstaining) and dispatch continues.
func (m *Manager) Dispatch(hookName string, args Args) (Outcome, error) {
	spec, err := m.registry.Lookup(hookName)
	if err != nil {
		return Outcome{}, err
	}

	m.mu.RLock()
	impls := m.impls[hookName]
	m.mu.RUnlock()

	if len(impls) == 0 {
		return Outcome{}, nil
	}

	if !m.enter(hookName) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrReentrantDispatch, hookName)
	}
	defer m.leave(hookName)

	var out Outcome
	for _, impl := range impls {
		out.Called++
		value, err := invoke(impl, args)
		if err != nil {
			failure := &PluginError{Plugin: impl.plugin, Hook: hookName, Err: err}
			out.Failures = append(out.Failures, failure)
			m.report(failure)
			continue
		}
		if spec.Mode == hook.ModeFirstResult && !isNull(value) {
			out.Value = value
			out.Plugin = impl.plugin
			m.logger.Debug("Hook answered",
				zap.String("hook", hookName),
				zap.String("plugin", impl.plugin),
				zap.Any("value", value))
			break
		}
	}

	for _, o := range m.observers {
		o.HookDispatched(hookName, out.Called)
	}
	return out, nil
}

// SetupPictureFactory lets plugins replace the picture factory. The first
// non-nil answer wins; def is kept if no plugin answers.
func (m *Manager) SetupPictureFactory(cfg Config, optIndex int, def any) (any, error) {
	out, err := m.Dispatch(hook.SetupPictureFactory, Args{Config: cfg, OptIndex: optIndex, Factory: def})
	if err != nil {
		return def, err
	}
	if out.Value == nil {
		return def, nil
	}
	return out.Value, nil
}

func (m *Manager) enter(hookName string) bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	if m.active[hookName] {
		return false
	}
	m.active[hookName] = true
	return true
}

func (m *Manager) leave(hookName string) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	delete(m.active, hookName)
}

func (m *Manager) report(failure *PluginError) {
	fields := []zap.Field{
		zap.String("plugin", failure.Plugin),
		zap.String("hook", failure.Hook),
		zap.Error(failure.Err),
	}
	if failure.Panicked() {
		m.logger.Error("Plugin hook panicked", fields...)
	} else {
		m.logger.Error("Plugin hook failed", fields...)
	}
	for _, o := range m.observers {
		o.PluginFailed(failure)
	}
}

// invoke runs one implementation, turning a panic into an error.
func invoke(impl implementation, args Args) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: %v", ErrPluginPanic, r)
		}
	}()
	return impl.call(args)
}
