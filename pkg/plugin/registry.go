package plugin

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Priority constants for factory registration.
// Higher priority values override lower priority factories with the same name.
const (
	// PriorityDefault is the priority of the built-in plugins.
	PriorityDefault = 0

	// PriorityOverride lets a site-specific plugin replace a built-in one.
	PriorityOverride = 100
)

// DefaultOrder is the position of a factory registered without Order.
const DefaultOrder = 50

// Info describes a plugin factory.
type Info struct {
	// Name is the unique identifier of the factory.
	// Factories with the same name override based on priority.
	Name string

	// Description is a human-readable description of the plugin.
	Description string

	// Priority decides which factory wins a name collision. Higher wins.
	Priority int

	// Factory creates the plugin.
	Factory Factory

	// Order is the position of the plugin in the dispatch order. Lower
	// values are registered with the manager first.
	Order int
}

// Registry collects plugin factories before the booth starts. Creating the
// plugins yields the ordered list handed to the Manager.
type Registry struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	plugins map[string]Info
	order   []string
}

// NewRegistry creates an empty factory registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.Named("registry"),
		plugins: make(map[string]Info),
		order:   make([]string, 0),
	}
}

// Register adds a factory. If a factory with the same name exists, the one
// with the higher priority wins; on equal priority the later one wins.
func (r *Registry) Register(info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if info.Factory == nil {
		return fmt.Errorf("plugin %s: factory cannot be nil", info.Name)
	}
	if info.Order == 0 {
		info.Order = DefaultOrder
	}

	existing, exists := r.plugins[info.Name]
	if exists {
		if info.Priority < existing.Priority {
			r.logger.Info("Plugin registration skipped",
				zap.String("plugin", info.Name),
				zap.Int("priority", info.Priority),
				zap.Int("existing_priority", existing.Priority))
			return nil
		}
		r.logger.Info("Plugin overridden",
			zap.String("plugin", info.Name),
			zap.Int("from_priority", existing.Priority),
			zap.Int("to_priority", info.Priority))
	}

	r.plugins[info.Name] = info
	if !exists {
		r.order = append(r.order, info.Name)
	}
	return nil
}

// Get returns the factory registered under name, or nil.
func (r *Registry) Get(name string) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.plugins[name]
	if !ok {
		return nil
	}
	return &info
}

// List returns the factories sorted by Order, then by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.plugins))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns the registered factory names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// CreateAll instantiates every factory not listed in disabled, in List
// order. If a factory fails, plugins already created that implement
// io.Closer are closed in reverse order.
func (r *Registry) CreateAll(ctx *Context, disabled ...string) ([]Plugin, error) {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}

	infos := r.List()
	result := make([]Plugin, 0, len(infos))
	for _, info := range infos {
		if skip[info.Name] {
			r.logger.Info("Plugin disabled", zap.String("plugin", info.Name))
			continue
		}
		p, err := info.Factory(ctx)
		if err != nil {
			closeAll(result)
			return nil, fmt.Errorf("failed to create plugin %s: %w", info.Name, err)
		}
		result = append(result, p)
	}
	return result, nil
}

// RegisterAll creates every enabled plugin and registers it with m. When a
// registration fails, the plugins not yet registered are closed; the ones
// already held by m are left to the caller.
func (r *Registry) RegisterAll(m *Manager, ctx *Context, disabled ...string) error {
	plugins, err := r.CreateAll(ctx, disabled...)
	if err != nil {
		return err
	}
	for i, p := range plugins {
		if err := m.Register(p); err != nil {
			closeAll(plugins[i:])
			return err
		}
	}
	return nil
}

// closeAll closes, in reverse order, the plugins that implement io.Closer.
func closeAll(plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		if c, ok := plugins[i].(io.Closer); ok {
			_ = c.Close()
		}
	}
}
