package hook

import (
	"fmt"
	"sync"
)

// Names of the state-independent hooks.
const (
	Startup             = "pibooth_startup"
	Cleanup             = "pibooth_cleanup"
	SetupPictureFactory = "pibooth_setup_picture_factory"
)

// Suffixes of the four hooks backing a state.
const (
	SuffixEnter    = "_enter"
	SuffixDo       = "_do"
	SuffixValidate = "_validate"
	SuffixExit     = "_exit"
)

// Registry is the hook catalogue. It is filled at startup and only read
// afterwards; the lock only guards against misuse from other goroutines.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
	order []string
}

// NewRegistry creates an empty catalogue.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]Spec),
		order: make([]string, 0),
	}
}

// Register adds a hook specification.
func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.Name == "" {
		return fmt.Errorf("hook name cannot be empty")
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHook, spec.Name)
	}

	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// Lookup returns the specification registered under name.
func (r *Registry) Lookup(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownHook, name)
	}
	return spec, nil
}

// Has reports whether name is in the catalogue.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.specs[name]
	return ok
}

// Specs returns every specification in registration order.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.specs[name])
	}
	return result
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// RegisterLifecycle registers the hooks that are not bound to a state.
func RegisterLifecycle(r *Registry) error {
	specs := []Spec{
		{Name: Startup, Signature: SignatureApp, Mode: ModeAll},
		{Name: SetupPictureFactory, Signature: SignatureFactory, Mode: ModeFirstResult},
		{Name: Cleanup, Signature: SignatureApp, Mode: ModeAll},
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// StateHooks returns the enter, do, validate and exit hook names for prefix.
func StateHooks(prefix string) (enter, do, validate, exit string) {
	return prefix + SuffixEnter, prefix + SuffixDo, prefix + SuffixValidate, prefix + SuffixExit
}

// RegisterState registers the four hooks backing the state with the given
// prefix. Only the validate hook short-circuits.
func RegisterState(r *Registry, prefix string) error {
	enter, do, validate, exit := StateHooks(prefix)
	specs := []Spec{
		{Name: enter, Signature: SignatureState, Mode: ModeAll},
		{Name: do, Signature: SignatureStateEvents, Mode: ModeAll},
		{Name: validate, Signature: SignatureValidate, Mode: ModeFirstResult},
		{Name: exit, Signature: SignatureState, Mode: ModeAll},
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return fmt.Errorf("state %s: %w", prefix, err)
		}
	}
	return nil
}
