package plugin

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"pibooth/pkg/hook"
	"pibooth/pkg/input"
	"pibooth/pkg/state"

	"go.uber.org/zap"
)

// Args are the arguments of one hook call. Each signature reads the fields
// it needs: Context for app and state hooks, Events for do and validate
// hooks, Config, OptIndex and Factory for the factory hook.
type Args struct {
	Context  *Context
	Events   []input.Event
	Config   Config
	OptIndex int
	Factory  any
}

func (a Args) config() Config {
	if a.Config != nil {
		return a.Config
	}
	if a.Context != nil {
		return a.Context.Config
	}
	return nil
}

// caller is the uniform shape every implementation is adapted to.
type caller func(args Args) (any, error)

// MethodName returns the exported method name implementing a hook:
// state_wait_validate becomes StateWaitValidate.
func MethodName(hookName string) string {
	var b strings.Builder
	for _, part := range strings.Split(hookName, "_") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// capabilities builds the table of hooks p implements.
func capabilities(p Plugin, reg *hook.Registry, logger *zap.Logger) (map[string]caller, error) {
	if provider, ok := p.(HookProvider); ok {
		return providedCapabilities(p, provider.Hooks(), reg)
	}
	return methodCapabilities(p, reg, logger)
}

func providedCapabilities(p Plugin, hooks map[string]any, reg *hook.Registry) (map[string]caller, error) {
	names := make([]string, 0, len(hooks))
	for name := range hooks {
		names = append(names, name)
	}
	sort.Strings(names)

	table := make(map[string]caller, len(hooks))
	for _, name := range names {
		spec, err := reg.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		call, err := adapt(spec, hooks[name])
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		table[name] = call
	}
	return table, nil
}

func methodCapabilities(p Plugin, reg *hook.Registry, logger *zap.Logger) (map[string]caller, error) {
	v := reflect.ValueOf(p)
	t := v.Type()

	byMethod := make(map[string]hook.Spec)
	prefixes := make(map[string]bool)
	suffixes := make(map[string]bool)
	for _, spec := range reg.Specs() {
		byMethod[MethodName(spec.Name)] = spec
		parts := strings.Split(spec.Name, "_")
		prefixes[MethodName(parts[0])] = true
		suffixes[MethodName(parts[len(parts)-1])] = true
	}

	table := make(map[string]caller)
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		spec, ok := byMethod[method.Name]
		if !ok {
			if !hasNamespace(method.Name, prefixes) {
				continue
			}
			if hasSuffix(method.Name, suffixes) {
				return nil, fmt.Errorf("plugin %s: method %s: %w", p.Name(), method.Name, hook.ErrUnknownHook)
			}
			logger.Warn("Ignoring method that is not a hook",
				zap.String("plugin", p.Name()),
				zap.String("method", method.Name))
			continue
		}
		call, err := adapt(spec, v.Method(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("plugin %s: method %s: %w", p.Name(), method.Name, err)
		}
		table[spec.Name] = call
	}
	return table, nil
}

// hasNamespace reports whether a method name starts with a hook namespace
// (State, Pibooth) followed by another word, e.g. StateSummary.
func hasNamespace(name string, prefixes map[string]bool) bool {
	for prefix := range prefixes {
		if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
			continue
		}
		if unicode.IsUpper(rune(name[len(prefix)])) {
			return true
		}
	}
	return false
}

// hasSuffix reports whether a method name ends with a hook kind word such as
// Validate or Startup. Together with hasNamespace it marks a misspelled hook,
// e.g. StateWiatValidate.
func hasSuffix(name string, suffixes map[string]bool) bool {
	for suffix := range suffixes {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// adapt converts an implementation to a caller after checking it against
// the hook signature.
func adapt(spec hook.Spec, fn any) (caller, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: %s: nil implementation", ErrSignatureMismatch, spec.Name)
	}

	switch spec.Signature {
	case hook.SignatureApp, hook.SignatureState:
		switch f := fn.(type) {
		case func(*Context) error:
			return func(a Args) (any, error) { return nil, f(a.Context) }, nil
		case AppFunc:
			return func(a Args) (any, error) { return nil, f(a.Context) }, nil
		case StateFunc:
			return func(a Args) (any, error) { return nil, f(a.Context) }, nil
		case func(*Context):
			return func(a Args) (any, error) { f(a.Context); return nil, nil }, nil
		}

	case hook.SignatureStateEvents:
		switch f := fn.(type) {
		case func(*Context, []input.Event) error:
			return func(a Args) (any, error) { return nil, f(a.Context, a.Events) }, nil
		case DoFunc:
			return func(a Args) (any, error) { return nil, f(a.Context, a.Events) }, nil
		case func(*Context, []input.Event):
			return func(a Args) (any, error) { f(a.Context, a.Events); return nil, nil }, nil
		}

	case hook.SignatureValidate:
		switch f := fn.(type) {
		case func(*Context, []input.Event) (state.Name, error):
			return validateCaller(f), nil
		case ValidateFunc:
			return validateCaller(f), nil
		case func(*Context, []input.Event) state.Name:
			return validateCaller(func(c *Context, e []input.Event) (state.Name, error) { return f(c, e), nil }), nil
		}

	case hook.SignatureFactory:
		switch f := fn.(type) {
		case func(Config, int, any) (any, error):
			return func(a Args) (any, error) { return f(a.config(), a.OptIndex, a.Factory) }, nil
		case FactoryFunc:
			return func(a Args) (any, error) { return f(a.config(), a.OptIndex, a.Factory) }, nil
		}
	}

	return nil, fmt.Errorf("%w: %s wants %s, got %T", ErrSignatureMismatch, spec.Name, spec.Signature, fn)
}

// validateCaller maps an empty state name to a nil result so that the
// manager sees it as an abstention.
func validateCaller(f func(*Context, []input.Event) (state.Name, error)) caller {
	return func(a Args) (any, error) {
		name, err := f(a.Context, a.Events)
		if err != nil || name == "" {
			return nil, err
		}
		return name, nil
	}
}

// isNull reports whether a hook result counts as no answer.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
