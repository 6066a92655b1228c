// Package state defines the state graph of the booth: the names of its
// operating phases, the hook prefix backing each of them, and the hook
// catalogue that goes with the built-in graph.
package state

import (
	"errors"
	"fmt"
	"strings"

	"pibooth/pkg/hook"
)

// Name identifies a state of the graph.
type Name string

// Built-in states, in the order a session normally walks through them.
const (
	FailSafe   Name = "failsafe"
	Wait       Name = "wait"
	Choose     Name = "choose"
	Chosen     Name = "chosen"
	Preview    Name = "preview"
	Capture    Name = "capture"
	Processing Name = "processing"
	Print      Name = "print"
	Finish     Name = "finish"
)

// BuiltIn lists the built-in states.
var BuiltIn = []Name{FailSafe, Wait, Choose, Chosen, Preview, Capture, Processing, Print, Finish}

var (
	// ErrDuplicateState is returned when a name is added to a graph twice.
	ErrDuplicateState = errors.New("duplicate state")

	// ErrUnknownState is returned when a name is not part of the graph.
	ErrUnknownState = errors.New("unknown state")
)

// Definition binds a state name to the prefix of its four hooks.
type Definition struct {
	Name       Name
	HookPrefix string
}

// Define returns the conventional definition for name, whose hooks are
// state_<name>_enter, _do, _validate and _exit.
func Define(name Name) Definition {
	return Definition{Name: name, HookPrefix: "state_" + string(name)}
}

// EnterHook returns the name of the hook run when the state is entered.
func (d Definition) EnterHook() string { return d.HookPrefix + hook.SuffixEnter }

// DoHook returns the name of the hook run on every tick spent in the state.
func (d Definition) DoHook() string { return d.HookPrefix + hook.SuffixDo }

// ValidateHook returns the name of the hook voting for the next state.
func (d Definition) ValidateHook() string { return d.HookPrefix + hook.SuffixValidate }

// ExitHook returns the name of the hook run when the state is left.
func (d Definition) ExitHook() string { return d.HookPrefix + hook.SuffixExit }

// Hooks returns the four hook names in lifecycle order.
func (d Definition) Hooks() []string {
	return []string{d.EnterHook(), d.DoHook(), d.ValidateHook(), d.ExitHook()}
}

// Graph is the set of states the machine may be in. It is built once at
// startup and treated as read-only afterwards.
type Graph struct {
	defs     map[Name]Definition
	order    []Name
	prefixes map[string]Name
	initial  Name
	failsafe Name
}

// NewGraph creates a graph from definitions. initial is the state entered at
// startup and failsafe the recovery target.
func NewGraph(initial, failsafe Name, defs ...Definition) (*Graph, error) {
	g := &Graph{
		defs:     make(map[Name]Definition),
		prefixes: make(map[string]Name),
		initial:  initial,
		failsafe: failsafe,
	}
	for _, def := range defs {
		if err := g.Add(def); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Add adds a definition to the graph. Names and hook prefixes are unique.
func (g *Graph) Add(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("state name cannot be empty")
	}
	if def.HookPrefix == "" {
		return fmt.Errorf("state %s: hook prefix cannot be empty", def.Name)
	}
	if _, exists := g.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateState, def.Name)
	}
	if other, exists := g.prefixes[def.HookPrefix]; exists {
		return fmt.Errorf("state %s: hook prefix %q already used by %s", def.Name, def.HookPrefix, other)
	}

	g.defs[def.Name] = def
	g.prefixes[def.HookPrefix] = def.Name
	g.order = append(g.order, def.Name)
	return nil
}

// Lookup returns the definition of name.
func (g *Graph) Lookup(name Name) (Definition, error) {
	def, ok := g.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	return def, nil
}

// Has reports whether name is part of the graph.
func (g *Graph) Has(name Name) bool {
	_, ok := g.defs[name]
	return ok
}

// Initial returns the state entered at startup.
func (g *Graph) Initial() Name { return g.initial }

// FailSafe returns the recovery state.
func (g *Graph) FailSafe() Name { return g.failsafe }

// Definitions returns every definition in insertion order.
func (g *Graph) Definitions() []Definition {
	result := make([]Definition, 0, len(g.order))
	for _, name := range g.order {
		result = append(result, g.defs[name])
	}
	return result
}

// Names returns every state name in insertion order.
func (g *Graph) Names() []Name {
	result := make([]Name, len(g.order))
	copy(result, g.order)
	return result
}

// Validate checks that the initial and failsafe states exist and that every
// hook the graph refers to is declared in the catalogue.
func (g *Graph) Validate(reg *hook.Registry) error {
	if !g.Has(g.initial) {
		return fmt.Errorf("initial state: %w: %q", ErrUnknownState, g.initial)
	}
	if !g.Has(g.failsafe) {
		return fmt.Errorf("failsafe state: %w: %q", ErrUnknownState, g.failsafe)
	}

	var missing []string
	for _, def := range g.Definitions() {
		for _, name := range def.Hooks() {
			if !reg.Has(name) {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", hook.ErrUnknownHook, strings.Join(missing, ", "))
	}
	return nil
}

// DefaultGraph returns the nine built-in states. The machine starts in wait
// and falls back to failsafe.
func DefaultGraph() *Graph {
	defs := make([]Definition, 0, len(BuiltIn))
	for _, name := range BuiltIn {
		defs = append(defs, Define(name))
	}
	g, err := NewGraph(Wait, FailSafe, defs...)
	if err != nil {
		// Built-in names are distinct.
		panic(err)
	}
	return g
}

// NewCatalogue returns a hook registry declaring the lifecycle hooks and
// the four hooks of every built-in state.
func NewCatalogue() (*hook.Registry, error) {
	reg := hook.NewRegistry()
	if err := hook.RegisterLifecycle(reg); err != nil {
		return nil, err
	}
	for _, name := range BuiltIn {
		if err := hook.RegisterState(reg, Define(name).HookPrefix); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// AddCustom declares a plugin-contributed state: its hooks are added to the
// catalogue and its definition to the graph. It must run before plugins are
// registered with the manager.
func AddCustom(reg *hook.Registry, g *Graph, name Name) (Definition, error) {
	def := Define(name)
	if g.Has(name) {
		return Definition{}, fmt.Errorf("%w: %s", ErrDuplicateState, name)
	}
	if err := hook.RegisterState(reg, def.HookPrefix); err != nil {
		return Definition{}, err
	}
	if err := g.Add(def); err != nil {
		return Definition{}, err
	}
	return def, nil
}
