// Package tracker keeps an in-memory view of recent booth activity: the
// current state, the last transitions, the last plugin failures and the
// status each plugin chooses to expose. Nothing is persisted.
package tracker

import (
	"sync"
	"time"

	"pibooth/internal/clock"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"
)

// DefaultCapacity bounds the transition and failure histories.
const DefaultCapacity = 100

// Transition records one state change.
type Transition struct {
	From   state.Name `json:"from"`
	To     state.Name `json:"to"`
	Plugin string     `json:"plugin,omitempty"`
	At     time.Time  `json:"at"`
}

// Failure records one plugin hook failure.
type Failure struct {
	Plugin   string    `json:"plugin"`
	Hook     string    `json:"hook"`
	Error    string    `json:"error"`
	Panicked bool      `json:"panicked"`
	At       time.Time `json:"at"`
}

// Snapshot is a consistent copy of the tracked state.
type Snapshot struct {
	Current     state.Name        `json:"current"`
	Since       time.Time         `json:"since"`
	Ticks       uint64            `json:"ticks"`
	LastTick    time.Duration     `json:"last_tick_ns"`
	Dispatches  map[string]uint64 `json:"dispatches"`
	Transitions []Transition      `json:"transitions"`
	Failures    []Failure         `json:"failures"`
	Plugins     map[string]any    `json:"plugins"`
}

// Tracker implements fsm.Observer and plugin.Observer.
type Tracker struct {
	clock    clock.Clock
	capacity int

	mu          sync.RWMutex
	current     state.Name
	since       time.Time
	ticks       uint64
	lastTick    time.Duration
	dispatches  map[string]uint64
	transitions []Transition
	failures    []Failure
	providers   map[string]func() any
	listeners   []func(Transition)
}

// New creates a tracker keeping at most capacity transitions and failures.
func New(c clock.Clock, capacity int) *Tracker {
	if c == nil {
		c = clock.NewRealClock()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		clock:      c,
		capacity:   capacity,
		dispatches: make(map[string]uint64),
		providers:  make(map[string]func() any),
	}
}

// RegisterProvider registers a function returning a plugin's status. It is
// called on every Snapshot.
func (t *Tracker) RegisterProvider(pluginName string, provider func() any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providers[pluginName] = provider
}

// OnTransition registers fn to be called after each recorded transition.
func (t *Tracker) OnTransition(fn func(Transition)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Transitioned records a state change.
func (t *Tracker) Transitioned(from, to state.Name, pluginName string) {
	rec := Transition{From: from, To: to, Plugin: pluginName, At: t.clock.Now()}

	t.mu.Lock()
	t.current = to
	t.since = rec.At
	t.transitions = appendBounded(t.transitions, rec, t.capacity)
	listeners := append([]func(Transition){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(rec)
	}
}

// TickCompleted records a tick.
func (t *Tracker) TickCompleted(_ state.Name, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks++
	t.lastTick = d
}

// HookDispatched counts dispatches that reached at least one plugin.
func (t *Tracker) HookDispatched(hookName string, called int) {
	if called == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatches[hookName]++
}

// PluginFailed records a plugin failure.
func (t *Tracker) PluginFailed(failure *plugin.PluginError) {
	rec := Failure{
		Plugin:   failure.Plugin,
		Hook:     failure.Hook,
		Error:    failure.Err.Error(),
		Panicked: failure.Panicked(),
		At:       t.clock.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = appendBounded(t.failures, rec, t.capacity)
}

// Transitions returns the recorded transitions, oldest first.
func (t *Tracker) Transitions() []Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Transition(nil), t.transitions...)
}

// Failures returns the recorded failures, oldest first.
func (t *Tracker) Failures() []Failure {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Failure(nil), t.failures...)
}

// Snapshot returns a copy of everything tracked.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	providers := make(map[string]func() any, len(t.providers))
	for k, v := range t.providers {
		providers[k] = v
	}
	snap := Snapshot{
		Current:     t.current,
		Since:       t.since,
		Ticks:       t.ticks,
		LastTick:    t.lastTick,
		Dispatches:  make(map[string]uint64, len(t.dispatches)),
		Transitions: append([]Transition{}, t.transitions...),
		Failures:    append([]Failure{}, t.failures...),
		Plugins:     make(map[string]any, len(providers)),
	}
	for k, v := range t.dispatches {
		snap.Dispatches[k] = v
	}
	t.mu.RUnlock()

	// Providers run unlocked; they may take their own locks.
	for name, provider := range providers {
		snap.Plugins[name] = provider()
	}
	return snap
}

func appendBounded[T any](list []T, item T, capacity int) []T {
	list = append(list, item)
	if len(list) > capacity {
		list = append(list[:0:0], list[len(list)-capacity:]...)
	}
	return list
}
