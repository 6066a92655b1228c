// Package fsm runs the booth state machine. Every tick it hands the input
// batch to the do hooks of the current state, asks the validate hooks for
// the next state, and on a vote runs the exit hooks of the current state
// followed by the enter hooks of the new one. The new state's do and
// validate hooks first run on the following tick.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pibooth/internal/clock"
	"pibooth/pkg/hook"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultTickInterval paces Run at 25 ticks per second.
const DefaultTickInterval = 40 * time.Millisecond

// Observer is notified of machine activity.
type Observer interface {
	// Transitioned is called once the new state is entered. from is empty
	// for the initial state; plugin is empty for transitions not voted by
	// a validate hook.
	Transitioned(from, to state.Name, plugin string)

	// TickCompleted is called after each tick with the state the tick ran in.
	TickCompleted(current state.Name, d time.Duration)
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithClock sets the time source used to pace Run and time ticks.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) {
		m.clock = c
	}
}

// WithTickInterval sets the delay between two ticks of Run.
func WithTickInterval(d time.Duration) Option {
	return func(m *Machine) {
		m.interval = d
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, o)
	}
}

// Machine owns the active state. Start, Tick, Step, Transition and Shutdown
// must be called from a single goroutine, the one running the loop. Stop,
// RequestFailSafe, Current and TickCount may be called from any goroutine.
type Machine struct {
	graph     *state.Graph
	manager   *plugin.Manager
	appCtx    *plugin.Context
	logger    *zap.Logger
	clock     clock.Clock
	interval  time.Duration
	observers []Observer

	mu      sync.RWMutex
	current state.Definition
	started bool

	ticks    atomic.Uint64
	stopped  atomic.Bool
	failsafe atomic.Bool
}

// New creates a machine over graph. Every hook of the graph must be
// declared in the manager's catalogue.
func New(graph *state.Graph, manager *plugin.Manager, appCtx *plugin.Context, opts ...Option) (*Machine, error) {
	if graph == nil || manager == nil {
		return nil, fmt.Errorf("graph and plugin manager are required")
	}
	if err := graph.Validate(manager.Registry()); err != nil {
		return nil, fmt.Errorf("invalid state graph: %w", err)
	}
	if appCtx == nil {
		appCtx = plugin.NewContext(nil, nil, nil, nil)
	}

	m := &Machine{
		graph:    graph,
		manager:  manager,
		appCtx:   appCtx,
		logger:   zap.NewNop(),
		clock:    clock.NewRealClock(),
		interval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("fsm")
	return m, nil
}

// Current returns the active state, or an empty name before Start.
func (m *Machine) Current() state.Name {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Name
}

// TickCount returns the number of completed ticks.
func (m *Machine) TickCount() uint64 {
	return m.ticks.Load()
}

// Graph returns the state graph.
func (m *Machine) Graph() *state.Graph {
	return m.graph
}

// Start dispatches pibooth_startup once, then enters the initial state.
func (m *Machine) Start() error {
	if m.isStarted() {
		return ErrAlreadyStarted
	}

	initial, err := m.graph.Lookup(m.graph.Initial())
	if err != nil {
		return err
	}

	m.logger.Info("Starting state machine",
		zap.String("initial", string(initial.Name)),
		zap.Int("plugins", len(m.manager.Plugins())))

	if _, err := m.manager.Dispatch(hook.Startup, plugin.Args{Context: m.appCtx}); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	return m.enter("", initial, "")
}

// Tick runs one iteration of the loop with the given batch of events.
func (m *Machine) Tick(events []input.Event) error {
	if !m.isStarted() {
		return ErrNotStarted
	}
	start := m.clock.Now()

	current := m.currentDefinition()
	if m.failsafe.Swap(false) && current.Name != m.graph.FailSafe() {
		m.logger.Warn("Fail-safe requested", zap.String("from", string(current.Name)))
		if err := m.Transition(m.graph.FailSafe()); err != nil {
			return err
		}
		m.completeTick(current.Name, start)
		return nil
	}

	args := plugin.Args{Context: m.appCtx, Events: events}

	if _, err := m.manager.Dispatch(current.DoHook(), args); err != nil {
		return fmt.Errorf("state %s: %w", current.Name, err)
	}

	out, err := m.manager.Dispatch(current.ValidateHook(), args)
	if err != nil {
		return fmt.Errorf("state %s: %w", current.Name, err)
	}

	if out.Value != nil {
		target, ok := out.Value.(state.Name)
		if !ok || !m.graph.Has(target) {
			return &InvalidTransitionError{From: current.Name, Target: out.Value, Plugin: out.Plugin}
		}
		if target != current.Name {
			next, _ := m.graph.Lookup(target)
			if err := m.switchTo(current, next, out.Plugin); err != nil {
				return err
			}
		}
	}

	m.completeTick(current.Name, start)
	return nil
}

// Step polls src once and runs a tick, unless Stop was called.
func (m *Machine) Step(src input.Source) error {
	if m.stopped.Load() {
		return ErrStopped
	}
	var events []input.Event
	if src != nil {
		events = src.Poll()
	}
	return m.Tick(events)
}

// Run starts the machine, ticks until ctx is done or Stop is called, then
// shuts down. A fatal error ends the loop; shutdown still runs and the
// error is returned.
func (m *Machine) Run(ctx context.Context, src input.Source) error {
	if err := m.Start(); err != nil {
		return err
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		if err := m.Step(src); err != nil {
			if !errors.Is(err, ErrStopped) {
				m.logger.Error("State machine aborted", zap.Error(err))
				runErr = err
			}
			break loop
		}

		select {
		case <-ctx.Done():
			break loop
		case <-m.clock.After(m.interval):
		}
	}

	if err := m.Shutdown(); err != nil {
		runErr = multierr.Append(runErr, err)
	}
	return runErr
}

// Stop ends Run before its next tick.
func (m *Machine) Stop() {
	m.stopped.Store(true)
}

// RequestFailSafe asks the machine to move to the fail-safe state at the
// next tick. The surrounding application calls it when it detects a
// failure condition.
func (m *Machine) RequestFailSafe() {
	m.failsafe.Store(true)
}

// Transition moves to the given state: exit hooks of the current state run,
// then the enter hooks of to. Transitioning to the current state is a no-op.
func (m *Machine) Transition(to state.Name) error {
	if !m.isStarted() {
		return ErrNotStarted
	}
	next, err := m.graph.Lookup(to)
	if err != nil {
		return &InvalidTransitionError{From: m.Current(), Target: to}
	}
	current := m.currentDefinition()
	if next.Name == current.Name {
		return nil
	}
	return m.switchTo(current, next, "")
}

// Shutdown exits the current state and dispatches pibooth_cleanup once.
func (m *Machine) Shutdown() error {
	if !m.isStarted() {
		return nil
	}
	current := m.currentDefinition()
	m.logger.Info("Stopping state machine", zap.String("state", string(current.Name)))

	var err error
	if _, exitErr := m.manager.Dispatch(current.ExitHook(), plugin.Args{Context: m.appCtx}); exitErr != nil {
		err = multierr.Append(err, fmt.Errorf("state %s: %w", current.Name, exitErr))
	}

	m.mu.Lock()
	m.started = false
	m.mu.Unlock()

	if _, cleanupErr := m.manager.Dispatch(hook.Cleanup, plugin.Args{Context: m.appCtx}); cleanupErr != nil {
		err = multierr.Append(err, fmt.Errorf("cleanup: %w", cleanupErr))
	}
	return err
}

// switchTo runs exit(from) then enter(to). The active state changes between
// the two so that observers and enter hooks see the new state.
func (m *Machine) switchTo(from, to state.Definition, voter string) error {
	if _, err := m.manager.Dispatch(from.ExitHook(), plugin.Args{Context: m.appCtx}); err != nil {
		return fmt.Errorf("state %s: %w", from.Name, err)
	}
	return m.enter(from.Name, to, voter)
}

func (m *Machine) enter(from state.Name, to state.Definition, voter string) error {
	m.mu.Lock()
	m.current = to
	m.mu.Unlock()

	if from != "" {
		m.logger.Info("State changed",
			zap.String("from", string(from)),
			zap.String("to", string(to.Name)),
			zap.String("plugin", voter))
	}

	if _, err := m.manager.Dispatch(to.EnterHook(), plugin.Args{Context: m.appCtx}); err != nil {
		return fmt.Errorf("state %s: %w", to.Name, err)
	}

	for _, o := range m.observers {
		o.Transitioned(from, to.Name, voter)
	}
	return nil
}

func (m *Machine) completeTick(current state.Name, start time.Time) {
	m.ticks.Add(1)
	d := m.clock.Since(start)
	for _, o := range m.observers {
		o.TickCompleted(current, d)
	}
}

func (m *Machine) currentDefinition() state.Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine) isStarted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}
