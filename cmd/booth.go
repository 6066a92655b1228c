package main

import (
	"fmt"
	"io"

	"pibooth/internal/app"
	"pibooth/internal/clock"
	"pibooth/internal/config"
	"pibooth/internal/metrics"
	"pibooth/internal/plugins/counters"
	"pibooth/internal/plugins/flow"
	"pibooth/internal/plugins/script"
	"pibooth/internal/remote"
	"pibooth/internal/tracker"
	"pibooth/internal/window"
	"pibooth/pkg/fsm"
	"pibooth/pkg/hook"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// scriptOrder places scripts between counters and flow.
const scriptOrder = 50

// booth is the assembled application.
type booth struct {
	logger    *zap.Logger
	cfg       *config.Config
	catalogue *hook.Registry
	graph     *state.Graph
	manager   *plugin.Manager
	machine   *fsm.Machine
	queue     *input.Queue
	remote    *input.Queue
	tracker   *tracker.Tracker
	metrics   *metrics.Collectors
	registry  *prometheus.Registry
	hub       *remote.Hub
	app       *app.App
}

// failSafeOnPanic moves the booth to the failsafe state when a plugin
// panics.
type failSafeOnPanic struct {
	machine *fsm.Machine
}

func (f *failSafeOnPanic) HookDispatched(string, int) {}

func (f *failSafeOnPanic) PluginFailed(failure *plugin.PluginError) {
	if failure.Panicked() && f.machine != nil {
		f.machine.RequestFailSafe()
	}
}

// newBooth wires the catalogue, plugins and state machine. queue carries the
// window events; the HTTP API and websocket remotes push to b.remote. win
// may be nil when running headless.
func newBooth(cfg *config.Config, logger *zap.Logger, clk clock.Clock, win *window.Window, queue *input.Queue) (*booth, error) {
	general, err := cfg.General()
	if err != nil {
		return nil, err
	}
	picture, err := cfg.Picture()
	if err != nil {
		return nil, err
	}
	pluginsCfg, err := cfg.Plugins()
	if err != nil {
		return nil, err
	}

	b := &booth{
		logger:   logger,
		cfg:      cfg,
		graph:    state.DefaultGraph(),
		queue:    queue,
		remote:   input.NewQueue(input.DefaultQueueCapacity),
		tracker:  tracker.New(clk, tracker.DefaultCapacity),
		registry: prometheus.NewRegistry(),
		app:      app.New(picture.Captures),
	}
	b.hub = remote.NewHub(b.remote, logger)

	if b.catalogue, err = state.NewCatalogue(); err != nil {
		return nil, err
	}
	for _, name := range pluginsCfg.States {
		if _, err := state.AddCustom(b.catalogue, b.graph, state.Name(name)); err != nil {
			return nil, fmt.Errorf("custom state %s: %w", name, err)
		}
	}

	b.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if b.metrics, err = metrics.New(b.registry); err != nil {
		return nil, err
	}

	escalate := &failSafeOnPanic{}
	b.manager = plugin.NewManager(b.catalogue, logger,
		plugin.WithObserver(b.tracker),
		plugin.WithObserver(b.metrics),
		plugin.WithObserver(escalate))

	var handle any
	if win != nil {
		handle = win
	}
	appCtx := plugin.NewContext(cfg, b.app, handle, logger)

	factories := plugin.NewRegistry(logger)
	infos := []plugin.Info{counters.Info(), flow.Info(clk, b.manager.SetupPictureFactory)}
	for i, path := range pluginsCfg.Scripts {
		infos = append(infos, script.Info(path, scriptOrder+i, b.catalogue))
	}
	for _, info := range infos {
		if err := factories.Register(info); err != nil {
			return nil, err
		}
	}
	for _, name := range pluginsCfg.Disabled {
		if factories.Get(name) == nil {
			logger.Warn("Disabled plugin is not registered",
				zap.String("plugin", name),
				zap.Strings("known", factories.Names()))
		}
	}
	if err := factories.RegisterAll(b.manager, appCtx, pluginsCfg.Disabled...); err != nil {
		b.closePlugins()
		return nil, err
	}

	opts := []fsm.Option{
		fsm.WithLogger(logger),
		fsm.WithClock(clk),
		fsm.WithTickInterval(general.TickInterval),
		fsm.WithObserver(b.tracker),
		fsm.WithObserver(b.metrics),
	}
	if win != nil {
		opts = append(opts, fsm.WithObserver(win))
	}
	if b.machine, err = fsm.New(b.graph, b.manager, appCtx, opts...); err != nil {
		b.closePlugins()
		return nil, err
	}
	escalate.machine = b.machine

	b.tracker.RegisterProvider("app", func() any { return b.app.Status() })
	b.tracker.OnTransition(func(rec tracker.Transition) {
		b.hub.Broadcast(rec)
	})

	return b, nil
}

// source merges the window and remote events of a tick. Only a quit event
// from the window stops the machine.
func (b *booth) source() input.Source {
	return input.Merge(input.SourceFunc(b.localEvents), input.SourceFunc(b.remoteEvents))
}

func (b *booth) localEvents() []input.Event {
	events := b.queue.Poll()
	for _, e := range events {
		if e.Kind == input.KindQuit {
			b.logger.Info("Quit requested", zap.String("key", e.Name))
			b.machine.Stop()
			break
		}
	}
	return events
}

func (b *booth) remoteEvents() []input.Event {
	events := b.remote.Poll()
	kept := events[:0]
	for _, e := range events {
		if e.Kind == input.KindQuit {
			b.logger.Warn("Ignoring remote quit event", zap.String("name", e.Name))
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (b *booth) closePlugins() error {
	var err error
	for _, p := range b.manager.Plugins() {
		if c, ok := p.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// close releases plugins and disconnects remotes.
func (b *booth) close() error {
	b.hub.Close()
	return b.closePlugins()
}
