// Package counters is the built-in plugin counting pictures taken, printed
// and forgotten (processed but never printed).
package counters

import (
	"fmt"

	"pibooth/internal/app"
	"pibooth/pkg/hook"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"

	"go.uber.org/zap"
)

// Name of the plugin.
const Name = "counters"

// Counter names.
const (
	Taken     = "taken"
	Printed   = "printed"
	Forgotten = "forgotten"
)

// Plugin lists its hooks explicitly.
type Plugin struct {
	logger *zap.Logger
}

// New creates the plugin.
func New(logger *zap.Logger) *Plugin {
	return &Plugin{logger: logger.Named(Name)}
}

// Info describes the plugin for the plugin registry.
func Info() plugin.Info {
	return plugin.Info{
		Name:        Name,
		Description: "Counts pictures taken, printed and forgotten",
		Priority:    plugin.PriorityDefault,
		Order:       10,
		Factory: func(ctx *plugin.Context) (plugin.Plugin, error) {
			return New(ctx.Logger), nil
		},
	}
}

func (p *Plugin) Name() string { return Name }

// Hooks returns the capability table.
func (p *Plugin) Hooks() map[string]any {
	return map[string]any{
		hook.Startup:            plugin.AppFunc(p.startup),
		hook.Cleanup:            plugin.AppFunc(p.cleanup),
		"state_processing_exit": plugin.StateFunc(p.pictureDone),
		"state_print_exit":      plugin.StateFunc(p.printDone),
		"state_wait_do":         plugin.DoFunc(p.resetRequested),
	}
}

func handle(ctx *plugin.Context) (*app.App, error) {
	a, ok := ctx.App.(*app.App)
	if !ok {
		return nil, fmt.Errorf("unexpected application handle %T", ctx.App)
	}
	return a, nil
}

func (p *Plugin) startup(ctx *plugin.Context) error {
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	values := make(map[string]int)
	for _, name := range a.CounterNames() {
		values[name] = a.Count(name)
	}
	for _, name := range []string{Taken, Printed, Forgotten} {
		if _, ok := values[name]; !ok {
			values[name] = 0
		}
	}
	a.SetCounters(values)
	return nil
}

func (p *Plugin) cleanup(ctx *plugin.Context) error {
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("Session counters",
		zap.Int(Taken, a.Count(Taken)),
		zap.Int(Printed, a.Count(Printed)),
		zap.Int(Forgotten, a.Count(Forgotten)))
	return nil
}

func (p *Plugin) pictureDone(ctx *plugin.Context) error {
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	if a.Picture() != nil {
		a.Inc(Taken)
	}
	return nil
}

func (p *Plugin) printDone(ctx *plugin.Context) error {
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	if a.PrintRequested() {
		a.Inc(Printed)
	} else {
		a.Inc(Forgotten)
	}
	return nil
}

// resetRequested clears the counters on a remote "reset_counters" event.
func (p *Plugin) resetRequested(ctx *plugin.Context, events []input.Event) error {
	if _, ok := input.Find(events, input.KindRemote, "reset_counters"); !ok {
		return nil
	}
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	a.SetCounters(map[string]int{Taken: 0, Printed: 0, Forgotten: 0})
	p.logger.Info("Counters reset")
	return nil
}
