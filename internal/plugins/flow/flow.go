// Package flow is the built-in navigation plugin. It implements the
// validate hooks that move the booth through a session:
//
//	wait -> choose -> chosen -> preview -> capture -> (preview ...) ->
//	processing -> print -> finish -> wait
//
// with failsafe leading back to wait. Other plugins may answer a validate
// hook before flow does by registering first.
package flow

import (
	"fmt"
	"strconv"
	"time"

	"pibooth/internal/app"
	"pibooth/internal/clock"
	"pibooth/internal/config"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"go.uber.org/zap"
)

// Name of the plugin.
const Name = "flow"

// FactorySetup asks the plugins for the picture factory of a session,
// see plugin.Manager.SetupPictureFactory.
type FactorySetup func(cfg plugin.Config, optIndex int, def any) (any, error)

// Messager is implemented by windows able to show a short message.
type Messager interface {
	SetMessage(text string)
}

// Plugin drives the session.
type Plugin struct {
	controls config.ControlsConfig
	picture  config.PictureConfig
	printer  config.PrinterConfig
	general  config.GeneralConfig
	clock    clock.Clock
	setup    FactorySetup
	logger   *zap.Logger

	entered time.Time
}

// New creates the plugin. setup may be nil, in which case the default
// picture is always used.
func New(cfg *config.Config, clk clock.Clock, setup FactorySetup, logger *zap.Logger) (*Plugin, error) {
	p := &Plugin{clock: clk, setup: setup, logger: logger.Named(Name)}

	var err error
	if p.general, err = cfg.General(); err != nil {
		return nil, err
	}
	if p.controls, err = cfg.Controls(); err != nil {
		return nil, err
	}
	if p.picture, err = cfg.Picture(); err != nil {
		return nil, err
	}
	if p.printer, err = cfg.Printer(); err != nil {
		return nil, err
	}
	return p, nil
}

// Info describes the plugin for the plugin registry.
func Info(clk clock.Clock, setup FactorySetup) plugin.Info {
	return plugin.Info{
		Name:        Name,
		Description: "Default navigation between booth states",
		Priority:    plugin.PriorityDefault,
		Order:       90, // last, so that other plugins can answer validate hooks first
		Factory: func(ctx *plugin.Context) (plugin.Plugin, error) {
			cfg, ok := ctx.Config.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("flow plugin requires *config.Config, got %T", ctx.Config)
			}
			return New(cfg, clk, setup, ctx.Logger)
		},
	}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) mark() {
	p.entered = p.clock.Now()
}

func (p *Plugin) elapsed(d time.Duration) bool {
	return p.clock.Since(p.entered) >= d
}

func (p *Plugin) pressed(events []input.Event, key, button string) bool {
	for _, e := range events {
		if (e.Kind == input.KindKey && e.Name == key) ||
			((e.Kind == input.KindButton || e.Kind == input.KindRemote) && e.Name == button) {
			return true
		}
	}
	return false
}

func (p *Plugin) capturePressed(events []input.Event) bool {
	return p.pressed(events, p.controls.CaptureKey, p.controls.CaptureButton)
}

func (p *Plugin) printPressed(events []input.Event) bool {
	return p.pressed(events, p.controls.PrintKey, p.controls.PrintButton)
}

func handle(ctx *plugin.Context) (*app.App, error) {
	a, ok := ctx.App.(*app.App)
	if !ok {
		return nil, fmt.Errorf("unexpected application handle %T", ctx.App)
	}
	return a, nil
}

func message(ctx *plugin.Context, text string) {
	if m, ok := ctx.Window.(Messager); ok {
		m.SetMessage(text)
	}
}

// PiboothStartup logs the session settings.
func (p *Plugin) PiboothStartup(ctx *plugin.Context) error {
	p.logger.Info("Booth ready",
		zap.Ints("captures", p.picture.Captures),
		zap.Bool("printer", p.printer.Enabled))
	return nil
}

// StateWaitEnter starts a new session.
func (p *Plugin) StateWaitEnter(ctx *plugin.Context) error {
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	a.Reset()
	message(ctx, fmt.Sprintf("Press %q to take a picture", p.controls.CaptureKey))
	return nil
}

// StateWaitValidate goes to choose on capture, or straight to chosen when
// there is only one choice.
func (p *Plugin) StateWaitValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	if !p.capturePressed(events) {
		return "", nil
	}
	a, err := handle(ctx)
	if err != nil {
		return "", err
	}
	if choices := a.Choices(); len(choices) == 1 {
		a.Choose(choices[0])
		return state.Chosen, nil
	}
	return state.Choose, nil
}

// StateChooseEnter shows the choices.
func (p *Plugin) StateChooseEnter(ctx *plugin.Context) error {
	p.mark()
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	message(ctx, fmt.Sprintf("Choose a layout: %v", a.Choices()))
	return nil
}

// StateChooseValidate selects a choice. Capture picks the first choice,
// print the second, a digit key picks the choice with that number.
func (p *Plugin) StateChooseValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	a, err := handle(ctx)
	if err != nil {
		return "", err
	}
	choices := a.Choices()

	for _, e := range events {
		if e.Kind != input.KindKey {
			continue
		}
		if n, err := strconv.Atoi(e.Name); err == nil {
			for _, c := range choices {
				if c == n {
					a.Choose(n)
					return state.Chosen, nil
				}
			}
		}
	}
	if p.capturePressed(events) && len(choices) > 0 {
		a.Choose(choices[0])
		return state.Chosen, nil
	}
	if p.printPressed(events) && len(choices) > 1 {
		a.Choose(choices[1])
		return state.Chosen, nil
	}
	if p.elapsed(p.picture.ChooseTimeout) {
		return state.Wait, nil
	}
	return "", nil
}

// StateChosenEnter starts the chosen delay.
func (p *Plugin) StateChosenEnter(ctx *plugin.Context) error {
	p.mark()
	return nil
}

// StateChosenValidate goes to preview once the delay is over.
func (p *Plugin) StateChosenValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	if p.elapsed(p.picture.ChosenDelay) {
		return state.Preview, nil
	}
	return "", nil
}

// StatePreviewEnter starts the countdown.
func (p *Plugin) StatePreviewEnter(ctx *plugin.Context) error {
	p.mark()
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	message(ctx, fmt.Sprintf("Smile! %d left", a.Remaining()))
	return nil
}

// StatePreviewValidate goes to capture once the countdown is over.
func (p *Plugin) StatePreviewValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	if p.elapsed(p.picture.PreviewDelay) {
		return state.Capture, nil
	}
	return "", nil
}

// StateCaptureDo takes one capture.
func (p *Plugin) StateCaptureDo(ctx *plugin.Context, events []input.Event) error {
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	taken := a.AddCapture(p.clock.Now())
	p.logger.Debug("Capture taken", zap.Int("taken", taken), zap.Int("chosen", a.Chosen()))
	return nil
}

// StateCaptureValidate loops back to preview until all captures are taken.
func (p *Plugin) StateCaptureValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	a, err := handle(ctx)
	if err != nil {
		return "", err
	}
	if a.Remaining() > 0 {
		return state.Preview, nil
	}
	return state.Processing, nil
}

// StateProcessingDo assembles the picture with the factory the plugins
// agree on.
func (p *Plugin) StateProcessingDo(ctx *plugin.Context, events []input.Event) error {
	a, err := handle(ctx)
	if err != nil {
		return err
	}
	var factory any = &app.Picture{Layout: a.Chosen(), Captures: a.Captures()}
	if p.setup != nil {
		if factory, err = p.setup(ctx.Config, a.ChosenIndex(), factory); err != nil {
			return fmt.Errorf("failed to set up picture factory: %w", err)
		}
	}
	a.SetPicture(factory)
	return nil
}

// StateProcessingValidate goes to print when a printer is configured.
func (p *Plugin) StateProcessingValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	a, err := handle(ctx)
	if err != nil {
		return "", err
	}
	if a.Picture() == nil {
		return "", nil
	}
	if p.printer.Enabled {
		return state.Print, nil
	}
	return state.Finish, nil
}

// StatePrintEnter starts the print delay.
func (p *Plugin) StatePrintEnter(ctx *plugin.Context) error {
	p.mark()
	message(ctx, fmt.Sprintf("Press %q to print", p.controls.PrintKey))
	return nil
}

// StatePrintValidate prints on request, or gives up after the delay.
func (p *Plugin) StatePrintValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	if p.printPressed(events) {
		a, err := handle(ctx)
		if err != nil {
			return "", err
		}
		a.RequestPrint()
		return state.Finish, nil
	}
	if p.elapsed(p.printer.PrintDelay) {
		return state.Finish, nil
	}
	return "", nil
}

// StateFinishEnter starts the finish delay.
func (p *Plugin) StateFinishEnter(ctx *plugin.Context) error {
	p.mark()
	message(ctx, "Thank you!")
	return nil
}

// StateFinishValidate returns to wait.
func (p *Plugin) StateFinishValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	if p.elapsed(p.picture.FinishDelay) {
		return state.Wait, nil
	}
	return "", nil
}

// StateFailsafeEnter starts the recovery delay.
func (p *Plugin) StateFailsafeEnter(ctx *plugin.Context) error {
	p.mark()
	message(ctx, "Oops! Something went wrong")
	return nil
}

// StateFailsafeValidate returns to wait after the recovery delay.
func (p *Plugin) StateFailsafeValidate(ctx *plugin.Context, events []input.Event) (state.Name, error) {
	if p.elapsed(p.general.FailSafeDelay) {
		return state.Wait, nil
	}
	return "", nil
}
