package flow

import (
	"testing"
	"time"

	"pibooth/internal/app"
	"pibooth/internal/clock"
	"pibooth/internal/config"
	"pibooth/pkg/fsm"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type booth struct {
	t       *testing.T
	machine *fsm.Machine
	app     *app.App
	clock   *clock.MockClock
}

func newBooth(t *testing.T, overrides map[string]map[string]any, setup FactorySetup) *booth {
	t.Helper()
	sections := map[string]map[string]any{
		config.SectionPicture: {
			"captures":      []any{1, 2},
			"chosen_delay":  "1s",
			"preview_delay": "1s",
			"finish_delay":  "1s",
		},
	}
	for name, options := range overrides {
		sections[name] = options
	}
	cfg := config.New(sections)
	picture, err := cfg.Picture()
	require.NoError(t, err)

	clk := clock.NewMockClock(time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC))
	reg, err := state.NewCatalogue()
	require.NoError(t, err)
	manager := plugin.NewManager(reg, zap.NewNop())

	p, err := New(cfg, clk, setup, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, manager.Register(p))

	a := app.New(picture.Captures)
	machine, err := fsm.New(state.DefaultGraph(), manager, plugin.NewContext(cfg, a, nil, nil), fsm.WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, machine.Start())

	return &booth{t: t, machine: machine, app: a, clock: clk}
}

func (b *booth) tick(want state.Name, events ...input.Event) {
	b.t.Helper()
	require.NoError(b.t, b.machine.Tick(events))
	require.Equal(b.t, want, b.machine.Current())
}

func key(name string) input.Event {
	return input.Event{Kind: input.KindKey, Name: name}
}

func TestFlow_FullSession(t *testing.T) {
	b := newBooth(t, nil, nil)
	require.Equal(t, state.Wait, b.machine.Current())

	b.tick(state.Wait)
	b.tick(state.Choose, key("p"))
	b.tick(state.Chosen, key("2"))
	assert.Equal(t, 2, b.app.Chosen())

	b.tick(state.Chosen)
	b.clock.Advance(time.Second)
	b.tick(state.Preview)
	b.clock.Advance(time.Second)
	b.tick(state.Capture)

	b.tick(state.Preview)
	assert.Len(t, b.app.Captures(), 1)
	b.clock.Advance(time.Second)
	b.tick(state.Capture)
	b.tick(state.Processing)
	assert.Len(t, b.app.Captures(), 2)

	b.tick(state.Print)
	picture, ok := b.app.Picture().(*app.Picture)
	require.True(t, ok)
	assert.Equal(t, 2, picture.Layout)
	assert.Len(t, picture.Captures, 2)

	b.tick(state.Finish, input.Event{Kind: input.KindButton, Name: "print"})
	assert.True(t, b.app.PrintRequested())

	b.clock.Advance(time.Second)
	b.tick(state.Wait)
	assert.Zero(t, b.app.Chosen(), "a new session starts in wait")
	assert.Nil(t, b.app.Picture())
}

func TestFlow_SingleChoiceSkipsChoose(t *testing.T) {
	b := newBooth(t, map[string]map[string]any{
		config.SectionPicture: {"captures": []any{3}},
	}, nil)

	b.tick(state.Chosen, input.Event{Kind: input.KindButton, Name: "capture"})
	assert.Equal(t, 3, b.app.Chosen())
}

func TestFlow_ChooseButtons(t *testing.T) {
	b := newBooth(t, nil, nil)
	b.tick(state.Choose, key("p"))
	b.tick(state.Chosen, key("e"))
	assert.Equal(t, 2, b.app.Chosen())
}

func TestFlow_ChooseTimesOut(t *testing.T) {
	b := newBooth(t, nil, nil)
	b.tick(state.Choose, key("p"))

	b.tick(state.Choose, key("7"))
	b.clock.Advance(15 * time.Second)
	b.tick(state.Wait)
}

func TestFlow_PrintTimesOut(t *testing.T) {
	b := newBooth(t, map[string]map[string]any{
		config.SectionPicture: {"captures": []any{1}},
		config.SectionPrinter: {"print_delay": "2s"},
	}, nil)

	b.tick(state.Chosen, key("p"))
	b.clock.Advance(3 * time.Second)
	b.tick(state.Preview)
	b.clock.Advance(3 * time.Second)
	b.tick(state.Capture)
	b.tick(state.Processing)
	b.tick(state.Print)

	b.tick(state.Print)
	b.clock.Advance(2 * time.Second)
	b.tick(state.Finish)
	assert.False(t, b.app.PrintRequested())
}

func TestFlow_NoPrinterGoesToFinish(t *testing.T) {
	b := newBooth(t, map[string]map[string]any{
		config.SectionPicture: {"captures": []any{1}},
		config.SectionPrinter: {"enabled": false},
	}, nil)

	b.tick(state.Chosen, key("p"))
	b.clock.Advance(3 * time.Second)
	b.tick(state.Preview)
	b.clock.Advance(3 * time.Second)
	b.tick(state.Capture)
	b.tick(state.Processing)
	b.tick(state.Finish)
}

func TestFlow_PictureFactoryFromPlugins(t *testing.T) {
	var gotIndex int
	setup := func(cfg plugin.Config, optIndex int, def any) (any, error) {
		gotIndex = optIndex
		return "custom", nil
	}
	b := newBooth(t, nil, setup)

	b.tick(state.Choose, key("p"))
	b.tick(state.Chosen, key("1"))
	b.clock.Advance(time.Second)
	b.tick(state.Preview)
	b.clock.Advance(time.Second)
	b.tick(state.Capture)
	b.tick(state.Processing)
	b.tick(state.Print)

	assert.Equal(t, 0, gotIndex)
	assert.Equal(t, "custom", b.app.Picture())
}

func TestFlow_FailSafeRecovers(t *testing.T) {
	b := newBooth(t, nil, nil)
	b.tick(state.Choose, key("p"))

	b.machine.RequestFailSafe()
	b.tick(state.FailSafe)

	b.tick(state.FailSafe)
	b.clock.Advance(3 * time.Second)
	b.tick(state.Wait)
}

func TestInfo_RequiresBoothConfig(t *testing.T) {
	info := Info(clock.NewMockClock(time.Now()), nil)
	assert.Equal(t, Name, info.Name)

	_, err := info.Factory(plugin.NewContext(nil, nil, nil, nil))
	assert.Error(t, err)

	p, err := info.Factory(plugin.NewContext(config.New(nil), nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, Name, p.Name())
}
