package counters

import (
	"testing"
	"time"

	"pibooth/internal/app"
	"pibooth/pkg/hook"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T) (*plugin.Manager, *plugin.Context, *app.App) {
	t.Helper()
	reg, err := state.NewCatalogue()
	require.NoError(t, err)
	m := plugin.NewManager(reg, zap.NewNop())
	require.NoError(t, m.Register(New(zap.NewNop())))

	a := app.New([]int{1})
	return m, plugin.NewContext(nil, a, nil, nil), a
}

func dispatch(t *testing.T, m *plugin.Manager, ctx *plugin.Context, name string, events ...input.Event) {
	t.Helper()
	out, err := m.Dispatch(name, plugin.Args{Context: ctx, Events: events})
	require.NoError(t, err)
	require.NoError(t, out.Err())
}

func TestCounters_Startup(t *testing.T) {
	m, ctx, a := newManager(t)
	a.SetCounters(map[string]int{Printed: 5})

	dispatch(t, m, ctx, hook.Startup)

	assert.Equal(t, []string{Forgotten, Printed, Taken}, a.CounterNames())
	assert.Equal(t, 5, a.Count(Printed))
}

func TestCounters_Session(t *testing.T) {
	m, ctx, a := newManager(t)
	dispatch(t, m, ctx, hook.Startup)

	dispatch(t, m, ctx, "state_processing_exit")
	assert.Zero(t, a.Count(Taken), "no picture, nothing taken")

	a.AddCapture(time.Now())
	a.SetPicture(&app.Picture{Layout: 1})
	dispatch(t, m, ctx, "state_processing_exit")
	dispatch(t, m, ctx, "state_print_exit")
	a.RequestPrint()
	dispatch(t, m, ctx, "state_print_exit")

	assert.Equal(t, 1, a.Count(Taken))
	assert.Equal(t, 1, a.Count(Forgotten))
	assert.Equal(t, 1, a.Count(Printed))

	dispatch(t, m, ctx, hook.Cleanup)
}

func TestCounters_ResetEvent(t *testing.T) {
	m, ctx, a := newManager(t)
	a.SetCounters(map[string]int{Taken: 3, Printed: 2})

	dispatch(t, m, ctx, "state_wait_do", input.Event{Kind: input.KindKey, Name: "reset_counters"})
	assert.Equal(t, 3, a.Count(Taken))

	dispatch(t, m, ctx, "state_wait_do", input.Event{Kind: input.KindRemote, Name: "reset_counters"})
	assert.Zero(t, a.Count(Taken))
	assert.Zero(t, a.Count(Printed))
}

func TestCounters_WrongHandleFails(t *testing.T) {
	m, _, _ := newManager(t)

	out, err := m.Dispatch(hook.Startup, plugin.Args{Context: plugin.NewContext(nil, "not an app", nil, nil)})
	require.NoError(t, err)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, Name, out.Failures[0].Plugin)
}

func TestInfo(t *testing.T) {
	p, err := Info().Factory(plugin.NewContext(nil, nil, nil, zap.NewNop()))
	require.NoError(t, err)
	assert.Implements(t, (*plugin.HookProvider)(nil), p)
}
