package script

import (
	"os"
	"path/filepath"
	"testing"

	"pibooth/internal/app"
	"pibooth/internal/config"
	"pibooth/pkg/hook"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const lights = `
local presses = 0

function pibooth_startup()
  booth.log("lights ready")
end

function state_wait_do(events)
  for _, e in ipairs(events) do
    if e.kind == "button" then
      presses = presses + 1
    end
  end
end

function state_wait_validate(events)
  if presses >= 2 then
    return "choose"
  end
  return nil
end

function state_choose_enter()
  booth.inc("flashes")
  booth.message("flash " .. booth.count("flashes"))
end

function pibooth_setup_picture_factory(opt_index, factory)
  return { layout = opt_index, title = booth.config("picture", "title") }
end

function helper()
end
`

type window struct{ text string }

func (w *window) SetMessage(text string) { w.text = text }

func catalogue(t *testing.T) *hook.Registry {
	t.Helper()
	reg, err := state.NewCatalogue()
	require.NoError(t, err)
	return reg
}

func TestLoad_CollectsHooks(t *testing.T) {
	p, err := Load("lights", lights, catalogue(t), zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "lights", p.Name())
	var names []string
	for name := range p.Hooks() {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		hook.Startup, "state_wait_do", "state_wait_validate",
		"state_choose_enter", hook.SetupPictureFactory,
	}, names)
}

func TestScript_DrivesMachineHooks(t *testing.T) {
	reg := catalogue(t)
	p, err := Load("lights", lights, reg, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	m := plugin.NewManager(reg, zap.NewNop())
	require.NoError(t, m.Register(p))

	win := &window{}
	a := app.New([]int{1, 4})
	cfg := config.New(map[string]map[string]any{config.SectionPicture: {"title": "Wedding"}})
	ctx := plugin.NewContext(cfg, a, win, nil)

	press := []input.Event{{Kind: input.KindButton, Name: "capture"}}
	_, err = m.Dispatch("state_wait_do", plugin.Args{Context: ctx, Events: press})
	require.NoError(t, err)
	out, err := m.Dispatch("state_wait_validate", plugin.Args{Context: ctx, Events: press})
	require.NoError(t, err)
	assert.Nil(t, out.Value)

	_, err = m.Dispatch("state_wait_do", plugin.Args{Context: ctx, Events: press})
	require.NoError(t, err)
	out, err = m.Dispatch("state_wait_validate", plugin.Args{Context: ctx, Events: press})
	require.NoError(t, err)
	assert.Equal(t, state.Choose, out.Value)

	out, err = m.Dispatch("state_choose_enter", plugin.Args{Context: ctx})
	require.NoError(t, err)
	require.NoError(t, out.Err())
	assert.Equal(t, 1, a.Count("flashes"))
	assert.Equal(t, "flash 1", win.text)

	factory, err := m.SetupPictureFactory(cfg, 1, "default")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"layout": float64(1), "title": "Wedding"}, factory)
}

func TestScript_ErrorsBecomePluginFailures(t *testing.T) {
	reg := catalogue(t)
	p, err := Load("broken", `
function state_wait_enter()
  error("flash unplugged")
end
function state_wait_validate(events)
  return 42
end
`, reg, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	m := plugin.NewManager(reg, zap.NewNop())
	require.NoError(t, m.Register(p))
	ctx := plugin.NewContext(nil, nil, nil, nil)

	out, err := m.Dispatch("state_wait_enter", plugin.Args{Context: ctx})
	require.NoError(t, err)
	require.Len(t, out.Failures, 1)
	assert.Contains(t, out.Failures[0].Error(), "flash unplugged")

	out, err = m.Dispatch("state_wait_validate", plugin.Args{Context: ctx})
	require.NoError(t, err)
	require.Len(t, out.Failures, 1)
	assert.Contains(t, out.Failures[0].Error(), "want a state name")
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		code string
		is   error
	}{
		{name: "misspelled hook", code: "function state_wiat_validate(events) end", is: hook.ErrUnknownHook},
		{name: "unknown state", code: "function state_nowhere_do(events) end", is: hook.ErrUnknownHook},
		{name: "syntax error", code: "function ("},
		{name: "io is not available", code: "io.open('x')"},
		{name: "dofile is not available", code: "dofile('x.lua')"},
		{name: "loadfile is not available", code: "loadfile('x.lua')"},
		{name: "load is not available", code: "load('return 1')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bad", tt.code, catalogue(t), zap.NewNop())
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLoad_IgnoresHelperFunctions(t *testing.T) {
	p, err := Load("helper", `
function state_summary()
  return "waiting"
end

function state_wait_validate(events)
  return state_summary() == "waiting" and "choose" or nil
end
`, catalogue(t), zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	hooks := p.Hooks()
	assert.Len(t, hooks, 1)
	assert.Contains(t, hooks, "state_wait_validate")
}

func TestLoad_NoChunkLoaders(t *testing.T) {
	p, err := Load("sandbox", `
assert(type(dofile) == "nil", "dofile")
assert(type(loadfile) == "nil", "loadfile")
assert(type(load) == "nil", "load")
assert(type(loadstring) == "nil", "loadstring")
assert(type(print) == "function", "print")
`, catalogue(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestInfo_LoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.lua")
	require.NoError(t, os.WriteFile(path, []byte(lights), 0644))

	info := Info(path, 50, catalogue(t))
	assert.Equal(t, "script:lights", info.Name)

	p, err := info.Factory(plugin.NewContext(nil, nil, nil, zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, "lights", p.Name())
	require.NoError(t, p.(*Plugin).Close())

	_, err = Info(filepath.Join(t.TempDir(), "missing.lua"), 50, catalogue(t)).Factory(plugin.NewContext(nil, nil, nil, zap.NewNop()))
	assert.Error(t, err)
}
