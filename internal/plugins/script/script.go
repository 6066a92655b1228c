// Package script loads booth plugins written in Lua. Every global function
// of a script named after a hook (state_wait_validate, pibooth_startup...)
// implements that hook. Scripts run in a state with only the base, table,
// string and math libraries, plus a "booth" table:
//
//	booth.log(msg)                  log at info level
//	booth.config(section, option)   read a configuration value
//	booth.message(text)             show a message in the window
//	booth.count(name)               read a counter
//	booth.inc(name)                 increment a counter
//
// Do and validate hooks receive the tick's events as an array of
// {kind=, name=, value=} tables; validate hooks return a state name or nil.
// The picture factory hook receives the option index and the default
// factory and returns a replacement or nil.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pibooth/internal/app"
	"pibooth/pkg/hook"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Messager is implemented by windows able to show a short message.
type Messager interface {
	SetMessage(text string)
}

// Plugin is a loaded script.
type Plugin struct {
	name   string
	logger *zap.Logger

	mu    sync.Mutex
	L     *lua.LState
	ctx   *plugin.Context
	hooks map[string]any
}

// LoadFile loads the script at path. The plugin is named after the file.
func LoadFile(path string, reg *hook.Registry, logger *zap.Logger) (*Plugin, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Load(name, string(code), reg, logger)
}

// Load runs code and collects its hook functions.
func Load(name, code string, reg *hook.Registry, logger *zap.Logger) (*Plugin, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(fn, lua.LNil)
	}
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	p := &Plugin{
		name:   name,
		logger: logger.Named("script").With(zap.String("script", name)),
		L:      L,
	}
	p.installAPI()

	if err := L.DoString(code); err != nil {
		L.Close()
		return nil, fmt.Errorf("script %s: %w", name, err)
	}

	hooks, err := p.collect(reg)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	p.hooks = hooks

	p.logger.Debug("Script loaded", zap.Int("hooks", len(hooks)))
	return p, nil
}

// Info describes the script for the plugin registry.
func Info(path string, order int, reg *hook.Registry) plugin.Info {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return plugin.Info{
		Name:        "script:" + name,
		Description: "Lua script " + path,
		Priority:    plugin.PriorityDefault,
		Order:       order,
		Factory: func(ctx *plugin.Context) (plugin.Plugin, error) {
			return LoadFile(path, reg, ctx.Logger)
		},
	}
}

func (p *Plugin) Name() string { return p.name }

// Hooks returns the hook functions found in the script.
func (p *Plugin) Hooks() map[string]any {
	return p.hooks
}

// Close releases the Lua state.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
	return nil
}

func (p *Plugin) collect(reg *hook.Registry) (map[string]any, error) {
	hooks := make(map[string]any)
	var unknown []string

	suffixes := make(map[string]bool)
	for _, spec := range reg.Specs() {
		suffixes[spec.Name[strings.LastIndex(spec.Name, "_"):]] = true
	}

	p.L.G.Global.ForEach(func(k, v lua.LValue) {
		fn, ok := v.(*lua.LFunction)
		if !ok || fn.Proto == nil {
			return
		}
		name := k.String()
		spec, err := reg.Lookup(name)
		if err != nil {
			if !strings.HasPrefix(name, "state_") && !strings.HasPrefix(name, "pibooth_") {
				return
			}
			if suffixes[name[strings.LastIndex(name, "_"):]] {
				unknown = append(unknown, name)
				return
			}
			p.logger.Warn("Ignoring function that is not a hook", zap.String("function", name))
			return
		}
		hooks[name] = p.adapt(spec, fn)
	})

	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", hook.ErrUnknownHook, strings.Join(unknown, ", "))
	}
	return hooks, nil
}

func (p *Plugin) adapt(spec hook.Spec, fn *lua.LFunction) any {
	switch spec.Signature {
	case hook.SignatureStateEvents:
		return plugin.DoFunc(func(ctx *plugin.Context, events []input.Event) error {
			_, err := p.call(ctx, fn, 0, p.eventsTable(events))
			return err
		})
	case hook.SignatureValidate:
		return plugin.ValidateFunc(func(ctx *plugin.Context, events []input.Event) (state.Name, error) {
			ret, err := p.call(ctx, fn, 1, p.eventsTable(events))
			if err != nil || ret == lua.LNil {
				return "", err
			}
			s, ok := ret.(lua.LString)
			if !ok {
				return "", fmt.Errorf("%s returned %s, want a state name", spec.Name, ret.Type())
			}
			return state.Name(s), nil
		})
	case hook.SignatureFactory:
		return plugin.FactoryFunc(func(cfg plugin.Config, optIndex int, factory any) (any, error) {
			ret, err := p.call(&plugin.Context{Config: cfg}, fn, 1, lua.LNumber(optIndex), toLua(p.L, factory))
			if err != nil || ret == lua.LNil {
				return nil, err
			}
			return fromLua(ret), nil
		})
	default:
		return plugin.StateFunc(func(ctx *plugin.Context) error {
			_, err := p.call(ctx, fn, 0)
			return err
		})
	}
}

// call runs fn with ctx as the current hook context.
func (p *Plugin) call(ctx *plugin.Context, fn *lua.LFunction, nret int, args ...lua.LValue) (lua.LValue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx = ctx
	defer func() { p.ctx = nil }()

	if err := p.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return lua.LNil, err
	}
	if nret == 0 {
		return lua.LNil, nil
	}
	ret := p.L.Get(-1)
	p.L.Pop(1)
	return ret, nil
}

func (p *Plugin) eventsTable(events []input.Event) *lua.LTable {
	t := p.L.NewTable()
	for _, e := range events {
		et := p.L.NewTable()
		et.RawSetString("kind", lua.LString(e.Kind))
		et.RawSetString("name", lua.LString(e.Name))
		et.RawSetString("value", toLua(p.L, e.Value))
		t.Append(et)
	}
	return t
}

func (p *Plugin) installAPI() {
	api := p.L.NewTable()
	p.L.SetFuncs(api, map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			p.logger.Info(L.CheckString(1))
			return 0
		},
		"config": func(L *lua.LState) int {
			section, option := L.CheckString(1), L.CheckString(2)
			if p.ctx == nil || p.ctx.Config == nil {
				L.Push(lua.LNil)
				return 1
			}
			value, _ := p.ctx.Config.Get(section, option)
			L.Push(toLua(L, value))
			return 1
		},
		"message": func(L *lua.LState) int {
			text := L.CheckString(1)
			if p.ctx != nil {
				if m, ok := p.ctx.Window.(Messager); ok {
					m.SetMessage(text)
				}
			}
			return 0
		},
		"count": func(L *lua.LState) int {
			name := L.CheckString(1)
			if a := p.app(); a != nil {
				L.Push(lua.LNumber(a.Count(name)))
			} else {
				L.Push(lua.LNumber(0))
			}
			return 1
		},
		"inc": func(L *lua.LState) int {
			name := L.CheckString(1)
			a := p.app()
			if a == nil {
				L.RaiseError("no application handle")
				return 0
			}
			L.Push(lua.LNumber(a.Inc(name)))
			return 1
		},
	})
	p.L.SetGlobal("booth", api)
}

func (p *Plugin) app() *app.App {
	if p.ctx == nil {
		return nil
	}
	a, _ := p.ctx.App.(*app.App)
	return a
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(toLua(L, item))
		}
		return t
	case []int:
		t := L.NewTable()
		for _, item := range val {
			t.Append(lua.LNumber(item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	case lua.LValue:
		return val
	}
	return lua.LString(fmt.Sprint(v))
}

func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			list := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, fromLua(val.RawGetInt(i)))
			}
			return list
		}
		m := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			m[k.String()] = fromLua(item)
		})
		return m
	}
	return nil
}
