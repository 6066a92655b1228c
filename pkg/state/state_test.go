package state

import (
	"testing"

	"pibooth/pkg/hook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefine(t *testing.T) {
	def := Define(Wait)
	assert.Equal(t, "state_wait", def.HookPrefix)
	assert.Equal(t, []string{
		"state_wait_enter", "state_wait_do", "state_wait_validate", "state_wait_exit",
	}, def.Hooks())
}

func TestDefaultGraph(t *testing.T) {
	g := DefaultGraph()

	assert.Equal(t, BuiltIn, g.Names())
	assert.Equal(t, Wait, g.Initial())
	assert.Equal(t, FailSafe, g.FailSafe())
	assert.True(t, g.Has(Print))
	assert.False(t, g.Has("photo"))

	def, err := g.Lookup(Capture)
	require.NoError(t, err)
	assert.Equal(t, "state_capture_validate", def.ValidateHook())

	_, err = g.Lookup("photo")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestGraph_Add(t *testing.T) {
	tests := []struct {
		name        string
		defs        []Definition
		wantErr     error
		errContains string
	}{
		{
			name: "distinct states",
			defs: []Definition{Define(Wait), Define(Choose)},
		},
		{
			name:    "duplicate name",
			defs:    []Definition{Define(Wait), Define(Wait)},
			wantErr: ErrDuplicateState,
		},
		{
			name:        "shared prefix",
			defs:        []Definition{Define(Wait), {Name: "idle", HookPrefix: "state_wait"}},
			errContains: "already used by wait",
		},
		{
			name:        "empty prefix",
			defs:        []Definition{{Name: "idle"}},
			errContains: "hook prefix cannot be empty",
		},
		{
			name:        "empty name",
			defs:        []Definition{{HookPrefix: "state_x"}},
			errContains: "name cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(Wait, Wait, tt.defs...)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestGraph_Validate(t *testing.T) {
	reg, err := NewCatalogue()
	require.NoError(t, err)

	require.NoError(t, DefaultGraph().Validate(reg))

	g, err := NewGraph(Wait, FailSafe, Define(Wait), Define(FailSafe), Define("photo"))
	require.NoError(t, err)
	err = g.Validate(reg)
	assert.ErrorIs(t, err, hook.ErrUnknownHook)
	assert.Contains(t, err.Error(), "state_photo_enter")

	g, err = NewGraph("nowhere", FailSafe, Define(FailSafe))
	require.NoError(t, err)
	assert.ErrorIs(t, g.Validate(reg), ErrUnknownState)

	g, err = NewGraph(Wait, "nowhere", Define(Wait))
	require.NoError(t, err)
	assert.ErrorIs(t, g.Validate(reg), ErrUnknownState)
}

func TestNewCatalogue(t *testing.T) {
	reg, err := NewCatalogue()
	require.NoError(t, err)

	// Three lifecycle hooks plus four per built-in state.
	assert.Equal(t, 3+4*len(BuiltIn), reg.Len())

	spec, err := reg.Lookup("state_finish_validate")
	require.NoError(t, err)
	assert.Equal(t, hook.ModeFirstResult, spec.Mode)
}

func TestAddCustom(t *testing.T) {
	reg, err := NewCatalogue()
	require.NoError(t, err)
	g := DefaultGraph()

	def, err := AddCustom(reg, g, "slideshow")
	require.NoError(t, err)
	assert.Equal(t, "state_slideshow", def.HookPrefix)
	assert.True(t, g.Has("slideshow"))
	assert.True(t, reg.Has("state_slideshow_validate"))
	require.NoError(t, g.Validate(reg))

	_, err = AddCustom(reg, g, "slideshow")
	assert.ErrorIs(t, err, ErrDuplicateState)

	_, err = AddCustom(reg, g, Wait)
	assert.ErrorIs(t, err, ErrDuplicateState)
}
