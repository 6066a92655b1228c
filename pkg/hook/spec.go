// Package hook declares the catalogue of extension points that plugins may
// implement. A catalogue is an explicit Registry built once at startup and
// handed to the plugin manager and the state machine; there is no
// process-wide hook table.
package hook

import "fmt"

// Mode tells the plugin manager how to aggregate the results of a hook call.
type Mode int

const (
	// ModeAll invokes every implementing plugin and discards return values.
	ModeAll Mode = iota

	// ModeFirstResult stops at the first plugin returning a non-nil value.
	// Used for transition votes and override-style setup hooks.
	ModeFirstResult
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeFirstResult:
		return "firstresult"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Signature is the parameter contract an implementation must satisfy.
type Signature int

const (
	// SignatureApp is (app): startup and cleanup hooks.
	SignatureApp Signature = iota

	// SignatureState is (cfg, app, win): state enter and exit hooks.
	SignatureState

	// SignatureStateEvents is (cfg, app, win, events): state do hooks.
	SignatureStateEvents

	// SignatureValidate is (cfg, app, win, events) returning an optional
	// state name: state validate hooks.
	SignatureValidate

	// SignatureFactory is (cfg, opt_index, factory) returning an optional
	// replacement factory.
	SignatureFactory
)

func (s Signature) String() string {
	switch s {
	case SignatureApp:
		return "(app)"
	case SignatureState:
		return "(cfg, app, win)"
	case SignatureStateEvents:
		return "(cfg, app, win, events)"
	case SignatureValidate:
		return "(cfg, app, win, events) -> state"
	case SignatureFactory:
		return "(cfg, opt_index, factory) -> factory"
	default:
		return fmt.Sprintf("signature(%d)", int(s))
	}
}

// Spec describes one hook. It is immutable once registered.
type Spec struct {
	Name      string
	Signature Signature
	Mode      Mode
}

func (s Spec) String() string {
	return fmt.Sprintf("%s%s [%s]", s.Name, s.Signature, s.Mode)
}
