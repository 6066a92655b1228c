package tracker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pibooth/internal/clock"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Transitions(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	tr := New(clk, 10)

	tr.Transitioned("", state.Wait, "")
	clk.Advance(time.Second)
	tr.Transitioned(state.Wait, state.Choose, "flow")

	assert.Equal(t, state.Choose, tr.Snapshot().Current)
	transitions := tr.Transitions()
	require.Len(t, transitions, 2)
	assert.Equal(t, Transition{From: state.Wait, To: state.Choose, Plugin: "flow", At: clk.Now()}, transitions[1])

	snap := tr.Snapshot()
	assert.Equal(t, clk.Now(), snap.Since)
}

func TestTracker_HistoryIsBounded(t *testing.T) {
	tr := New(clock.NewMockClock(time.Now()), 3)
	for i := 0; i < 5; i++ {
		tr.Transitioned(state.Name(fmt.Sprint(i)), state.Name(fmt.Sprint(i+1)), "")
	}

	transitions := tr.Transitions()
	require.Len(t, transitions, 3)
	assert.Equal(t, state.Name("2"), transitions[0].From)
	assert.Equal(t, state.Name("5"), transitions[2].To)
}

func TestTracker_Failures(t *testing.T) {
	tr := New(nil, 0)

	tr.PluginFailed(&plugin.PluginError{Plugin: "camera", Hook: "state_capture_do", Err: errors.New("no device")})
	tr.PluginFailed(&plugin.PluginError{Plugin: "leds", Hook: "state_wait_enter", Err: fmt.Errorf("%w: boom", plugin.ErrPluginPanic)})

	failures := tr.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "camera", failures[0].Plugin)
	assert.Equal(t, "no device", failures[0].Error)
	assert.False(t, failures[0].Panicked)
	assert.True(t, failures[1].Panicked)
}

func TestTracker_DispatchesAndTicks(t *testing.T) {
	tr := New(nil, 0)

	tr.HookDispatched("state_wait_do", 2)
	tr.HookDispatched("state_wait_do", 1)
	tr.HookDispatched("state_wait_enter", 0)
	tr.TickCompleted(state.Wait, 3*time.Millisecond)

	snap := tr.Snapshot()
	assert.Equal(t, map[string]uint64{"state_wait_do": 2}, snap.Dispatches)
	assert.Equal(t, uint64(1), snap.Ticks)
	assert.Equal(t, 3*time.Millisecond, snap.LastTick)
}

func TestTracker_Providers(t *testing.T) {
	tr := New(nil, 0)
	taken := 0
	tr.RegisterProvider("counters", func() any { return map[string]int{"taken": taken} })

	taken = 4
	snap := tr.Snapshot()
	assert.Equal(t, map[string]int{"taken": 4}, snap.Plugins["counters"])
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tr := New(nil, 0)
	tr.Transitioned("", state.Wait, "")

	snap := tr.Snapshot()
	snap.Transitions[0].To = state.Print
	snap.Dispatches["x"] = 1

	assert.Equal(t, state.Wait, tr.Transitions()[0].To)
	assert.Empty(t, tr.Snapshot().Dispatches)
}

func TestTracker_OnTransition(t *testing.T) {
	tr := New(nil, 0)
	var got []Transition
	tr.OnTransition(func(rec Transition) { got = append(got, rec) })

	tr.Transitioned(state.Wait, state.Choose, "flow")

	require.Len(t, got, 1)
	assert.Equal(t, state.Choose, got[0].To)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := New(nil, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Transitioned(state.Wait, state.Choose, "flow")
			tr.HookDispatched("state_wait_do", 1)
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
	assert.Len(t, tr.Transitions(), 10)
}
