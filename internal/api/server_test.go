package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"pibooth/internal/tracker"
	"pibooth/pkg/input"
	"pibooth/pkg/plugin"
	"pibooth/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBooth struct {
	current  state.Name
	failsafe atomic.Bool
}

func (b *fakeBooth) Current() state.Name { return b.current }
func (b *fakeBooth) TickCount() uint64   { return 42 }
func (b *fakeBooth) RequestFailSafe()    { b.failsafe.Store(true) }

type fixture struct {
	booth   *fakeBooth
	tracker *tracker.Tracker
	queue   *input.Queue
	handler http.Handler
}

func newFixture(t *testing.T, queueCapacity int) *fixture {
	t.Helper()
	f := &fixture{
		booth:   &fakeBooth{current: state.Choose},
		tracker: tracker.New(nil, 10),
		queue:   input.NewQueue(queueCapacity),
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pibooth_ticks_total 1\n"))
	})
	server := NewServer(Deps{
		Booth:   f.booth,
		Tracker: f.tracker,
		Queue:   f.queue,
		States:  []state.Name{state.Wait, state.Choose},
		Remotes: func() int { return 2 },
		Metrics: metrics,
	}, zap.NewNop(), 8081)
	f.handler = server.Handler()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestHandleGetState(t *testing.T) {
	f := newFixture(t, 8)
	f.tracker.Transitioned(state.Wait, state.Choose, "flow")
	f.tracker.RegisterProvider("counters", func() any { return map[string]int{"taken": 3} })
	require.NoError(t, f.queue.Push(input.Event{Kind: input.KindButton, Name: "capture"}))

	w := f.do(http.MethodGet, "/api/state", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response StateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, state.Choose, response.Current)
	assert.Equal(t, uint64(42), response.Ticks)
	assert.Equal(t, []state.Name{state.Wait, state.Choose}, response.States)
	assert.Equal(t, 1, response.Pending)
	assert.Equal(t, 2, response.Remotes)
	assert.Contains(t, response.Plugins, "counters")
}

func TestHandleGetStateMethodNotAllowed(t *testing.T) {
	f := newFixture(t, 8)

	w := f.do(http.MethodPost, "/api/state", "")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleGetTransitions(t *testing.T) {
	f := newFixture(t, 8)
	f.tracker.Transitioned("", state.Wait, "")
	f.tracker.PluginFailed(&plugin.PluginError{Plugin: "camera", Hook: "state_capture_do", Err: errors.New("busy")})

	w := f.do(http.MethodGet, "/api/transitions", "")

	require.Equal(t, http.StatusOK, w.Code)
	var response TransitionsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Transitions, 1)
	assert.Equal(t, state.Wait, response.Transitions[0].To)
	require.Len(t, response.Failures, 1)
	assert.Equal(t, "busy", response.Failures[0].Error)
}

func TestHandleFailSafe(t *testing.T) {
	f := newFixture(t, 8)

	w := f.do(http.MethodPost, "/api/failsafe", "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, f.booth.failsafe.Load())
}

func TestHandlePostEvent(t *testing.T) {
	f := newFixture(t, 1)

	w := f.do(http.MethodPost, "/api/events", `{"kind":"button","name":"capture"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	events := f.queue.Poll()
	require.Len(t, events, 1)
	assert.True(t, events[0].Is(input.KindButton, "capture"))

	w = f.do(http.MethodPost, "/api/events", `{"kind":"button"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.do(http.MethodPost, "/api/events", `{"name":"a"}`)
	w = f.do(http.MethodPost, "/api/events", `{"name":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlePostEventRejectsQuit(t *testing.T) {
	f := newFixture(t, 8)

	w := f.do(http.MethodPost, "/api/events", `{"kind":"quit","name":"q"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.queue.Len())
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, 8)

	w := f.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ok", response["status"])
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, 8)

	w := f.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pibooth_ticks_total")
}

func TestSitemap(t *testing.T) {
	f := newFixture(t, 8)

	w := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/failsafe")
	assert.NotContains(t, w.Body.String(), "/ws", "remote route is only listed when configured")

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html>")
}
