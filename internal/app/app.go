// Package app holds the mutable application handle shared by plugins
// through the hook context: the current session and the booth counters.
package app

import (
	"sort"
	"sync"
	"time"
)

// Picture is the default picture factory: what the processing step
// assembles from the captures of one session.
type Picture struct {
	Layout   int         `json:"layout"`
	Captures []time.Time `json:"captures"`
	Title    string      `json:"title,omitempty"`
}

// Status is a copy of the handle for reporting.
type Status struct {
	Choices  []int          `json:"choices"`
	Chosen   int            `json:"chosen"`
	Taken    int            `json:"taken"`
	Picture  bool           `json:"picture_ready"`
	Print    bool           `json:"print_requested"`
	Counters map[string]int `json:"counters"`
}

// App is safe for concurrent use: hooks mutate it on the loop goroutine
// while the API reads it.
type App struct {
	mu       sync.Mutex
	choices  []int
	chosen   int
	captures []time.Time
	picture  any
	print    bool
	counters map[string]int
}

// New creates a handle offering the given capture choices.
func New(choices []int) *App {
	return &App{
		choices:  append([]int(nil), choices...),
		counters: make(map[string]int),
	}
}

// Choices returns the capture choices.
func (a *App) Choices() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.choices...)
}

// Reset starts a new session. Counters are kept.
func (a *App) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chosen = 0
	a.captures = nil
	a.picture = nil
	a.print = false
}

// Choose selects the number of captures of the session.
func (a *App) Choose(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chosen = n
}

// Chosen returns the selected number of captures, 0 if none.
func (a *App) Chosen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chosen
}

// ChosenIndex returns the index of the selected choice, -1 if none.
func (a *App) ChosenIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, n := range a.choices {
		if n == a.chosen {
			return i
		}
	}
	return -1
}

// AddCapture records a capture and returns how many were taken.
func (a *App) AddCapture(at time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.captures = append(a.captures, at)
	return len(a.captures)
}

// Captures returns the capture times of the session.
func (a *App) Captures() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.captures...)
}

// Remaining returns how many captures are left to take.
func (a *App) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if left := a.chosen - len(a.captures); left > 0 {
		return left
	}
	return 0
}

// SetPicture stores the assembled picture.
func (a *App) SetPicture(p any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.picture = p
}

// Picture returns the assembled picture, nil before processing.
func (a *App) Picture() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.picture
}

// RequestPrint marks the picture of the session for printing.
func (a *App) RequestPrint() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.print = true
}

// PrintRequested reports whether the picture was sent to print.
func (a *App) PrintRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.print
}

// Inc increments a counter and returns its new value.
func (a *App) Inc(counter string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters[counter]++
	return a.counters[counter]
}

// Count returns a counter value.
func (a *App) Count(counter string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[counter]
}

// SetCounters replaces all counters.
func (a *App) SetCounters(values map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters = make(map[string]int, len(values))
	for k, v := range values {
		a.counters[k] = v
	}
}

// CounterNames returns the counter names, sorted.
func (a *App) CounterNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.counters))
	for k := range a.counters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Status returns a copy of the handle.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	counters := make(map[string]int, len(a.counters))
	for k, v := range a.counters {
		counters[k] = v
	}
	return Status{
		Choices:  append([]int(nil), a.choices...),
		Chosen:   a.chosen,
		Taken:    len(a.captures),
		Picture:  a.picture != nil,
		Print:    a.print,
		Counters: counters,
	}
}
