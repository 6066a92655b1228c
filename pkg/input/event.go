// Package input carries the per-tick batch of input events from the window
// and remote controls to the state machine. The machine never interprets
// event contents; it only hands each batch to the hooks of one tick.
package input

import (
	"errors"
	"sync"
	"time"
)

// Kind classifies an event by the device that produced it.
type Kind string

const (
	KindKey    Kind = "key"
	KindButton Kind = "button"
	KindRemote Kind = "remote"
	KindResize Kind = "resize"
	KindQuit   Kind = "quit"
)

// Event is a single input event.
type Event struct {
	Kind  Kind      `json:"kind"`
	Name  string    `json:"name"`
	Value any       `json:"value,omitempty"`
	At    time.Time `json:"at"`
}

// Is reports whether the event has the given kind and name.
func (e Event) Is(kind Kind, name string) bool {
	return e.Kind == kind && e.Name == name
}

// Find returns the first event of the batch matching kind and name.
func Find(events []Event, kind Kind, name string) (Event, bool) {
	for _, e := range events {
		if e.Is(kind, name) {
			return e, true
		}
	}
	return Event{}, false
}

// Source supplies one batch of events per tick.
type Source interface {
	Poll() []Event
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() []Event

func (f SourceFunc) Poll() []Event { return f() }

// ErrQueueFull is returned by Push when the pending batch is at capacity.
var ErrQueueFull = errors.New("event queue full")

// DefaultQueueCapacity bounds the events buffered between two ticks.
const DefaultQueueCapacity = 256

// Queue buffers events pushed by producer goroutines until the next Poll.
type Queue struct {
	mu       sync.Mutex
	batch    []Event
	capacity int
	now      func() time.Time
}

// NewQueue creates a queue holding at most capacity events between polls.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		batch:    make([]Event, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Push appends an event to the pending batch. A zero At is stamped.
func (q *Queue) Push(e Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.batch) >= q.capacity {
		return ErrQueueFull
	}
	if e.At.IsZero() {
		e.At = q.now()
	}
	q.batch = append(q.batch, e)
	return nil
}

// Poll atomically takes the pending batch.
func (q *Queue) Poll() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := q.batch
	q.batch = make([]Event, 0, q.capacity)
	return events
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batch)
}

// Merge polls each source in order and concatenates their batches.
func Merge(sources ...Source) Source {
	return SourceFunc(func() []Event {
		var events []Event
		for _, src := range sources {
			if src == nil {
				continue
			}
			events = append(events, src.Poll()...)
		}
		return events
	})
}
