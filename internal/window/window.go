// Package window is the booth's terminal display. It turns terminal key
// and resize events into input events and shows the active state on a
// status line. Plugins receive it as the window handle of their hooks.
package window

import (
	"strings"
	"sync"
	"time"

	"pibooth/pkg/input"
	"pibooth/pkg/state"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
)

// Window wraps a tcell screen.
type Window struct {
	screen  tcell.Screen
	queue   *input.Queue
	logger  *zap.Logger
	quitKey string

	mu      sync.Mutex
	state   state.Name
	message string
	done    chan struct{}
}

// New creates a window drawing on screen and pushing events to queue.
// quitKey names the key that produces a quit event; Ctrl-C always does.
func New(screen tcell.Screen, queue *input.Queue, quitKey string, logger *zap.Logger) *Window {
	return &Window{
		screen:  screen,
		queue:   queue,
		logger:  logger.Named("window"),
		quitKey: quitKey,
		done:    make(chan struct{}),
	}
}

// NewTerminal creates a window on the controlling terminal.
func NewTerminal(queue *input.Queue, quitKey string, logger *zap.Logger) (*Window, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return New(screen, queue, quitKey, logger), nil
}

// Init initialises the screen and starts listening for terminal events.
func (w *Window) Init() error {
	if err := w.screen.Init(); err != nil {
		return err
	}
	w.screen.HideCursor()
	w.draw()
	go w.listen()
	return nil
}

// Close restores the terminal. It waits for the listener to exit.
func (w *Window) Close() {
	w.screen.Fini()
	<-w.done
}

// Size returns the screen size in cells.
func (w *Window) Size() (int, int) {
	return w.screen.Size()
}

// State returns the state shown on the status line.
func (w *Window) State() state.Name {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SetMessage shows text below the status line.
func (w *Window) SetMessage(text string) {
	w.mu.Lock()
	w.message = text
	w.mu.Unlock()
	w.draw()
}

// Transitioned shows the new state and clears the message.
func (w *Window) Transitioned(_, to state.Name, _ string) {
	w.mu.Lock()
	w.state = to
	w.message = ""
	w.mu.Unlock()
	w.draw()
}

// TickCompleted does nothing; the window only redraws on change.
func (w *Window) TickCompleted(state.Name, time.Duration) {}

func (w *Window) listen() {
	defer close(w.done)
	for {
		ev := w.screen.PollEvent()
		if ev == nil {
			return
		}

		event, ok := w.translate(ev)
		if !ok {
			continue
		}
		if event.Kind == input.KindResize {
			w.screen.Sync()
			w.draw()
		}
		if err := w.queue.Push(event); err != nil {
			w.logger.Warn("Dropping window event", zap.String("name", event.Name), zap.Error(err))
		}
	}
}

func (w *Window) translate(ev tcell.Event) (input.Event, bool) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		name := KeyName(ev)
		if ev.Key() == tcell.KeyCtrlC || (w.quitKey != "" && name == w.quitKey) {
			return input.Event{Kind: input.KindQuit, Name: name, At: ev.When()}, true
		}
		return input.Event{Kind: input.KindKey, Name: name, At: ev.When()}, true
	case *tcell.EventResize:
		width, height := ev.Size()
		return input.Event{Kind: input.KindResize, Name: "resize", Value: [2]int{width, height}, At: ev.When()}, true
	}
	return input.Event{}, false
}

// KeyName returns the rune for printable keys and the lower-cased tcell
// name otherwise, e.g. "p", "enter", "esc".
func KeyName(ev *tcell.EventKey) string {
	if ev.Key() == tcell.KeyRune {
		return string(ev.Rune())
	}
	if name, ok := tcell.KeyNames[ev.Key()]; ok {
		return strings.ToLower(name)
	}
	return ev.Name()
}

func (w *Window) draw() {
	w.mu.Lock()
	status := " pibooth | " + string(w.state)
	message := w.message
	w.mu.Unlock()

	width, _ := w.screen.Size()
	bar := tcell.StyleDefault.Reverse(true)
	w.screen.Clear()
	for x := 0; x < width; x++ {
		w.screen.SetContent(x, 0, ' ', nil, bar)
	}
	drawText(w.screen, 0, 0, status, bar)
	drawText(w.screen, 1, 2, message, tcell.StyleDefault)
	w.screen.Show()
}

func drawText(s tcell.Screen, x, y int, text string, style tcell.Style) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
