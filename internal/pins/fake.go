package pins

import (
	"errors"
	"sync"

	"github.com/sweeney/retropad/internal/config"
)

// FakeBank is a test double. Tests seed StartLevels, call Activate, then
// inject edges with Press/Release. Safe for use from a test goroutine
// while the daemon loop runs.
type FakeBank struct {
	// StartLevels maps line index to initial pressed state. Missing
	// entries read as released.
	StartLevels map[int]bool

	// ActivateError, if set, is returned by Activate.
	ActivateError error

	mu     sync.Mutex
	lines  []config.Line
	levels []bool
	events chan<- Event
	closed int
}

// NewFakeBank creates an inactive fake bank.
func NewFakeBank() *FakeBank {
	return &FakeBank{StartLevels: make(map[int]bool)}
}

func (f *FakeBank) Activate(lines []config.Line, events chan<- Event) error {
	if f.ActivateError != nil {
		return f.ActivateError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append([]config.Line(nil), lines...)
	f.levels = make([]bool, len(lines))
	for i := range lines {
		f.levels[i] = f.StartLevels[i]
	}
	f.events = events
	return nil
}

func (f *FakeBank) Levels() ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levels == nil {
		return nil, errors.New("fake bank not activated")
	}
	return append([]bool(nil), f.levels...), nil
}

func (f *FakeBank) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.levels = nil
	f.events = nil
	return nil
}

// Lines returns what Activate received.
func (f *FakeBank) Lines() []config.Line {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]config.Line(nil), f.lines...)
}

// Closed reports how many times Close was called.
func (f *FakeBank) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Press injects a falling edge on the indexed line.
func (f *FakeBank) Press(line int) { f.edge(line, true) }

// Release injects a rising edge on the indexed line.
func (f *FakeBank) Release(line int) { f.edge(line, false) }

func (f *FakeBank) edge(line int, pressed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levels == nil || line >= len(f.levels) {
		return
	}
	f.levels[line] = pressed
	if f.events != nil {
		f.events <- Event{Line: line, Pressed: pressed}
	}
}
