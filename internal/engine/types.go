// Package engine is the debounce/repeat/combo state machine. It is pure:
// no hardware, no goroutines, no clock of its own. Time always arrives as
// a time.Time parameter, so tests drive any timeline they like.
package engine

import "github.com/sweeney/retropad/internal/config"

// Action is one key event to synthesize. Sync asks the caller to flush
// immediately after this event instead of batching it with the rest of
// the wake (the combo tap needs its halves separately visible).
type Action struct {
	Key   config.Key
	Value int32
	Sync  bool
}

// Wait names the single live timeout class. Exactly one is armed at any
// instant, chosen by priority: debounce > combo hold > repeat > idle.
type Wait int

const (
	WaitNone Wait = iota
	WaitDebounce
	WaitCombo
	WaitRepeat
)

func (w Wait) String() string {
	switch w {
	case WaitNone:
		return "idle"
	case WaitDebounce:
		return "debounce"
	case WaitCombo:
		return "combo"
	case WaitRepeat:
		return "repeat"
	}
	return "unknown"
}

// Counts tallies synthesized events since the engine was built.
type Counts struct {
	Presses  int
	Releases int
	Repeats  int
	Combos   int
}

// lineState tracks one configured line. emitted is the debounced level
// last reported downstream; raw follows the hardware immediately.
type lineState struct {
	key     config.Key
	ground  bool
	raw     bool
	emitted bool
}
