// Package config loads the button-mapping directive file.
// Parsing is pure (an io.Reader in, a Config out); the only filesystem
// access is in Load and the board-revision probe in alias.go.
package config

import (
	"fmt"
	"os"
	"time"
)

// Key is an evdev key code (KEY_* value from linux/input-event-codes.h).
// The zero value means "no key": the line participates in combo detection
// but never emits events of its own.
type Key uint16

// Line is one configured pin. Ground lines are driven low so buttons can
// be wired to an adjacent pin instead of a header ground; they carry no key.
type Line struct {
	Pin    int
	Key    Key
	Ground bool
}

// Combo is a simultaneous multi-pin hold ("Vulcan pinch") mapped to a
// single synthetic key tap. At most one combo is active per configuration.
type Combo struct {
	Pins []int
	Key  Key
}

// Timing collects the state-machine intervals. All are overridable from
// the command line.
type Timing struct {
	Debounce       time.Duration // raw level must hold this long
	ComboHold      time.Duration // full combo held this long fires the key
	RepeatDelay    time.Duration // held key to first repeat
	RepeatInterval time.Duration // first to second repeat
	RepeatStep     time.Duration // acceleration per subsequent repeat
	RepeatFloor    time.Duration // repeat interval never shrinks below this
}

// DefaultTiming returns the stock intervals.
func DefaultTiming() Timing {
	return Timing{
		Debounce:       20 * time.Millisecond,
		ComboHold:      1500 * time.Millisecond,
		RepeatDelay:    500 * time.Millisecond,
		RepeatInterval: 100 * time.Millisecond,
		RepeatStep:     5 * time.Millisecond,
		RepeatFloor:    30 * time.Millisecond,
	}
}

// Config is one parsed configuration. It is never mutated after Parse
// returns; reload builds a replacement.
type Config struct {
	Lines  []Line
	Combo  *Combo
	Timing Timing
}

// Inputs returns the non-ground lines in directive order.
func (c *Config) Inputs() []Line {
	var in []Line
	for _, l := range c.Lines {
		if !l.Ground {
			in = append(in, l)
		}
	}
	return in
}

// Load parses the directive file at path. A missing file is not an error:
// ok is false and the caller keeps whatever configuration it already has.
// Any other open failure is reported the same way, with the error attached
// for logging.
func Load(path string, timing Timing) (cfg Config, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{Timing: timing}, false, nil
		}
		return Config{Timing: timing}, false, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f, timing), true, nil
}
