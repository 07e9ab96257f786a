//go:build linux

package pins

import (
	"fmt"
	"log"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/retropad/internal/config"
)

// GPIOBank drives lines on the Pi's GPIO header through the Linux GPIO
// character device.
type GPIOBank struct {
	chipName string
	chip     *gpiocdev.Chip
	lines    []*gpiocdev.Line
	ground   []bool
}

// NewGPIOBank returns a bank on the named chip ("gpiochip0" on a Pi).
func NewGPIOBank(chipName string) *GPIOBank {
	return &GPIOBank{chipName: chipName}
}

// Activate claims every configured line. Ground lines are requested as
// outputs driven low; inputs get the internal pull-up and both-edge event
// reporting. Events may start arriving before Activate returns.
func (b *GPIOBank) Activate(lines []config.Line, events chan<- Event) error {
	chip, err := gpiocdev.NewChip(b.chipName)
	if err != nil {
		return fmt.Errorf("open gpio chip %s: %w", b.chipName, err)
	}
	b.chip = chip

	for i, l := range lines {
		var line *gpiocdev.Line
		if l.Ground {
			line, err = chip.RequestLine(l.Pin, gpiocdev.AsOutput(0))
		} else {
			idx := i
			line, err = chip.RequestLine(l.Pin,
				gpiocdev.AsInput,
				gpiocdev.WithPullUp,
				gpiocdev.WithBothEdges,
				gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
					forward(events, Event{
						Line:    idx,
						Pressed: evt.Type == gpiocdev.LineEventFallingEdge,
					})
				}))
		}
		if err != nil {
			b.Close()
			return fmt.Errorf("request pin %d: %w", l.Pin, err)
		}
		b.lines = append(b.lines, line)
		b.ground = append(b.ground, l.Ground)
	}
	return nil
}

// Levels reads the current pressed state of every claimed line. Grounds
// report false.
func (b *GPIOBank) Levels() ([]bool, error) {
	levels := make([]bool, len(b.lines))
	for i, line := range b.lines {
		if b.ground[i] {
			continue
		}
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read pin level: %w", err)
		}
		levels[i] = v == 0 // pulled up; low means pressed
	}
	return levels, nil
}

// Close releases all claimed lines, disabling the pull-ups and restoring
// grounds to inputs first so nothing leaks into the next activation.
// Reconfigure failures are ignored; lines may be partially set up.
func (b *GPIOBank) Close() error {
	var firstErr error
	for i, line := range b.lines {
		if b.ground[i] {
			line.Reconfigure(gpiocdev.AsInput)
		} else {
			line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithBiasDisabled)
		}
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close line: %w", err)
		}
	}
	b.lines = nil
	b.ground = nil
	if b.chip != nil {
		if err := b.chip.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close chip: %w", err)
		}
		b.chip = nil
	}
	return firstErr
}

// forward delivers an event without ever blocking the handler goroutine.
// A full channel means the main loop is mid-reload; the dropped edge is
// re-synchronized by the next debounce cycle.
func forward(events chan<- Event, ev Event) {
	select {
	case events <- ev:
	default:
		log.Printf("pins: dropping event for line %d (channel full)", ev.Line)
	}
}
