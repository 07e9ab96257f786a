//go:build linux

package pins

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sweeney/retropad/internal/config"
)

// MCP23017 registers in bank 0 (interleaved) mode. The B-side register of
// each pair sits at addr+1.
const (
	regIODIRA   = 0x00 // direction: 1 = input
	regIPOLA    = 0x02 // input polarity: 0 = normal
	regGPINTENA = 0x04 // interrupt-on-change enable
	regIOCON    = 0x0a // configuration
	regGPPUA    = 0x0c // pull-up enable
	regINTCAPA  = 0x10 // level captured at interrupt (read clears)
	regGPIOA    = 0x12 // current level (read clears interrupt)
	regOLATA    = 0x14 // output latch
)

// iocon value: bank 0, mirrored INT pins, sequential addressing,
// open-drain interrupt output.
const ioconMode = 0x44

// ExpanderBank drives button lines on an MCP23017 port expander. Pin
// numbers 0-7 are port A, 8-15 port B. The chip's INT output is wired to
// a regular GPIO pin; a falling edge there triggers a level-register read
// whose diff against the cached state yields events (the read doubles as
// the interrupt re-arm).
type ExpanderBank struct {
	busName  string
	addr     uint16
	chipName string
	irqPin   int

	bus  i2c.BusCloser
	dev  *i2c.Dev
	chip *gpiocdev.Chip
	irq  *gpiocdev.Line

	mu       sync.Mutex
	byPin    [16]int // pin -> line index, -1 when unused
	nlines   int
	inputs   uint16 // bitmask of input pins
	state    uint16 // last observed level bits
	events   chan<- Event
	activate bool
}

// NewExpanderBank returns a bank for the chip at addr (0x20-0x27) on the
// first available I2C bus, with its INT line on irqPin of gpioChip.
func NewExpanderBank(busName string, addr uint16, gpioChip string, irqPin int) *ExpanderBank {
	return &ExpanderBank{busName: busName, addr: addr, chipName: gpioChip, irqPin: irqPin}
}

func (b *ExpanderBank) Activate(lines []config.Line, events chan<- Event) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph init: %w", err)
	}
	bus, err := i2creg.Open(b.busName)
	if err != nil {
		return fmt.Errorf("open i2c bus: %w", err)
	}
	b.bus = bus
	b.dev = &i2c.Dev{Bus: bus, Addr: b.addr}

	for i := range b.byPin {
		b.byPin[i] = -1
	}
	b.nlines = len(lines)
	var inputs, grounds uint16
	for i, l := range lines {
		if l.Pin > 15 {
			b.Close()
			return fmt.Errorf("pin %d beyond expander bank (0-15)", l.Pin)
		}
		bit := uint16(1) << uint(l.Pin)
		if l.Ground {
			grounds |= bit
		} else {
			inputs |= bit
			b.byPin[l.Pin] = i
		}
	}
	b.inputs = inputs

	if err := b.setup(inputs, grounds); err != nil {
		b.Close()
		return fmt.Errorf("expander setup: %w", err)
	}

	// Prime the level cache before interrupts can fire.
	state, err := b.readLevels()
	if err != nil {
		b.Close()
		return fmt.Errorf("expander read: %w", err)
	}
	b.state = state
	b.events = events
	b.activate = true

	chip, err := gpiocdev.NewChip(b.chipName)
	if err != nil {
		b.Close()
		return fmt.Errorf("open gpio chip %s: %w", b.chipName, err)
	}
	b.chip = chip
	irq, err := chip.RequestLine(b.irqPin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { b.onInterrupt() }))
	if err != nil {
		b.Close()
		return fmt.Errorf("request expander irq pin %d: %w", b.irqPin, err)
	}
	b.irq = irq
	return nil
}

// setup writes the full register block: directions, normal polarity,
// interrupt-on-change and pull-ups on inputs, grounds latched low.
func (b *ExpanderBank) setup(inputs, grounds uint16) error {
	// Force bank 0 first. If the chip is in bank 1, its IOCON lives at
	// 0x05; writing zero there switches modes and is harmless otherwise.
	if err := b.write8(0x05, 0x00); err != nil {
		return err
	}
	if err := b.write8(regIOCON, ioconMode); err != nil {
		return err
	}
	steps := []struct {
		reg byte
		val uint16
	}{
		{regOLATA, 0},         // grounds drive low
		{regIODIRA, ^grounds}, // grounds out, everything else in
		{regIPOLA, 0},         // no inversion
		{regGPINTENA, inputs}, // interrupt on change
		{regGPPUA, inputs},    // pull-ups on inputs only
	}
	for _, s := range steps {
		if err := b.write16(s.reg, s.val); err != nil {
			return err
		}
	}
	return nil
}

// onInterrupt runs on the gpiocdev handler goroutine.
func (b *ExpanderBank) onInterrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.activate {
		return
	}
	state, err := b.readLevels()
	if err != nil {
		// Transient bus error; the next edge re-reads.
		return
	}
	changed := (state ^ b.state) & b.inputs
	b.state = state
	for pin := 0; pin < 16; pin++ {
		bit := uint16(1) << uint(pin)
		if changed&bit == 0 || b.byPin[pin] < 0 {
			continue
		}
		forward(b.events, Event{
			Line:    b.byPin[pin],
			Pressed: state&bit == 0, // pulled up; low means pressed
		})
	}
}

func (b *ExpanderBank) Levels() ([]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.readLevels()
	if err != nil {
		return nil, fmt.Errorf("expander read: %w", err)
	}
	b.state = state

	levels := make([]bool, b.nlines)
	for pin, idx := range b.byPin {
		if idx < 0 {
			continue
		}
		levels[idx] = state&(uint16(1)<<uint(pin)) == 0
	}
	return levels, nil
}

// Close restores the chip to all-input with pull-ups and interrupts off,
// then releases the IRQ line and the bus. Safe on a partial activation.
func (b *ExpanderBank) Close() error {
	b.mu.Lock()
	b.activate = false
	b.mu.Unlock()

	var firstErr error
	if b.irq != nil {
		if err := b.irq.Close(); err != nil {
			firstErr = fmt.Errorf("close irq line: %w", err)
		}
		b.irq = nil
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close chip: %w", err)
		}
		b.chip = nil
	}
	if b.dev != nil {
		b.write16(regGPINTENA, 0)
		b.write16(regGPPUA, 0)
		b.write16(regIODIRA, 0xffff)
		b.dev = nil
	}
	if b.bus != nil {
		if err := b.bus.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close i2c bus: %w", err)
		}
		b.bus = nil
	}
	return firstErr
}

func (b *ExpanderBank) readLevels() (uint16, error) {
	var buf [2]byte
	if err := b.dev.Tx([]byte{regGPIOA}, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

func (b *ExpanderBank) write8(reg, val byte) error {
	return b.dev.Tx([]byte{reg, val}, nil)
}

func (b *ExpanderBank) write16(reg byte, val uint16) error {
	return b.dev.Tx([]byte{reg, byte(val), byte(val >> 8)}, nil)
}
