//go:build !linux

package pins

import (
	"errors"

	"github.com/sweeney/retropad/internal/config"
)

var errUnsupported = errors.New("pins: not supported on this platform (requires Linux)")

// GPIOBank is not available on non-Linux platforms.
type GPIOBank struct{}

func NewGPIOBank(chipName string) *GPIOBank { return &GPIOBank{} }

func (b *GPIOBank) Activate([]config.Line, chan<- Event) error { return errUnsupported }
func (b *GPIOBank) Levels() ([]bool, error)                    { return nil, errUnsupported }
func (b *GPIOBank) Close() error                               { return nil }

// ExpanderBank is not available on non-Linux platforms.
type ExpanderBank struct{}

func NewExpanderBank(busName string, addr uint16, gpioChip string, irqPin int) *ExpanderBank {
	return &ExpanderBank{}
}

func (b *ExpanderBank) Activate([]config.Line, chan<- Event) error { return errUnsupported }
func (b *ExpanderBank) Levels() ([]bool, error)                    { return nil, errUnsupported }
func (b *ExpanderBank) Close() error                               { return nil }
