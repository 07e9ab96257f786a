//go:build linux

package keys

import (
	"fmt"

	evdev "github.com/holoplot/go-evdev"

	"github.com/sweeney/retropad/internal/config"
)

// UinputSink is a Sink backed by a kernel uinput device. Downstream
// readers (emulators, menu front-ends) see it as an ordinary keyboard.
type UinputSink struct {
	name       string
	registered map[evdev.EvCode]bool
	order      []evdev.EvCode
	dev        *evdev.InputDevice
	path       string
}

// NewUinputSink returns a sink whose device will carry the given name.
func NewUinputSink(name string) *UinputSink {
	return &UinputSink{
		name:       name,
		registered: make(map[evdev.EvCode]bool),
	}
}

func (s *UinputSink) Register(k config.Key) {
	if s.dev != nil {
		return
	}
	code := evdev.EvCode(k)
	if s.registered[code] {
		return
	}
	s.registered[code] = true
	s.order = append(s.order, code)
}

// Create builds the uinput device and resolves its event node. Requires
// the uinput module; failure here is fatal to setup.
func (s *UinputSink) Create() error {
	if s.dev != nil {
		return nil
	}
	dev, err := evdev.CreateDevice(s.name, evdev.InputID{
		BusType: 0x03, // BUS_USB
		Vendor:  0x01,
		Product: 0x01,
		Version: 1,
	}, map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: append([]evdev.EvCode(nil), s.order...),
	})
	if err != nil {
		return fmt.Errorf("create uinput device: %w", err)
	}
	s.dev = dev
	s.path = s.resolveEventPath()
	return nil
}

// resolveEventPath scans the input device list for the node whose name
// matches ours. The device was just created, so it is normally the last
// match; discovery failure is tolerated.
func (s *UinputSink) resolveEventPath() string {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return ""
	}
	found := ""
	for _, p := range paths {
		if p.Name == s.name {
			found = p.Path
		}
	}
	return found
}

func (s *UinputSink) Emit(k config.Key, value int32) error {
	if s.dev == nil {
		return fmt.Errorf("emit before create")
	}
	return s.dev.WriteOne(&evdev.InputEvent{
		Type:  evdev.EV_KEY,
		Code:  evdev.EvCode(k),
		Value: value,
	})
}

func (s *UinputSink) Flush() error {
	if s.dev == nil {
		return fmt.Errorf("flush before create")
	}
	return s.dev.WriteOne(&evdev.InputEvent{
		Type:  evdev.EV_SYN,
		Code:  evdev.SYN_REPORT,
		Value: 0,
	})
}

func (s *UinputSink) EventPath() string { return s.path }

// Destroy releases the device and forgets all registrations so a reload
// starts from a clean slate. Safe on a sink that never created a device
// and on repeated calls.
func (s *UinputSink) Destroy() error {
	var err error
	if s.dev != nil {
		err = s.dev.Close()
		s.dev = nil
	}
	s.path = ""
	s.registered = make(map[evdev.EvCode]bool)
	s.order = nil
	return err
}
