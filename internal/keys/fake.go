package keys

import (
	"errors"

	"github.com/sweeney/retropad/internal/config"
)

// Emitted is one recorded Emit call.
type Emitted struct {
	Key   config.Key
	Value int32
}

// FakeSink records sink activity for tests.
type FakeSink struct {
	// Registered holds key codes in registration order, duplicates
	// already dropped.
	Registered []config.Key

	// Events holds every Emit call. FlushMarks holds the index into
	// Events at which each Flush occurred.
	Events     []Emitted
	FlushMarks []int

	// CreateError, if set, is returned by Create.
	CreateError error

	// Path is returned by EventPath.
	Path string

	Created   bool
	Destroyed int
}

// NewFakeSink creates an empty fake sink.
func NewFakeSink() *FakeSink { return &FakeSink{} }

func (f *FakeSink) Register(k config.Key) {
	if f.Created {
		return
	}
	for _, r := range f.Registered {
		if r == k {
			return
		}
	}
	f.Registered = append(f.Registered, k)
}

func (f *FakeSink) Create() error {
	if f.CreateError != nil {
		return f.CreateError
	}
	f.Created = true
	return nil
}

func (f *FakeSink) Emit(k config.Key, value int32) error {
	if !f.Created {
		return errors.New("emit before create")
	}
	f.Events = append(f.Events, Emitted{Key: k, Value: value})
	return nil
}

func (f *FakeSink) Flush() error {
	if !f.Created {
		return errors.New("flush before create")
	}
	f.FlushMarks = append(f.FlushMarks, len(f.Events))
	return nil
}

func (f *FakeSink) EventPath() string { return f.Path }

func (f *FakeSink) Destroy() error {
	f.Created = false
	f.Destroyed++
	f.Registered = nil
	return nil
}

// Reset clears recorded events between test phases without touching
// registration state.
func (f *FakeSink) Reset() {
	f.Events = nil
	f.FlushMarks = nil
}
