//go:build !linux

package keys

import (
	"errors"

	"github.com/sweeney/retropad/internal/config"
)

var errUnsupported = errors.New("keys: uinput requires Linux")

// UinputSink is not available on non-Linux platforms.
type UinputSink struct{}

func NewUinputSink(name string) *UinputSink { return &UinputSink{} }

func (s *UinputSink) Register(config.Key)          {}
func (s *UinputSink) Create() error                { return errUnsupported }
func (s *UinputSink) Emit(config.Key, int32) error { return errUnsupported }
func (s *UinputSink) Flush() error                 { return errUnsupported }
func (s *UinputSink) EventPath() string            { return "" }
func (s *UinputSink) Destroy() error               { return nil }
