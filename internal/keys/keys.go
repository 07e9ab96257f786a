// Package keys synthesizes keyboard input through a virtual device.
// The real implementation creates a uinput device; the fake records
// emissions for tests.
package keys

import "github.com/sweeney/retropad/internal/config"

// Event values, matching the kernel's input_event convention.
const (
	Release int32 = 0
	Press   int32 = 1
	Repeat  int32 = 2
)

// Sink is a virtual keyboard. Register every key before Create; Destroy
// must be safe on a sink in any state, including repeated calls.
type Sink interface {
	// Register adds a key code to the device's capability set.
	// Idempotent; has no effect after Create.
	Register(k config.Key)

	// Create builds the OS-visible device from the registered keys.
	Create() error

	// Emit queues one key event. Events are not visible downstream
	// until Flush sends the synchronization marker.
	Emit(k config.Key, value int32) error

	// Flush sends a SYN_REPORT terminating the current batch.
	Flush() error

	// EventPath best-effort resolves the /dev/input/eventX node backing
	// the created device. Empty when discovery fails; consumers that
	// need a node can then fall back to the device handle itself.
	EventPath() string

	// Destroy tears the device down and clears registrations.
	Destroy() error
}
