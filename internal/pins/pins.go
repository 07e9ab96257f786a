// Package pins activates configured button lines and reports edge events.
// Two hardware banks exist: the Pi's own GPIO header (gpiocdev character
// device) and an MCP23017 port expander on I2C. The fake bank allows
// testing without hardware.
package pins

import "github.com/sweeney/retropad/internal/config"

// Event is one raw level change on an activated input line. Line indexes
// into the slice passed to Activate; Pressed is the logical level
// (buttons wire to ground through a pull-up, so low means pressed).
type Event struct {
	Line    int
	Pressed bool
}

// Bank claims and releases a set of pins.
type Bank interface {
	// Activate configures every line: grounds as driven-low outputs,
	// the rest as pull-up inputs with both-edge reporting delivered to
	// events. On error everything already claimed is released.
	Activate(lines []config.Line, events chan<- Event) error

	// Levels returns the current pressed state of each activated line,
	// indexed like the Activate slice (false for grounds). Used to seed
	// debounce state so startup emits nothing.
	Levels() ([]bool, error)

	// Close releases every claimed resource, disabling pull-ups and
	// returning grounds to inputs. Safe to call repeatedly and on a
	// partially-activated bank.
	Close() error
}
