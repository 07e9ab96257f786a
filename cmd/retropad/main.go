// Command retropad maps GPIO (or I2C port-expander) buttons to a virtual
// keyboard device, so emulators and menus see ordinary keyboard input.
// Mappings live in a flat config file (default /boot/retropad.cfg) that
// hot-reloads on edit or SIGHUP.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/retropad/internal/config"
	"github.com/sweeney/retropad/internal/daemon"
	"github.com/sweeney/retropad/internal/keys"
	"github.com/sweeney/retropad/internal/pins"
)

// configDir is where a bare config filename (or none at all) resolves.
const configDir = "/boot"

func main() {
	chip := flag.String("chip", "gpiochip0", "GPIO character device chip name")
	deviceName := flag.String("device-name", "retropad", "Virtual keyboard device name")
	debounce := flag.Duration("debounce", 20*time.Millisecond, "Button debounce window")
	comboHold := flag.Duration("combo-hold", 1500*time.Millisecond, "Hold time before the combo key fires")
	repeatDelay := flag.Duration("repeat-delay", 500*time.Millisecond, "Key hold time before auto-repeat starts")
	repeatInterval := flag.Duration("repeat-interval", 100*time.Millisecond, "Initial auto-repeat interval")
	expanderAddr := flag.Uint("expander-addr", 0, "MCP23017 I2C address (e.g. 0x26); 0 uses direct GPIO")
	expanderIRQ := flag.Int("expander-irq", 17, "GPIO pin wired to the expander INT output")
	i2cBus := flag.String("i2c", "", "I2C bus name (empty selects the first available)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [config-file]\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(),
			"A bare config filename resolves against %s; default is %s/%s.cfg.\n\n",
			configDir, configDir, progName())
		flag.PrintDefaults()
	}
	flag.Parse()

	timing := config.DefaultTiming()
	timing.Debounce = *debounce
	timing.ComboHold = *comboHold
	timing.RepeatDelay = *repeatDelay
	timing.RepeatInterval = *repeatInterval

	opts := daemon.Options{
		ConfigPath: configPath(flag.Arg(0)),
		Timing:     timing,
		Sink:       keys.NewUinputSink(*deviceName),
	}
	if config.IsRevision1() {
		log.Printf("revision-1 board detected, aliasing pins")
		opts.Aliases = config.Revision1Aliases
	}
	if *expanderAddr != 0 {
		addr := uint16(*expanderAddr)
		opts.NewBank = func() pins.Bank {
			return pins.NewExpanderBank(*i2cBus, addr, *chip, *expanderIRQ)
		}
	} else {
		opts.NewBank = func() pins.Bank { return pins.NewGPIOBank(*chip) }
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.New(opts).Run(sig); err != nil {
		log.Fatalf("fatal: %v. Try 'sudo %s'.", err, os.Args[0])
	}
	fmt.Println("Done.")
}

// configPath resolves the optional positional argument: absolute (or
// relative-with-path) names are used as given, a bare filename lands in
// the default directory, and no argument means <dir>/<progname>.cfg.
func configPath(arg string) string {
	if arg == "" {
		return filepath.Join(configDir, progName()+".cfg")
	}
	if strings.ContainsRune(arg, '/') {
		return arg
	}
	return filepath.Join(configDir, arg)
}

func progName() string {
	return filepath.Base(os.Args[0])
}
