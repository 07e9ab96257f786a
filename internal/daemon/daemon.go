// Package daemon owns the running pipeline: configuration, pin bank,
// virtual keyboard, and the state-machine engine, plus the single select
// loop that multiplexes line events, timeouts, signals, and config-file
// changes. Hot reload replaces the pipeline wholesale; nothing is mutated
// in place.
package daemon

import (
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/retropad/internal/config"
	"github.com/sweeney/retropad/internal/engine"
	"github.com/sweeney/retropad/internal/keys"
	"github.com/sweeney/retropad/internal/pins"
	"github.com/sweeney/retropad/internal/watch"
)

// eventBuffer sizes the per-load line event channel. Edge handlers never
// block on it; a burst beyond this is dropped and re-synchronized by the
// next debounce cycle.
const eventBuffer = 64

// comboPace separates the synthesized combo press from its release.
// Some consumers drop the tap entirely if the halves arrive back-to-back.
const comboPace = 10 * time.Millisecond

// Options configures a Daemon.
type Options struct {
	ConfigPath string
	Timing     config.Timing

	// Aliases remaps pins after parsing (board-revision compatibility).
	// Nil means no remapping.
	Aliases map[int]int

	// NewBank builds a fresh pin bank for each load cycle.
	NewBank func() pins.Bank

	// Sink is the virtual keyboard. It lives for the process; its
	// device is destroyed and recreated across reloads.
	Sink keys.Sink
}

// Daemon is the single owner of all mutable pipeline state. Every field
// is touched only from the Run goroutine.
type Daemon struct {
	opts Options

	cfg     config.Config
	haveCfg bool
	bank    pins.Bank
	events  chan pins.Event
	eng     *engine.Engine

	reloads int
	totals  engine.Counts
	started time.Time
}

// New creates a daemon; nothing is acquired until Run.
func New(opts Options) *Daemon {
	return &Daemon{opts: opts}
}

// Run loads the pipeline and blocks in the event loop until a terminating
// signal arrives on sig (SIGHUP instead forces a reload). It returns nil
// after a clean teardown; any error is a fatal setup failure, reported
// after best-effort cleanup.
func (d *Daemon) Run(sig <-chan os.Signal) error {
	d.started = time.Now()

	watcher, err := watch.New(d.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer watcher.Close()

	if err := d.load(); err != nil {
		d.unload()
		return err
	}
	defer d.unload()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		// Arm the one live timeout, if any.
		var timerC <-chan time.Time
		if to, ok := d.eng.NextTimeout(time.Now()); ok {
			timer.Reset(to)
			timerC = timer.C
		}
		fired := false

		select {
		case ev := <-d.events:
			// Drain every ready line event before any timeout
			// logic; raw state only, no emission here.
			now := time.Now()
			d.eng.RawChange(ev.Line, ev.Pressed, now)
			d.drainEvents(now)

		case <-timerC:
			fired = true
			d.emit(d.eng.Expire(time.Now()))

		case s := <-sig:
			if s == syscall.SIGHUP {
				log.Printf("received SIGHUP, reloading")
				if err := d.reload(); err != nil {
					return err
				}
			} else {
				log.Printf("received %v, shutting down", s)
				d.logSummary()
				return nil
			}

		case ev := <-watcher.Events():
			dec := watcher.Handle(ev)
			// Editors and the doubled file/directory watches can
			// produce several notifications per edit; coalesce.
			for {
				more := false
				select {
				case ev := <-watcher.Events():
					if d2 := watcher.Handle(ev); d2 > dec {
						dec = d2
					}
					more = true
				default:
				}
				if !more {
					break
				}
			}
			switch dec {
			case watch.Reload:
				log.Printf("config change detected, reloading")
				if err := d.reload(); err != nil {
					return err
				}
			case watch.FileGone:
				log.Printf("config file removed; keeping current configuration")
			}

		case err := <-watcher.Errors():
			log.Printf("watch error: %v", err)
		}

		if timerC != nil && !fired && !timer.Stop() {
			<-timer.C
		}
	}
}

// load builds a complete pipeline from the config file. A missing file is
// non-fatal and keeps the previously loaded configuration; any hardware
// or device failure is fatal to the caller.
func (d *Daemon) load() error {
	cfg, ok, err := config.Load(d.opts.ConfigPath, d.opts.Timing)
	if err != nil {
		log.Printf("config: %v", err)
	}
	if ok {
		config.ApplyAliases(&cfg, d.opts.Aliases)
		d.cfg = cfg
		d.haveCfg = true
	} else if d.haveCfg {
		log.Printf("config %s missing, keeping previous configuration", d.opts.ConfigPath)
	} else {
		log.Printf("config %s missing, starting with no mappings", d.opts.ConfigPath)
		d.cfg = cfg
	}

	d.events = make(chan pins.Event, eventBuffer)
	d.bank = d.opts.NewBank()
	if err := d.bank.Activate(d.cfg.Lines, d.events); err != nil {
		return fmt.Errorf("activate pins: %w", err)
	}

	for _, l := range d.cfg.Lines {
		if !l.Ground && l.Key != 0 {
			d.opts.Sink.Register(l.Key)
		}
	}
	if d.cfg.Combo != nil {
		d.opts.Sink.Register(d.cfg.Combo.Key)
	}
	if err := d.opts.Sink.Create(); err != nil {
		return fmt.Errorf("virtual keyboard: %w", err)
	}
	if path := d.opts.Sink.EventPath(); path != "" {
		log.Printf("virtual keyboard at %s", path)
	}

	levels, err := d.bank.Levels()
	if err != nil {
		return fmt.Errorf("read initial levels: %w", err)
	}
	d.eng = engine.New(d.cfg, levels)

	inputs := len(d.cfg.Inputs())
	if d.cfg.Combo != nil {
		log.Printf("loaded %d input lines, combo -> %s", inputs, config.KeyName(d.cfg.Combo.Key))
	} else {
		log.Printf("loaded %d input lines", inputs)
	}
	return nil
}

// unload releases everything load acquired, in reverse order. It must be
// complete before a reload re-acquires: line and key slots are reused by
// index, so stale pull-ups or registrations would leak into the new
// configuration. Safe on a partially-loaded pipeline.
func (d *Daemon) unload() {
	if d.bank != nil {
		if err := d.bank.Close(); err != nil {
			log.Printf("release pins: %v", err)
		}
		d.bank = nil
	}
	if d.opts.Sink != nil {
		if err := d.opts.Sink.Destroy(); err != nil {
			log.Printf("destroy virtual keyboard: %v", err)
		}
	}
	if d.eng != nil {
		c := d.eng.Counts()
		d.totals.Presses += c.Presses
		d.totals.Releases += c.Releases
		d.totals.Repeats += c.Repeats
		d.totals.Combos += c.Combos
	}
	d.eng = nil
	d.events = nil
}

func (d *Daemon) reload() error {
	d.unload()
	d.reloads++
	return d.load()
}

// drainEvents consumes every already-ready line event.
func (d *Daemon) drainEvents(now time.Time) {
	for {
		select {
		case ev := <-d.events:
			d.eng.RawChange(ev.Line, ev.Pressed, now)
		default:
			return
		}
	}
}

// emit sends one wake's worth of events, with a single trailing flush for
// the batch. Sync actions (the combo tap) flush immediately and pace.
func (d *Daemon) emit(actions []engine.Action) {
	batched := false
	for _, a := range actions {
		if err := d.opts.Sink.Emit(a.Key, a.Value); err != nil {
			log.Printf("emit %s: %v", config.KeyName(a.Key), err)
			continue
		}
		if a.Sync {
			if err := d.opts.Sink.Flush(); err != nil {
				log.Printf("flush: %v", err)
			}
			time.Sleep(comboPace)
		} else {
			batched = true
		}
	}
	if batched {
		if err := d.opts.Sink.Flush(); err != nil {
			log.Printf("flush: %v", err)
		}
	}
}

func (d *Daemon) logSummary() {
	c := d.totals
	if d.eng != nil {
		cur := d.eng.Counts()
		c.Presses += cur.Presses
		c.Releases += cur.Releases
		c.Repeats += cur.Repeats
		c.Combos += cur.Combos
	}
	log.Printf("uptime %v: %d presses, %d releases, %d repeats, %d combo fires, %d reloads",
		time.Since(d.started).Round(time.Second),
		c.Presses, c.Releases, c.Repeats, c.Combos, d.reloads)
}
