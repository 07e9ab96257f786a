package engine

import (
	"time"

	"github.com/sweeney/retropad/internal/config"
)

// Engine reconciles raw line levels against debounced state and decides
// which single timeout to wait for next. One Engine exists per loaded
// configuration; reload builds a fresh one.
type Engine struct {
	lines  []lineState
	timing config.Timing

	comboMask    uint32 // bit per line index
	comboKey     config.Key
	comboLatched bool

	wait     Wait
	deadline time.Time

	held    int // line index of the key driving repeats, -1 when none
	repNext time.Duration

	counts Counts
}

// New builds an engine for cfg, seeding raw and debounced levels from the
// captured hardware state so startup emits nothing. levels is indexed
// like cfg.Lines; missing entries read as released.
func New(cfg config.Config, levels []bool) *Engine {
	e := &Engine{
		timing: cfg.Timing,
		held:   -1,
	}
	byPin := make(map[int]int)
	for i, l := range cfg.Lines {
		level := i < len(levels) && levels[i]
		e.lines = append(e.lines, lineState{
			key:     l.Key,
			ground:  l.Ground,
			raw:     level && !l.Ground,
			emitted: level && !l.Ground,
		})
		byPin[l.Pin] = i
	}
	if cfg.Combo != nil {
		for _, pin := range cfg.Combo.Pins {
			if i, ok := byPin[pin]; ok && !e.lines[i].ground {
				e.comboMask |= 1 << uint(i)
			}
		}
		if popcount(e.comboMask) >= 2 {
			e.comboKey = cfg.Combo.Key
		} else {
			e.comboMask = 0
		}
	}
	return e
}

// Wait reports the armed timeout class.
func (e *Engine) Wait() Wait { return e.wait }

// NextTimeout returns how long the multiplexer should block before
// calling Expire. ok is false when the engine is idle and the wait is
// indefinite.
func (e *Engine) NextTimeout(now time.Time) (time.Duration, bool) {
	if e.wait == WaitNone {
		return 0, false
	}
	d := e.deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Counts returns the event tallies.
func (e *Engine) Counts() Counts { return e.counts }

// RawChange records a level change on a line. Only raw state moves; no
// event is emitted until the debounce window expires with the level still
// settled. Any change (re)arms the debounce window, which outranks every
// other timeout.
func (e *Engine) RawChange(line int, pressed bool, now time.Time) {
	if line < 0 || line >= len(e.lines) || e.lines[line].ground {
		return
	}
	e.lines[line].raw = pressed
	e.wait = WaitDebounce
	e.deadline = now.Add(e.timing.Debounce)
}

// Expire runs the armed timeout if its deadline has passed, returning the
// key events to synthesize. Callers emit them in order and flush once
// (except where Action.Sync says otherwise).
func (e *Engine) Expire(now time.Time) []Action {
	if e.wait == WaitNone || now.Before(e.deadline) {
		return nil
	}
	switch e.wait {
	case WaitDebounce:
		return e.reconcile(now)
	case WaitCombo:
		return e.fireCombo()
	case WaitRepeat:
		return e.fireRepeat(now)
	}
	return nil
}

// reconcile trusts the raw level present at window expiry: lines whose
// raw level still differs from the last emitted one get exactly one
// event. Bounces that settled back emit nothing.
func (e *Engine) reconcile(now time.Time) []Action {
	var actions []Action
	for i := range e.lines {
		l := &e.lines[i]
		if l.ground || l.raw == l.emitted {
			continue
		}
		l.emitted = l.raw
		if l.raw {
			if l.key != 0 {
				actions = append(actions, Action{Key: l.key, Value: 1})
				e.counts.Presses++
				e.held = i
				e.repNext = e.timing.RepeatDelay
			}
		} else {
			if l.key != 0 {
				actions = append(actions, Action{Key: l.key, Value: 0})
				e.counts.Releases++
			}
			e.held = -1
		}
	}

	mask := e.pressedMask()
	if e.comboMask != 0 && mask&e.comboMask == e.comboMask {
		if !e.comboLatched {
			// Combo hold outranks per-key repeat.
			e.wait = WaitCombo
			e.deadline = now.Add(e.timing.ComboHold)
			return actions
		}
	} else {
		// Mask broken; the combo may arm again.
		e.comboLatched = false
	}
	e.armRepeat(now)
	return actions
}

// fireCombo taps the combo key once and latches until the pin set is
// released, so an unbroken hold cannot re-fire.
func (e *Engine) fireCombo() []Action {
	e.comboLatched = true
	e.counts.Combos++
	e.wait = WaitNone
	return []Action{
		{Key: e.comboKey, Value: 1, Sync: true},
		{Key: e.comboKey, Value: 0, Sync: true},
	}
}

// fireRepeat resends the held key, then shortens the next interval:
// initial delay, repeat interval, minus one step per firing down to the
// floor.
func (e *Engine) fireRepeat(now time.Time) []Action {
	if e.held < 0 {
		e.wait = WaitNone
		return nil
	}
	e.counts.Repeats++
	switch {
	case e.repNext == e.timing.RepeatDelay:
		e.repNext = e.timing.RepeatInterval
	case e.repNext-e.timing.RepeatStep >= e.timing.RepeatFloor:
		e.repNext -= e.timing.RepeatStep
	}
	e.deadline = now.Add(e.repNext)
	return []Action{{Key: e.lines[e.held].key, Value: 2}}
}

func (e *Engine) armRepeat(now time.Time) {
	if e.held >= 0 {
		e.wait = WaitRepeat
		e.deadline = now.Add(e.repNext)
	} else {
		e.wait = WaitNone
	}
}

func (e *Engine) pressedMask() uint32 {
	var mask uint32
	for i := range e.lines {
		if !e.lines[i].ground && e.lines[i].emitted {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func popcount(v uint32) int {
	n := 0
	for ; v != 0; v &= v - 1 {
		n++
	}
	return n
}
