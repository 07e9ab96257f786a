package config

import (
	"bufio"
	"io"
	"log"
	"strconv"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// MaxPin is the highest pin index a directive may name. Both the Pi GPIO
// header and a 16-bit expander bank fit inside it.
const MaxPin = 31

// Parse reads directives from r and builds a Config. The grammar is one
// directive per line:
//
//	<KEYNAME> <pin>[,<pin>...]
//	GND <pin>[,<pin>...]
//
// '#' starts a comment running to end of line. A key name with a single
// pin is a direct mapping; with two or more pins it defines the combo
// (the last such directive wins). GND pins become driven-low outputs and
// are struck from any combo. Malformed tokens and unknown key names are
// logged and skipped; everything else in the file still applies.
func Parse(r io.Reader, timing Timing) Config {
	cfg := Config{Timing: timing}
	index := make(map[int]int) // pin -> position in cfg.Lines

	set := func(l Line) {
		if i, seen := index[l.Pin]; seen {
			cfg.Lines[i] = l
			return
		}
		index[l.Pin] = len(cfg.Lines)
		cfg.Lines = append(cfg.Lines, l)
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			log.Printf("config line %d: %q has no pin list, skipping", lineNo, fields[0])
			continue
		}

		keyword := strings.ToUpper(fields[0])
		pins := parsePins(lineNo, fields[1:])
		if len(pins) == 0 {
			continue
		}

		if keyword == "GND" {
			for _, pin := range pins {
				set(Line{Pin: pin, Ground: true})
				cfg.dropFromCombo(pin)
			}
			continue
		}

		key, known := LookupKey(keyword)
		if !known {
			log.Printf("config line %d: unknown key name %q, skipping", lineNo, fields[0])
			continue
		}

		if len(pins) == 1 {
			set(Line{Pin: pins[0], Key: key})
			continue
		}

		// Multi-pin directive: the combo. Pins not otherwise mapped
		// still need to be monitored, so give them keyless lines.
		cfg.Combo = &Combo{Pins: pins, Key: key}
		for _, pin := range pins {
			if _, seen := index[pin]; !seen {
				set(Line{Pin: pin})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("config read error: %v", err)
	}
	return cfg
}

// parsePins splits comma- and whitespace-separated pin tokens, dropping
// (with a log line) any that are not integers in [0, MaxPin].
func parsePins(lineNo int, fields []string) []int {
	var pins []int
	for _, field := range fields {
		for _, tok := range strings.Split(field, ",") {
			if tok == "" {
				continue
			}
			pin, err := strconv.Atoi(tok)
			if err != nil {
				log.Printf("config line %d: bad pin token %q, skipping", lineNo, tok)
				continue
			}
			if pin < 0 || pin > MaxPin {
				log.Printf("config line %d: pin %d out of range [0,%d], skipping", lineNo, pin, MaxPin)
				continue
			}
			pins = append(pins, pin)
		}
	}
	return pins
}

func (c *Config) dropFromCombo(pin int) {
	if c.Combo == nil {
		return
	}
	kept := c.Combo.Pins[:0]
	for _, p := range c.Combo.Pins {
		if p != pin {
			kept = append(kept, p)
		}
	}
	c.Combo.Pins = kept
	if len(c.Combo.Pins) < 2 {
		c.Combo = nil
	}
}

// LookupKey resolves an evdev key name, with or without the KEY_ prefix,
// case insensitively.
func LookupKey(name string) (Key, bool) {
	name = strings.ToUpper(name)
	if !strings.HasPrefix(name, "KEY_") {
		name = "KEY_" + name
	}
	code, ok := evdev.KEYFromString[name]
	if !ok {
		return 0, false
	}
	return Key(code), true
}

// KeyName returns the evdev name for a key code, for log output.
func KeyName(k Key) string {
	if name, ok := evdev.KEYToString[evdev.EvCode(k)]; ok {
		return name
	}
	return "KEY_" + strconv.Itoa(int(k))
}
