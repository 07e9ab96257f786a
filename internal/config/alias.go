package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// Revision1Aliases remaps header pins that moved between the first two
// Pi board revisions, so configs written for later boards work unchanged
// on a revision-1 board (the one without mounting holes).
var Revision1Aliases = map[int]int{
	2:  0,
	3:  1,
	27: 21,
}

// ApplyAliases rewrites pin numbers through the alias table. It is a pure
// post-parse remap: directive order and key assignments are untouched.
func ApplyAliases(cfg *Config, aliases map[int]int) {
	remap := func(pin int) int {
		if to, ok := aliases[pin]; ok {
			return to
		}
		return pin
	}
	for i := range cfg.Lines {
		cfg.Lines[i].Pin = remap(cfg.Lines[i].Pin)
	}
	if cfg.Combo != nil {
		for i := range cfg.Combo.Pins {
			cfg.Combo.Pins[i] = remap(cfg.Combo.Pins[i])
		}
	}
}

// IsRevision1 reports whether this host looks like a revision-1 Pi board,
// going by the boardrev= value the firmware puts on the kernel command
// line. Unreadable or unrecognized command lines count as "no".
func IsRevision1() bool {
	f, err := os.Open("/proc/cmdline")
	if err != nil {
		return false
	}
	defer f.Close()
	return parseCmdline(f)
}

func parseCmdline(r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		word := scanner.Text()
		val, ok := strings.CutPrefix(word, "boardrev=")
		if !ok {
			continue
		}
		rev, err := strconv.ParseInt(strings.TrimPrefix(val, "0x"), 16, 32)
		if err != nil {
			continue
		}
		if rev == 0x02 || rev == 0x03 {
			return true
		}
	}
	return false
}
