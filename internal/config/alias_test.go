package config

import (
	"strings"
	"testing"
)

func TestApplyAliases(t *testing.T) {
	cfg := parseString(t, `
LEFT 2
RIGHT 3
A 27
B 5
ESC 2,5
`)
	ApplyAliases(&cfg, Revision1Aliases)

	wantPins := []int{0, 1, 21, 5}
	for i, want := range wantPins {
		if cfg.Lines[i].Pin != want {
			t.Errorf("line %d: got pin %d, want %d", i, cfg.Lines[i].Pin, want)
		}
	}
	if cfg.Combo.Pins[0] != 0 || cfg.Combo.Pins[1] != 5 {
		t.Errorf("combo pins: got %v", cfg.Combo.Pins)
	}
}

func TestApplyAliasesNil(t *testing.T) {
	cfg := parseString(t, "LEFT 2\n")
	ApplyAliases(&cfg, nil)
	if cfg.Lines[0].Pin != 2 {
		t.Errorf("nil alias table must not remap, got pin %d", cfg.Lines[0].Pin)
	}
}

func TestParseCmdline(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"rev1 hex 2", "dma.dmachans=0x7f35 boardrev=0x2 bcm2708.serial=0xb7a0c183", true},
		{"rev1 hex 3", "boardrev=0x3", true},
		{"rev2", "boardrev=0xe", false},
		{"pi2", "mem_size=0x3F000000", false},
		{"empty", "", false},
		{"garbage", "boardrev=zzz", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseCmdline(strings.NewReader(tc.in)); got != tc.want {
				t.Errorf("parseCmdline(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
