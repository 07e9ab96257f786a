package daemon

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/retropad/internal/config"
	"github.com/sweeney/retropad/internal/keys"
	"github.com/sweeney/retropad/internal/pins"
)

type fixture struct {
	dir  string
	path string
	sink *keys.FakeSink
	d    *Daemon

	mu    sync.Mutex
	banks []*pins.FakeBank
}

func newFixture(t *testing.T, contents string) *fixture {
	t.Helper()
	f := &fixture{
		dir:  t.TempDir(),
		sink: keys.NewFakeSink(),
	}
	f.path = filepath.Join(f.dir, "retropad.cfg")
	if contents != "" {
		if err := os.WriteFile(f.path, []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f.d = New(Options{
		ConfigPath: f.path,
		Timing:     config.DefaultTiming(),
		Sink:       f.sink,
		NewBank: func() pins.Bank {
			b := pins.NewFakeBank()
			f.mu.Lock()
			f.banks = append(f.banks, b)
			f.mu.Unlock()
			return b
		},
	})
	return f
}

func (f *fixture) bankCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.banks)
}

func (f *fixture) bank(i int) *pins.FakeBank {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banks[i]
}

func (f *fixture) rewrite(t *testing.T, contents string) {
	t.Helper()
	if err := os.WriteFile(f.path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func keyOf(t *testing.T, name string) config.Key {
	t.Helper()
	k, ok := config.LookupKey(name)
	if !ok {
		t.Fatalf("unknown key %q", name)
	}
	return k
}

func TestLoadBuildsPipeline(t *testing.T) {
	f := newFixture(t, "LEFT 4\nUP 16\nGND 20\nESC 4,16\n")
	if err := f.d.load(); err != nil {
		t.Fatal(err)
	}
	defer f.d.unload()

	if f.bankCount() != 1 {
		t.Fatalf("expected 1 bank, got %d", f.bankCount())
	}
	lines := f.bank(0).Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 activated lines, got %d", len(lines))
	}
	if !lines[2].Ground {
		t.Errorf("pin 20 should be ground: %+v", lines[2])
	}

	want := []config.Key{keyOf(t, "LEFT"), keyOf(t, "UP"), keyOf(t, "ESC")}
	if len(f.sink.Registered) != len(want) {
		t.Fatalf("registered %v, want %v", f.sink.Registered, want)
	}
	for i, k := range want {
		if f.sink.Registered[i] != k {
			t.Errorf("registration %d: got %d, want %d", i, f.sink.Registered[i], k)
		}
	}
	if !f.sink.Created {
		t.Error("sink not created")
	}
	if f.d.eng == nil {
		t.Error("engine not built")
	}
}

func TestUnloadReleasesEverything(t *testing.T) {
	f := newFixture(t, "LEFT 4\n")
	if err := f.d.load(); err != nil {
		t.Fatal(err)
	}
	f.d.unload()

	if got := f.bank(0).Closed(); got != 1 {
		t.Errorf("bank closed %d times, want 1", got)
	}
	if f.sink.Created || f.sink.Destroyed != 1 {
		t.Errorf("sink: created=%v destroyed=%d", f.sink.Created, f.sink.Destroyed)
	}
	if f.d.eng != nil || f.d.bank != nil {
		t.Error("pipeline state not cleared")
	}

	// Unload again: must be safe on an empty pipeline.
	f.d.unload()
}

func TestReloadReplacesState(t *testing.T) {
	f := newFixture(t, "LEFT 4\n")
	if err := f.d.load(); err != nil {
		t.Fatal(err)
	}

	f.rewrite(t, "RIGHT 19\nENTER 6\n")
	if err := f.d.reload(); err != nil {
		t.Fatal(err)
	}
	defer f.d.unload()

	if f.bank(0).Closed() != 1 {
		t.Error("old bank not closed before reload")
	}
	if f.bankCount() != 2 {
		t.Fatalf("expected a fresh bank, got %d", f.bankCount())
	}
	if got := len(f.bank(1).Lines()); got != 2 {
		t.Errorf("new bank has %d lines, want 2", got)
	}

	// No stale registration from the old configuration survives.
	want := []config.Key{keyOf(t, "RIGHT"), keyOf(t, "ENTER")}
	if len(f.sink.Registered) != len(want) {
		t.Fatalf("registered %v, want %v", f.sink.Registered, want)
	}
	for i, k := range want {
		if f.sink.Registered[i] != k {
			t.Errorf("registration %d: got %d, want %d", i, f.sink.Registered[i], k)
		}
	}
}

func TestReloadIdenticalIsIdempotent(t *testing.T) {
	f := newFixture(t, "LEFT 4\nRIGHT 19\n")
	if err := f.d.load(); err != nil {
		t.Fatal(err)
	}
	before := append([]config.Key(nil), f.sink.Registered...)
	lines := f.bank(0).Lines()

	if err := f.d.reload(); err != nil {
		t.Fatal(err)
	}
	defer f.d.unload()

	if len(f.sink.Registered) != len(before) {
		t.Fatalf("registrations changed: %v -> %v", before, f.sink.Registered)
	}
	for i := range before {
		if f.sink.Registered[i] != before[i] {
			t.Errorf("registration %d changed", i)
		}
	}
	after := f.bank(1).Lines()
	for i := range lines {
		if after[i] != lines[i] {
			t.Errorf("line %d changed: %+v -> %+v", i, lines[i], after[i])
		}
	}
}

func TestReloadMissingFileKeepsPrevious(t *testing.T) {
	f := newFixture(t, "LEFT 4\n")
	if err := f.d.load(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(f.path); err != nil {
		t.Fatal(err)
	}
	if err := f.d.reload(); err != nil {
		t.Fatal(err)
	}
	defer f.d.unload()

	lines := f.bank(1).Lines()
	if len(lines) != 1 || lines[0].Pin != 4 {
		t.Errorf("previous configuration lost: %+v", lines)
	}
	if len(f.sink.Registered) != 1 || f.sink.Registered[0] != keyOf(t, "LEFT") {
		t.Errorf("previous registrations lost: %v", f.sink.Registered)
	}
}

func TestLoadActivateErrorIsFatal(t *testing.T) {
	f := newFixture(t, "LEFT 4\n")
	f.d.opts.NewBank = func() pins.Bank {
		b := pins.NewFakeBank()
		b.ActivateError = os.ErrPermission
		return b
	}
	if err := f.d.load(); err == nil {
		t.Fatal("expected activation failure")
	}
	f.d.unload()
}

func TestRunPressReleaseShutdown(t *testing.T) {
	f := newFixture(t, "LEFT 4\n")
	// Short debounce so the test does not crawl.
	timing := config.DefaultTiming()
	timing.Debounce = 5 * time.Millisecond
	f.d.opts.Timing = timing

	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- f.d.Run(sig) }()

	// Wait for the pipeline to come up.
	deadline := time.Now().Add(2 * time.Second)
	for f.bankCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.bankCount() == 0 {
		t.Fatal("pipeline never loaded")
	}

	f.bank(0).Press(0)
	time.Sleep(100 * time.Millisecond)
	f.bank(0).Release(0)
	time.Sleep(100 * time.Millisecond)

	sig <- syscall.SIGTERM
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not shut down")
	}

	left := keyOf(t, "LEFT")
	if len(f.sink.Events) != 2 {
		t.Fatalf("expected press+release, got %+v", f.sink.Events)
	}
	if f.sink.Events[0] != (keys.Emitted{Key: left, Value: keys.Press}) {
		t.Errorf("event 0: %+v", f.sink.Events[0])
	}
	if f.sink.Events[1] != (keys.Emitted{Key: left, Value: keys.Release}) {
		t.Errorf("event 1: %+v", f.sink.Events[1])
	}
	if len(f.sink.FlushMarks) != 2 {
		t.Errorf("expected one flush per wake, got marks %v", f.sink.FlushMarks)
	}
}
