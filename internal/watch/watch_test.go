package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// awaitDecision pumps events through Handle until want shows up.
// Unrelated decisions (editor noise, watch-removal echoes) are skipped.
func awaitDecision(t *testing.T, w *Watcher, want Decision) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if dec := w.Handle(ev); dec == want {
				return
			}
		case err := <-w.Errors():
			t.Fatalf("watch error: %v", err)
		case <-deadline:
			t.Fatalf("timed out waiting for decision %d", want)
		}
	}
}

// expectQuiet drains events for a short period, failing on any decision
// other than Nothing.
func expectQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	quiet := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-w.Events():
			if dec := w.Handle(ev); dec != Nothing {
				t.Fatalf("unexpected decision %d for %v", dec, ev)
			}
		case <-quiet:
			return
		}
	}
}

func newWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestModifyTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retropad.cfg")
	if err := os.WriteFile(path, []byte("LEFT 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, path)
	if !w.FileWatched() {
		t.Fatal("file watch not established")
	}

	if err := os.WriteFile(path, []byte("LEFT 4\nRIGHT 19\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	awaitDecision(t, w, Reload)
}

func TestRemoveKeepsConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retropad.cfg")
	if err := os.WriteFile(path, []byte("LEFT 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, path)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	awaitDecision(t, w, FileGone)
	if w.FileWatched() {
		t.Error("file watch should be dropped after removal")
	}
	// The echo from dropping the watch must not surface as another
	// decision.
	expectQuiet(t, w)
}

func TestCreateRearmsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retropad.cfg")

	// Start with no file at all: only the directory watch exists.
	w := newWatcher(t, path)
	if w.FileWatched() {
		t.Fatal("no file yet, but file watch established")
	}

	if err := os.WriteFile(path, []byte("LEFT 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	awaitDecision(t, w, Reload)
	if !w.FileWatched() {
		t.Error("file watch should be re-established on create")
	}
}

func TestRenameIntoPlaceReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retropad.cfg")
	tmp := filepath.Join(dir, "retropad.cfg.tmp")

	w := newWatcher(t, path)

	// The atomic-save pattern: write a temp file, rename over the
	// target name.
	if err := os.WriteFile(tmp, []byte("LEFT 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	awaitDecision(t, w, Reload)
}

func TestUnrelatedFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retropad.cfg")
	if err := os.WriteFile(path, []byte("LEFT 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, path)
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, w)
}

func TestMissingDirectoryFails(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "gone", "retropad.cfg")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
