// Package watch monitors the configuration file for hot reload. It holds
// two logical watches on one fsnotify instance: the config directory for
// the process lifetime, and the file itself, re-established as the file
// comes and goes.
package watch

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Decision is what the daemon should do about a filesystem event.
type Decision int

const (
	// Nothing: unrelated file, echo from removing a watch, etc.
	Nothing Decision = iota
	// FileGone: the config file disappeared. The file watch is dropped
	// but the current configuration stays in force.
	FileGone
	// Reload: the file changed or reappeared; unload and reload.
	Reload
)

// Watcher tracks the config file and its directory.
type Watcher struct {
	fs   *fsnotify.Watcher
	path string // absolute config file path
	dir  string
	name string
	file bool // file watch currently established
}

// New starts watching path's directory and, when the file exists, the
// file itself. The directory must exist; the file need not.
func New(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fs:   fs,
		path: abs,
		dir:  filepath.Dir(abs),
		name: filepath.Base(abs),
	}
	if err := fs.Add(w.dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watchFile()
	return w, nil
}

// Events exposes the raw fsnotify stream for the daemon's select loop.
func (w *Watcher) Events() <-chan fsnotify.Event { return w.fs.Events }

// Errors exposes watcher errors; they are log-only.
func (w *Watcher) Errors() <-chan error { return w.fs.Errors }

// Handle classifies one event and maintains the file watch.
func (w *Watcher) Handle(ev fsnotify.Event) Decision {
	if filepath.Base(ev.Name) != w.name {
		return Nothing
	}
	switch {
	case ev.Op&fsnotify.Write != 0:
		return Reload
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Deliberate partial-failure policy: losing the file does not
		// empty the configuration. Keep running on the loaded state
		// and wait for the file to come back.
		if w.file {
			// Removing the watch echoes a benign event; absorbed
			// by the Op filter above.
			w.fs.Remove(w.path)
			w.file = false
			return FileGone
		}
		return Nothing
	case ev.Op&fsnotify.Create != 0:
		w.watchFile()
		return Reload
	}
	return Nothing
}

// watchFile (re-)establishes the file watch. A missing file is fine; the
// directory watch picks up its creation.
func (w *Watcher) watchFile() {
	if w.file {
		return
	}
	if err := w.fs.Add(w.path); err != nil {
		log.Printf("watch: %s not watchable yet: %v", w.path, err)
		return
	}
	w.file = true
}

// FileWatched reports whether the file watch is currently established.
func (w *Watcher) FileWatched() bool { return w.file }

// Close stops all watches.
func (w *Watcher) Close() error { return w.fs.Close() }
