package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-patches scripts when their source files change on disk.
type Watcher struct {
	host *Host
	fsw  *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	scripts map[string]string // absolute file path -> script name
}

// NewWatcher creates a file watcher feeding edits into the host.
func NewWatcher(host *Host) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		host:    host,
		fsw:     fsw,
		scripts: make(map[string]string),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch associates a source file with a loaded script. Subsequent
// writes to the file are applied as patches.
func (w *Watcher) Watch(path, scriptName string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	w.mu.Lock()
	w.scripts[abs] = scriptName
	w.mu.Unlock()
	// Watch the directory: editors replace files rather than write
	// them in place, which drops per-file watches.
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", abs, err)
	}
	log.Infof("watching %s for script %s", abs, scriptName)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	// Editors emit bursts of events per save; coalesce them.
	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			_, watched := w.scripts[abs]
			w.mu.Unlock()
			if !watched {
				continue
			}
			pending[abs] = true
			if timer == nil {
				timer = time.NewTimer(50 * time.Millisecond)
			} else {
				timer.Reset(50 * time.Millisecond)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			for abs := range pending {
				delete(pending, abs)
				w.apply(abs)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorf("watch error: %s", err.Error())
		}
	}
}

func (w *Watcher) apply(abs string) {
	w.mu.Lock()
	scriptName := w.scripts[abs]
	w.mu.Unlock()
	data, err := os.ReadFile(abs)
	if err != nil {
		log.Errorf("reading %s: %s", abs, err.Error())
		return
	}
	if _, err := w.host.Patch(scriptName, string(data)); err != nil {
		log.Errorf("patching %s: %s", scriptName, err.Error())
	}
}
