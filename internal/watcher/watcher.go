// Package watcher reports changes to YAML files in a configuration
// directory.
package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor produces for a
// single save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls onChange with the base name of each modified YAML file.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func(name string)

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	timers  map[string]*time.Timer
	stopped bool
	done    chan struct{}
}

// New creates a Watcher for dir. A non-positive debounce uses DefaultDebounce.
func New(dir string, debounce time.Duration, onChange func(name string)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		timers:   make(map[string]*time.Timer),
	}
}

// Start begins watching. It fails if the watcher is already running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fs != nil {
		return errors.New("watcher already started")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.fs = fw
	w.stopped = false
	w.done = make(chan struct{})
	go w.loop(fw, w.done)

	slog.Info("watching config directory", "dir", w.dir)
	return nil
}

// Stop ends watching and cancels pending callbacks. Safe to call twice.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, done := w.fs, w.done
	w.fs = nil
	w.stopped = true
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()

	if fw == nil {
		return
	}
	fw.Close()
	<-done
	slog.Info("stopped watching config directory", "dir", w.dir)
}

func (w *Watcher) loop(fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !isYAML(ev.Name) {
				continue
			}
			w.schedule(filepath.Base(ev.Name))
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "err", err)
		}
	}
}

// schedule (re)arms the debounce timer for name.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[name]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() { w.fire(name) })
}

func (w *Watcher) fire(name string) {
	w.mu.Lock()
	delete(w.timers, name)
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("config reload callback panicked", "file", name, "panic", r)
		}
	}()
	slog.Debug("config file modified", "file", name)
	w.onChange(name)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
