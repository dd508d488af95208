package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// FloorPlanWatcher calls onChange after a floor-plan file is written. The
// parent directory is watched so editors that replace the file by rename are
// followed too.
type FloorPlanWatcher struct {
	path     string
	debounce time.Duration
	onChange func(path string)
	watcher  *fsnotify.Watcher
}

// NewFloorPlanWatcher starts watching path. A zero debounce uses the default.
func NewFloorPlanWatcher(path string, debounce time.Duration, onChange func(path string)) (*FloorPlanWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FloorPlanWatcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		watcher:  watcher,
	}, nil
}

// Path returns the absolute path being watched
func (w *FloorPlanWatcher) Path() string {
	return w.path
}

// Run delivers debounced change notifications until Close is called
func (w *FloorPlanWatcher) Run() {
	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer
	defer debounce.Stop()

	pending := false
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isRelevant(event) {
				continue
			}
			pending = true
			debounce.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Println("Watcher error:", err)

		case <-debounce.C:
			if pending {
				pending = false
				log.Printf("[DEBUG] Floor plan %s changed", w.path)
				w.onChange(w.path)
			}
		}
	}
}

func (w *FloorPlanWatcher) isRelevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

// Close stops the watcher and makes Run return
func (w *FloorPlanWatcher) Close() error {
	return w.watcher.Close()
}
