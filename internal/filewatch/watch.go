// Package filewatch notifies callers when files a cooperating external
// editor might touch (personas.json, tasks.json, cron/jobs.json) change
// on disk. It only reports the changed path; what happens next is up to
// the onChange callback.
package filewatch

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher wraps fsnotify, invoking onChange(path) whenever one of the
// watched files is written.
type Watcher struct {
	w *fsnotify.Watcher
}

// New watches the given file paths and calls onChange on write/create
// events. It returns nil (no error) if fsnotify fails to initialize —
// external-edit detection is then simply off, so a watcher failure is
// never fatal.
func New(paths []string, onChange func(path string)) *Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("filewatch: disabled, fsnotify init failed", "error", err)
		return nil
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			slog.Debug("filewatch: not watching (file may not exist yet)", "path", p, "error", err)
		}
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					onChange(ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("filewatch: watch error", "error", err)
			}
		}
	}()
	return &Watcher{w: w}
}

// Close stops the watcher.
func (w *Watcher) Close() {
	if w != nil && w.w != nil {
		w.w.Close()
	}
}
