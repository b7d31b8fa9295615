// Package reload implements the filesystem watcher that triggers the
// configuration loader on configuration-file change, performing the atomic
// swap onto an [*engine.Slot] described in spec.md §5.  It is grounded on
// AdGuardHome's internal/aghos.FSWatcher: the same "watch the containing
// directory, filter by file name, debounce duplicate write events" pattern,
// narrowed to the one file this package cares about.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/qveil/contentfilter/internal/engine"
	"github.com/qveil/contentfilter/internal/metrics"
)

// LoadFunc builds a fresh, frozen [*engine.ContentFilter] from the
// configuration file at path. It is satisfied by a closure over
// [*config.Loader.Load] plus the file-open and default-action lookup the
// loader itself does not own.
type LoadFunc func(ctx context.Context, path string) (cf *engine.ContentFilter, err error)

// Watcher watches one configuration file for writes and reloads it into a
// [*engine.Slot] on every change, matching spec.md §5's reconfiguration
// discipline: build the new engine fully offline, then atomically swap it
// in without disturbing in-flight requests.
type Watcher struct {
	logger *slog.Logger
	m      *metrics.Metrics

	path string
	slot *engine.Slot
	load LoadFunc

	watcher *fsnotify.Watcher

	// lastFP is the fingerprint of the engine this watcher last published
	// on slot; it is the zero value until the first successful reload. It
	// is only ever read and written from the single watch goroutine, so it
	// needs no lock of its own.
	lastFP engine.Fingerprint
}

// New returns a Watcher for the configuration file at path, publishing
// reloaded engines onto slot via load. It does not start watching; call
// [Watcher.Start] for that.
func New(logger *slog.Logger, m *metrics.Metrics, path string, slot *engine.Slot, load LoadFunc) (w *Watcher, err error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	dir := dirOf(path)
	if err = fsw.Add(dir); err != nil {
		_ = fsw.Close()

		return nil, fmt.Errorf("watching %q: %w", dir, err)
	}

	return &Watcher{
		logger:  logger,
		m:       m,
		path:    path,
		slot:    slot,
		load:    load,
		watcher: fsw,
	}, nil
}

// Start runs the watch loop in a new goroutine. It returns immediately; the
// loop exits when ctx is cancelled or [Watcher.Close] is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Close stops watching and releases the underlying inotify (or equivalent)
// handle.
func (w *Watcher) Close() (err error) {
	return w.watcher.Close()
}

// loop is the watcher's main goroutine: it reacts to write events on the
// watched directory that touch this.path, debounces bursts of them (editors
// commonly emit several write/rename events per save), and triggers a
// reload for the survivor.
func (w *Watcher) loop(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, w.logger)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !w.relevant(ev) {
				continue
			}

			w.drainDuplicates()
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			w.logger.ErrorContext(ctx, "watching configuration file", slogutil.KeyError, err)
		}
	}
}

// relevant reports whether ev is a write (or create, for editors that save
// via rename-into-place) touching this.path specifically, since fsnotify
// only supports watching directories reliably.
func (w *Watcher) relevant(ev fsnotify.Event) (ok bool) {
	if ev.Name != w.path {
		return false
	}

	return ev.Op&(fsnotify.Write|fsnotify.Create) != 0
}

// drainDuplicates discards any further pending events without blocking,
// collapsing a burst of saves into a single reload.
func (w *Watcher) drainDuplicates() {
	for {
		select {
		case <-w.watcher.Events:
			continue
		default:
			return
		}
	}
}

// reload loads a fresh engine from this.path and publishes it onto slot. A
// failed reload leaves the previous configuration in place, per spec.md §7:
// "a failed reload leaves the previous configuration in place."
func (w *Watcher) reload(ctx context.Context) {
	cf, err := w.load(ctx, w.path)
	if err != nil {
		w.logger.ErrorContext(ctx, "reloading configuration, keeping previous", slogutil.KeyError, err)
		w.observeReload("error")

		return
	}

	fp := cf.Fingerprint()
	changed := !cmp.Equal(fp, w.lastFP)

	w.slot.Publish(cf)
	w.lastFP = fp
	w.logger.InfoContext(ctx, "reloaded configuration", "path", w.path, "shape_changed", changed)
	w.observeReload("ok")
}

func (w *Watcher) observeReload(outcome string) {
	if w.m != nil {
		w.m.ObserveReload(outcome)
	}
}

// dirOf returns the directory fsnotify should watch for changes to path,
// per the package doc's "watch the directory, not the file" guidance.
func dirOf(path string) (dir string) {
	fi, err := os.Stat(path)
	if err == nil && fi.IsDir() {
		return path
	}

	return filepath.Dir(path)
}
