// Package fswatch is the watch-mode boundary:
// `watch(options[]) -> Watcher`, an event-emitter with no
// file-diffing intelligence of its own. It wraps fsnotify.Watcher and on
// any event re-runs the whole Rollup/Generate pipeline from scratch;
// the engineering depth lives in pkg/api and the packages beneath it,
// not here.
//
// Built over github.com/fsnotify/fsnotify rather than a hand-rolled
// directory-mtime poller.
package fswatch

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/rollup-go/rollup/internal/cache"
	"github.com/rollup-go/rollup/pkg/api"
)

// Event is delivered to a Watcher's OnEvent callback after each rebuild
// attempt, successful or not. A plugin's watchChange handler is
// registered with the plugin driver, but no rebuild dispatches the
// watchChange hook.
type Event struct {
	Output *api.BundleOutput
	Err    error
}

// Watcher is the Go-native shape of the `watch(options[]) -> Watcher`
// event-emitter contract.
type Watcher struct {
	in     api.InputOptions
	out    api.OutputOptions
	notify *fsnotify.Watcher

	mu      sync.Mutex
	onEvent func(Event)
	closed  bool
	watched map[string]bool
}

// New creates a Watcher and performs the first build immediately (the
// initial build happens before any file-system event arrives). Every
// module loaded into the resulting
// Bundle's module graph is added to the underlying fsnotify watch set.
func New(ctx context.Context, in api.InputOptions, out api.OutputOptions) (*Watcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if in.Cache == nil {
		// One CacheSet serves every rebuild, so unchanged modules are not reparsed.
		in.Cache = cache.MakeCacheSet()
	}
	w := &Watcher{in: in, out: out, notify: notify, watched: map[string]bool{}}
	if err := w.rebuild(ctx); err != nil {
		notify.Close()
		return nil, err
	}
	go w.loop(ctx)
	return w, nil
}

// OnEvent registers the callback invoked after every rebuild (initial
// build included if called before New returns, which isn't possible from
// outside the package — callers should register before triggering any
// file change, i.e. immediately after New returns).
func (w *Watcher) OnEvent(fn func(Event)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onEvent = fn
}

func (w *Watcher) rebuild(ctx context.Context) error {
	bundle, err := api.Rollup(ctx, w.in)
	if err != nil {
		w.emit(Event{Err: err})
		return err
	}
	defer bundle.Close()
	w.syncWatchSet(bundle.ModuleIds())
	result, err := bundle.Generate(ctx, w.out)
	w.emit(Event{Output: result, Err: err})
	return err
}

// syncWatchSet adds every newly discovered module path to the fsnotify
// watch set. fsnotify has no remove-if-gone pass here: a module dropped
// from the graph (e.g. an import removed) simply stops mattering, and
// watching its now-irrelevant path a little longer than necessary is
// harmless.
func (w *Watcher) syncWatchSet(ids []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		if w.watched[id] {
			continue
		}
		if err := w.notify.Add(id); err == nil {
			w.watched[id] = true
		}
	}
}

func (w *Watcher) emit(ev Event) {
	w.mu.Lock()
	fn := w.onEvent
	w.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// loop is the fsnotify event pump; it re-triggers a full rebuild on any
// write/create/remove/rename event, with no attempt at incremental
// invalidation.
func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.notify.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			_ = w.rebuild(ctx)
		case _, ok := <-w.notify.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the fsnotify watcher. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.notify.Close()
}
