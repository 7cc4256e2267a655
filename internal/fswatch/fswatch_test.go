package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rollup-go/rollup/pkg/api"
)

func TestNewRunsAnInitialBuildBeforeAnyEvent(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.js")
	lib := filepath.Join(dir, "lib.js")
	if err := os.WriteFile(entry, []byte("import {greet} from './lib.js';\nconsole.log(greet());"), 0o644); err != nil {
		t.Fatalf("writing entry.js: %v", err)
	}
	if err := os.WriteFile(lib, []byte("export function greet() { return 'hi'; }"), 0o644); err != nil {
		t.Fatalf("writing lib.js: %v", err)
	}

	events := make(chan Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, api.InputOptions{Input: []string{entry}}, api.DefaultOutputOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	w.OnEvent(func(ev Event) { events <- ev })

	// Trigger a rebuild by touching the watched file; New already ran one
	// build synchronously before returning, so this is the event the test
	// actually waits on.
	if err := os.WriteFile(lib, []byte("export function greet() { return 'hello'; }"), 0o644); err != nil {
		t.Fatalf("rewriting lib.js: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("unexpected rebuild error: %v", ev.Err)
		}
		if ev.Output == nil || len(ev.Output.Output) == 0 {
			t.Fatalf("expected a non-empty rebuild output")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a rebuild event after a file write")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.js")
	if err := os.WriteFile(entry, []byte("console.log(1);"), 0o644); err != nil {
		t.Fatalf("writing entry.js: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := New(ctx, api.InputOptions{Input: []string{entry}}, api.DefaultOutputOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
