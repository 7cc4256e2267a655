package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/rollup-go/rollup/internal/logger"
)

func TestFirstReturnsFirstHandledResult(t *testing.T) {
	log := logger.NewLog()
	calledSecond := false
	d := NewDriver(log, []*Descriptor{
		{Name: "a", Handlers: map[Hook]interface{}{
			HookResolveId: FirstFunc(func(args ...interface{}) (interface{}, bool, error) {
				return nil, false, nil
			}),
		}},
		{Name: "b", Handlers: map[Hook]interface{}{
			HookResolveId: FirstFunc(func(args ...interface{}) (interface{}, bool, error) {
				return "resolved", true, nil
			}),
		}},
		{Name: "c", Handlers: map[Hook]interface{}{
			HookResolveId: FirstFunc(func(args ...interface{}) (interface{}, bool, error) {
				calledSecond = true
				return "should not run", true, nil
			}),
		}},
	})
	result, err := d.First(HookResolveId, nil, "./x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "resolved" {
		t.Fatalf("expected plugin b's result, got %v", result)
	}
	if calledSecond {
		t.Fatalf("expected plugin c to be skipped once b handled it")
	}
}

func TestOrderRunsPreBeforeDefaultBeforePost(t *testing.T) {
	log := logger.NewLog()
	var calls []string
	seq := func(name string) SequentialFunc {
		return func() error { calls = append(calls, name); return nil }
	}
	d := NewDriver(log, []*Descriptor{
		{Name: "default", Order: OrderDefault, Handlers: map[Hook]interface{}{HookBuildStart: seq("default")}},
		{Name: "post", Order: OrderPost, Handlers: map[Hook]interface{}{HookBuildStart: seq("post")}},
		{Name: "pre", Order: OrderPre, Handlers: map[Hook]interface{}{HookBuildStart: seq("pre")}},
	})
	if err := d.Sequential(HookBuildStart); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 3 || calls[0] != "pre" || calls[1] != "default" || calls[2] != "post" {
		t.Fatalf("expected pre, default, post order, got %v", calls)
	}
}

func TestReduceThreadsAccumulator(t *testing.T) {
	log := logger.NewLog()
	d := NewDriver(log, []*Descriptor{
		{Name: "a", Handlers: map[Hook]interface{}{
			HookTransform: ReduceFunc(func(acc interface{}) (interface{}, error) {
				return acc.(string) + "-a", nil
			}),
		}},
		{Name: "b", Handlers: map[Hook]interface{}{
			HookTransform: ReduceFunc(func(acc interface{}) (interface{}, error) {
				return acc.(string) + "-b", nil
			}),
		}},
	})
	result, err := d.Reduce(HookTransform, "code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "code-a-b" {
		t.Fatalf("expected threaded accumulator code-a-b, got %v", result)
	}
}

func TestParallelPropagatesErrorAfterOthersComplete(t *testing.T) {
	log := logger.NewLog()
	ranOther := false
	d := NewDriver(log, []*Descriptor{
		{Name: "ok", Handlers: map[Hook]interface{}{
			HookBuildEnd: ParallelFunc(func() error { ranOther = true; return nil }),
		}},
		{Name: "bad", Handlers: map[Hook]interface{}{
			HookBuildEnd: ParallelFunc(func() error { return errors.New("boom") }),
		}},
	})
	err := d.Parallel(context.Background(), HookBuildEnd)
	if err == nil {
		t.Fatalf("expected the failing plugin's error to propagate")
	}
	if !ranOther {
		t.Fatalf("expected the other plugin to still run")
	}
	if !log.HasErrors() {
		t.Fatalf("expected the plugin error to be logged")
	}
}

func TestUnfinishedHooksNamesStuckFirstInvocations(t *testing.T) {
	log := logger.NewLog()
	entered := make(chan struct{})
	release := make(chan struct{})
	d := NewDriver(log, []*Descriptor{
		{Name: "slow", Handlers: map[Hook]interface{}{
			HookLoad: FirstFunc(func(args ...interface{}) (interface{}, bool, error) {
				close(entered)
				<-release
				return "code", true, nil
			}),
		}},
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := d.First(HookLoad, nil, "./x"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}()
	<-entered
	stuck := d.UnfinishedHooks()
	if len(stuck) != 1 || stuck[0] != "slow:load" {
		t.Fatalf("expected [slow:load] while the handler is pending, got %v", stuck)
	}
	close(release)
	<-done
	if remaining := d.UnfinishedHooks(); len(remaining) != 0 {
		t.Fatalf("expected no pending hooks after the handler returned, got %v", remaining)
	}
}
