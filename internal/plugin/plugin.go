// Package plugin implements the hook driver: an ordered array of plugin
// descriptors dispatched by hook kind (first, sequential, parallel,
// reduce), using golang.org/x/sync/errgroup for the
// "parallel" kind's fan-out — the same concurrency primitive
// internal/loader uses for its own fan-out.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rollup-go/rollup/internal/logger"
)

// Order reflects that a plugin handler may be a function or an object
// {handler, order}; ordering is stable: all pre first, then default, then
// post, each in registration order.
type Order uint8

const (
	OrderDefault Order = iota
	OrderPre
	OrderPost
)

// Hook is the recognised hook name vocabulary.
type Hook string

const (
	HookOptions               Hook = "options"
	HookBuildStart            Hook = "buildStart"
	HookResolveId             Hook = "resolveId"
	HookLoad                  Hook = "load"
	HookShouldTransformCached Hook = "shouldTransformCachedModule"
	HookTransform             Hook = "transform"
	HookModuleParsed          Hook = "moduleParsed"
	HookResolveDynamicImport  Hook = "resolveDynamicImport"
	HookBuildEnd              Hook = "buildEnd"
	HookOutputOptions         Hook = "outputOptions"
	HookRenderStart           Hook = "renderStart"
	HookRenderError           Hook = "renderError"
	HookRenderChunk           Hook = "renderChunk"
	HookGenerateBundle        Hook = "generateBundle"
	HookWriteBundle           Hook = "writeBundle"
	HookCloseBundle           Hook = "closeBundle"
	HookAugmentChunkHash      Hook = "augmentChunkHash"
	HookResolveFileUrl        Hook = "resolveFileUrl"
	HookResolveImportMeta     Hook = "resolveImportMeta"
	HookWatchChange           Hook = "watchChange"
	HookCloseWatcher          Hook = "closeWatcher"
)

// Descriptor is one registered plugin. Handlers are looked up by Hook name;
// a plugin that doesn't implement a given hook simply has no entry for it.
type Descriptor struct {
	Name     string
	Order    Order
	Handlers map[Hook]interface{}
}

// FirstFunc is the signature every "first" hook handler must satisfy: it
// returns (result, handled). handled=false means "this plugin declined,
// try the next one" ("return the first non-null, non-undefined
// result").
type FirstFunc func(args ...interface{}) (result interface{}, handled bool, err error)

// SequentialFunc is threaded nothing but order ("threading no
// value").
type SequentialFunc func() error

// ParallelFunc runs independently of every other plugin's invocation.
type ParallelFunc func() error

// ReduceFunc receives the current accumulator and returns the next one.
type ReduceFunc func(acc interface{}) (interface{}, error)

// Driver dispatches hooks against an ordered plugin list, stable-sorted by
// Order (pre, default, post) at construction time.
type Driver struct {
	plugins []*Descriptor
	log     *logger.Log

	mu       sync.Mutex
	inFlight map[string]int
}

func NewDriver(log *logger.Log, plugins []*Descriptor) *Driver {
	ordered := make([]*Descriptor, 0, len(plugins))
	for _, o := range []Order{OrderPre, OrderDefault, OrderPost} {
		for _, p := range plugins {
			if p.Order == o {
				ordered = append(ordered, p)
			}
		}
	}
	return &Driver{plugins: ordered, log: log, inFlight: make(map[string]int)}
}

func (d *Driver) enterHook(pluginName string, hook Hook) {
	d.mu.Lock()
	d.inFlight[pluginName+":"+string(hook)]++
	d.mu.Unlock()
}

func (d *Driver) exitHook(pluginName string, hook Hook) {
	d.mu.Lock()
	key := pluginName + ":" + string(hook)
	if d.inFlight[key]--; d.inFlight[key] == 0 {
		delete(d.inFlight, key)
	}
	d.mu.Unlock()
}

// UnfinishedHooks returns the "plugin:hook" keys of every "first"-kind
// invocation that entered a handler but never returned, sorted. A build
// goroutine blocked inside a handler at close time is a stuck hook; the
// caller surfaces these instead of letting the process strand silently.
func (d *Driver) UnfinishedHooks() []string {
	d.mu.Lock()
	keys := make([]string, 0, len(d.inFlight))
	for k := range d.inFlight {
		keys = append(keys, k)
	}
	d.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (d *Driver) wrapErr(name string, hook Hook, err error) error {
	if err == nil {
		return nil
	}
	d.log.AddPluginError(name, string(hook), err.Error())
	return fmt.Errorf("[plugin %s] %s hook: %w", name, hook, err)
}

// First implements "first" kind: call plugins in
// order, return the first non-null/non-undefined result; remaining
// plugins are skipped. skip bypasses plugins by name (used by resolveId's
// "skip" parameter to avoid re-entering a plugin that already produced
// the in-flight result).
func (d *Driver) First(hook Hook, skip map[string]bool, args ...interface{}) (interface{}, error) {
	for _, p := range d.plugins {
		if skip != nil && skip[p.Name] {
			continue
		}
		h, ok := p.Handlers[hook]
		if !ok {
			continue
		}
		fn, ok := h.(FirstFunc)
		if !ok {
			continue
		}
		d.enterHook(p.Name, hook)
		result, handled, err := fn(args...)
		d.exitHook(p.Name, hook)
		if err != nil {
			return nil, d.wrapErr(p.Name, hook, err)
		}
		if handled {
			return result, nil
		}
	}
	return nil, nil
}

// Sequential implements "sequential" kind: each
// plugin is awaited before the next, in order.
func (d *Driver) Sequential(hook Hook) error {
	for _, p := range d.plugins {
		h, ok := p.Handlers[hook]
		if !ok {
			continue
		}
		fn, ok := h.(SequentialFunc)
		if !ok {
			continue
		}
		if err := fn(); err != nil {
			return d.wrapErr(p.Name, hook, err)
		}
	}
	return nil
}

// Parallel implements "parallel" kind: invoke all
// plugins concurrently, await all; a rejection from any is propagated
// after the others complete.
func (d *Driver) Parallel(ctx context.Context, hook Hook) error {
	g, _ := errgroup.WithContext(ctx)
	for _, p := range d.plugins {
		p := p
		h, ok := p.Handlers[hook]
		if !ok {
			continue
		}
		fn, ok := h.(ParallelFunc)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := fn(); err != nil {
				return d.wrapErr(p.Name, hook, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reduce implements "reduceArg0 / reduceValue" kind:
// a threaded accumulator, each plugin receiving and returning the next
// value in registration order.
func (d *Driver) Reduce(hook Hook, initial interface{}) (interface{}, error) {
	acc := initial
	for _, p := range d.plugins {
		h, ok := p.Handlers[hook]
		if !ok {
			continue
		}
		fn, ok := h.(ReduceFunc)
		if !ok {
			continue
		}
		next, err := fn(acc)
		if err != nil {
			return nil, d.wrapErr(p.Name, hook, err)
		}
		acc = next
	}
	return acc, nil
}
