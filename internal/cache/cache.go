// Package cache lets a build reuse the parsed form of a module across
// rebuilds: if a module's digest hasn't changed and no plugin's
// shouldTransformCachedModule opts it back in, the cached AST is reused
// instead of reparsing. The design is a mutex-guarded map assigning
// stable indices to ids, plus a result cache keyed by id. Only one kind
// of result is ever cached here (parsed JS modules), so a single
// ModuleCache suffices.
package cache

import (
	"sync"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/js_ast"
)

// CacheSet groups the caches a single build shares across its lifetime.
// A fresh CacheSet should be made per top-level Bundle call that isn't a
// rebuild; watch-mode rebuilds (internal/fswatch) reuse the same CacheSet
// across iterations so unchanged modules skip reparsing entirely.
type CacheSet struct {
	ModuleIndex ModuleIndexCache
	Modules     ModuleCache
}

func MakeCacheSet() *CacheSet {
	return &CacheSet{
		ModuleIndex: ModuleIndexCache{
			entries: make(map[ast.ModuleId]uint32),
		},
		Modules: ModuleCache{
			entries: make(map[ast.ModuleId]*ModuleEntry),
		},
	}
}

// ModuleIndexCache assigns each resolved module id a stable uint32 the
// first time it's seen, so that ast.Ref.ModuleIndex and ast.Index32
// values handed out during one pass over the graph stay valid across
// the whole build.
type ModuleIndexCache struct {
	mutex   sync.Mutex
	entries map[ast.ModuleId]uint32
	next    uint32
}

func (c *ModuleIndexCache) Get(id ast.ModuleId) uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if index, ok := c.entries[id]; ok {
		return index
	}
	index := c.next
	c.next++
	c.entries[id] = index
	return index
}

// ModuleEntry is what the cache stores per module id: the parsed program
// plus the content digest it was parsed from, so a later Get can tell
// whether the on-disk contents changed underneath it.
type ModuleEntry struct {
	Digest  string
	Program *js_ast.Program
}

// ModuleCache maps a module id to its cached parse result.
type ModuleCache struct {
	mutex   sync.Mutex
	entries map[ast.ModuleId]*ModuleEntry
}

// Get returns the cached program for id if its digest still matches.
// The caller is responsible for deciding
// whether shouldTransformCachedModule forces a reparse even on a digest
// match (a plugin's transform hook isn't pure, so an unconditionally
// trusted digest wouldn't be sound for a plugin-participating module).
func (c *ModuleCache) Get(id ast.ModuleId, digest string) (*js_ast.Program, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry, ok := c.entries[id]
	if !ok || entry.Digest != digest {
		return nil, false
	}
	return entry.Program, true
}

func (c *ModuleCache) Put(id ast.ModuleId, digest string, program *js_ast.Program) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[id] = &ModuleEntry{Digest: digest, Program: program}
}
