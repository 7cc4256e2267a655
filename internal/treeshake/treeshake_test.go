package treeshake

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-go/rollup/internal/cache"
	"github.com/rollup-go/rollup/internal/fs"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/loader"
	"github.com/rollup-go/rollup/internal/logger"
)

// loadGraph builds a module graph from an in-memory filesystem and runs
// the full ANALYSE phase over it.
func loadGraph(t *testing.T, files map[string]string, entries []string) (*graph.Store, *logger.Log, []*graph.Module) {
	t.Helper()
	log := logger.NewLog()
	store := graph.NewStore()
	l := loader.New(store, fs.MockFS(files), log, nil, cache.MakeCacheSet(), nil, false)
	_, err := l.AddEntryModules(context.Background(), entries, true)
	require.NoError(t, err)
	entryModules := l.EntryModules()
	require.NoError(t, Run(store, log, entryModules, DefaultOptions()))
	return store, log, entryModules
}

func TestExecIndexIsPostOrderFromEntries(t *testing.T) {
	store, _, _ := loadGraph(t, map[string]string{
		"/a.js": "import './b.js';\nimport './c.js';\nconsole.log('a');",
		"/b.js": "import './c.js';\nconsole.log('b');",
		"/c.js": "console.log('c');",
	}, []string{"/a.js"})

	a, _ := store.Get("/a.js")
	b, _ := store.Get("/b.js")
	c, _ := store.Get("/c.js")
	assert.Less(t, c.ExecIndex, b.ExecIndex, "dependency body runs before its importer")
	assert.Less(t, b.ExecIndex, a.ExecIndex)
	assert.True(t, a.Executed && b.Executed && c.Executed)
}

func TestCycleIsReportedExactlyOnceWithRotatedPath(t *testing.T) {
	_, log, _ := loadGraph(t, map[string]string{
		"/b.js": "import {a} from '/a.js';\nexport const b = 1;\nconsole.log(a);",
		"/a.js": "import {b} from '/b.js';\nexport const a = 2;\nconsole.log(b);",
	}, []string{"/b.js"})

	var cycles []logger.Msg
	for _, w := range log.Warnings() {
		if w.Code == logger.CodeCircularDependency {
			cycles = append(cycles, w)
		}
	}
	require.Len(t, cycles, 1, "each distinct cycle warns exactly once")
	assert.True(t, strings.HasPrefix(cycles[0].Text, "Circular dependency: /a.js -> "),
		"cycle path must be rotated so the lex-least id is first, got %q", cycles[0].Text)
	assert.Contains(t, cycles[0].Text, "/a.js -> /b.js -> /a.js")
}

func TestUnusedExportIsNotIncluded(t *testing.T) {
	store, _, _ := loadGraph(t, map[string]string{
		"/entry.js": "import {x} from './lib.js';\nconsole.log(x);",
		"/lib.js":   "export const x = 1;\nexport const y = 2;",
	}, []string{"/entry.js"})

	lib, _ := store.Get("/lib.js")
	var included, dropped int
	for _, stmt := range lib.Program.Stmts {
		named, ok := stmt.Data.(*js_ast.SExportNamed)
		if !ok || named.Decl == nil {
			continue
		}
		decl := named.Decl.(*js_ast.SVarDecl)
		switch decl.Decls[0].Name {
		case "x":
			assert.True(t, stmt.Included, "used export must be included")
			included++
		case "y":
			assert.False(t, stmt.Included, "unused export must be dropped")
			dropped++
		}
	}
	assert.Equal(t, 1, included)
	assert.Equal(t, 1, dropped)
}

func TestConstantFalseBranchDropsImportUse(t *testing.T) {
	store, _, _ := loadGraph(t, map[string]string{
		"/entry.js": "import {sideEffect} from './fx.js';\nconst F = false;\nif (F) sideEffect();\nexport const v = 1;",
		"/fx.js":    "export function sideEffect() { console.log('boom'); }",
	}, []string{"/entry.js"})

	fx, _ := store.Get("/fx.js")
	assert.False(t, fx.Included, "a module referenced only from a constant-false branch is dropped")

	entry, _ := store.Get("/entry.js")
	foundV := false
	for _, stmt := range entry.Program.Stmts {
		if named, ok := stmt.Data.(*js_ast.SExportNamed); ok && named.Decl != nil {
			if decl, ok := named.Decl.(*js_ast.SVarDecl); ok && decl.Decls[0].Name == "v" {
				assert.True(t, stmt.Included, "the exported const survives")
				foundV = true
			}
		}
	}
	assert.True(t, foundV)
}

func TestNoTreeshakeModuleKeepsEverything(t *testing.T) {
	store, log, entries := func() (*graph.Store, *logger.Log, []*graph.Module) {
		log := logger.NewLog()
		store := graph.NewStore()
		l := loader.New(store, fs.MockFS(map[string]string{
			"/entry.js": "export const used = 1;\nconst unused = 2;",
		}), log, nil, cache.MakeCacheSet(), nil, false)
		_, err := l.AddEntryModules(context.Background(), []string{"/entry.js"}, true)
		require.NoError(t, err)
		entry, _ := store.Get("/entry.js")
		entry.ModuleSideEffects = graph.ModuleSideEffectsNoTreeshake
		return store, log, l.EntryModules()
	}()
	require.NoError(t, Run(store, log, entries, DefaultOptions()))

	entry, _ := store.Get("/entry.js")
	for i, stmt := range entry.Program.Stmts {
		assert.True(t, stmt.Included, "statement %d of a no-treeshake module must be included", i)
	}
}

func TestDisabledTreeshakeMarksEverythingIncluded(t *testing.T) {
	log := logger.NewLog()
	store := graph.NewStore()
	l := loader.New(store, fs.MockFS(map[string]string{
		"/entry.js": "const unused = 1;\nexport const used = 2;",
	}), log, nil, cache.MakeCacheSet(), nil, false)
	_, err := l.AddEntryModules(context.Background(), []string{"/entry.js"}, true)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Disabled = true
	require.NoError(t, Run(store, log, l.EntryModules(), opts))

	entry, _ := store.Get("/entry.js")
	assert.True(t, entry.Included)
	for _, stmt := range entry.Program.Stmts {
		assert.True(t, stmt.Included)
	}
}

func TestMissingExportWarns(t *testing.T) {
	_, log, _ := loadGraph(t, map[string]string{
		"/entry.js": "import {nope} from './lib.js';\nconsole.log(nope);",
		"/lib.js":   "export const x = 1;",
	}, []string{"/entry.js"})

	found := false
	for _, w := range log.Warnings() {
		if w.Code == logger.CodeMissingExport {
			found = true
		}
	}
	assert.True(t, found, "importing a name the source never exports must warn MISSING_EXPORT")
}

func TestInclusionFixedPointIsStable(t *testing.T) {
	store, log, entries := loadGraph(t, map[string]string{
		"/entry.js": "import {x} from './lib.js';\nconsole.log(x);",
		"/lib.js":   "export const x = 1;\nexport const y = 2;",
	}, []string{"/entry.js"})

	before := snapshotInclusion(store)
	require.NoError(t, Include(store, log, entries, DefaultOptions()))
	assert.Equal(t, before, snapshotInclusion(store), "one additional pass after the fixed point must change nothing")
}

func snapshotInclusion(store *graph.Store) map[string][]bool {
	out := make(map[string][]bool)
	for _, m := range store.Modules() {
		if m.Program == nil {
			continue
		}
		flags := make([]bool, len(m.Program.Stmts))
		for i := range m.Program.Stmts {
			flags[i] = m.Program.Stmts[i].Included
		}
		out[string(m.Id)] = flags
	}
	return out
}

func TestCircularReexportIsFatal(t *testing.T) {
	log := logger.NewLog()
	store := graph.NewStore()
	l := loader.New(store, fs.MockFS(map[string]string{
		"/entry.js": "export {x} from './a.js';",
		"/a.js":     "export {x} from './b.js';",
		"/b.js":     "export {x} from './a.js';",
	}), log, nil, cache.MakeCacheSet(), nil, false)
	_, err := l.AddEntryModules(context.Background(), []string{"/entry.js"}, true)
	require.NoError(t, err)
	_ = Run(store, log, l.EntryModules(), DefaultOptions())

	found := false
	for _, e := range log.Errors() {
		if e.Code == logger.CodeCircularReexport {
			found = true
		}
	}
	assert.True(t, found, "a named re-export chain that loops back on itself must be fatal")
}

func TestNamedReexportChainResolvesRegardlessOfModuleOrder(t *testing.T) {
	store, log, _ := loadGraph(t, map[string]string{
		"/entry.js": "import {x} from './a.js';\nconsole.log(x);",
		"/a.js":     "export {x} from './b.js';",
		"/b.js":     "export {x} from './c.js';",
		"/c.js":     "export const x = 1;",
	}, []string{"/entry.js"})

	for _, w := range log.Warnings() {
		assert.NotEqual(t, logger.CodeMissingExport, w.Code,
			"a two-hop named re-export chain must resolve without a spurious warning")
	}
	c, ok := store.Get("/c.js")
	require.True(t, ok)
	assert.True(t, c.Executed)
}
