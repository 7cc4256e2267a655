package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/cache"
	"github.com/rollup-go/rollup/internal/fs"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/logger"
)

func newTestLoader(files map[string]string) (*Loader, *logger.Log) {
	log := logger.NewLog()
	store := graph.NewStore()
	return New(store, fs.MockFS(files), log, nil, cache.MakeCacheSet(), nil, false), log
}

func TestAddEntryModulesLoadsTransitiveGraph(t *testing.T) {
	l, log := newTestLoader(map[string]string{
		"/a.js": "import {x} from './b.js';\nconsole.log(x);",
		"/b.js": "import './c.js';\nexport const x = 1;",
		"/c.js": "console.log('side effect');",
	})
	added, err := l.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.False(t, log.HasErrors())

	mods := l.Store.Modules()
	require.Len(t, mods, 3)
	a, ok := l.Store.Get("/a.js")
	require.True(t, ok)
	assert.True(t, a.IsEntry)
	assert.True(t, a.IsUserDefinedEntryPoint)
	assert.Equal(t, []string{"./b.js"}, a.Sources)
}

func TestModulesAreCreatedOncePerId(t *testing.T) {
	l, _ := newTestLoader(map[string]string{
		"/a.js":      "import './shared.js';\nimport './b.js';",
		"/b.js":      "import './shared.js';",
		"/shared.js": "export const s = 1;",
	})
	_, err := l.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.NoError(t, err)
	assert.Len(t, l.Store.Modules(), 3, "shared.js must be deduplicated by id")
}

func TestEntryOrderingIsStableByRequestOrder(t *testing.T) {
	l, _ := newTestLoader(map[string]string{
		"/one.js": "export const one = 1;",
		"/two.js": "export const two = 2;",
	})
	_, err := l.AddEntryModules(context.Background(), []string{"/one.js", "/two.js"}, true)
	require.NoError(t, err)
	entries := l.EntryModules()
	require.Len(t, entries, 2)
	assert.Equal(t, ast.ModuleId("/one.js"), entries[0].Id)
	assert.Equal(t, ast.ModuleId("/two.js"), entries[1].Id)
}

func TestUnresolvedEntryIsFatal(t *testing.T) {
	l, _ := newTestLoader(map[string]string{})
	_, err := l.AddEntryModules(context.Background(), []string{"missing-pkg"}, true)
	require.Error(t, err)
	var buildErr *logger.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, logger.CodeUnresolvedEntry, buildErr.Msg.Code)
}

func TestUnresolvedRelativeImportIsFatal(t *testing.T) {
	l, _ := newTestLoader(map[string]string{
		"/a.js": "import './missing.js';",
	})
	_, err := l.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.Error(t, err)
	var buildErr *logger.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, logger.CodeUnresolvedImport, buildErr.Msg.Code)
}

func TestUnresolvedBareImportBecomesExternalWithWarning(t *testing.T) {
	l, log := newTestLoader(map[string]string{
		"/a.js": "import 'missing-pkg';\nexport const v = 1;",
	})
	_, err := l.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.NoError(t, err)

	_, isExternal := l.Store.GetExternal("missing-pkg")
	assert.True(t, isExternal)

	warnings := log.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, logger.CodeUnresolvedImport, warnings[0].Code)
}

func TestExternalPredicateShortCircuitsResolution(t *testing.T) {
	log := logger.NewLog()
	store := graph.NewStore()
	external := func(source, importer string, isResolved bool) bool { return source == "lodash" }
	l := New(store, fs.MockFS(map[string]string{
		"/a.js": "import {map} from 'lodash';\nexport const v = map;",
	}), log, nil, cache.MakeCacheSet(), external, false)

	_, err := l.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.NoError(t, err)
	_, ok := l.Store.GetExternal("lodash")
	assert.True(t, ok)
	assert.Empty(t, log.Warnings(), "declared externals must not warn")
}

func TestEmitChunkWithImplicitDependants(t *testing.T) {
	l, _ := newTestLoader(map[string]string{
		"/entry.js":    "export const e = 1;",
		"/implicit.js": "export const i = 2;",
	})
	_, err := l.AddEntryModules(context.Background(), []string{"/entry.js"}, true)
	require.NoError(t, err)

	m, err := l.EmitChunk(context.Background(), EmitChunkSpec{
		Id:                         "/implicit.js",
		ImplicitlyLoadedAfterOneOf: []string{"/entry.js"},
	})
	require.NoError(t, err)
	assert.True(t, l.ImplicitEntryModules()[m.Id])
	assert.Equal(t, []ast.ModuleId{"/entry.js"}, m.ImplicitlyLoadedAfter)

	entry, _ := l.Store.Get("/entry.js")
	assert.Equal(t, []ast.ModuleId{"/implicit.js"}, entry.ImplicitlyLoadedBefore)
}

func TestCachedModuleIsReusedAcrossLoaders(t *testing.T) {
	files := map[string]string{"/a.js": "export const x = 1;"}
	cacheSet := cache.MakeCacheSet()

	log := logger.NewLog()
	l1 := New(graph.NewStore(), fs.MockFS(files), log, nil, cacheSet, nil, false)
	_, err := l1.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.NoError(t, err)
	m1, _ := l1.Store.Get("/a.js")

	l2 := New(graph.NewStore(), fs.MockFS(files), logger.NewLog(), nil, cacheSet, nil, false)
	_, err = l2.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.NoError(t, err)
	m2, _ := l2.Store.Get("/a.js")

	assert.Same(t, m1.Program, m2.Program, "unchanged module must adopt the cached parsed form")
}
