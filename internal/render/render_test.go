package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-go/rollup/internal/cache"
	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/compat"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/fs"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/loader"
	"github.com/rollup-go/rollup/internal/logger"
	"github.com/rollup-go/rollup/internal/treeshake"
)

// build runs LOAD_AND_PARSE, ANALYSE, and GENERATE over an in-memory
// filesystem and returns the rendered outputs.
func build(t *testing.T, files map[string]string, entries []string, opts config.OutputOptions) ([]*Output, *logger.Log) {
	t.Helper()
	log := logger.NewLog()
	store := graph.NewStore()
	l := loader.New(store, fs.MockFS(files), log, nil, cache.MakeCacheSet(), nil, false)
	_, err := l.AddEntryModules(context.Background(), entries, true)
	require.NoError(t, err)
	require.NoError(t, treeshake.Run(store, log, l.EntryModules(), treeshake.DefaultOptions()))

	chunks, err := chunk.Plan(chunk.Input{Store: store, EntryModules: l.EntryModules(), Output: opts, Log: log})
	require.NoError(t, err)
	outputs, err := RenderAll(Input{Chunks: chunks, Store: store, Output: opts, Log: log})
	require.NoError(t, err)
	return outputs, log
}

func esOptions() config.OutputOptions {
	opts := config.DefaultOutputOptions()
	opts.EntryFileNames = "[name].js"
	return opts
}

func TestMinimalChainTreeShakesUnusedExport(t *testing.T) {
	outputs, _ := build(t, map[string]string{
		"/a.js": "import {x} from './b.js';\nconsole.log(x);",
		"/b.js": "export const x = 1;\nexport const y = 2;",
	}, []string{"/a.js"}, esOptions())

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.Contains(t, code, "const x = 1")
	assert.NotContains(t, code, "y = 2")
	assert.Contains(t, code, "console.log(x)")
	assert.NotContains(t, code, "import ", "a single-chunk build has no import preamble")
	assert.Empty(t, outputs[0].Imports)
}

func TestExecutionOrderPlacesDependencyFirst(t *testing.T) {
	outputs, _ := build(t, map[string]string{
		"/a.js": "import {x} from './b.js';\nconsole.log(x);",
		"/b.js": "export const x = 1;",
	}, []string{"/a.js"}, esOptions())

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	decl := strings.Index(code, "const x = 1")
	use := strings.Index(code, "console.log(x)")
	require.GreaterOrEqual(t, decl, 0)
	require.GreaterOrEqual(t, use, 0)
	assert.Less(t, decl, use, "the dependency's body must precede its importer's")
}

func TestDynamicImportSplitsAndRewritesSpecifier(t *testing.T) {
	outputs, _ := build(t, map[string]string{
		"/a.js": "import('./b.js').then(m => m.x());",
		"/b.js": "export function x() { return 1; }",
	}, []string{"/a.js"}, esOptions())

	require.Len(t, outputs, 2)
	var entry, dynamic *Output
	for _, o := range outputs {
		if o.IsEntry {
			entry = o
		} else {
			dynamic = o
		}
	}
	require.NotNil(t, entry)
	require.NotNil(t, dynamic)

	assert.True(t, dynamic.IsDynamicEntry)
	assert.Contains(t, dynamic.Code, "function x")
	assert.Contains(t, dynamic.Exports, "x")

	require.Len(t, entry.DynamicImports, 1)
	assert.Equal(t, dynamic.FileName, entry.DynamicImports[0])
	assert.Contains(t, entry.Code, "./"+dynamic.FileName,
		"the rewritten dynamic-import specifier must equal the dynamic chunk's final file name")
	assert.Contains(t, entry.Code, ".then(m => m.x())")
}

func TestConstantFoldedBranchIsAbsentFromOutput(t *testing.T) {
	outputs, _ := build(t, map[string]string{
		"/a.js":  "import {sideEffect} from './fx.js';\nconst F = false;\nif (F) sideEffect();\nexport const v = 1;",
		"/fx.js": "export function sideEffect() { console.log('boom'); }",
	}, []string{"/a.js"}, esOptions())

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.NotContains(t, code, "sideEffect")
	assert.Contains(t, code, "const v = 1")
	assert.Contains(t, code, "export { v }")
}

func TestStrictFacadesShareACommonChunk(t *testing.T) {
	files := map[string]string{
		"/a.js":      "export {x} from './shared.js';",
		"/b.js":      "export {y} from './shared.js';",
		"/shared.js": "export const x = 1;\nexport const y = 2;",
	}
	log := logger.NewLog()
	store := graph.NewStore()
	l := loader.New(store, fs.MockFS(files), log, nil, cache.MakeCacheSet(), nil, false)
	_, err := l.AddEntryModules(context.Background(), []string{"/a.js", "/b.js"}, true)
	require.NoError(t, err)
	for _, m := range l.EntryModules() {
		m.PreserveSignature = graph.PreserveSignatureStrict
	}
	require.NoError(t, treeshake.Run(store, log, l.EntryModules(), treeshake.DefaultOptions()))

	opts := esOptions()
	chunks, err := chunk.Plan(chunk.Input{Store: store, EntryModules: l.EntryModules(), Output: opts, Log: log})
	require.NoError(t, err)
	outputs, err := RenderAll(Input{Chunks: chunks, Store: store, Output: opts, Log: log})
	require.NoError(t, err)
	require.Len(t, outputs, 3, "two entry facades plus one shared chunk")

	byName := map[string]*Output{}
	for _, o := range outputs {
		byName[o.FileName] = o
	}
	a := byName["a.js"]
	b := byName["b.js"]
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, []string{"x"}, a.Exports)
	assert.Equal(t, []string{"y"}, b.Exports)

	for name, o := range byName {
		if name == "a.js" || name == "b.js" {
			continue
		}
		assert.Contains(t, o.Code, "const x = 1", "the shared chunk owns the declarations")
		assert.Contains(t, o.Code, "const y = 2")
	}
}

func TestCJSOutputUsesRequireAndExportsAssignments(t *testing.T) {
	opts := esOptions()
	opts.Format = compat.FormatCJS
	outputs, _ := build(t, map[string]string{
		"/a.js": "import {readFile} from 'fs-extra';\nexport const go = readFile;",
	}, []string{"/a.js"}, opts)

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.True(t, strings.HasPrefix(code, "'use strict';"))
	assert.Contains(t, code, "require('fs-extra')")
	assert.Contains(t, code, "__toESM")
	assert.Contains(t, code, "exports.go = ")
	assert.Contains(t, code, "Object.defineProperty(exports, '__esModule', { value: true });")
}

func TestESOutputImportsExternalAsNamespace(t *testing.T) {
	outputs, _ := build(t, map[string]string{
		"/a.js": "import {readFile} from 'fs-extra';\nexport const go = readFile;",
	}, []string{"/a.js"}, esOptions())

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.Contains(t, code, "import * as ")
	assert.Contains(t, code, "from 'fs-extra'")
	assert.Contains(t, code, ".readFile")
	assert.NotContains(t, code, "require(")
}

func TestIIFEWrapsBodyAndReturnsExports(t *testing.T) {
	opts := esOptions()
	opts.Format = compat.FormatIIFE
	outputs, _ := build(t, map[string]string{
		"/app.js": "export const answer = 42;",
	}, []string{"/app.js"}, opts)

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.Contains(t, code, "var app = (function (exports) { 'use strict';")
	assert.Contains(t, code, "exports.answer = answer")
	assert.Contains(t, code, "return exports;")
	assert.Contains(t, code, "})({});")
}

func TestUMDHeaderListsAllThreeLoaders(t *testing.T) {
	opts := esOptions()
	opts.Format = compat.FormatUMD
	outputs, _ := build(t, map[string]string{
		"/app.js": "export const answer = 42;",
	}, []string{"/app.js"}, opts)

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.Contains(t, code, "typeof exports === 'object' && typeof module !== 'undefined'")
	assert.Contains(t, code, "typeof define === 'function' && define.amd")
	assert.Contains(t, code, "global.app = {}")
}

func TestSystemOutputRegistersWithSetters(t *testing.T) {
	opts := esOptions()
	opts.Format = compat.FormatSystem
	outputs, _ := build(t, map[string]string{
		"/app.js": "import {x} from 'dep';\nexport const y = x;",
	}, []string{"/app.js"}, opts)

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.Contains(t, code, "System.register(['dep']")
	assert.Contains(t, code, "setters:")
	assert.Contains(t, code, "execute:")
	assert.Contains(t, code, "exports({ y: ")
}

func TestDefaultOnlyExportUsesDefaultModeUnderAuto(t *testing.T) {
	opts := esOptions()
	opts.Format = compat.FormatCJS
	outputs, _ := build(t, map[string]string{
		"/a.js": "export default function main() { return 1; }",
	}, []string{"/a.js"}, opts)

	require.Len(t, outputs, 1)
	assert.Contains(t, outputs[0].Code, "module.exports = main;")
}

func TestTopLevelAwaitIsFatalOutsideESAndSystem(t *testing.T) {
	files := map[string]string{
		"/a.js": "const data = await fetch('/x');\nexport const d = data;",
	}
	log := logger.NewLog()
	store := graph.NewStore()
	l := loader.New(store, fs.MockFS(files), log, nil, cache.MakeCacheSet(), nil, false)
	_, err := l.AddEntryModules(context.Background(), []string{"/a.js"}, true)
	require.NoError(t, err)
	require.NoError(t, treeshake.Run(store, log, l.EntryModules(), treeshake.DefaultOptions()))

	opts := esOptions()
	opts.Format = compat.FormatCJS
	chunks, err := chunk.Plan(chunk.Input{Store: store, EntryModules: l.EntryModules(), Output: opts, Log: log})
	require.NoError(t, err)
	_, err = RenderAll(Input{Chunks: chunks, Store: store, Output: opts, Log: log})
	require.Error(t, err)
	var buildErr *logger.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, logger.CodeInvalidTLAFormat, buildErr.Msg.Code)
}

func TestBannerAndFooterWrapTheChunk(t *testing.T) {
	opts := esOptions()
	opts.Banner = "/* my lib v1 */"
	opts.Footer = "/* end */"
	outputs, _ := build(t, map[string]string{
		"/a.js": "export const v = 1;",
	}, []string{"/a.js"}, opts)

	require.Len(t, outputs, 1)
	code := outputs[0].Code
	assert.True(t, strings.HasPrefix(code, "/* my lib v1 */"))
	assert.True(t, strings.HasSuffix(strings.TrimRight(code, "\n"), "/* end */"))
}

func TestHashedFileNamesAreStableAndContentSensitive(t *testing.T) {
	opts := config.DefaultOutputOptions()
	opts.EntryFileNames = "[name]-[hash].js"

	files := map[string]string{"/a.js": "export const v = 1;"}
	first, _ := build(t, files, []string{"/a.js"}, opts)
	second, _ := build(t, files, []string{"/a.js"}, opts)
	require.Len(t, first, 1)
	assert.Equal(t, first[0].FileName, second[0].FileName, "identical input must produce identical names")
	assert.NotContains(t, first[0].FileName, "\x00", "no placeholder bytes may survive substitution")

	changed, _ := build(t, map[string]string{"/a.js": "export const v = 2;"}, []string{"/a.js"}, opts)
	assert.NotEqual(t, first[0].FileName, changed[0].FileName, "content change must change the hash")
}

func TestSourcemapListsEverySourceModule(t *testing.T) {
	opts := esOptions()
	opts.Sourcemap = true
	outputs, _ := build(t, map[string]string{
		"/a.js": "import {x} from './b.js';\nconsole.log(x);",
		"/b.js": "export const x = 1;",
	}, []string{"/a.js"}, opts)

	require.Len(t, outputs, 1)
	m := outputs[0].Map
	require.NotEmpty(t, m)
	assert.Contains(t, m, "\"version\": 3")
	assert.Contains(t, m, "/a.js")
	assert.Contains(t, m, "/b.js")
	assert.Contains(t, m, "\"mappings\"")
}

func TestImportedBindingsListPerSourceNames(t *testing.T) {
	files := map[string]string{
		"/a.js":      "export {x} from './shared.js';",
		"/b.js":      "export {y} from './shared.js';",
		"/shared.js": "export const x = 1;\nexport const y = 2;",
	}
	log := logger.NewLog()
	store := graph.NewStore()
	l := loader.New(store, fs.MockFS(files), log, nil, cache.MakeCacheSet(), nil, false)
	_, err := l.AddEntryModules(context.Background(), []string{"/a.js", "/b.js"}, true)
	require.NoError(t, err)
	for _, m := range l.EntryModules() {
		m.PreserveSignature = graph.PreserveSignatureStrict
	}
	require.NoError(t, treeshake.Run(store, log, l.EntryModules(), treeshake.DefaultOptions()))

	opts := esOptions()
	chunks, err := chunk.Plan(chunk.Input{Store: store, EntryModules: l.EntryModules(), Output: opts, Log: log})
	require.NoError(t, err)
	outputs, err := RenderAll(Input{Chunks: chunks, Store: store, Output: opts, Log: log})
	require.NoError(t, err)
	require.Len(t, outputs, 3)

	var shared *Output
	for _, o := range outputs {
		if o.FileName != "a.js" && o.FileName != "b.js" {
			shared = o
		}
	}
	require.NotNil(t, shared)
	for _, o := range outputs {
		if o == shared {
			continue
		}
		require.Len(t, o.ImportedBindings, 1)
		names := o.ImportedBindings[shared.FileName]
		if o.FileName == "a.js" {
			assert.Equal(t, []string{"x"}, names)
		} else {
			assert.Equal(t, []string{"y"}, names)
		}
	}
}

func TestImportedBindingsMarkExternalNamespace(t *testing.T) {
	outputs, _ := build(t, map[string]string{
		"/a.js": "import {helper} from 'lib';\nhelper();",
	}, []string{"/a.js"}, esOptions())

	require.Len(t, outputs, 1)
	assert.Equal(t, []string{"*"}, outputs[0].ImportedBindings["lib"])
}
