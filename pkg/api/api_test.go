package api

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollup-go/rollup/internal/fs"
)

func twoModuleFS() fs.FS {
	return fs.MockFS(map[string]string{
		"/entry.js": "import {greet} from './lib.js';\nconsole.log(greet('world'));",
		"/lib.js":   "export function greet(name) { return 'hi ' + name; }",
	})
}

func TestRollupGenerateProducesOneChunkPerEntry(t *testing.T) {
	ctx := context.Background()
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: twoModuleFS()})
	require.NoError(t, err)
	defer bundle.Close()

	result, err := bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)
	require.Len(t, result.Output, 1)

	chunk := result.Output[0]
	assert.Equal(t, "chunk", chunk.Type)
	assert.True(t, chunk.IsEntry)
	assert.Contains(t, chunk.Code, "greet")
}

func TestBundleWritePersistsOutputThroughFS(t *testing.T) {
	ctx := context.Background()
	fsys := twoModuleFS()
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: fsys})
	require.NoError(t, err)
	defer bundle.Close()

	result, err := bundle.Write(ctx, DefaultOutputOptions(), "/dist")
	require.NoError(t, err)
	require.Len(t, result.Output, 1)

	written, err := fsys.ReadFile(fsys.Join("/dist", result.Output[0].FileName))
	require.NoError(t, err)
	assert.True(t, strings.Contains(written, "greet"))
}

func TestGenerateAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: twoModuleFS()})
	require.NoError(t, err)
	require.NoError(t, bundle.Close())
	require.NoError(t, bundle.Close(), "Close must be idempotent")

	_, err = bundle.Generate(ctx, DefaultOutputOptions())
	assert.Error(t, err)
}

func TestOutputOptionsHookSeesFormatAndRewritesFileNames(t *testing.T) {
	ctx := context.Background()
	var sawFormat Format
	plugin := &Plugin{
		Name: "format-reporter",
		OutputOptions: func(opts *OutputOptions) {
			sawFormat = opts.Format
			opts.EntryFileNames = "renamed-[name].js"
		},
	}
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: twoModuleFS(), Plugins: []*Plugin{plugin}})
	require.NoError(t, err)
	defer bundle.Close()

	opts := DefaultOutputOptions()
	result, err := bundle.Generate(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, opts.Format, sawFormat)
	assert.True(t, strings.HasPrefix(result.Output[0].FileName, "renamed-"))
}

func TestWriteBundleHookObservesWrittenFiles(t *testing.T) {
	ctx := context.Background()
	var seenNames []string
	plugin := &Plugin{
		Name: "write-observer",
		WriteBundle: func(bundle map[string]*OutputFile) error {
			for name := range bundle {
				seenNames = append(seenNames, name)
			}
			return nil
		},
	}
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: twoModuleFS(), Plugins: []*Plugin{plugin}})
	require.NoError(t, err)
	defer bundle.Close()

	result, err := bundle.Write(ctx, DefaultOutputOptions(), "/dist")
	require.NoError(t, err)
	require.Len(t, seenNames, 1)
	assert.Equal(t, result.Output[0].FileName, seenNames[0])
}

func TestCircularDependencyWarnsOnceAndBuildSucceeds(t *testing.T) {
	ctx := context.Background()
	fsys := fs.MockFS(map[string]string{
		"/a.js": "import {b} from './b.js';\nexport const a = 1;\nconsole.log(b);",
		"/b.js": "import {a} from './a.js';\nexport const b = 2;\nconsole.log(a);",
	})
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/a.js"}, FS: fsys})
	require.NoError(t, err, "a cyclic graph still builds")
	defer bundle.Close()

	var cycles int
	for _, w := range bundle.Warnings() {
		if w.Code == "CIRCULAR_DEPENDENCY" {
			cycles++
			assert.Contains(t, w.Text, "/a.js -> /b.js -> /a.js")
		}
	}
	assert.Equal(t, 1, cycles)

	result, err := bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)
	require.Len(t, result.Output, 1)
}

func TestBareSpecifierBecomesExternalRelativeFails(t *testing.T) {
	ctx := context.Background()

	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/a.js"}, FS: fs.MockFS(map[string]string{
		"/a.js": "import 'missing-pkg';\nexport const v = 1;",
	})})
	require.NoError(t, err, "a bare unresolved import is tolerated as external")
	defer bundle.Close()
	found := false
	for _, w := range bundle.Warnings() {
		if w.Code == "UNRESOLVED_IMPORT" {
			found = true
		}
	}
	assert.True(t, found)

	_, err = Rollup(ctx, InputOptions{Input: []string{"/b.js"}, FS: fs.MockFS(map[string]string{
		"/b.js": "import './missing-pkg';\nexport const v = 1;",
	})})
	require.Error(t, err, "the same id written relative must fail the build")
}

func TestStrictEntrySignaturesProduceExactFacades(t *testing.T) {
	ctx := context.Background()
	fsys := fs.MockFS(map[string]string{
		"/a.js":      "export {x} from './shared.js';",
		"/b.js":      "export {y} from './shared.js';",
		"/shared.js": "export const x = 1;\nexport const y = 2;",
	})
	bundle, err := Rollup(ctx, InputOptions{
		Input:                   []string{"/a.js", "/b.js"},
		FS:                      fsys,
		PreserveEntrySignatures: "strict",
	})
	require.NoError(t, err)
	defer bundle.Close()

	result, err := bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)
	require.Len(t, result.Output, 3)

	for _, o := range result.Output {
		switch o.FileName {
		case "a.js":
			assert.Equal(t, []string{"x"}, o.Exports)
		case "b.js":
			assert.Equal(t, []string{"y"}, o.Exports)
		}
	}
}

func TestGenerateIsDeterministicAcrossBuilds(t *testing.T) {
	ctx := context.Background()
	files := map[string]string{
		"/entry.js": "import {greet} from './lib.js';\nconsole.log(greet('w'));\nimport('./lazy.js').then(m => m.run());",
		"/lib.js":   "export function greet(name) { return 'hi ' + name; }",
		"/lazy.js":  "export function run() { return 9; }",
	}
	snapshot := func() map[string]string {
		bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: fs.MockFS(files)})
		require.NoError(t, err)
		defer bundle.Close()
		result, err := bundle.Generate(ctx, DefaultOutputOptions())
		require.NoError(t, err)
		out := make(map[string]string, len(result.Output))
		for _, o := range result.Output {
			out[o.FileName] = o.Code
		}
		return out
	}
	assert.Equal(t, snapshot(), snapshot(), "identical inputs must produce byte-identical chunks and names")
}

func TestResolveIdAndLoadPluginsProvideVirtualModules(t *testing.T) {
	ctx := context.Background()
	virtual := &Plugin{
		Name: "virtual",
		ResolveId: func(source, importer string, isEntry bool) (*ResolveIdResult, error) {
			if source == "virtual:config" {
				return &ResolveIdResult{Id: "\x00virtual:config"}, nil
			}
			return nil, nil
		},
		Load: func(id string) (*LoadResult, error) {
			if id == "\x00virtual:config" {
				return &LoadResult{Code: "export const mode = 'test';"}, nil
			}
			return nil, nil
		},
	}
	bundle, err := Rollup(ctx, InputOptions{
		Input:   []string{"/entry.js"},
		Plugins: []*Plugin{virtual},
		FS: fs.MockFS(map[string]string{
			"/entry.js": "import {mode} from 'virtual:config';\nconsole.log(mode);",
		}),
	})
	require.NoError(t, err)
	defer bundle.Close()

	result, err := bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)
	require.Len(t, result.Output, 1)
	assert.Contains(t, result.Output[0].Code, "'test'")
}

func TestTransformHookRewritesSource(t *testing.T) {
	ctx := context.Background()
	replace := &Plugin{
		Name: "define",
		Transform: func(code string, id string) (string, error) {
			return strings.ReplaceAll(code, "__VERSION__", "'1.2.3'"), nil
		},
	}
	bundle, err := Rollup(ctx, InputOptions{
		Input:   []string{"/entry.js"},
		Plugins: []*Plugin{replace},
		FS: fs.MockFS(map[string]string{
			"/entry.js": "export const version = __VERSION__;",
		}),
	})
	require.NoError(t, err)
	defer bundle.Close()

	result, err := bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)
	assert.Contains(t, result.Output[0].Code, "'1.2.3'")
}

func TestEmitAssetDeduplicatesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: twoModuleFS()})
	require.NoError(t, err)
	defer bundle.Close()

	bundle.EmitAsset("logo.svg", []byte("<svg/>"))
	bundle.EmitAsset("logo-copy.svg", []byte("<svg/>"))
	bundle.EmitAsset("styles.css", []byte("body{}"))

	result, err := bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)

	var assets []*OutputFile
	for _, o := range result.Output {
		if o.Type == "asset" {
			assets = append(assets, o)
		}
	}
	require.Len(t, assets, 2, "byte-identical assets collapse onto one output file")
}

func TestEmitChunksProducesImplicitEntryOutput(t *testing.T) {
	ctx := context.Background()
	fsys := fs.MockFS(map[string]string{
		"/entry.js":    "export const e = 1;",
		"/implicit.js": "export const i = 2;",
	})
	bundle, err := Rollup(ctx, InputOptions{
		Input: []string{"/entry.js"},
		FS:    fsys,
		EmitChunks: []EmitChunkSpec{{
			Id:                         "/implicit.js",
			ImplicitlyLoadedAfterOneOf: []string{"/entry.js"},
		}},
	})
	require.NoError(t, err)
	defer bundle.Close()

	result, err := bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)
	require.Len(t, result.Output, 2)

	var implicit *OutputFile
	for _, o := range result.Output {
		if o.IsImplicitEntry {
			implicit = o
		}
	}
	require.NotNil(t, implicit, "the emitted chunk must surface as an implicit entry")
	assert.False(t, implicit.IsEntry)
	assert.Contains(t, implicit.Code, "const i = 2")
}

func TestStrictDeprecationsUpgradeToFatal(t *testing.T) {
	ctx := context.Background()
	manual := func(id string) (string, bool) { return "", false }

	bundle, err := Rollup(ctx, InputOptions{
		Input:        []string{"/entry.js"},
		FS:           twoModuleFS(),
		ManualChunks: manual,
	})
	require.NoError(t, err, "input-level manualChunks is only a warning by default")
	warned := false
	for _, w := range bundle.Warnings() {
		if w.Code == "DEPRECATED_FEATURE" {
			warned = true
		}
	}
	assert.True(t, warned)
	require.NoError(t, bundle.Close())

	_, err = Rollup(ctx, InputOptions{
		Input:              []string{"/entry.js"},
		FS:                 twoModuleFS(),
		ManualChunks:       manual,
		StrictDeprecations: true,
	})
	require.Error(t, err, "strictDeprecations upgrades the deprecation to fatal")
}

func TestRenderErrorHookFiresOnGenerateFailure(t *testing.T) {
	ctx := context.Background()
	fsys := fs.MockFS(map[string]string{
		"/entry.js": "await fetch('/boot');\nexport const ready = true;",
	})
	notified := false
	bundle, err := Rollup(ctx, InputOptions{
		Input: []string{"/entry.js"},
		FS:    fsys,
		Plugins: []*Plugin{{
			Name:        "observer",
			RenderError: func() error { notified = true; return nil },
		}},
	})
	require.NoError(t, err)
	defer bundle.Close()

	opts := DefaultOutputOptions()
	opts.Format = FormatCJS
	_, err = bundle.Generate(ctx, opts)
	require.Error(t, err, "top-level await is fatal outside es and system")
	assert.True(t, notified, "renderError must fire before the error returns")
}

func TestAssetLifecycleErrorCodes(t *testing.T) {
	ctx := context.Background()
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: twoModuleFS()})
	require.NoError(t, err)
	defer bundle.Close()

	require.Error(t, bundle.EmitAsset("empty.bin", nil),
		"an asset without a source is ASSET_SOURCE_MISSING")

	require.NoError(t, bundle.EmitAsset("logo.svg", []byte("<svg/>")))
	_, err = bundle.AssetFileName("logo.svg")
	require.Error(t, err, "file names are not finalised before Generate")

	_, err = bundle.Generate(ctx, DefaultOutputOptions())
	require.NoError(t, err)

	fileName, err := bundle.AssetFileName("logo.svg")
	require.NoError(t, err)
	assert.NotEmpty(t, fileName)

	require.Error(t, bundle.EmitChunk(EmitChunkSpec{Id: "/late.js"}),
		"chunks cannot be emitted once loading has finished")
}

func TestGetModuleInfoReportsGraphLinks(t *testing.T) {
	ctx := context.Background()
	bundle, err := Rollup(ctx, InputOptions{Input: []string{"/entry.js"}, FS: twoModuleFS()})
	require.NoError(t, err)
	defer bundle.Close()

	lib := bundle.GetModuleInfo("/lib.js")
	require.NotNil(t, lib)
	assert.False(t, lib.IsEntry)
	assert.Equal(t, []string{"/entry.js"}, lib.Importers)

	entry := bundle.GetModuleInfo("/entry.js")
	require.NotNil(t, entry)
	assert.True(t, entry.IsEntry)
	assert.Equal(t, []string{"./lib.js"}, entry.ImportedIds)

	assert.Nil(t, bundle.GetModuleInfo("/nope.js"))
}
