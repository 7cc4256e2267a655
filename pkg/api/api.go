// Package api is the programmatic surface: Rollup(inputOptions) ->
// Bundle, Bundle.Generate/Write/Close. It is the orchestration layer
// that strings the four phase barriers together (LOAD_AND_PARSE,
// ANALYSE, GENERATE, and the write-to-disk step that follows it) over
// the lower packages, none of which know about each other's existence
// except through the values this package passes between them.
//
// A single entrypoint builds the log, plugin driver and loader fresh per
// call (and the fs and cache too, unless InputOptions supplies them) and
// hands back a value whose methods
// are the only thing a caller touches, rather than exposing any of the
// internal/* packages directly. Watch is internal/fswatch's job, a thin
// wrapper around repeated Bundle builds.
package api

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/cache"
	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/compat"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/fs"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/loader"
	"github.com/rollup-go/rollup/internal/logger"
	"github.com/rollup-go/rollup/internal/plugin"
	"github.com/rollup-go/rollup/internal/render"
	"github.com/rollup-go/rollup/internal/treeshake"
)

// Re-exported so a caller never has to import internal/config or
// internal/compat directly; everything below this package is an
// internal collaborator.
type (
	OutputOptions    = config.OutputOptions
	ExportMode       = config.ExportMode
	ManualChunksFunc = config.ManualChunksFunc
	Format           = compat.Format
)

const (
	FormatES     = compat.FormatES
	FormatCJS    = compat.FormatCJS
	FormatAMD    = compat.FormatAMD
	FormatUMD    = compat.FormatUMD
	FormatIIFE   = compat.FormatIIFE
	FormatSystem = compat.FormatSystem
)

func DefaultOutputOptions() OutputOptions { return config.DefaultOutputOptions() }
func ManualChunksFromMap(m map[string][]string) ManualChunksFunc {
	return config.ManualChunksFromMap(m)
}

// InputOptions is the input side of the API, with the granular
// treeshake knob and the FS/Cache seams a Go caller (as opposed to a JS
// host) actually needs to supply.
type InputOptions struct {
	Input                         []string
	External                      config.ExternalPredicate
	MakeAbsoluteExternalsRelative bool
	Plugins                       []*Plugin

	// PreserveEntrySignatures is one of "exports-only" (default),
	// "strict", "allow-extension", or "false", applied to every
	// user-defined entry module.
	PreserveEntrySignatures string

	// EmitChunks schedules additional entry chunks during load, the
	// `emitFile({type: 'chunk'})` surface. A spec with
	// ImplicitlyLoadedAfterOneOf produces an implicit entry: placed after
	// the listed modules but never reachable as an entry of its own.
	EmitChunks []EmitChunkSpec

	// Treeshake carries the granular options (propertyReadSideEffects,
	// tryCatchDeoptimization, unknownGlobalSideEffects) plus the
	// "treeshake: false" switch. A nil value uses
	// treeshake.DefaultOptions.
	Treeshake *treeshake.Options

	// FS lets a caller substitute a mock filesystem (tests) or a
	// decorated RealFS; nil defaults to fs.RealFS{}.
	FS fs.FS

	// Cache, when non-nil, is reused across builds so that an unchanged
	// module's parsed form survives a rebuild. A nil value makes a
	// fresh, build-scoped cache.
	Cache *cache.CacheSet

	// StrictDeprecations upgrades DEPRECATED_FEATURE warnings to fatal
	// errors.
	StrictDeprecations bool

	// ManualChunks at the input level is deprecated; set it on
	// OutputOptions instead. When both are present the output-level
	// function wins.
	ManualChunks config.ManualChunksFunc
}

// Bundle is the value Rollup returns: a fully loaded and tree-shaken
// module graph, ready for one or more Generate/Write calls against
// different OutputOptions.
type Bundle struct {
	store      *graph.Store
	log        *logger.Log
	plugins    *plugin.Driver
	pluginList []*Plugin
	fsys       fs.FS
	cacheSet   *cache.CacheSet

	entryModules    []*graph.Module
	implicitEntries map[string]bool

	treeshakeOpts treeshake.Options

	inputManualChunks config.ManualChunksFunc

	assets []emittedAsset

	closed bool
}

// EmitChunkSpec mirrors loader.EmitChunkSpec at the public boundary.
type EmitChunkSpec struct {
	Id                         string
	Name                       string
	ImplicitlyLoadedAfterOneOf []string
}

type emittedAsset struct {
	name     string
	source   []byte
	fileName string // assigned during Generate
}

// EmitAsset registers a non-JS file to be written alongside the chunks,
// the `emitFile({type: 'asset'})` surface. Assets with byte-identical
// content are deduplicated onto one output file at Generate time.
func (b *Bundle) EmitAsset(name string, source []byte) error {
	if b.closed {
		return logger.NewBuildError(logger.CodeInvalidPhase,
			"cannot emit files after the bundle has closed", nil)
	}
	if source == nil {
		return logger.NewBuildError(logger.CodeAssetSourceMissing,
			fmt.Sprintf("no asset source set for asset %q", name), nil)
	}
	b.assets = append(b.assets, emittedAsset{name: name, source: source})
	return nil
}

// AssetFileName returns the output file name assigned to a previously
// emitted asset. File names are only assigned when Generate runs (the
// pattern and dedup index are per-output), so asking earlier fails with
// ASSET_NOT_FINALISED.
func (b *Bundle) AssetFileName(name string) (string, error) {
	for _, a := range b.assets {
		if a.name != name {
			continue
		}
		if a.fileName == "" {
			return "", logger.NewBuildError(logger.CodeAssetNotFinalised,
				fmt.Sprintf("returned file names can only be generated after the bundle has been written; asset %q is not finalised", name), nil)
		}
		return a.fileName, nil
	}
	return "", logger.NewBuildError(logger.CodeValidationError,
		fmt.Sprintf("no asset emitted under the name %q", name), nil)
}

// EmitChunk after Rollup has returned is always out of phase: chunks can
// only join the graph while modules are still being loaded, through
// InputOptions.EmitChunks.
func (b *Bundle) EmitChunk(spec EmitChunkSpec) error {
	return logger.NewBuildError(logger.CodeInvalidPhase,
		fmt.Sprintf("cannot emit chunk %q after the build has finished; use InputOptions.EmitChunks", spec.Id), nil)
}

// OutputFile is one member of the output union (chunk or asset),
// re-exported from internal/render.
type OutputFile = render.Output

// BundleOutput is the {output: OutputFile[]} value generate/write
// return.
type BundleOutput struct {
	Output []*OutputFile
}

// Rollup builds a Bundle from input options:
// phase LOAD_AND_PARSE followed immediately by phase ANALYSE, since
// nothing downstream of tree-shaking is observable until a format is
// chosen at Generate/Write time.
func Rollup(ctx context.Context, in InputOptions) (*Bundle, error) {
	log := logger.NewLog()
	log.SetStrictDeprecations(in.StrictDeprecations)
	if in.ManualChunks != nil {
		log.AddDeprecation(nil, `the "manualChunks" input option is deprecated, use the "output.manualChunks" option instead`)
		if log.HasErrors() {
			return nil, firstError(log)
		}
	}

	fsys := in.FS
	if fsys == nil {
		fsys = fs.RealFS{}
	}

	cacheSet := in.Cache
	if cacheSet == nil {
		cacheSet = cache.MakeCacheSet()
	}

	descriptors := make([]*plugin.Descriptor, 0, len(in.Plugins))
	for _, p := range in.Plugins {
		descriptors = append(descriptors, p.toDescriptor())
	}
	driver := plugin.NewDriver(log, descriptors)

	if err := driver.Sequential(plugin.HookBuildStart); err != nil {
		return nil, err
	}

	store := graph.NewStore()
	ld := loader.New(store, fsys, log, driver, cacheSet, in.External, in.MakeAbsoluteExternalsRelative)

	if _, err := ld.AddEntryModules(ctx, in.Input, true); err != nil {
		return nil, err
	}
	if sig, ok := parsePreserveSignature(in.PreserveEntrySignatures); ok {
		for _, m := range ld.EntryModules() {
			m.PreserveSignature = sig
		}
	}
	for _, spec := range in.EmitChunks {
		if _, err := ld.EmitChunk(ctx, loader.EmitChunkSpec(spec)); err != nil {
			return nil, err
		}
	}
	if err := driver.Parallel(ctx, plugin.HookBuildEnd); err != nil {
		return nil, err
	}
	if log.HasErrors() {
		return nil, firstError(log)
	}

	treeshakeOpts := treeshake.DefaultOptions()
	if in.Treeshake != nil {
		treeshakeOpts = *in.Treeshake
	}

	// Implicit entries join the declared ones for analysis and chunk
	// planning: they are roots whose exports must survive, they just
	// never surface as user entries in the output metadata.
	implicit := make(map[string]bool)
	var implicitIds []string
	for id := range ld.ImplicitEntryModules() {
		implicit[string(id)] = true
		implicitIds = append(implicitIds, string(id))
	}
	sort.Strings(implicitIds)
	entryModules := ld.EntryModules()
	for _, id := range implicitIds {
		if m, ok := store.Get(ast.ModuleId(id)); ok {
			entryModules = append(entryModules, m)
		}
	}

	if err := treeshake.Run(store, log, entryModules, treeshakeOpts); err != nil {
		return nil, err
	}
	if log.HasErrors() {
		return nil, firstError(log)
	}

	return &Bundle{
		store:           store,
		log:             log,
		plugins:         driver,
		pluginList:      in.Plugins,
		fsys:            fsys,
		cacheSet:        cacheSet,
		entryModules:      entryModules,
		implicitEntries:   implicit,
		treeshakeOpts:     treeshakeOpts,
		inputManualChunks: in.ManualChunks,
	}, nil
}

// Generate runs phase GENERATE against one set of output options; no
// filesystem writes happen here.
func (b *Bundle) Generate(ctx context.Context, opts OutputOptions) (*BundleOutput, error) {
	if b.closed {
		return nil, logger.NewBuildError(logger.CodeAlreadyClosed, "Bundle is already closed", nil)
	}

	// outputOptions hook is "sequential, in->out":
	// each plugin gets a chance to rewrite the output options object
	// before the next one runs. internal/plugin.Driver's Sequential kind
	// threads no value (it's built for hooks like buildStart that don't
	// transform anything), so this one rewrite-in-place hook is dispatched
	// directly against the typed Plugin list instead of going through the
	// Driver at all.
	for _, p := range b.pluginList {
		if p.OutputOptions != nil {
			p.OutputOptions(&opts)
		}
	}
	if b.plugins != nil {
		if err := b.plugins.Sequential(plugin.HookRenderStart); err != nil {
			return nil, err
		}
	}

	if opts.ManualChunks == nil {
		opts.ManualChunks = b.inputManualChunks
	}

	chunks, err := chunk.Plan(chunk.Input{
		Store:        b.store,
		EntryModules: b.entryModules,
		Output:       opts,
		Log:          b.log,
	})
	if err != nil {
		return nil, b.notifyRenderError(ctx, err)
	}

	outputs, err := render.RenderAll(render.Input{
		Chunks:  chunks,
		Store:   b.store,
		Output:  opts,
		Log:     b.log,
		Plugins: b.plugins,
	})
	if err != nil {
		return nil, b.notifyRenderError(ctx, err)
	}

	markOutputFlags(outputs, b.implicitEntries)

	if len(b.assets) > 0 {
		emitter := chunk.NewAssetEmitter(opts.AssetFileNames)
		seen := make(map[string]bool)
		for i, a := range b.assets {
			asset := emitter.Emit(a.name, a.source)
			b.assets[i].fileName = asset.FileName
			if seen[asset.FileName] {
				continue
			}
			seen[asset.FileName] = true
			outputs = append(outputs, &render.Output{
				Type:     "asset",
				FileName: asset.FileName,
				Source:   asset.Source,
				Name:     asset.Name,
			})
		}
	}

	if b.plugins != nil {
		bundleMap := make(map[string]interface{}, len(outputs))
		for _, o := range outputs {
			bundleMap[o.FileName] = o
		}
		if _, err := b.plugins.Reduce(plugin.HookGenerateBundle, bundleMap); err != nil {
			return nil, err
		}
	}

	if b.log.HasErrors() {
		return nil, firstError(b.log)
	}

	sort.SliceStable(outputs, func(i, j int) bool { return outputs[i].FileName < outputs[j].FileName })
	return &BundleOutput{Output: outputs}, nil
}

// markOutputFlags fixes up the IsImplicitEntry flag Generate's chunk
// planner doesn't itself know about; implicit-entry-ness is loader-level
// bookkeeping, not a chunk-planning concept.
func markOutputFlags(outputs []*render.Output, implicit map[string]bool) {
	for _, o := range outputs {
		if implicit[o.FacadeModuleId] {
			o.IsImplicitEntry = true
			o.IsEntry = false
			o.IsDynamicEntry = false
		}
	}
}

// Write is Generate plus persistence: every chunk/asset goes to disk
// through the same FS seam the loader reads through, followed by the
// writeBundle hook.
func (b *Bundle) Write(ctx context.Context, opts OutputOptions, outDir string) (*BundleOutput, error) {
	result, err := b.Generate(ctx, opts)
	if err != nil {
		return nil, err
	}

	writer, ok := b.fsys.(interface {
		WriteFile(path string, contents []byte) error
	})
	if !ok {
		return nil, fmt.Errorf("write: configured FS does not support WriteFile")
	}
	for _, o := range result.Output {
		dest := b.fsys.Join(outDir, o.FileName)
		var contents []byte
		if o.Type == "asset" {
			contents = o.Source
		} else {
			contents = []byte(o.Code)
			if o.Map != "" {
				contents = append(contents, []byte(render.SourceMappingURLComment(o.FileName))...)
				if err := writer.WriteFile(dest+".map", []byte(o.Map)); err != nil {
					return nil, err
				}
			}
		}
		if err := writer.WriteFile(dest, contents); err != nil {
			return nil, err
		}
	}

	// writeBundle receives the full typed bundle map, which
	// internal/plugin.Driver.Sequential has no slot to carry, so this
	// hook is dispatched directly against the typed Plugin list, the same
	// way outputOptions is in Generate.
	if len(b.pluginList) > 0 {
		bundleMap := make(map[string]*OutputFile, len(result.Output))
		for _, o := range result.Output {
			bundleMap[o.FileName] = o
		}
		for _, p := range b.pluginList {
			if p.WriteBundle != nil {
				if err := p.WriteBundle(bundleMap); err != nil {
					return nil, err
				}
			}
		}
	}
	return result, nil
}

// notifyRenderError fires the renderError hook for a GENERATE-phase
// failure and passes the original error through unchanged; hook failures
// never mask the build error that triggered them.
func (b *Bundle) notifyRenderError(ctx context.Context, err error) error {
	if b.plugins != nil {
		_ = b.plugins.Parallel(ctx, plugin.HookRenderError)
	}
	return err
}

// Close runs the closeBundle hook and marks the Bundle unusable.
// Idempotent.
func (b *Bundle) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.plugins == nil {
		return nil
	}
	// Any "first"-kind hook invocation still pending at close time has a
	// goroutine stranded inside a handler with no further work scheduled
	// to release it; name the stuck hooks rather than exiting silently.
	if stuck := b.plugins.UnfinishedHooks(); len(stuck) > 0 {
		return logger.NewBuildError(logger.CodePluginError,
			fmt.Sprintf("unfinished hook actions on exit: %s", strings.Join(stuck, ", ")), nil)
	}
	return b.plugins.Sequential(plugin.HookCloseBundle)
}

// ModuleInfo is the read-only per-module view handed out by
// GetModuleInfo, the introspection surface mirroring what plugins see.
type ModuleInfo struct {
	Id                     string
	IsEntry                bool
	IsIncluded             bool
	ImportedIds            []string
	DynamicallyImportedIds []string
	Importers              []string
	DynamicImporters       []string
	ImplicitlyLoadedBefore []string
}

// GetModuleInfo returns a snapshot of a module's derived facts, or nil
// when no module with that id is in the graph.
func (b *Bundle) GetModuleInfo(id string) *ModuleInfo {
	m, ok := b.store.Get(ast.ModuleId(id))
	if !ok {
		return nil
	}
	info := &ModuleInfo{
		Id:                     string(m.Id),
		IsEntry:                m.IsEntry,
		IsIncluded:             m.Included,
		ImportedIds:            append([]string{}, m.Sources...),
		DynamicallyImportedIds: append([]string{}, m.DynamicImports...),
		Importers:              sortedIds(m.Importers),
		DynamicImporters:       sortedIds(m.DynamicImporters),
	}
	for _, before := range m.ImplicitlyLoadedBefore {
		info.ImplicitlyLoadedBefore = append(info.ImplicitlyLoadedBefore, string(before))
	}
	return info
}

// sortedIds dedupes, copies, and sorts; importer lists are appended from
// the load fan-out's goroutines, so their insertion order is not
// reproducible, and a module importing the same dependency twice records
// two entries.
func sortedIds(ids []ast.ModuleId) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[string(id)] {
			seen[string(id)] = true
			out = append(out, string(id))
		}
	}
	sort.Strings(out)
	return out
}

// ModuleIds returns the id of every non-external module currently in the
// graph, in store insertion order. internal/fswatch uses this to seed its
// file-system watch set after a build completes.
func (b *Bundle) ModuleIds() []string {
	mods := b.store.Modules()
	ids := make([]string, len(mods))
	for i, m := range mods {
		ids[i] = string(m.Id)
	}
	return ids
}

// Warnings returns every warning (non-fatal Msg) accumulated so far,
// sorted deterministically; warnings for a single source location are
// emitted at most once per build.
func (b *Bundle) Warnings() []logger.Msg {
	return b.log.Warnings()
}

func parsePreserveSignature(s string) (graph.PreserveSignature, bool) {
	switch s {
	case "strict":
		return graph.PreserveSignatureStrict, true
	case "allow-extension":
		return graph.PreserveSignatureAllowExtension, true
	case "false":
		return graph.PreserveSignatureFalse, true
	case "exports-only":
		return graph.PreserveSignatureExportsOnly, true
	default:
		return graph.PreserveSignatureFalse, false
	}
}

func firstError(log *logger.Log) error {
	errs := log.Errors()
	if len(errs) == 0 {
		return fmt.Errorf("build failed")
	}
	return logger.NewBuildError(errs[0].Code, errs[0].Text, errs[0].Loc)
}
