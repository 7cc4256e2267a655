// Package config normalises the InputOptions/OutputOptions object passed
// across the programmatic API boundary (`rollup(inputOptions) → Bundle`,
// `Bundle.generate(outputOptions)`). This package is a fresh normalisation
// layer over the option surface this bundler actually exposes: entry/
// external/plugin wiring on the input side, format/file-naming/manual-
// chunks/interop on the output side — no transform options (JSX, target,
// minify, per-extension loaders, define maps), since this bundler does no
// language-downleveling or minification of its own.
package config

import (
	"github.com/rollup-go/rollup/internal/compat"
)

// ExternalPredicate reports whether a given (source, importer, isResolved)
// import should be treated as external rather than bundled.
type ExternalPredicate func(source string, importer string, isResolved bool) bool

// ExportMode is the per-chunk export-block choice.
type ExportMode string

const (
	ExportAuto    ExportMode = "auto"
	ExportNamed   ExportMode = "named"
	ExportDefault ExportMode = "default"
	ExportNone    ExportMode = "none"
)

// InputOptions mirrors the input side of the programmatic API.
type InputOptions struct {
	Input                         []string
	External                      ExternalPredicate
	MakeAbsoluteExternalsRelative bool
	Plugins                       []PluginRef
	Cache                         bool // false disables cross-build module caching
	Shimmissingexports            bool
}

// PluginRef is an opaque handle into the plugin registry this package
// doesn't own (internal/plugin.Descriptor) — kept here only to round-trip
// through InputOptions without creating an import cycle between config and
// plugin.
type PluginRef struct {
	Name string
}

// ManualChunksFunc maps a module id to an optional manual-chunk alias.
type ManualChunksFunc func(id string) (alias string, ok bool)

// ManualChunksFromMap normalises output.manualChunks' object-map form
// ({alias: [ids]}) to the same func(id) (alias, ok) signature the chunk
// planner expects — both forms normalise to the same signature before the
// chunk planner sees them.
func ManualChunksFromMap(m map[string][]string) ManualChunksFunc {
	byId := make(map[string]string, len(m))
	for alias, ids := range m {
		for _, id := range ids {
			byId[id] = alias
		}
	}
	return func(id string) (string, bool) {
		alias, ok := byId[id]
		return alias, ok
	}
}

// OutputOptions mirrors the output side of the programmatic API.
type OutputOptions struct {
	Format compat.Format

	EntryFileNames string // default "[name].js"
	ChunkFileNames string // default "[name]-[hash].js"
	AssetFileNames string // default "assets/[name]-[hash][extname]"

	ManualChunks ManualChunksFunc

	PreserveModules     bool
	PreserveModulesRoot string

	Exports ExportMode

	Interop              func(id string) string // one of auto/esModule/default/defaultOnly/compat/true/false
	ExternalLiveBindings bool

	// HoistTransitiveImports makes an
	// entry chunk's static import statements list not just its direct
	// chunk/external dependencies but (by default) those dependencies'
	// own dependencies too, so a consumer's module loader can start
	// fetching the whole graph from the first request. Setting this false
	// limits the import list to direct dependencies only.
	HoistTransitiveImports bool

	// Paths overrides the render path written into import/require
	// specifiers for a given external id, keyed by the id exactly as it
	// was passed to the external predicate. Absent ids fall back to the
	// id itself.
	Paths func(id string) (string, bool)

	Banner, Footer, Intro, Outro string

	SourcemapPathTransform func(relativePath string, sourcemapPath string) string
	Sourcemap              bool
}

func DefaultOutputOptions() OutputOptions {
	return OutputOptions{
		Format:                 compat.FormatES,
		EntryFileNames:         "[name].js",
		ChunkFileNames:         "[name]-[hash].js",
		AssetFileNames:         "assets/[name]-[hash][extname]",
		Exports:                ExportAuto,
		ExternalLiveBindings:   true,
		HoistTransitiveImports: true,
	}
}
