// Package compat holds the per-format tables: each of the six output
// formats dictates an import preamble, export block, dynamic-import
// expression, import.meta mechanism, interop helpers, and an
// accessed-globals list. There is no browser/Node version
// feature-support table here: this bundler has no "lower to target"
// transform stage (it consumes and re-emits the input syntax;
// tree-shaking and bundling operate on the AST as parsed). The shape is
// a small, closed table keyed by an enum, looked up once per
// format/feature pair rather than computed ad hoc at each call site.
package compat

// Format is the output-format enum.
type Format uint8

const (
	FormatES Format = iota
	FormatCJS
	FormatAMD
	FormatUMD
	FormatIIFE
	FormatSystem
)

func (f Format) String() string {
	switch f {
	case FormatES:
		return "es"
	case FormatCJS:
		return "cjs"
	case FormatAMD:
		return "amd"
	case FormatUMD:
		return "umd"
	case FormatIIFE:
		return "iife"
	case FormatSystem:
		return "system"
	default:
		return "es"
	}
}

func ParseFormat(s string) (Format, bool) {
	switch s {
	case "es", "esm", "module":
		return FormatES, true
	case "cjs", "commonjs":
		return FormatCJS, true
	case "amd":
		return FormatAMD, true
	case "umd":
		return FormatUMD, true
	case "iife":
		return FormatIIFE, true
	case "system", "systemjs":
		return FormatSystem, true
	default:
		return FormatES, false
	}
}

// SupportsLiveBindings reports whether a format honours live bindings
// natively; elsewhere a named getter is synthesised when
// externalLiveBindings is enabled.
func SupportsLiveBindings(f Format) bool {
	return f == FormatES || f == FormatSystem
}

// SupportsTopLevelAwait reports whether top-level await can be
// emitted; it is fatal in any format other than es or system.
func SupportsTopLevelAwait(f Format) bool {
	return f == FormatES || f == FormatSystem
}

// ReservedNames is the set of identifiers a given format's own
// preamble, interop helpers, or runtime reserve — part of the
// used-names set the renamer deconflicts against.
func ReservedNames(f Format) map[string]bool {
	base := map[string]bool{
		"exports": true, "module": true, "require": true,
	}
	switch f {
	case FormatAMD:
		base["define"] = true
	case FormatUMD:
		base["define"] = true
		base["global"] = true
		base["globalThis"] = true
	case FormatSystem:
		base["System"] = true
	case FormatIIFE:
		base["globalThis"] = true
	}
	return base
}

// InteropHelperNames is the fixed set of interop helper identifiers the
// renderer can synthesise (__toESM, __toCommonJS, and friends in
// internal/runtime).
var InteropHelperNames = []string{
	"__toESM",
	"__toCommonJS",
	"__esModuleExport",
	"__exportStar",
	"__reExport",
}
