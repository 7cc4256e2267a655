// Package resolver implements the built-in resolveId fallback: relative
// paths resolve against the importer's directory, absolute paths pass
// through unchanged, and bare specifiers are left for a plugin or fall back
// to "external, with a warning" (an unresolved relative import is fatal
// instead). This is deliberately a small algorithm: node_modules walks,
// package.json main-field precedence, and path-mapping manifests all
// exist to serve a bundler that owns its own filesystem and
// module-resolution story. Here the host filesystem is reachable only
// through the plugin-callable resolveId/load hooks, so there is no
// package.json or node_modules algorithm to port: the built-in resolver is
// only the fallback used when no plugin claims a specifier.
package resolver

import (
	"strings"

	"github.com/rollup-go/rollup/internal/fs"
	"github.com/rollup-go/rollup/internal/logger"
)

// External is the classification an id can fall into during resolution,
// mirroring ResolvedId.external.
type External uint8

const (
	ExternalNone External = iota
	ExternalTrue
	ExternalAbsolute
)

type ResolvedId struct {
	Id                    string
	External              External
	ModuleSideEffects     *bool       // nil means "use the default heuristic"
	SyntheticNamedExports interface{} // false, true, or a string —
	Meta                  map[string]interface{}
}

func isRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || specifier == "." || specifier == ".."
}

// IsRelativeSpecifier exposes the relative-path classification to callers
// outside this package (internal/loader uses it to pick between the fatal
// and warning halves of unresolved-import handling).
func IsRelativeSpecifier(specifier string) bool {
	return isRelative(specifier)
}

// Resolve is the built-in resolver only; the plugin resolveId chain
// (internal/plugin) and the user-supplied "external" predicate are
// applied by the caller (internal/loader) before falling back to this
// function.
func Resolve(fsys fs.FS, importerDir string, specifier string) ResolvedId {
	if fsys.IsAbs(specifier) {
		if abs, err := fsys.Abs(specifier); err == nil {
			return ResolvedId{Id: abs}
		}
		return ResolvedId{Id: specifier}
	}
	if isRelative(specifier) {
		return ResolvedId{Id: fsys.Join(importerDir, specifier)}
	}
	// Bare specifier: the built-in resolver does not search node_modules
	// (the real filesystem sits behind the plugin surface only). Left
	// unresolved here, the loader treats this as external-with-a-warning
	// unless a plugin or the external predicate already claimed it.
	return ResolvedId{Id: specifier, External: ExternalTrue}
}

// UnresolvedRelative is the fatal half of unresolved-import handling:
// an unresolved relative import aborts the build. The caller
// (internal/loader) invokes this once the built-in resolver's relative-path
// candidate fails to exist on disk and no plugin's resolveId claimed it
// either.
func UnresolvedRelative(log *logger.Log, loc *logger.Loc, importer string, specifier string) {
	log.AddError(loc, logger.CodeUnresolvedImport, "Could not resolve \""+specifier+"\" from \""+importer+"\"")
}

// UnresolvedNonRelative implements the warning half of the same failure
// semantics: a bare specifier nothing resolved becomes external instead of
// failing the build.
func UnresolvedNonRelative(log *logger.Log, loc *logger.Loc, specifier string) {
	log.AddWarning(loc, logger.CodeUnresolvedImport, "\""+specifier+"\" was not resolved and has been treated as an external dependency")
}
