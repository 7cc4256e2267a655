package render

import (
	"sort"
	"strings"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/logger"
)

// chunkExport is one name in a chunk's export block: the exported name and
// the render-time expression that produces its value (usually a bare
// deconflicted identifier, but external-backed bindings resolve to a
// namespace member access).
type chunkExport struct {
	exported string
	local    string
}

// externalReexport is an "export {x} from 'ext'" whose source stayed
// external: the binding has no local declaration anywhere in the graph, so
// the export block has to forward it at the boundary.
type externalReexport struct {
	ext      *graph.ExternalModule
	local    string // name inside the external module
	exported string
}

// chunkExports is everything the export block and the format wrapper need
// to know about what this chunk exposes.
type chunkExports struct {
	named         []chunkExport
	reexports     []externalReexport
	starReexports []*graph.ExternalModule
	mode          config.ExportMode

	// defaultLocal is the expression behind the "default" export, valid
	// when mode == config.ExportDefault.
	defaultLocal string
}

// exportsFor computes the chunk's export surface: the entry module's
// declared exports (resolved through re-export chains to their render
// names) plus whatever bindings other chunks reached into this one for
// during the scan pass.
func exportsFor(ctx *chunkCtx, c *chunk.Chunk) chunkExports {
	var ex chunkExports
	seen := make(map[string]bool)

	if em := c.EntryModule; em != nil {
		names := make([]string, 0, len(em.Exports))
		for name := range em.Exports {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ref := em.Exports[name]
			if !ref.IsValid() {
				continue
			}
			owner, ok := ctx.store.ModuleByIndex(ref.ModuleIndex)
			if !ok {
				continue
			}
			seen[name] = true
			ex.named = append(ex.named, chunkExport{exported: name, local: ctx.noteReference(owner, ref)})
		}
		collectExternalReexports(ctx, em, seen, &ex)
	}

	// Bindings some other chunk imported from this one. Exported under the
	// producer-side render name, which the importer's preamble was already
	// written against.
	if owed := ctx.crossChunkExports[c]; len(owed) > 0 {
		keys := make([]ast.Ref, 0, len(owed))
		for key := range owed {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].ModuleIndex != keys[j].ModuleIndex {
				return keys[i].ModuleIndex < keys[j].ModuleIndex
			}
			return keys[i].InnerIndex < keys[j].InnerIndex
		})
		for _, key := range keys {
			name := owed[key]
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			ex.named = append(ex.named, chunkExport{exported: name, local: name})
		}
	}

	return ex
}

// collectExternalReexports walks the entry module's own statements for
// re-exports whose source resolved to an external module — those never
// made it into Module.Exports (there is no Ref to point at), so the
// export block forwards them directly.
func collectExternalReexports(ctx *chunkCtx, em *graph.Module, seen map[string]bool, ex *chunkExports) {
	if em.Program == nil {
		return
	}
	for i := range em.Program.Stmts {
		switch v := em.Program.Stmts[i].Data.(type) {
		case *js_ast.SExportNamed:
			if v.Source == nil {
				continue
			}
			rec := em.Program.ImportRecords[v.ImportRecordIndex]
			if !rec.External {
				continue
			}
			ext, _ := ctx.store.GetOrCreateExternal(ast.ModuleId(rec.ExternalId))
			for _, spec := range v.Specifiers {
				if seen[spec.Exported] {
					continue
				}
				seen[spec.Exported] = true
				ex.reexports = append(ex.reexports, externalReexport{ext: ext, local: spec.Local, exported: spec.Exported})
			}
		case *js_ast.SExportAll:
			rec := em.Program.ImportRecords[v.ImportRecordIndex]
			if !rec.External || v.As != nil {
				continue
			}
			ext, _ := ctx.store.GetOrCreateExternal(ast.ModuleId(rec.ExternalId))
			ex.starReexports = append(ex.starReexports, ext)
		}
	}
}

// resolveExportMode decides the chunk's export mode once: preserveModules
// and explicit "named" force named; an entry with only a default export
// under "auto" gets default; no exports means none. Mixing a default
// export into a named surface under "auto" warns; demanding "default"
// with more than one export is fatal.
func resolveExportMode(in Input, c *chunk.Chunk, ex *chunkExports) error {
	total := len(ex.named) + len(ex.reexports)
	hasDefault := false
	defaultLocal := ""
	for _, e := range ex.named {
		if e.exported == "default" {
			hasDefault = true
			defaultLocal = e.local
		}
	}

	mode := in.Output.Exports
	if mode == "" {
		mode = config.ExportAuto
	}
	if in.Output.PreserveModules {
		mode = config.ExportNamed
	}

	switch mode {
	case config.ExportNamed:
		ex.mode = config.ExportNamed
	case config.ExportNone:
		if total > 0 {
			return formatError(c, logger.CodeInvalidExportOpt,
				"\"none\" was specified for \"output.exports\", but the chunk has exports")
		}
		ex.mode = config.ExportNone
	case config.ExportDefault:
		if total != 1 || !hasDefault || len(ex.starReexports) > 0 {
			return formatError(c, logger.CodeInvalidExportOpt,
				"\"default\" was specified for \"output.exports\", but the chunk's exports are not a single default export")
		}
		ex.mode = config.ExportDefault
		ex.defaultLocal = defaultLocal
	default: // auto
		if total == 0 && len(ex.starReexports) == 0 {
			ex.mode = config.ExportNone
		} else if total == 1 && hasDefault && len(ex.starReexports) == 0 {
			ex.mode = config.ExportDefault
			ex.defaultLocal = defaultLocal
		} else {
			if hasDefault && in.Log != nil {
				in.Log.AddWarningOnce("mixed-exports:"+c.FileName, nil, logger.CodeMixedExports,
					"chunk has a default export alongside named exports; consumers using require will need to access it as .default")
			}
			ex.mode = config.ExportNamed
		}
	}
	return nil
}

// exportedNames flattens the export surface for the Output metadata.
func exportedNames(ex chunkExports) []string {
	out := make([]string, 0, len(ex.named)+len(ex.reexports))
	for _, e := range ex.named {
		out = append(out, e.exported)
	}
	for _, r := range ex.reexports {
		out = append(out, r.exported)
	}
	sort.Strings(out)
	return out
}

// validateExternalImports enforces that a defaultOnly external never
// receives named imports from any module in this chunk.
func validateExternalImports(ctx *chunkCtx, c *chunk.Chunk) error {
	for _, m := range c.Modules {
		if m.Program == nil {
			continue
		}
		for i := range m.Program.Stmts {
			imp, ok := m.Program.Stmts[i].Data.(*js_ast.SImport)
			if !ok || !m.Program.Stmts[i].Included {
				continue
			}
			rec := m.Program.ImportRecords[imp.ImportRecordIndex]
			if !rec.External {
				continue
			}
			ext, _ := ctx.store.GetOrCreateExternal(ast.ModuleId(rec.ExternalId))
			if interopFor(ctx, ext) != graph.InteropDefaultOnly {
				continue
			}
			for _, item := range imp.Items {
				if item.Alias != "default" && item.Alias != "*" {
					return formatError(c, logger.CodeValidationError,
						"module \""+string(m.Id)+"\" requests the named export \""+item.Alias+
							"\" from \""+string(ext.Id)+"\", which is declared interop \"defaultOnly\"")
				}
			}
		}
	}
	return nil
}

// interopFor resolves the per-external interop mode from output options,
// falling back to the kind recorded on the external module itself.
func interopFor(ctx *chunkCtx, ext *graph.ExternalModule) graph.InteropKind {
	if ctx.output.Interop != nil {
		switch ctx.output.Interop(string(ext.Id)) {
		case "esModule":
			return graph.InteropESModule
		case "default":
			return graph.InteropDefault
		case "defaultOnly":
			return graph.InteropDefaultOnly
		case "compat":
			return graph.InteropCompat
		case "true":
			return graph.InteropTrue
		case "false":
			return graph.InteropFalse
		case "auto":
			return graph.InteropAuto
		}
	}
	return ext.Interop
}

// requireExpr is the CommonJS-side expression that materialises an
// external namespace under a given interop mode.
func requireExpr(ctx *chunkCtx, ext *graph.ExternalModule) string {
	call := "require(" + quotePath(renderPathFor(ctx, ext)) + ")"
	switch interopFor(ctx, ext) {
	case graph.InteropFalse:
		return call
	case graph.InteropDefaultOnly:
		return "{ default: " + call + " }"
	default:
		return ctx.useHelper("__toESM") + "(" + call + ")"
	}
}

// globalNameGuess derives the global-variable name a UMD/IIFE build reads
// an external dependency from when no loader is present.
func globalNameGuess(ext *graph.ExternalModule) string {
	return js_ast.EnsureValidIdentifier(stripJsExt(moduleNamespaceGuess(ext.Id)))
}

// chunkNamespacePreferred is the identifier a required sibling chunk's
// namespace object is bound to in cjs/amd/umd bodies.
func chunkNamespacePreferred(c *chunk.Chunk) string {
	if c.ManualChunkAlias != "" {
		return js_ast.EnsureValidIdentifier(c.ManualChunkAlias)
	}
	if c.EntryModule != nil {
		return js_ast.EnsureValidIdentifier(stripJsExt(moduleNamespaceGuess(c.EntryModule.Id)))
	}
	if len(c.Modules) > 0 {
		return js_ast.EnsureValidIdentifier(stripJsExt(moduleNamespaceGuess(c.Modules[0].Id)))
	}
	return "chunk"
}

// stripJsExt turns a chunk base name into the identifier base a UMD/IIFE
// global is named after.
func stripJsExt(name string) string {
	return strings.TrimSuffix(name, ".js")
}
