package render

import (
	"path"
	"strings"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/compat"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/helpers"
)

// crossChunkImport is one producer chunk's contribution to this chunk's
// import preamble: every local binding this chunk needs from it, paired
// with the exact name the producer's own export block exposes it under.
type crossChunkImport struct {
	producer *chunk.Chunk
	specs    []bindingSpec
}

type bindingSpec struct {
	exported string
	local    string
}

// crossChunkImports groups ctx.crossChunkOrder by producer chunk,
// preserving the order each producer was first referenced in; output
// determinism extends to the order import statements are printed in.
func crossChunkImports(ctx *chunkCtx) []crossChunkImport {
	var order []*chunk.Chunk
	byChunk := make(map[*chunk.Chunk][]ast.Ref)
	for _, key := range ctx.crossChunkOrder {
		p := ctx.crossChunkOf[key]
		if _, ok := byChunk[p]; !ok {
			order = append(order, p)
		}
		byChunk[p] = append(byChunk[p], key)
	}
	out := make([]crossChunkImport, 0, len(order))
	for _, p := range order {
		specs := make([]bindingSpec, 0, len(byChunk[p]))
		for _, key := range byChunk[p] {
			specs = append(specs, bindingSpec{
				exported: ctx.crossChunkExports[p][key],
				local:    ctx.crossChunkAlias[key],
			})
		}
		out = append(out, crossChunkImport{producer: p, specs: specs})
	}
	return out
}

// externalImport is one external dependency this chunk's body
// references, with the namespace-variable alias noteReference assigned
// it.
type externalImport struct {
	ext   *graph.ExternalModule
	alias string
}

func externalImports(ctx *chunkCtx) []externalImport {
	out := make([]externalImport, 0, len(ctx.externalOrder))
	for _, id := range ctx.externalOrder {
		ext, _ := ctx.store.GetExternal(ast.ModuleId(id))
		if ext == nil {
			continue
		}
		out = append(out, externalImport{ext: ext, alias: ctx.externalAlias[id]})
	}
	return out
}

// renderPathFor resolves the specifier text an external dependency is
// imported/required under: output.Paths overrides take precedence,
// otherwise the external's own RenderPath. Chunk-to-chunk specifiers come
// from relativeImportPath instead.
func renderPathFor(ctx *chunkCtx, ext *graph.ExternalModule) string {
	if ctx.output.Paths != nil {
		if p, ok := ctx.output.Paths(string(ext.Id)); ok {
			return p
		}
	}
	return ext.RenderPath
}

func relativeImportPath(fromFile, toFile string) string {
	fromDir := path.Dir(fromFile)
	var fromParts []string
	if fromDir != "." {
		fromParts = strings.Split(fromDir, "/")
	}
	toParts := strings.Split(toFile, "/")

	i := 0
	for i < len(fromParts) && i < len(toParts)-1 && fromParts[i] == toParts[i] {
		i++
	}

	var parts []string
	for range fromParts[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[i:]...)
	rel := strings.Join(parts, "/")
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}

func quotePath(p string) string {
	return string(helpers.QuoteSingle(p, false))
}

// renderDynamicImport rewrites a dynamic import per format: es keeps the native import expression, every other
// format lowers it to a Promise-wrapped require/interop since only es (and
// system, via its own loader) has a native dynamic import primitive.
func (ctx *chunkCtx) renderDynamicImport(m *graph.Module, importRecordIndex int) string {
	rec := m.Program.ImportRecords[importRecordIndex]

	var path string
	if rec.External {
		ext, _ := ctx.store.GetOrCreateExternal(ast.ModuleId(rec.ExternalId))
		path = renderPathFor(ctx, ext)
	} else if dep, ok := ctx.store.ModuleByIndex(rec.ModuleIndex.GetIndex()); ok {
		if target, ok := ctx.chunkOf[dep.Id]; ok {
			if target == ctx.chunk {
				// The target was bundled into this very chunk; its namespace
				// object is already in scope, so the import degenerates to an
				// immediately-resolved promise of it.
				if nsName := ctx.sameChunkNamespace(dep); nsName != "" {
					return "Promise.resolve().then(() => " + nsName + ")"
				}
			}
			path = relativeImportPath(ctx.chunk.FileName, target.FileName)
		}
	}

	switch ctx.format {
	case compat.FormatES:
		return "import(" + quotePath(path) + ")"
	case compat.FormatSystem:
		return "module.import(" + quotePath(path) + ")"
	default:
		return "Promise.resolve().then(() => " + ctx.useHelper("__toESM") + "(require(" + quotePath(path) + ")))"
	}
}

// sameChunkNamespace returns the render name of a module's namespace
// object when tree-shaking kept it, or "" when the namespace never
// materialised (the caller then falls back to a plain path import).
func (ctx *chunkCtx) sameChunkNamespace(dep *graph.Module) string {
	if dep.Program == nil || !dep.NamespaceRef.IsValid() {
		return ""
	}
	if int(dep.NamespaceRef.InnerIndex) >= len(dep.Program.Symbols) {
		return ""
	}
	if !dep.Program.SymbolFor(dep.NamespaceRef).Included {
		return ""
	}
	return ctx.globalNames[dep.NamespaceRef]
}
