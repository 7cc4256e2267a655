// Package render implements the GENERATE phase's per-chunk rendering
// and finalisation: deconfliction, per-module
// statement emission, namespace/export/interop synthesis, per-format
// wrapping, the renderChunk plugin hook, and source-map composition. It
// consumes the chunk plan internal/chunk produces and the binding
// resolution internal/treeshake leaves on every graph.Module.
//
// Where a full-fidelity bundler re-prints every AST node from scratch,
// this package mostly slices a module's original source verbatim
// (removed statements leave no trace) and only reconstructs text for
// the handful of expression shapes js_ast models in detail
// (identifiers, calls, logicals — see js_ast.go's doc comment on
// EOpaque). A renamed module-scope binding referenced from inside an
// EOpaque/SVerbatim blob therefore keeps its original spelling; this is an
// accepted limitation of the reduced grammar, not an oversight, and is
// recorded in DESIGN.md.
package render

import (
	"fmt"
	"sort"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/hash"
	"github.com/rollup-go/rollup/internal/logger"
	"github.com/rollup-go/rollup/internal/plugin"
)

// Output is one member of the output-file union: either a
// rendered chunk or a previously emitted asset passed through unchanged.
type Output struct {
	Type string // "chunk" or "asset"

	FileName string
	Code     string // chunk only
	Map      string // chunk only; JSON-encoded source map, "" if sourcemap disabled

	Source []byte // asset only

	Name string // asset's emitFile name, or the chunk's name pattern base

	IsEntry         bool
	IsDynamicEntry  bool
	IsImplicitEntry bool
	FacadeModuleId  string

	Exports                []string
	ModuleIds              []string
	Imports                []string // chunk file names of static dependencies
	DynamicImports         []string
	ImplicitlyLoadedBefore []string
	ReferencedFiles        []string

	// ImportedBindings maps each imported file name to the binding names
	// pulled from it ("*" for a whole-namespace import).
	ImportedBindings map[string][]string
}

// Input bundles everything RenderAll needs beyond the planned chunks
// themselves.
type Input struct {
	Chunks  []*chunk.Chunk
	Store   *graph.Store
	Output  config.OutputOptions
	Log     *logger.Log
	Plugins *plugin.Driver // may be nil outside pkg/api's full pipeline
}

// chunkState is the per-chunk working set threaded through the render
// pipeline before the two-pass hash substitution runs.
type chunkState struct {
	c          *chunk.Chunk
	exports    []string
	imports    []*chunk.Chunk
	dynImports []*chunk.Chunk
	body       string
	mapJSON    string

	// importedBindings records which names the preamble pulls from each
	// producer: chunk producers keyed by *chunk.Chunk (file names are not
	// final until hash substitution), externals keyed by render path.
	chunkBindings    map[*chunk.Chunk][]string
	externalBindings map[string][]string
}

// RenderAll runs the render pipeline end to end for every planned
// chunk: deconfliction, body rendering, export/interop synthesis,
// per-format finalisation, the renderChunk reduce hook, then the
// two-pass content-hash substitution.
func RenderAll(in Input) ([]*Output, error) {
	chunkOf := make(map[ast.ModuleId]*chunk.Chunk)
	for _, c := range in.Chunks {
		for _, m := range c.Modules {
			chunkOf[m.Id] = c
		}
		if c.Facade != nil && c.Facade.For != nil {
			chunkOf[c.Facade.For.Id] = c
		}
	}

	states, err := renderAllChunks(in, chunkOf)
	if err != nil {
		return nil, err
	}

	bodies := make(map[*chunk.Chunk]string, len(states))
	maps := make(map[*chunk.Chunk]string, len(states))
	for _, st := range states {
		bodies[st.c] = st.body
		maps[st.c] = st.mapJSON
	}

	// augmentChunkHash lets plugins contribute extra bytes to a chunk's
	// hash without changing its rendered content.
	augments := make(map[*chunk.Chunk]string, len(in.Chunks))
	if in.Plugins != nil {
		for _, c := range in.Chunks {
			if result, err := in.Plugins.Reduce(plugin.HookAugmentChunkHash, ""); err == nil {
				if s, ok := result.(string); ok {
					augments[c] = s
				}
			}
		}
	}

	hashes := computeContentHashes(in.Chunks, bodies, augments)
	substituteHashes(in.Chunks, bodies, maps, hashes)

	outputs := make([]*Output, 0, len(states))
	for _, st := range states {
		c := st.c
		fileName := hash.SubstitutePlaceholders(c.FileName, c.HashPlaceholder, hashes[c])

		out := &Output{
			Type:     "chunk",
			FileName: fileName,
			Code:     bodies[c],
			Map:      maps[c],
			Exports:  st.exports,
			Name:     nameFor(c),
		}
		if c.EntryModule != nil {
			out.IsEntry = c.EntryModule.IsUserDefinedEntryPoint
			out.IsDynamicEntry = !c.EntryModule.IsUserDefinedEntryPoint
			out.FacadeModuleId = string(c.EntryModule.Id)
		}
		for _, m := range c.Modules {
			out.ModuleIds = append(out.ModuleIds, string(m.Id))
		}
		for _, dep := range st.imports {
			out.Imports = append(out.Imports, hash.SubstitutePlaceholders(dep.FileName, dep.HashPlaceholder, hashes[dep]))
		}
		for _, dep := range st.dynImports {
			out.DynamicImports = append(out.DynamicImports, hash.SubstitutePlaceholders(dep.FileName, dep.HashPlaceholder, hashes[dep]))
		}
		for _, dep := range c.ImplicitlyLoadedBefore {
			out.ImplicitlyLoadedBefore = append(out.ImplicitlyLoadedBefore, hash.SubstitutePlaceholders(dep.FileName, dep.HashPlaceholder, hashes[dep]))
		}
		if len(st.chunkBindings) > 0 || len(st.externalBindings) > 0 {
			out.ImportedBindings = make(map[string][]string, len(st.chunkBindings)+len(st.externalBindings))
			for dep, names := range st.chunkBindings {
				sorted := append([]string{}, names...)
				sort.Strings(sorted)
				out.ImportedBindings[hash.SubstitutePlaceholders(dep.FileName, dep.HashPlaceholder, hashes[dep])] = sorted
			}
			for path, names := range st.externalBindings {
				out.ImportedBindings[path] = names
			}
		}
		outputs = append(outputs, out)
	}

	sort.SliceStable(outputs, func(i, j int) bool { return outputs[i].FileName < outputs[j].FileName })
	return outputs, nil
}

func nameFor(c *chunk.Chunk) string {
	if c.ManualChunkAlias != "" {
		return c.ManualChunkAlias
	}
	if c.EntryModule != nil {
		return string(c.EntryModule.Id)
	}
	return ""
}

// computeContentHashes folds each dependency chunk's hash and id into
// the depending chunk's own hash, as a bounded fixed-point relaxation
// rather than a
// topological walk, so that a chunk cycle (legal between chunks, unlike
// between modules) still converges to a deterministic answer instead of
// requiring acyclic StaticDependencies. len(chunks)+1 passes is enough for
// the value to propagate across every chunk's longest dependency chain at
// least once.
func computeContentHashes(chunks []*chunk.Chunk, bodies map[*chunk.Chunk]string, augments map[*chunk.Chunk]string) map[*chunk.Chunk]string {
	hashes := make(map[*chunk.Chunk]string, len(chunks))
	for pass := 0; pass <= len(chunks); pass++ {
		next := make(map[*chunk.Chunk]string, len(chunks))
		for _, c := range chunks {
			parts := []string{bodies[c], augments[c]}
			deps := append([]*chunk.Chunk{}, c.StaticDependencies...)
			sort.Slice(deps, func(i, j int) bool { return deps[i].FileName < deps[j].FileName })
			for _, dep := range deps {
				parts = append(parts, dep.FileName, hashes[dep])
			}
			next[c] = hash.Of(parts...)
		}
		hashes = next
	}
	return hashes
}

// substituteHashes implements the second pass: every chunk's placeholder
// is replaced by its final hash everywhere it appears — in its own file
// name, and in every sibling chunk's rendered body/map where it was
// embedded as an import specifier.
func substituteHashes(chunks []*chunk.Chunk, bodies, maps map[*chunk.Chunk]string, hashes map[*chunk.Chunk]string) {
	for _, dep := range chunks {
		if dep.HashPlaceholder == "" {
			continue
		}
		final := hashes[dep]
		for _, c := range chunks {
			bodies[c] = hash.SubstitutePlaceholders(bodies[c], dep.HashPlaceholder, final)
			maps[c] = hash.SubstitutePlaceholders(maps[c], dep.HashPlaceholder, final)
		}
	}
}

func formatError(c *chunk.Chunk, code logger.Code, text string) error {
	name := nameFor(c)
	if name == "" {
		name = c.FileName
	}
	return logger.NewBuildError(code, fmt.Sprintf("chunk %q: %s", name, text), nil)
}
