package render

import (
	"sort"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/compat"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/logger"
	"github.com/rollup-go/rollup/internal/plugin"
)

// renderAllChunks runs every planned chunk through
// three dependent passes: assign every module's own render name (so a
// producer chunk's exported identifier is fixed before any importer picks
// a local alias for it), discover every binding that crosses a chunk
// boundary, then render each chunk's body, export block, import preamble,
// and format wrapper. The first two passes must complete for every chunk
// before the third begins for any chunk — a producer chunk's export block
// needs to know about an importer discovered two chunks later in plan
// order.
func renderAllChunks(in Input, chunkOf map[ast.ModuleId]*chunk.Chunk) ([]*chunkState, error) {
	globalNames := make(map[ast.Ref]string)
	crossChunkExports := make(map[*chunk.Chunk]map[ast.Ref]string)

	ctxs := make(map[*chunk.Chunk]*chunkCtx, len(in.Chunks))
	for _, c := range in.Chunks {
		ctxs[c] = newChunkCtx(c, chunkOf, in.Store, in.Output, in.Plugins, globalNames, crossChunkExports)
	}

	for _, c := range in.Chunks {
		if isEmptyFacade(c) {
			continue
		}
		ctxs[c].assignLocalNames()
	}
	for _, c := range in.Chunks {
		if isEmptyFacade(c) {
			continue
		}
		ctxs[c].scanNeeded()
	}
	// An empty facade re-exports from its backing chunk; the backing
	// chunk's export block must carry those bindings even though no code
	// in any chunk references them directly.
	for _, c := range in.Chunks {
		if isEmptyFacade(c) {
			registerFacadeNeeds(ctxs[c.Facade.Of], c)
		}
	}

	states := make([]*chunkState, len(in.Chunks))
	for i, c := range in.Chunks {
		st, err := renderOne(in, ctxs[c], c)
		if err != nil {
			return nil, err
		}
		states[i] = st
	}
	return states, nil
}

func isEmptyFacade(c *chunk.Chunk) bool {
	return c.Facade != nil && len(c.Modules) == 0
}

// renderOne renders a single chunk: module body emission,
// export-block/import-preamble synthesis, the renderChunk reduce hook,
// and source-map composition.
func renderOne(in Input, ctx *chunkCtx, c *chunk.Chunk) (*chunkState, error) {
	if isEmptyFacade(c) {
		if ctx.format == compat.FormatIIFE || ctx.format == compat.FormatUMD {
			return nil, formatError(c, logger.CodeChunkInvalid,
				"\""+ctx.format.String()+"\" output does not support chunks that import from other chunks")
		}
		body := renderFacadeBody(ctx, c)
		var pulled []string
		for _, fb := range facadeBindings(ctx, c) {
			pulled = append(pulled, fb.producer)
		}
		return &chunkState{
			c:          c,
			exports:    append([]string{}, c.Facade.ExposedNames...),
			imports:    []*chunk.Chunk{c.Facade.Of},
			dynImports: nil,
			body:       body,
			mapJSON:    "",
			chunkBindings: map[*chunk.Chunk][]string{
				c.Facade.Of: pulled,
			},
		}, nil
	}

	modules := append([]*graph.Module{}, c.Modules...)
	sort.Slice(modules, func(i, j int) bool { return modules[i].ExecIndex < modules[j].ExecIndex })

	var rendered []moduleChunk
	for _, m := range modules {
		if m.Program == nil {
			continue
		}
		if m.Program.HasTopLevelAwait && !compat.SupportsTopLevelAwait(ctx.format) {
			return nil, formatError(c, logger.CodeInvalidTLAFormat,
				"top-level await is only supported in the \"es\" and \"system\" output formats")
		}
		rendered = append(rendered, renderModule(ctx, m))
	}

	exports := exportsFor(ctx, c)
	if err := resolveExportMode(in, c, &exports); err != nil {
		return nil, err
	}
	asm, err := assembleBody(in, ctx, c, rendered, exports)
	if err != nil {
		return nil, err
	}
	body := asm.text

	if in.Plugins != nil {
		result, err := in.Plugins.Reduce(plugin.HookRenderChunk, body)
		if err != nil {
			return nil, err
		}
		if s, ok := result.(string); ok && s != "" {
			body = s
		}
	}

	mapJSON := ""
	if in.Output.Sourcemap {
		mapJSON = composeSourceMap(in.Output, c.FileName, rendered, asm.gaps)
	}

	chunkBindings := make(map[*chunk.Chunk][]string)
	for _, imp := range crossChunkImports(ctx) {
		for _, spec := range imp.specs {
			chunkBindings[imp.producer] = append(chunkBindings[imp.producer], spec.exported)
		}
	}
	externalBindings := make(map[string][]string)
	for _, imp := range externalImports(ctx) {
		externalBindings[renderPathFor(ctx, imp.ext)] = []string{"*"}
	}

	return &chunkState{
		c:                c,
		exports:          exportedNames(exports),
		imports:          importedChunks(ctx),
		dynImports:       append([]*chunk.Chunk{}, c.DynamicDependencies...),
		body:             body,
		mapJSON:          mapJSON,
		chunkBindings:    chunkBindings,
		externalBindings: externalBindings,
	}, nil
}

// importedChunks returns the chunk's direct cross-chunk dependencies
// (every producer chunk a binding was resolved against) plus, when
// HoistTransitiveImports is set, their own static dependencies
// transitively, so a consumer's module loader can start fetching the
// whole graph immediately.
func importedChunks(ctx *chunkCtx) []*chunk.Chunk {
	seen := map[*chunk.Chunk]bool{ctx.chunk: true}
	var out []*chunk.Chunk
	add := func(dep *chunk.Chunk) {
		if !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	for _, key := range ctx.crossChunkOrder {
		add(ctx.crossChunkOf[key])
	}
	if ctx.output.HoistTransitiveImports {
		frontier := append([]*chunk.Chunk{}, out...)
		for len(frontier) > 0 {
			dep := frontier[0]
			frontier = frontier[1:]
			for _, d2 := range dep.StaticDependencies {
				if !seen[d2] {
					add(d2)
					frontier = append(frontier, d2)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}
