package render

import (
	"sort"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/compat"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/plugin"
	"github.com/rollup-go/rollup/internal/renamer"
)

// bindKind classifies where a binding a chunk's code references
// ultimately lives, the outcome of following import bindings and
// ForwardsTo chains to their root.
type bindKind uint8

const (
	bindLocal bindKind = iota
	bindExternal
	bindMissing
)

// resolvedBinding is canonicalize's result: the real declaring symbol an
// identifier reference ultimately names, after chasing cross-module import
// bindings and default/namespace forwarding to their root.
type resolvedBinding struct {
	kind  bindKind
	owner *graph.Module // valid when kind == bindLocal
	ref   ast.Ref       // valid when kind == bindLocal
	ext   *graph.ExternalModule
	alias string // external export name: "default", "*", or a named export
}

// importInfo records, for one of a module's own import-bound local
// refs, which import record it came from and what it names on the other
// side — the interop step needs this regardless of whether the source
// turned out to be internal or external.
type importInfo struct {
	recordIndex int
	alias       string // "default", "*", or the named export text
}

// binder memoizes canonicalize's module-local importInfo index so the
// same module's SImport statements aren't rescanned on every reference.
type binder struct {
	store *graph.Store
	idx   map[ast.ModuleId]map[ast.Ref]importInfo
}

func newBinder(store *graph.Store) *binder {
	return &binder{store: store, idx: make(map[ast.ModuleId]map[ast.Ref]importInfo)}
}

func (b *binder) importIndexFor(m *graph.Module) map[ast.Ref]importInfo {
	if idx, ok := b.idx[m.Id]; ok {
		return idx
	}
	idx := make(map[ast.Ref]importInfo)
	if m.Program != nil {
		for i := range m.Program.Stmts {
			imp, ok := m.Program.Stmts[i].Data.(*js_ast.SImport)
			if !ok {
				continue
			}
			if imp.DefaultLocalName != "" {
				idx[imp.DefaultLocalRef] = importInfo{recordIndex: imp.ImportRecordIndex, alias: "default"}
			}
			if imp.NamespaceLocalName != "" {
				idx[imp.NamespaceLocalRef] = importInfo{recordIndex: imp.ImportRecordIndex, alias: "*"}
			}
			for _, item := range imp.Items {
				idx[item.LocalRef] = importInfo{recordIndex: imp.ImportRecordIndex, alias: item.Alias}
			}
		}
	}
	b.idx[m.Id] = idx
	return idx
}

// canonicalize follows default-export and namespace forwarding chains,
// tolerant of cycles. A ref that's part of a
// cycle (A's default forwards to B's default which forwards back to A's)
// would recurse forever without the visited guard; that situation only
// arises from a malformed/adversarial graph since normal forwarding chains
// are acyclic by construction, but the guard costs nothing to keep.
func (b *binder) canonicalize(m *graph.Module, ref ast.Ref) resolvedBinding {
	return b.canonicalizeVisited(m, ref, make(map[ast.Ref]bool))
}

func (b *binder) canonicalizeVisited(m *graph.Module, ref ast.Ref, visited map[ast.Ref]bool) resolvedBinding {
	if !ref.IsValid() {
		return resolvedBinding{kind: bindMissing}
	}
	if visited[ref] {
		return resolvedBinding{kind: bindMissing}
	}
	visited[ref] = true

	if info, ok := b.importIndexFor(m)[ref]; ok {
		rec := m.Program.ImportRecords[info.recordIndex]
		if rec.External {
			ext, _ := b.store.GetOrCreateExternal(ast.ModuleId(rec.ExternalId))
			return resolvedBinding{kind: bindExternal, ext: ext, alias: info.alias}
		}
		target, ok := m.ImportBindings[ref]
		if !ok || !target.IsValid() {
			return resolvedBinding{kind: bindMissing}
		}
		tm, ok := b.store.ModuleByIndex(target.ModuleIndex)
		if !ok {
			return resolvedBinding{kind: bindMissing}
		}
		return b.canonicalizeVisited(tm, target, visited)
	}

	if int(ref.InnerIndex) >= len(m.Program.Symbols) {
		return resolvedBinding{kind: bindMissing}
	}
	sym := m.Program.SymbolFor(ref)
	if sym.ForwardsTo.IsValid() {
		tm, ok := b.store.ModuleByIndex(sym.ForwardsTo.ModuleIndex)
		if !ok {
			return resolvedBinding{kind: bindMissing}
		}
		return b.canonicalizeVisited(tm, sym.ForwardsTo, visited)
	}
	return resolvedBinding{kind: bindLocal, owner: m, ref: ref}
}

// chunkCtx is the per-chunk render-time state: the shared renamer every
// module's symbols are assigned from, the binder used to resolve
// references, and the sets of cross-chunk/external bindings and interop
// helpers the rendered body ended up needing.
type chunkCtx struct {
	chunk   *chunk.Chunk
	chunkOf map[ast.ModuleId]*chunk.Chunk
	store   *graph.Store
	binder  *binder
	format  compat.Format
	output  config.OutputOptions
	plugins *plugin.Driver // may be nil

	renamer *renamer.Renamer

	// globalNames holds every module's own deconflicted render name,
	// computed once across all chunks before any chunk's body is rendered
	// (see pipeline.go's three-pass structure) — a producer chunk's own
	// name for a symbol is fixed before any importer decides what to call
	// it locally, which is the only way two independently-rendered chunks
	// can agree on an exported identifier.
	globalNames map[ast.Ref]string

	// crossChunkExports accumulates, per producer chunk, which of its
	// local symbols some other chunk ended up needing and under what
	// name — filled in during the scan pass, read during the render pass
	// when a chunk's own export block is assembled (exports.go).
	crossChunkExports map[*chunk.Chunk]map[ast.Ref]string

	crossChunkAlias map[ast.Ref]string // canonical ref -> this chunk's local name for it
	crossChunkOf    map[ast.Ref]*chunk.Chunk
	crossChunkOrder []ast.Ref

	externalAlias map[string]string // external module id -> namespace variable name
	externalOrder []string

	helpersUsed map[string]bool
	helperOrder []string
}

func newChunkCtx(c *chunk.Chunk, chunkOf map[ast.ModuleId]*chunk.Chunk, store *graph.Store, opts config.OutputOptions,
	plugins *plugin.Driver, globalNames map[ast.Ref]string, crossChunkExports map[*chunk.Chunk]map[ast.Ref]string) *chunkCtx {
	reserved := compat.ReservedNames(opts.Format)
	for _, name := range compat.InteropHelperNames {
		reserved[name] = true
	}
	for _, m := range c.Modules {
		if m.Program == nil {
			continue
		}
		for name := range m.Program.AccessedGlobals {
			reserved[name] = true
		}
	}
	return &chunkCtx{
		chunk:             c,
		chunkOf:           chunkOf,
		store:             store,
		binder:            newBinder(store),
		format:            opts.Format,
		output:            opts,
		plugins:           plugins,
		renamer:           renamer.New(reserved),
		globalNames:       globalNames,
		crossChunkExports: crossChunkExports,
		crossChunkAlias:   make(map[ast.Ref]string),
		crossChunkOf:      make(map[ast.Ref]*chunk.Chunk),
		externalAlias:     make(map[string]string),
		helpersUsed:       make(map[string]bool),
	}
}

// assignLocalNames deconflicts module-local identifiers across every
// module the chunk carries, in execution order so the result doesn't
// depend on store iteration order. Every assigned name is also recorded
// into the shared globalNames table, since it's also this symbol's
// permanent cross-chunk export name.
func (ctx *chunkCtx) assignLocalNames() {
	modules := append([]*graph.Module{}, ctx.chunk.Modules...)
	sort.Slice(modules, func(i, j int) bool { return modules[i].ExecIndex < modules[j].ExecIndex })
	for _, m := range modules {
		if m.Program == nil {
			continue
		}
		ctx.renamer.AssignProgramSymbols(m.Program, m.ModuleIndex)
		for i, sym := range m.Program.Symbols {
			if !sym.Included {
				continue
			}
			ctx.globalNames[ast.Ref{ModuleIndex: m.ModuleIndex, InnerIndex: uint32(i)}] = sym.RenameName
		}
	}
}

// scanNeeded walks every included statement's modeled reference positions
// (the same CollectStmtRefNames surface internal/treeshake's inclusion
// pass uses) and records which ones resolve outside this chunk, so the
// import preamble only ever lists dependencies the rendered body actually
// uses.
func (ctx *chunkCtx) scanNeeded() {
	for _, m := range ctx.chunk.Modules {
		if m.Program == nil {
			continue
		}
		for i := range m.Program.Stmts {
			stmt := &m.Program.Stmts[i]
			if !stmt.Included {
				continue
			}
			for _, name := range js_ast.CollectStmtRefNames(stmt.Data) {
				ref, ok := m.Program.ModuleScope.Resolve(name)
				if !ok {
					continue
				}
				ctx.noteReference(m, ref)
			}
		}
		// A module whose namespace object will be synthesised reaches
		// every one of its export refs at render time; note them now so a
		// producer chunk's export block already knows about them.
		if sym := namespaceSymbol(m); sym != nil && sym.Included {
			ctx.noteExportRefs(m.Exports)
		}
	}
	// Likewise for the export table of the chunk's entry module: a pure
	// re-export facade has no statement-level references at all, yet its
	// export block reaches into whichever chunk owns each binding.
	if em := ctx.chunk.EntryModule; em != nil {
		ctx.noteExportRefs(em.Exports)
	}
}

func namespaceSymbol(m *graph.Module) *js_ast.Symbol {
	if m.Program == nil || !m.NamespaceRef.IsValid() {
		return nil
	}
	if int(m.NamespaceRef.InnerIndex) >= len(m.Program.Symbols) {
		return nil
	}
	return m.Program.SymbolFor(m.NamespaceRef)
}

func (ctx *chunkCtx) noteExportRefs(exports map[string]ast.Ref) {
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ref := exports[name]
		if !ref.IsValid() {
			continue
		}
		if owner, ok := ctx.store.ModuleByIndex(ref.ModuleIndex); ok {
			ctx.noteReference(owner, ref)
		}
	}
}

// noteReference canonicalizes ref and, if it lands outside this chunk,
// reserves a local alias for it (cross-chunk import names are made to
// match their exporter's render name) while recording, on the
// producer chunk's side, that this symbol now needs to appear in that
// chunk's export block.
func (ctx *chunkCtx) noteReference(m *graph.Module, ref ast.Ref) string {
	resolved := ctx.binder.canonicalize(m, ref)
	switch resolved.kind {
	case bindLocal:
		key := ast.Ref{ModuleIndex: resolved.owner.ModuleIndex, InnerIndex: resolved.ref.InnerIndex}
		ownerChunk := ctx.chunkOf[resolved.owner.Id]
		if ownerChunk == ctx.chunk {
			return ctx.globalNames[key]
		}
		if name, ok := ctx.crossChunkAlias[key]; ok {
			return name
		}
		exportedName := ctx.globalNames[key]
		name := ctx.renamer.Assign(key, exportedName)
		ctx.crossChunkAlias[key] = name
		ctx.crossChunkOf[key] = ownerChunk
		ctx.crossChunkOrder = append(ctx.crossChunkOrder, key)
		if ctx.crossChunkExports[ownerChunk] == nil {
			ctx.crossChunkExports[ownerChunk] = make(map[ast.Ref]string)
		}
		ctx.crossChunkExports[ownerChunk][key] = exportedName
		return name
	case bindExternal:
		// Every external reference goes through the namespace alias so one
		// import/require per external serves defaults, named members, and
		// star imports alike.
		ns := ctx.externalNamespaceName(resolved.ext)
		if resolved.alias == "*" || resolved.alias == "" {
			return ns
		}
		return ns + "." + resolved.alias
	default:
		return "undefined"
	}
}

func moduleNamespaceGuess(id ast.ModuleId) string {
	base := string(id)
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	return base
}

func (ctx *chunkCtx) externalNamespaceName(ext *graph.ExternalModule) string {
	if name, ok := ctx.externalAlias[string(ext.Id)]; ok {
		return name
	}
	name := ctx.renamer.Assign(interface{}("external:"+string(ext.Id)), moduleNamespaceGuess(ext.Id))
	ctx.externalAlias[string(ext.Id)] = name
	ctx.externalOrder = append(ctx.externalOrder, string(ext.Id))
	return name
}

// bindingName resolves ref (as referenced from module m) to the identifier
// text this chunk's rendered code should use, recording cross-chunk/
// external usage as a side effect the first time a given binding is seen.
func (ctx *chunkCtx) bindingName(m *graph.Module, ref ast.Ref) string {
	if !ref.IsValid() {
		return "undefined"
	}
	return ctx.noteReference(m, ref)
}

func (ctx *chunkCtx) useHelper(name string) string {
	if !ctx.helpersUsed[name] {
		ctx.helpersUsed[name] = true
		ctx.helperOrder = append(ctx.helperOrder, name)
	}
	return name
}

// registerFacadeNeeds marks every binding an empty facade chunk exposes
// as needed from the backing chunk, so the backing chunk's export block
// lists it under its render name.
func registerFacadeNeeds(homeCtx *chunkCtx, facade *chunk.Chunk) {
	em := facade.Facade.For
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
		owner, ok := homeCtx.store.ModuleByIndex(ref.ModuleIndex)
		if !ok {
			continue
		}
		resolved := homeCtx.binder.canonicalize(owner, ref)
		if resolved.kind != bindLocal {
			continue
		}
		key := ast.Ref{ModuleIndex: resolved.owner.ModuleIndex, InnerIndex: resolved.ref.InnerIndex}
		home := homeCtx.chunk
		if homeCtx.crossChunkExports[home] == nil {
			homeCtx.crossChunkExports[home] = make(map[ast.Ref]string)
		}
		if homeCtx.crossChunkExports[home][key] == "" {
			homeCtx.crossChunkExports[home][key] = homeCtx.globalNames[key]
		}
	}
}

// facadeBinding pairs an exposed export name with the name the backing
// chunk exports the same binding under.
type facadeBinding struct {
	exposed  string
	producer string
}

// facadeBindings resolves an empty facade's exposed names to their
// producer-side render names.
func facadeBindings(ctx *chunkCtx, c *chunk.Chunk) []facadeBinding {
	em := c.Facade.For
	out := make([]facadeBinding, 0, len(c.Facade.ExposedNames))
	for _, name := range c.Facade.ExposedNames {
		ref := em.Exports[name]
		if !ref.IsValid() {
			continue
		}
		owner, ok := ctx.store.ModuleByIndex(ref.ModuleIndex)
		if !ok {
			continue
		}
		resolved := ctx.binder.canonicalize(owner, ref)
		if resolved.kind != bindLocal {
			continue
		}
		key := ast.Ref{ModuleIndex: resolved.owner.ModuleIndex, InnerIndex: resolved.ref.InnerIndex}
		producer := ctx.globalNames[key]
		if producer == "" {
			producer = name
		}
		out = append(out, facadeBinding{exposed: name, producer: producer})
	}
	return out
}
