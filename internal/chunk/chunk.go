// Package chunk implements the chunk planner: turning the
// included-module set the tree-shake driver produced into the set of
// output chunks, their cross-chunk dependencies, and their file names.
//
// Each module is assigned a signature bitmask recording which entries
// reach it; modules with identical signatures share a chunk. The planner
// additionally synthesizes facade chunks where an entry's exact export
// surface must survive bundling: a signature bitmask per
// module (which entry points statically reach it), grouping modules with
// identical signatures into one chunk, then a facade-synthesis pass that
// guarantees an entry's declared export set survives intact when
// `preserveSignature` demands it.
//
// Simplification, recorded here rather than left implicit: the
// refinement that a dynamic dependency only contributes to the
// signature if the current module's entry set is not already a superset
// of the dynamic importer's — is an optimization that avoids some
// unnecessary chunk splits. This implementation always lets a dynamic
// entry contribute its own signature bit, which is simpler, still
// correct (isolation, determinism, and no dangling bindings all hold),
// and only costs a few extra small chunks in pathological sharing
// cases. Worth revisiting if the call pattern from internal/render ever
// needs the tighter packing.
package chunk

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/hash"
	"github.com/rollup-go/rollup/internal/helpers"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/logger"
)

// Facade describes a chunk that exists solely to guarantee an entry
// module's declared export set is exposed exactly. Of points at the
// chunk whose bindings it re-exports; For is the entry module whose
// export set it exposes and is always set.
type Facade struct {
	For          *graph.Module
	Strict       bool
	ExposedNames []string
	Of           *Chunk
}

// Chunk is one planned output file: an ordered set of modules (in
// execution order) plus its cross-chunk edges and naming. Modules is
// empty for a synthesized facade chunk — it has no content of its own,
// only Facade.
type Chunk struct {
	Modules []*graph.Module

	ManualChunkAlias string
	Signature        helpers.BitSet

	EntryModule        *graph.Module
	IsUserDefinedEntry bool

	Facade *Facade

	StaticDependencies     []*Chunk
	DynamicDependencies    []*Chunk
	ImplicitlyLoadedBefore []*Chunk

	NamePattern string
	FileName    string

	// HashPlaceholder is the exact placeholder substring assignFileNames
	// spliced into FileName in place of a [hash] token, recorded so
	// internal/render's two-pass substitution knows what to search for
	// once this chunk's real content hash is known. Empty for a chunk
	// whose pattern had no [hash] token.
	HashPlaceholder string
}

// Input bundles everything the planner needs: the module registry, the
// entry modules the loader discovered (user-defined and implicit), the
// resolved output options, and a log for FILE_NAME_CONFLICT and similar
// diagnostics.
type Input struct {
	Store        *graph.Store
	EntryModules []*graph.Module
	Output       config.OutputOptions
	Log          *logger.Log
}

// Plan runs the planner end to end: manual-chunk claiming, signature
// partitioning, dependency linking, facade synthesis,
// and file-name assignment (first pass: [hash] tokens are left as
// placeholders for internal/render to substitute once content hashes
// are known).
func Plan(in Input) ([]*Chunk, error) {
	included := includedModulesByExecOrder(in.Store)

	if in.Output.PreserveModules {
		return planPreserveModules(in, included)
	}

	claimed, aliasOrder := resolveManualChunks(in.Store, included, in.Output.ManualChunks)

	dynamicEntries := discoverDynamicEntries(in.Store, included, in.EntryModules)
	allEntryPoints := append(append([]*graph.Module{}, in.EntryModules...), dynamicEntries...)

	sigOf := make(map[ast.ModuleId]helpers.BitSet, len(included))
	for _, m := range included {
		if _, ok := claimed[m.Id]; ok {
			continue
		}
		sigOf[m.Id] = helpers.NewBitSet(uint(len(allEntryPoints)))
	}
	for i, entry := range allEntryPoints {
		bit := uint(i)
		markReachable(in.Store, entry, claimed, func(m *graph.Module) {
			sigOf[m.Id].SetBit(bit)
		})
	}

	chunks, chunkOf := groupBySignature(included, claimed, aliasOrder, sigOf)
	linkDependencies(in.Store, chunks, chunkOf)

	extra := synthesizeFacades(chunks, in.EntryModules, chunkOf)
	chunks = append(chunks, extra...)
	markDynamicEntryChunks(dynamicEntries, chunkOf)

	assignFileNames(in.Log, chunks, in.Output)
	return chunks, nil
}

func includedModulesByExecOrder(store *graph.Store) []*graph.Module {
	var out []*graph.Module
	for _, m := range store.Modules() {
		if m.Included {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecIndex < out[j].ExecIndex })
	return out
}

// resolveImportRecord finds the import record a module's Sources or
// DynamicImports specifier text refers to, mirroring internal/treeshake's
// own lookup since both packages need to turn raw specifier strings back
// into resolved module handles without owning a second index.
func resolveImportRecord(m *graph.Module, source string, kind js_ast.ImportKind) *js_ast.ImportRecord {
	if m.Program == nil {
		return nil
	}
	for i := range m.Program.ImportRecords {
		rec := &m.Program.ImportRecords[i]
		if rec.Path == source && rec.Kind == kind {
			return rec
		}
	}
	return nil
}

func staticDeps(store *graph.Store, m *graph.Module) []*graph.Module {
	var out []*graph.Module
	for _, src := range m.Sources {
		rec := resolveImportRecord(m, src, js_ast.ImportStatic)
		if rec == nil || rec.External || !rec.ModuleIndex.IsValid() {
			continue
		}
		if dep, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex()); ok {
			out = append(out, dep)
		}
	}
	return out
}

func dynamicDeps(store *graph.Store, m *graph.Module) []*graph.Module {
	var out []*graph.Module
	for _, src := range m.DynamicImports {
		rec := resolveImportRecord(m, src, js_ast.ImportDynamic)
		if rec == nil || rec.External || !rec.ModuleIndex.IsValid() {
			continue
		}
		if dep, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex()); ok {
			out = append(out, dep)
		}
	}
	return out
}

// resolveManualChunks claims modules for user-defined chunk aliases.
// Both the function form and the object-map form of output.manualChunks
// normalise to config.ManualChunksFunc before reaching this package;
// this just walks included modules in a stable order, and for
// every one the function claims, greedily pulls in its not-yet-claimed
// static dependency closure.
func resolveManualChunks(store *graph.Store, included []*graph.Module, fn config.ManualChunksFunc) (map[ast.ModuleId]string, []string) {
	claimed := make(map[ast.ModuleId]string)
	if fn == nil {
		return claimed, nil
	}
	var order []string
	seenAlias := make(map[string]bool)
	for _, m := range included {
		alias, ok := fn(string(m.Id))
		if !ok || alias == "" {
			continue
		}
		if !seenAlias[alias] {
			seenAlias[alias] = true
			order = append(order, alias)
		}
		claimModule(store, m, alias, claimed)
	}
	return claimed, order
}

func claimModule(store *graph.Store, m *graph.Module, alias string, claimed map[ast.ModuleId]string) {
	if _, ok := claimed[m.Id]; ok {
		return
	}
	if !m.Included {
		return
	}
	claimed[m.Id] = alias
	for _, dep := range staticDeps(store, m) {
		claimModule(store, dep, alias, claimed)
	}
}

// discoverDynamicEntries finds every included module reached only
// through import() that isn't already a static entry point. Sorted by
// id for determinism, since
// discovery order otherwise depends on included's execution order, which
// is already deterministic but not in a form a reader could recognise as
// a stable key on its own.
func discoverDynamicEntries(store *graph.Store, included []*graph.Module, entryModules []*graph.Module) []*graph.Module {
	isEntry := make(map[ast.ModuleId]bool, len(entryModules))
	for _, m := range entryModules {
		isEntry[m.Id] = true
	}
	seen := make(map[ast.ModuleId]bool)
	var out []*graph.Module
	for _, m := range included {
		for _, dep := range dynamicDeps(store, m) {
			if isEntry[dep.Id] || seen[dep.Id] || !dep.Included {
				continue
			}
			seen[dep.Id] = true
			out = append(out, dep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// markReachable walks the static-import graph from start, calling visit
// on every unclaimed, included module it reaches — including start
// itself. Traversal passes transparently through manually-claimed modules
// (they already belong to a chunk, but the modules beyond them are still
// reached the same way) without ever invoking visit on them.
func markReachable(store *graph.Store, start *graph.Module, claimed map[ast.ModuleId]string, visit func(*graph.Module)) {
	seen := make(map[ast.ModuleId]bool)
	var walk func(m *graph.Module)
	walk = func(m *graph.Module) {
		if seen[m.Id] {
			return
		}
		seen[m.Id] = true
		if _, ok := claimed[m.Id]; !ok && m.Included {
			visit(m)
		}
		for _, dep := range staticDeps(store, m) {
			walk(dep)
		}
	}
	walk(start)
}

func groupBySignature(included []*graph.Module, claimed map[ast.ModuleId]string, aliasOrder []string, sigOf map[ast.ModuleId]helpers.BitSet) ([]*Chunk, map[ast.ModuleId]*Chunk) {
	chunkOf := make(map[ast.ModuleId]*Chunk, len(included))
	byAlias := make(map[string]*Chunk, len(aliasOrder))
	var chunks []*Chunk
	for _, alias := range aliasOrder {
		c := &Chunk{ManualChunkAlias: alias}
		byAlias[alias] = c
		chunks = append(chunks, c)
	}

	bySig := make(map[string]*Chunk)
	for _, m := range included {
		if alias, ok := claimed[m.Id]; ok {
			c := byAlias[alias]
			c.Modules = append(c.Modules, m)
			chunkOf[m.Id] = c
			continue
		}
		sig := sigOf[m.Id]
		key := sig.String()
		c, ok := bySig[key]
		if !ok {
			c = &Chunk{Signature: sig}
			bySig[key] = c
			chunks = append(chunks, c)
		}
		c.Modules = append(c.Modules, m)
		chunkOf[m.Id] = c
	}
	return chunks, chunkOf
}

// linkDependencies records the static and dynamic chunk-to-chunk
// edges. External
// dependencies are deliberately not tracked here — internal/render reads
// a module's ImportRecords directly when it builds the import preamble
// and interop block, so this package only needs to know about edges
// between its own planned chunks.
func linkDependencies(store *graph.Store, chunks []*Chunk, chunkOf map[ast.ModuleId]*Chunk) {
	for _, c := range chunks {
		staticSeen := map[*Chunk]bool{c: true}
		dynSeen := map[*Chunk]bool{}
		implSeen := map[*Chunk]bool{}
		for _, m := range c.Modules {
			for _, dep := range staticDeps(store, m) {
				if target, ok := chunkOf[dep.Id]; ok && !staticSeen[target] {
					staticSeen[target] = true
					c.StaticDependencies = append(c.StaticDependencies, target)
				}
			}
			for _, dep := range dynamicDeps(store, m) {
				if target, ok := chunkOf[dep.Id]; ok && target != c && !dynSeen[target] {
					dynSeen[target] = true
					c.DynamicDependencies = append(c.DynamicDependencies, target)
				}
			}
			for _, id := range m.ImplicitlyLoadedBefore {
				if target, ok := chunkOf[id]; ok && target != c && !implSeen[target] {
					implSeen[target] = true
					c.ImplicitlyLoadedBefore = append(c.ImplicitlyLoadedBefore, target)
				}
			}
		}
	}
}

// synthesizeFacades gives every entry module a chunk exposing exactly
// its export signature. An entry
// module whose home chunk exists solely because of that entry (its
// signature has at most one bit set; a manual chunk never counts as owned)
// already renders exactly that entry's export set once internal/render's
// export-block step limits emission to declared exports — the chunk IS
// the facade, so we only need to mark it as one when preserveSignature is
// `strict` or `exports-only`. Otherwise the entry shares its home chunk with other
// reach-identical modules, so a thin empty chunk re-exporting from home is
// generated to guarantee the exact signature survives.
func synthesizeFacades(chunks []*Chunk, entryModules []*graph.Module, chunkOf map[ast.ModuleId]*Chunk) []*Chunk {
	var extra []*Chunk
	for _, em := range entryModules {
		home, ok := chunkOf[em.Id]
		if !ok {
			continue
		}
		strict := em.PreserveSignature == graph.PreserveSignatureStrict
		exportsOnly := em.PreserveSignature == graph.PreserveSignatureExportsOnly
		needsExactSignature := em.PreserveSignature != graph.PreserveSignatureFalse
		names := sortedExportNames(em)

		// An entry owns its home chunk outright whenever it's the sole
		// reason that chunk exists, regardless of preserveSignature — that
		// linkage (which pattern names it, whether it's a user-defined
		// entry) is naming/output-shape bookkeeping, not a strictness
		// decision.
		if onlyEntryOwning(home, em) {
			home.EntryModule = em
			home.IsUserDefinedEntry = em.IsUserDefinedEntryPoint
			if needsExactSignature && (strict || exportsOnly) {
				home.Facade = &Facade{For: em, Strict: strict, ExposedNames: names, Of: home}
			}
			continue
		}

		if !needsExactSignature {
			// Shares its home chunk with other reach-identical modules, but
			// nothing demands this entry's export set survive exactly —
			// the render phase still emits only what it declares from
			// whichever chunk carries it.
			continue
		}

		facade := &Chunk{
			Facade:             &Facade{For: em, Strict: strict || exportsOnly, ExposedNames: names, Of: home},
			EntryModule:        em,
			IsUserDefinedEntry: em.IsUserDefinedEntryPoint,
			Signature:          home.Signature,
			StaticDependencies: []*Chunk{home},
		}
		extra = append(extra, facade)
		chunkOf[em.Id] = facade
	}
	return extra
}

// markDynamicEntryChunks gives a dynamic-import target the same
// entry-chunk naming treatment as a declared entry whenever it owns its
// home chunk outright — it isn't subject to preserveSignature's
// facade-strictness rules, since nothing declared it as a public entry
// point, but internal/render still needs to know which chunks a dynamic
// import resolves to so it can emit the entryFileNames pattern for them.
func markDynamicEntryChunks(dynamicEntries []*graph.Module, chunkOf map[ast.ModuleId]*Chunk) {
	for _, de := range dynamicEntries {
		home, ok := chunkOf[de.Id]
		if !ok || home.EntryModule != nil {
			continue
		}
		if onlyEntryOwning(home, de) {
			home.EntryModule = de
		}
	}
}

func onlyEntryOwning(home *Chunk, em *graph.Module) bool {
	if home.ManualChunkAlias != "" {
		return false
	}
	return bitCount(home.Signature) <= 1
}

func bitCount(bs helpers.BitSet) int {
	s := bs.String()
	n := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		for b != 0 {
			n += int(b & 1)
			b >>= 1
		}
	}
	return n
}

func sortedExportNames(m *graph.Module) []string {
	names := make([]string, 0, len(m.Exports))
	for name := range m.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// planPreserveModules switches to per-module output: each module
// becomes its own chunk with a path derived from its id, rebased
// against preserveModulesRoot when inside it. Manual chunks and
// signature partitioning don't apply in this mode.
func planPreserveModules(in Input, included []*graph.Module) ([]*Chunk, error) {
	chunkOf := make(map[ast.ModuleId]*Chunk, len(included))
	chunks := make([]*Chunk, 0, len(included))
	isEntry := make(map[ast.ModuleId]*graph.Module, len(in.EntryModules))
	for _, m := range in.EntryModules {
		isEntry[m.Id] = m
	}
	used := make(map[string]int)
	for _, m := range included {
		c := &Chunk{Modules: []*graph.Module{m}}
		if em, ok := isEntry[m.Id]; ok {
			c.EntryModule = em
			c.IsUserDefinedEntry = em.IsUserDefinedEntryPoint
		}
		fileName := preserveModulesFileName(m.Id, in.Output.PreserveModulesRoot)
		c.FileName = dedupeFileName(used, fileName)
		chunks = append(chunks, c)
		chunkOf[m.Id] = c
	}
	linkDependencies(in.Store, chunks, chunkOf)
	return chunks, nil
}

func preserveModulesFileName(id ast.ModuleId, root string) string {
	p := string(id)
	if root != "" && strings.HasPrefix(p, root) {
		p = strings.TrimPrefix(p, root)
	}
	p = strings.TrimPrefix(p, "/")
	if ext := path.Ext(p); ext != ".js" {
		p = strings.TrimSuffix(p, ext) + ".js"
	}
	return p
}

// assignFileNames applies the naming patterns and collision-resolution
// rules, substituting [hash] with a placeholder (internal/hash) since a
// chunk's final content hash isn't known until internal/render has
// rendered it.
func assignFileNames(log *logger.Log, chunks []*Chunk, opts config.OutputOptions) {
	used := make(map[string]int)
	for i, c := range chunks {
		pattern := opts.ChunkFileNames
		if c.EntryModule != nil {
			pattern = opts.EntryFileNames
		}
		if pattern == "" {
			pattern = "[name]-[hash].js"
		}
		c.NamePattern = pattern

		placeholder := hash.PlaceholderForIndex(i, hash.DefaultLength)
		if strings.Contains(pattern, "[hash]") {
			c.HashPlaceholder = placeholder
		}

		name := nameForChunk(c)
		fileName := strings.NewReplacer(
			"[name]", name,
			"[hash]", placeholder,
			"[format]", opts.Format.String(),
			"[extname]", ".js",
		).Replace(pattern)

		deduped := dedupeFileName(used, fileName)
		if deduped != fileName && log != nil {
			log.AddWarningOnce(deduped, nil, logger.CodeFileNameConflict,
				fmt.Sprintf("file name %q collided and was renamed to %q", fileName, deduped))
		}
		c.FileName = deduped
	}
}

func nameForChunk(c *Chunk) string {
	if c.ManualChunkAlias != "" {
		return c.ManualChunkAlias
	}
	if c.EntryModule != nil {
		return moduleBaseName(c.EntryModule.Id)
	}
	if len(c.Modules) > 0 {
		return moduleBaseName(c.Modules[0].Id)
	}
	return "chunk"
}

func moduleBaseName(id ast.ModuleId) string {
	base := path.Base(string(id))
	return strings.TrimSuffix(base, path.Ext(base))
}

// dedupeFileName resolves a collision by appending a numeric suffix
// before the extension.
func dedupeFileName(used map[string]int, fileName string) string {
	if used[fileName] == 0 {
		used[fileName] = 1
		return fileName
	}
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	for i := used[fileName] + 1; ; i++ {
		candidate := fmt.Sprintf("%s%d%s", base, i, ext)
		if used[candidate] == 0 {
			used[fileName]++
			used[candidate] = 1
			return candidate
		}
	}
}
