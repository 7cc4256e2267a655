// Package treeshake implements the ANALYSE phase: execution-order
// analysis, cross-module binding resolution, and the inclusion fixed
// point: a depth-first reachability walk over the dependency graph
// re-run under a changed flag until a full pass yields zero new
// inclusions, operating at statement granularity.
package treeshake

import (
	"fmt"
	"sort"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/logger"
)

// Options is the granular treeshake configuration: a struct threaded
// into the effect-analysis context instead of a single on/off switch.
type Options struct {
	// Disabled implements "treeshake: false": short-circuits the
	// inclusion fixed point to "mark everything included."
	Disabled bool

	// PropertyReadSideEffects is true by default and is not consulted by
	// the inclusion pass: a property read's effect flag is fixed at parse
	// time (an EMember, and a bare member read the parser folds into an
	// EOpaque, both count as potentially effectful), so setting it false
	// changes nothing.
	PropertyReadSideEffects bool

	// TryCatchDeoptimization, when true (the default), conservatively
	// treats any verbatim statement (SVerbatim, which covers try/catch
	// among other unmodeled statements) as effectful. Setting it false
	// treats every SVerbatim statement as effect-free.
	TryCatchDeoptimization bool

	// UnknownGlobalSideEffects is true by default. It does not change
	// which statements count as effectful; when true, the inclusion pass
	// records every unresolved name an included statement references in
	// Program.AccessedGlobals, which chunk rendering keeps out of renaming.
	UnknownGlobalSideEffects bool
}

func DefaultOptions() Options {
	return Options{
		PropertyReadSideEffects:  true,
		TryCatchDeoptimization:   true,
		UnknownGlobalSideEffects: true,
	}
}

// Run executes all three ANALYSE steps in order and returns once the
// inclusion fixed point is stable.
func Run(store *graph.Store, log *logger.Log, entryModules []*graph.Module, opts Options) error {
	AnalyseModuleExecution(store, log, entryModules)
	BindReferences(store, log)
	return Include(store, log, entryModules, opts)
}

// collectDynamicEntries finds every executed dynamic-import target. For
// inclusion purposes a dynamic target is an entry: its body runs when the
// import resolves and its exports are the namespace the importer awaits,
// so both must survive tree-shaking.
func collectDynamicEntries(store *graph.Store, entryModules []*graph.Module) []*graph.Module {
	isEntry := make(map[ast.ModuleId]bool, len(entryModules))
	for _, m := range entryModules {
		isEntry[m.Id] = true
	}
	seen := make(map[ast.ModuleId]bool)
	var out []*graph.Module
	for _, m := range store.Modules() {
		if !m.Executed {
			continue
		}
		for _, dyn := range m.DynamicImports {
			rec := findImportRecord(m, dyn, js_ast.ImportDynamic)
			if rec == nil || rec.External || !rec.ModuleIndex.IsValid() {
				continue
			}
			dep, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex())
			if !ok || isEntry[dep.Id] || seen[dep.Id] {
				continue
			}
			seen[dep.Id] = true
			out = append(out, dep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// execWalker carries the post-order traversal state for
// AnalyseModuleExecution: a stack of ids for cycle-path reconstruction and
// a monotonically increasing counter for execIndex assignment.
type execWalker struct {
	store     *graph.Store
	log       *logger.Log
	nextIndex uint32
	onStack   map[ast.ModuleId]int // id -> position in path, for cycle detection
	path      []ast.ModuleId
	done      map[ast.ModuleId]bool
	reported  map[string]bool // canonical cycle key -> already warned
}

// AnalyseModuleExecution does a depth-first traversal from static entry
// modules assigning execIndex in post-order, following dynamic-import and
// implicitlyLoadedBefore targets as additional roots, and reporting each
// distinct import cycle exactly once, with its path rotated so the
// lex-least module id is listed first.
func AnalyseModuleExecution(store *graph.Store, log *logger.Log, entryModules []*graph.Module) {
	w := &execWalker{
		store:    store,
		log:      log,
		onStack:  make(map[ast.ModuleId]int),
		done:     make(map[ast.ModuleId]bool),
		reported: make(map[string]bool),
	}

	roots := make([]*graph.Module, len(entryModules))
	copy(roots, entryModules)
	sort.SliceStable(roots, func(i, j int) bool { return roots[i].Id < roots[j].Id })
	for _, m := range roots {
		w.visit(m)
	}

	// Dynamic-import and implicitlyLoadedBefore targets are additional
	// roots, processed after the static entry traversal so that a module
	// reached both statically and dynamically keeps the execIndex its
	// static position earns (step 1).
	var extraRoots []ast.ModuleId
	for _, m := range store.Modules() {
		if !w.done[m.Id] {
			continue
		}
		for _, dyn := range m.DynamicImports {
			if rec := findImportRecord(m, dyn, js_ast.ImportDynamic); rec != nil && !rec.External && rec.ModuleIndex.IsValid() {
				if dep, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex()); ok {
					extraRoots = append(extraRoots, dep.Id)
				}
			}
		}
	}
	for _, id := range dedupeIds(extraRoots) {
		if m, ok := store.Get(id); ok {
			w.visit(m)
		}
	}
	for _, m := range store.Modules() {
		for _, before := range m.ImplicitlyLoadedBefore {
			if target, ok := store.Get(before); ok {
				w.visit(target)
			}
		}
	}
}

func dedupeIds(ids []ast.ModuleId) []ast.ModuleId {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0:0]
	var last ast.ModuleId
	first := true
	for _, id := range ids {
		if first || id != last {
			out = append(out, id)
			last = id
			first = false
		}
	}
	return out
}

func (w *execWalker) visit(m *graph.Module) {
	if m == nil || w.done[m.Id] {
		return
	}
	if pos, onStack := w.onStack[m.Id]; onStack {
		w.reportCycle(w.path[pos:])
		return
	}
	w.onStack[m.Id] = len(w.path)
	w.path = append(w.path, m.Id)

	for _, source := range m.Sources {
		// Resolve the static source specifier back to a module via the
		// program's import records, so the traversal follows the graph
		// edge rather than re-resolving by specifier text.
		if rec := findImportRecord(m, source, js_ast.ImportStatic); rec != nil && !rec.External && rec.ModuleIndex.IsValid() {
			if dep, ok := w.store.ModuleByIndex(rec.ModuleIndex.GetIndex()); ok {
				w.visit(dep)
			}
		}
	}

	w.path = w.path[:len(w.path)-1]
	delete(w.onStack, m.Id)
	w.done[m.Id] = true
	m.Executed = true
	m.ExecIndex = w.nextIndex
	w.nextIndex++
}

// findImportRecord returns the first import record for a given source
// specifier and kind. Since a module may import the same
// specifier more than once (rare but legal), this is good enough for the
// traversal's purposes: all occurrences point at the same resolved module.
func findImportRecord(m *graph.Module, source string, kind js_ast.ImportKind) *js_ast.ImportRecord {
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

// reportCycle records a cycle from the slice of the current DFS path that
// closes it, rotated so the lex-least id comes first,
// and deduplicated so each distinct cycle warns exactly once.
func (w *execWalker) reportCycle(cyclePath []ast.ModuleId) {
	rotated := rotateToLexLeast(cyclePath)
	key := cycleKey(rotated)
	if w.reported[key] {
		return
	}
	w.reported[key] = true

	for _, id := range rotated {
		if m, ok := w.store.Get(id); ok {
			m.Cycles = rotated
		}
	}

	display := make([]string, len(rotated)+1)
	for i, id := range rotated {
		display[i] = string(id)
	}
	display[len(rotated)] = string(rotated[0])
	text := "Circular dependency: " + joinArrows(display)
	w.log.AddWarning(nil, logger.CodeCircularDependency, text)
}

func rotateToLexLeast(path []ast.ModuleId) []ast.ModuleId {
	if len(path) == 0 {
		return path
	}
	leastIdx := 0
	for i, id := range path {
		if id < path[leastIdx] {
			leastIdx = i
		}
	}
	out := make([]ast.ModuleId, len(path))
	for i := range path {
		out[i] = path[(leastIdx+i)%len(path)]
	}
	return out
}

func cycleKey(path []ast.ModuleId) string {
	s := ""
	for _, id := range path {
		s += string(id) + "\x00"
	}
	return s
}

func joinArrows(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

// BindReferences resolves each module's cross-module imports/exports,
// following re-exports transitively, and warns on missing exports with
// source location.
func BindReferences(store *graph.Store, log *logger.Log) {
	modules := store.Modules()

	// Pass 1: collect each module's own (non-reexported-all) exports so
	// that re-export resolution in pass 2 has somewhere to look up.
	for _, m := range modules {
		collectOwnExports(m)
	}

	// Pass 2: resolve "export {x} from 'id'" and "export * from 'id'"
	// against the now-populated Exports maps, tolerating cycles with a
	// per-call visited set.
	for _, m := range modules {
		resolveNamedReexports(store, log, m)
	}

	// Pass 3: resolve every SImport's bindings against the exporting
	// module's Exports map, warning on a missing export.
	for _, m := range modules {
		resolveImportBindings(store, log, m)
	}
}

func collectOwnExports(m *graph.Module) {
	if m.Program == nil {
		return
	}
	if m.Program.ExportDefaultRef.IsValid() {
		m.Exports["default"] = m.Program.ExportDefaultRef
	}
	for i := range m.Program.Stmts {
		switch v := m.Program.Stmts[i].Data.(type) {
		case *js_ast.SExportNamed:
			if v.Source == nil {
				for _, spec := range v.Specifiers {
					m.Exports[spec.Exported] = spec.LocalRef
				}
			}
			if v.Decl != nil {
				collectDeclExports(m, v.Decl)
			}
		case *js_ast.SExportDefault:
			m.Exports["default"] = v.LocalRef
		case *js_ast.SExportAll:
			rec := m.Program.ImportRecords[v.ImportRecordIndex]
			entry := graph.ReexportAllEntry{As: v.As}
			if rec.External {
				entry.External = true
				entry.ExternalId = rec.ExternalId
			} else {
				entry.ModuleIndex = rec.ModuleIndex
			}
			m.ReexportAll = append(m.ReexportAll, entry)
		}
	}
}

func collectDeclExports(m *graph.Module, decl js_ast.S) {
	switch v := decl.(type) {
	case *js_ast.SVarDecl:
		for _, d := range v.Decls {
			m.Exports[d.Name] = d.Ref
		}
	case *js_ast.SFunctionDecl:
		m.Exports[v.Name] = v.Ref
	case *js_ast.SClassDecl:
		m.Exports[v.Name] = v.Ref
	}
}

func resolveNamedReexports(store *graph.Store, log *logger.Log, m *graph.Module) {
	if m.Program == nil {
		return
	}
	for i := range m.Program.Stmts {
		v, ok := m.Program.Stmts[i].Data.(*js_ast.SExportNamed)
		if !ok || v.Source == nil {
			continue
		}
		rec := m.Program.ImportRecords[v.ImportRecordIndex]
		for _, spec := range v.Specifiers {
			if rec.External {
				continue // external re-exports are resolved at render time, not here
			}
			target, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex())
			if !ok {
				continue
			}
			ref, res := resolveExportChain(store, target, spec.Local, map[ast.ModuleId]bool{m.Id: true})
			switch res {
			case exportCycle:
				log.AddError(nil, logger.CodeCircularReexport, fmt.Sprintf(
					"%q cannot be exported from %q as it is a reexport that references itself", spec.Exported, m.Id))
			case exportMissing:
				log.AddWarning(nil, logger.CodeMissingExport, fmt.Sprintf(
					"%q is not exported by %q, reexported from %q", spec.Local, target.Id, m.Id))
			case exportFound:
				m.Exports[spec.Exported] = ref
			}
		}
	}
}

type exportResolution uint8

const (
	exportFound exportResolution = iota
	exportMissing
	exportCycle
)

// resolveExportChain follows "export * from" and "export {x} from"
// forwarding until it finds a module that actually owns the name. Named
// re-export statements are followed directly off the AST rather than
// through the Exports map, so resolution never depends on the order
// modules were processed in. Re-entering a module along a named chain is
// a circular re-export; along a star chain it just means that module was
// already searched.
func resolveExportChain(store *graph.Store, m *graph.Module, name string, visited map[ast.ModuleId]bool) (ast.Ref, exportResolution) {
	if visited[m.Id] {
		return ast.Ref{}, exportCycle
	}
	visited[m.Id] = true
	if ref, ok := m.Exports[name]; ok {
		return ref, exportFound
	}
	if m.Program != nil {
		for i := range m.Program.Stmts {
			v, ok := m.Program.Stmts[i].Data.(*js_ast.SExportNamed)
			if !ok || v.Source == nil {
				continue
			}
			rec := m.Program.ImportRecords[v.ImportRecordIndex]
			if rec.External {
				continue
			}
			for _, spec := range v.Specifiers {
				if spec.Exported != name {
					continue
				}
				target, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex())
				if !ok {
					continue
				}
				ref, res := resolveExportChain(store, target, spec.Local, visited)
				if res != exportMissing {
					return ref, res
				}
			}
		}
	}
	for _, reexport := range m.ReexportAll {
		if reexport.External {
			continue
		}
		if reexport.As != nil {
			continue // "export * as ns" doesn't re-export individual names under their own names
		}
		target, ok := store.ModuleByIndex(reexport.ModuleIndex.GetIndex())
		if !ok {
			continue
		}
		if ref, res := resolveExportChain(store, target, name, visited); res == exportFound {
			return ref, exportFound
		}
	}
	return ast.Ref{}, exportMissing
}

func resolveImportBindings(store *graph.Store, log *logger.Log, m *graph.Module) {
	if m.Program == nil {
		return
	}
	for i := range m.Program.Stmts {
		v, ok := m.Program.Stmts[i].Data.(*js_ast.SImport)
		if !ok {
			continue
		}
		rec := m.Program.ImportRecords[v.ImportRecordIndex]
		if rec.External {
			continue // external bindings are resolved at render time via the interop block
		}
		target, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex())
		if !ok {
			continue
		}
		if v.NamespaceLocalName != "" {
			m.ImportBindings[v.NamespaceLocalRef] = target.NamespaceRef
		}
		if v.DefaultLocalName != "" {
			if ref, res := resolveExportChain(store, target, "default", map[ast.ModuleId]bool{}); res == exportFound {
				m.ImportBindings[v.DefaultLocalRef] = ref
			} else {
				m.ImportBindings[v.DefaultLocalRef] = ast.InvalidRef
				log.AddWarning(nil, logger.CodeMissingExport, fmt.Sprintf(
					"%q does not export a default, imported from %q", target.Id, m.Id))
			}
		}
		for _, item := range v.Items {
			if ref, res := resolveExportChain(store, target, item.Alias, map[ast.ModuleId]bool{}); res == exportFound {
				m.ImportBindings[item.LocalRef] = ref
			} else if item.Alias != "*" {
				m.ImportBindings[item.LocalRef] = ast.InvalidRef
				log.AddWarning(nil, logger.CodeMissingExport, fmt.Sprintf(
					"%q is not exported by %q", item.Alias, target.Id))
			}
		}
	}
}

// declIndex maps, per module id, a declared Ref to the index of the Stmt
// that declares it — the inclusion pass's way of going from "this
// binding is used" to "mark its declaring statement included" without a
// parent pointer on every node.
type declIndex map[ast.ModuleId]map[ast.Ref]int

func buildDeclIndex(store *graph.Store) declIndex {
	out := make(declIndex)
	for _, m := range store.Modules() {
		if m.Program == nil {
			continue
		}
		idx := make(map[ast.Ref]int, len(m.Program.Stmts))
		for i := range m.Program.Stmts {
			switch v := m.Program.Stmts[i].Data.(type) {
			case *js_ast.SImport:
				if v.DefaultLocalName != "" {
					idx[v.DefaultLocalRef] = i
				}
				if v.NamespaceLocalName != "" {
					idx[v.NamespaceLocalRef] = i
				}
				for _, item := range v.Items {
					idx[item.LocalRef] = i
				}
			case *js_ast.SExportNamed:
				if v.Decl != nil {
					indexDecl(idx, v.Decl, i)
				}
			case *js_ast.SExportDefault:
				idx[v.LocalRef] = i
				if v.Decl != nil {
					indexDecl(idx, v.Decl, i)
				}
			case *js_ast.SFunctionDecl:
				idx[v.Ref] = i
			case *js_ast.SClassDecl:
				idx[v.Ref] = i
			case *js_ast.SVarDecl:
				for _, d := range v.Decls {
					idx[d.Ref] = i
				}
			}
		}
		out[m.Id] = idx
	}
	return out
}

func indexDecl(idx map[ast.Ref]int, decl js_ast.S, i int) {
	switch v := decl.(type) {
	case *js_ast.SFunctionDecl:
		idx[v.Ref] = i
	case *js_ast.SClassDecl:
		idx[v.Ref] = i
	case *js_ast.SVarDecl:
		for _, d := range v.Decls {
			idx[d.Ref] = i
		}
	}
}

// seedModules computes the initial inclusion seeds: every module
// reachable from a user-defined or implicit entry through
// moduleSideEffects-true dependencies. A module with
// moduleSideEffects === false is itself seeded (it may still need its
// exports rendered) but does not propagate seeding past itself, since its
// own top-level code is declared side-effect-free.
func seedModules(store *graph.Store, entryModules []*graph.Module) map[ast.ModuleId]bool {
	seeds := make(map[ast.ModuleId]bool)
	visited := make(map[ast.ModuleId]bool)
	var walk func(m *graph.Module)
	walk = func(m *graph.Module) {
		if m == nil || visited[m.Id] {
			return
		}
		visited[m.Id] = true
		seeds[m.Id] = true
		if m.ModuleSideEffects == graph.ModuleSideEffectsFalse {
			return
		}
		for _, source := range m.Sources {
			rec := findImportRecord(m, source, js_ast.ImportStatic)
			if rec != nil && !rec.External && rec.ModuleIndex.IsValid() {
				if dep, ok := store.ModuleByIndex(rec.ModuleIndex.GetIndex()); ok {
					walk(dep)
				}
			}
		}
	}
	for _, m := range entryModules {
		walk(m)
	}
	return seeds
}

// Include runs the inclusion fixed point.
// A statement is included once it is reachable from a seed module
// and has observable effects (or its module disables tree-shaking
// entirely), or once something marks one of its declared bindings used.
// Marking a binding used cascades across modules through ImportBindings
// and a Symbol's ForwardsTo chain.
func Include(store *graph.Store, log *logger.Log, entryModules []*graph.Module, opts Options) error {
	if opts.Disabled {
		markEverythingIncluded(store)
		return nil
	}

	idx := buildDeclIndex(store)
	roots := append(append([]*graph.Module{}, entryModules...), collectDynamicEntries(store, entryModules)...)
	seeds := seedModules(store, roots)

	// A root module is always part of the output, even when none of its
	// own statements survive (a pure re-export entry has no body of its
	// own) — the chunk planner still owes it a chunk and a facade.
	for _, m := range roots {
		m.Included = true
	}

	var markStmtIncluded func(m *graph.Module, stmtIndex int) bool
	var markRefUsed func(ref ast.Ref) bool

	markRefUsed = func(ref ast.Ref) bool {
		if !ref.IsValid() {
			return false
		}
		target, ok := store.ModuleByIndex(ref.ModuleIndex)
		if !ok || target.Program == nil || int(ref.InnerIndex) >= len(target.Program.Symbols) {
			return false
		}
		sym := &target.Program.Symbols[ref.InnerIndex]
		if sym.Included {
			// Already discovered: don't re-walk its forwarding chain.
			// ForwardsTo/ImportBindings cycles are broken by treating
			// this symbol as fully processed the first time it's
			// marked included.
			sym.Referenced = true
			return false
		}
		sym.Included = true
		sym.Referenced = true
		if stmtIndex, ok := idx[target.Id][ref]; ok {
			markStmtIncluded(target, stmtIndex)
		}
		if fwd, ok := target.ImportBindings[ref]; ok && fwd.IsValid() {
			markRefUsed(fwd)
		}
		if sym.ForwardsTo.IsValid() {
			markRefUsed(sym.ForwardsTo)
		}
		return true
	}

	markStmtIncluded = func(m *graph.Module, stmtIndex int) bool {
		stmt := &m.Program.Stmts[stmtIndex]
		if stmt.Included {
			return false
		}
		stmt.Included = true
		m.Included = true
		for _, name := range js_ast.CollectStmtRefNames(stmt.Data) {
			if ref, ok := m.Program.ModuleScope.Resolve(name); ok {
				markRefUsed(ref)
			} else if opts.UnknownGlobalSideEffects {
				m.Program.AccessedGlobals[name] = true
			}
		}
		return true
	}

	// The first pass additionally includes exports for every
	// entry/implicit-entry/dynamic-entry module whose preserveSignature is
	// not false. Run once before the fixed point below so those forced
	// exports seed the same worklist ordinary usage does.
	for _, m := range roots {
		// A dynamic entry (IsEntry false) always has its exports forced:
		// the importer receives the whole namespace. Declared entries
		// respect their preserveSignature.
		if m.IsEntry && m.PreserveSignature == graph.PreserveSignatureFalse {
			continue
		}
		names := make([]string, 0, len(m.Exports))
		for name := range m.Exports {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			markRefUsed(m.Exports[name])
		}
	}

	for {
		changed := false
		for _, m := range store.Modules() {
			if !m.Executed {
				continue
			}
			if !seeds[m.Id] && !m.Included {
				continue
			}
			if m.Program == nil {
				continue
			}
			noTreeshake := m.ModuleSideEffects == graph.ModuleSideEffectsNoTreeshake
			for i := range m.Program.Stmts {
				if m.Program.Stmts[i].Included {
					continue
				}
				effectful := seeds[m.Id] && stmtHasEffects(m.Program.Stmts[i].Data, opts)
				if noTreeshake || effectful {
					if markStmtIncluded(m, i) {
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}
	return nil
}

// stmtHasEffects layers the granular treeshake options on top of
// js_ast.StmtHasEffects: tryCatchDeoptimization controls whether an
// unmodeled SVerbatim block (which could be a try/catch) is treated
// conservatively.
func stmtHasEffects(s js_ast.S, opts Options) bool {
	if _, ok := s.(*js_ast.SVerbatim); ok && !opts.TryCatchDeoptimization {
		return false
	}
	return js_ast.StmtHasEffects(s)
}

func markEverythingIncluded(store *graph.Store) {
	for _, m := range store.Modules() {
		m.Executed = true
		m.Included = true
		if m.Program == nil {
			continue
		}
		for i := range m.Program.Stmts {
			m.Program.Stmts[i].Included = true
		}
		for i := range m.Program.Symbols {
			m.Program.Symbols[i].Included = true
		}
	}
}
