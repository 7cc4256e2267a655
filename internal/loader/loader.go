// Package loader implements concurrent, deduplicating resolution and
// loading of a module graph across static and dynamic imports: a
// worker-pool style fan-out over newly discovered dependencies, deduped
// by a process-wide store, with a plugin-hook-driven resolveId/load
// surface in front of the filesystem.
package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/cache"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/fs"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/js_parser"
	"github.com/rollup-go/rollup/internal/logger"
	"github.com/rollup-go/rollup/internal/plugin"
	"github.com/rollup-go/rollup/internal/resolver"
)

// DefaultFileOpParallelism bounds the file operation queue: a semaphore
// limiting how many module loads are in flight at once, so every load
// (the load hook chain and its filesystem fallback) routes through a
// shared bound. Grounded on golang.org/x/sync/semaphore.
const DefaultFileOpParallelism = 32

// EmitChunkSpec describes a chunk emitted during load time. When
// ImplicitlyLoadedAfterOneOf is provided the emitted module is implicit:
// not reachable as an entry, but placed after the listed modules.
type EmitChunkSpec struct {
	Id                         string
	Name                       string
	ImplicitlyLoadedAfterOneOf []string
}

// Loader owns the in-flight resolution/load/parse work for a single
// build and the graph.Store it populates. Safe for concurrent use: every
// read or write of shared state happens under mu.
type Loader struct {
	Store   *graph.Store
	FS      fs.FS
	Log     *logger.Log
	Plugins *plugin.Driver
	Cache   *cache.CacheSet

	External                      config.ExternalPredicate
	MakeAbsoluteExternalsRelative bool

	fileOps *semaphore.Weighted

	mu                 sync.Mutex
	nextEntryIndex     int
	entryModules       []*graph.Module
	entryIndexByModule map[ast.ModuleId]int
	implicitEntries    map[ast.ModuleId]bool
}

// Every call that discovers new load work (AddEntryModules,
// AddAdditionalModules, EmitChunk, PreloadModule) is itself a barrier: it
// returns only once its own errgroup.Wait resolves. A plugin can emit
// additional chunks mid-load and the whole LOAD_AND_PARSE phase still
// waits for them, since the caller (pkg/api's build orchestration)
// awaits every AddEntryModules/EmitChunk call it issues before moving to
// ANALYSE, and no wave of work returns before its own dependency
// fan-out settles.

func New(store *graph.Store, fsys fs.FS, log *logger.Log, plugins *plugin.Driver, cacheSet *cache.CacheSet, external config.ExternalPredicate, makeAbsoluteExternalsRelative bool) *Loader {
	l := &Loader{
		Store:                         store,
		FS:                            fsys,
		Log:                           log,
		Plugins:                       plugins,
		Cache:                         cacheSet,
		External:                      external,
		MakeAbsoluteExternalsRelative: makeAbsoluteExternalsRelative,
		fileOps:                       semaphore.NewWeighted(DefaultFileOpParallelism),
		implicitEntries:               make(map[ast.ModuleId]bool),
		entryIndexByModule:            make(map[ast.ModuleId]int),
	}
	return l
}

// getOrCreateModule is the only path that inserts into the store during
// the concurrent load fan-out, so the index allocation and the insertion
// share one critical section: two goroutines racing on the same id get
// the same *Module back and only one of them sees created == true. The
// index comes from the cache's id-to-index table so that a cached
// program's already-stamped Refs stay valid across rebuilds sharing one
// CacheSet.
func (l *Loader) getOrCreateModule(id ast.ModuleId) (*graph.Module, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Store.GetOrCreate(id, l.Cache.ModuleIndex.Get(id))
}

// AddEntryModules resolves specs, loads them, and assigns each a stable
// entry index (firstEntryModuleIndex + i) and a chunk-name priority,
// merging repeats by taking the minimum index.
func (l *Loader) AddEntryModules(ctx context.Context, specs []string, isUserDefined bool) ([]*graph.Module, error) {
	firstIndex := l.nextEntryIndexAndAdvance(len(specs))
	resolvedBySpecOrder := make([]*graph.Module, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			id, err := l.loadModuleRecursive(gctx, spec, "", true)
			if err != nil {
				return err
			}
			l.mu.Lock()
			m, _ := l.Store.Get(id)
			l.mu.Unlock()
			resolvedBySpecOrder[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Assign (entryIndex, chunkNamePriority) in request order — a stable
	// entry index (firstEntryModuleIndex + i) and a chunk-name priority
	// sorted ascending — not goroutine-completion order, so two runs over
	// the same input produce the same entry ordering.
	var added []*graph.Module
	l.mu.Lock()
	for i, m := range resolvedBySpecOrder {
		if m == nil {
			continue
		}
		wasEntry := m.IsEntry
		m.IsEntry = true
		if isUserDefined {
			m.IsUserDefinedEntryPoint = true
		}
		// Entries default to "exports-only": their declared exports
		// survive tree-shaking unless the caller relaxes the signature
		// explicitly (pkg/api.InputOptions.PreserveEntrySignatures).
		if m.PreserveSignature == graph.PreserveSignatureFalse {
			m.PreserveSignature = graph.PreserveSignatureExportsOnly
		}
		if entry, ok := l.entryIndexByModule[m.Id]; !ok || entry > firstIndex+i {
			l.entryIndexByModule[m.Id] = firstIndex + i
		}
		if !wasEntry {
			added = append(added, m)
			l.entryModules = append(l.entryModules, m)
		}
	}
	sort.Slice(l.entryModules, func(a, b int) bool {
		return l.entryIndexByModule[l.entryModules[a].Id] < l.entryIndexByModule[l.entryModules[b].Id]
	})
	l.mu.Unlock()
	return added, nil
}

func (l *Loader) nextEntryIndexAndAdvance(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	first := l.nextEntryIndex
	l.nextEntryIndex += n
	return first
}

// AddAdditionalModules loads modules that must be in the graph but are
// not entries.
func (l *Loader) AddAdditionalModules(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := l.loadModuleRecursive(gctx, id, "", false)
			return err
		})
	}
	return g.Wait()
}

// EmitChunk schedules a new entry during load time. When
// ImplicitlyLoadedAfterOneOf is non-empty the emitted module is implicit:
// it must be placed after the listed modules but is never itself a
// reachable entry.
func (l *Loader) EmitChunk(ctx context.Context, spec EmitChunkSpec) (*graph.Module, error) {
	id, err := l.loadModuleRecursive(ctx, spec.Id, "", len(spec.ImplicitlyLoadedAfterOneOf) == 0)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	m, _ := l.Store.Get(id)
	l.mu.Unlock()
	if m == nil {
		return nil, fmt.Errorf("emitChunk: %s did not resolve to an internal module", spec.Id)
	}
	if len(spec.ImplicitlyLoadedAfterOneOf) == 0 {
		l.mu.Lock()
		m.IsEntry = true
		if m.PreserveSignature == graph.PreserveSignatureFalse {
			m.PreserveSignature = graph.PreserveSignatureExportsOnly
		}
		l.entryModules = append(l.entryModules, m)
		l.mu.Unlock()
		return m, nil
	}
	l.mu.Lock()
	l.implicitEntries[m.Id] = true
	l.mu.Unlock()
	for _, afterSpec := range spec.ImplicitlyLoadedAfterOneOf {
		resolved, err := l.resolveId(afterSpec, "", false, nil)
		if err != nil {
			return nil, err
		}
		if resolved.External != graph.ExternalFalse {
			return nil, fmt.Errorf("emitChunk: implicitlyLoadedAfterOneOf target %q resolved to an external module", afterSpec)
		}
		l.mu.Lock()
		m.ImplicitlyLoadedAfter = append(m.ImplicitlyLoadedAfter, ast.ModuleId(resolved.Id))
		if after, ok := l.Store.Get(ast.ModuleId(resolved.Id)); ok {
			after.ImplicitlyLoadedBefore = append(after.ImplicitlyLoadedBefore, m.Id)
		}
		l.mu.Unlock()
	}
	return m, nil
}

// PreloadModule pulls a module into the graph and returns once it and its
// whole dependency graph have loaded. resolveDependencies is not consulted:
// there is no mode that returns after resolution but before loading.
func (l *Loader) PreloadModule(ctx context.Context, id string, resolveDependencies bool) error {
	_, err := l.loadModuleRecursive(ctx, id, "", false)
	return err
}

// ImplicitEntryModules returns the set of module ids that were added via
// EmitChunk with an implicit-dependant relationship.
func (l *Loader) ImplicitEntryModules() map[ast.ModuleId]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[ast.ModuleId]bool, len(l.implicitEntries))
	for k, v := range l.implicitEntries {
		out[k] = v
	}
	return out
}

func (l *Loader) EntryModules() []*graph.Module {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*graph.Module, len(l.entryModules))
	copy(out, l.entryModules)
	return out
}

// resolveId runs the resolution algorithm: the external predicate, then
// the resolveId plugin chain in "first" mode, then the built-in
// resolver.
func (l *Loader) resolveId(source string, importer string, isEntry bool, skip map[string]bool) (graph.ResolvedId, error) {
	if l.External != nil && l.External(source, importer, false) {
		return graph.ResolvedId{Id: l.normalizeExternal(source, importer), External: graph.ExternalTrue}, nil
	}

	if l.Plugins != nil {
		result, err := l.Plugins.First(plugin.HookResolveId, skip, source, importer, isEntry)
		if err != nil {
			return graph.ResolvedId{}, err
		}
		if resolved, ok := result.(*graph.ResolvedId); ok && resolved != nil {
			return l.finalizeResolvedId(*resolved), nil
		}
		if s, ok := result.(string); ok && s != "" {
			return l.finalizeResolvedId(graph.ResolvedId{Id: s}), nil
		}
	}

	importerDir := ""
	if importer != "" {
		importerDir = l.FS.Dir(importer)
	}
	builtin := resolver.Resolve(l.FS, importerDir, source)
	var r graph.ResolvedId
	switch builtin.External {
	case resolver.ExternalTrue:
		r = graph.ResolvedId{Id: builtin.Id, External: graph.ExternalTrue}
	default:
		if _, err := l.FS.ReadFile(builtin.Id); err != nil && resolver.IsRelativeSpecifier(source) {
			loc := &logger.Loc{File: importer}
			resolver.UnresolvedRelative(l.Log, loc, importer, source)
			return graph.ResolvedId{}, logger.NewBuildError(logger.CodeUnresolvedImport, fmt.Sprintf("Could not resolve %q from %q", source, importer), loc)
		}
		r = graph.ResolvedId{Id: builtin.Id}
	}
	return l.finalizeResolvedId(r), nil
}

func (l *Loader) finalizeResolvedId(r graph.ResolvedId) graph.ResolvedId {
	if r.Meta == nil {
		r.Meta = map[string]interface{}{}
	}
	return r
}

func (l *Loader) normalizeExternal(source string, importer string) string {
	if l.FS.IsAbs(source) || !strings.HasPrefix(source, ".") {
		return source
	}
	if importer == "" {
		return source
	}
	return l.FS.Join(l.FS.Dir(importer), source)
}

// loadModuleRecursive resolves id/importer to a canonical module id, and if
// this is the first time that id has been seen, loads, parses, and fetches
// its dependencies concurrently ("Static and dynamic
// fetches are distinct coroutines that both feed the same module store;
// deduplication is by id at insertion").
func (l *Loader) loadModuleRecursive(ctx context.Context, source string, importer string, isEntry bool) (ast.ModuleId, error) {
	// Resolution runs once per (importer, specifier) pair; the importer's
	// ResolvedIds map is the cache.
	var impMod *graph.Module
	if importer != "" {
		l.mu.Lock()
		impMod, _ = l.Store.Get(ast.ModuleId(importer))
		l.mu.Unlock()
	}
	var resolved graph.ResolvedId
	cached := false
	if impMod != nil {
		l.mu.Lock()
		resolved, cached = impMod.ResolvedIds[source]
		l.mu.Unlock()
	}
	if !cached {
		var err error
		resolved, err = l.resolveId(source, importer, isEntry, nil)
		if err != nil {
			return "", err
		}
		if impMod != nil {
			l.mu.Lock()
			impMod.ResolvedIds[source] = resolved
			l.mu.Unlock()
		}
	}
	if resolved.External != graph.ExternalFalse {
		if isEntry {
			return "", logger.NewBuildError(logger.CodeUnresolvedEntry, fmt.Sprintf("Entry module %q resolved to an external id", source), nil)
		}
		if resolved.SyntheticNamedExports != nil && resolved.SyntheticNamedExports != false {
			l.Log.AddWarningOnce("synthetic-external:"+resolved.Id, nil, logger.CodeValidationError,
				fmt.Sprintf("external module %q cannot have synthetic named exports enabled", resolved.Id))
		}
		l.mu.Lock()
		ext, _ := l.Store.GetOrCreateExternal(ast.ModuleId(resolved.Id))
		l.mu.Unlock()
		return ext.Id, nil
	}

	id := ast.ModuleId(resolved.Id)
	m, created := l.getOrCreateModule(id)
	if !created {
		return id, nil
	}
	m.ModuleSideEffects = resolved.ModuleSideEffects
	m.SyntheticNamedExports = resolved.SyntheticNamedExports

	if err := l.loadParseAndFetch(ctx, m); err != nil {
		return "", err
	}
	return id, nil
}

// shouldTransformCachedModule dispatches the shouldTransformCachedModule
// "first" hook: plugins get one shot at opting a cached module back into a
// fresh transform/parse pass even though its original source text hasn't
// changed.
func (l *Loader) shouldTransformCachedModule(id ast.ModuleId, originalCode string) bool {
	if l.Plugins == nil {
		return false
	}
	result, err := l.Plugins.First(plugin.HookShouldTransformCached, nil, string(id), originalCode)
	if err != nil {
		return true
	}
	b, _ := result.(bool)
	return b
}

func (l *Loader) loadParseAndFetch(ctx context.Context, m *graph.Module) error {
	if err := l.fileOps.Acquire(ctx, 1); err != nil {
		return err
	}
	source, err := l.load(m.Id)
	l.fileOps.Release(1)
	if err != nil {
		return err
	}

	// If a cached module for this id has identical original code and no
	// plugin's shouldTransformCachedModule opts it back in, adopt the
	// cached parsed form. Otherwise run transform as a reduce chain. The
	// reduced grammar has no per-transform source-map delta of its own to
	// thread (internal/sourcemap's chain composition operates at the
	// chunk-render layer, not here), so only the code accumulator is
	// folded.
	originalCode := source
	var prog *js_ast.Program
	cached, hasCached := l.Cache.Modules.Get(m.Id, originalCode)
	if hasCached && !l.shouldTransformCachedModule(m.Id, originalCode) {
		prog = cached
		resetInclusion(prog)
		m.Source = originalCode
	} else {
		if l.Plugins != nil {
			acc, err := l.Plugins.Reduce(plugin.HookTransform, source)
			if err != nil {
				return err
			}
			if s, ok := acc.(string); ok {
				source = s
			}
		}
		m.Source = source
		prog = js_parser.Parse(l.Log, string(m.Id), source)
		l.Cache.Modules.Put(m.Id, originalCode, prog)
	}
	stampModuleIndex(prog, m.ModuleIndex)
	m.Program = prog
	m.NamespaceRef = prog.NamespaceRef

	for _, rec := range prog.ImportRecords {
		if rec.Kind == js_ast.ImportStatic {
			m.Sources = append(m.Sources, rec.Path)
		} else {
			m.DynamicImports = append(m.DynamicImports, rec.Path)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range prog.ImportRecords {
		i := i
		g.Go(func() error {
			rec := &prog.ImportRecords[i]
			source := rec.Path
			if rec.Kind == js_ast.ImportDynamic && l.Plugins != nil {
				// resolveDynamicImport gets first shot at a dynamic
				// specifier; a string result replaces the source before the
				// ordinary resolveId chain sees it.
				if result, err := l.Plugins.First(plugin.HookResolveDynamicImport, nil, source, string(m.Id)); err == nil {
					if s, ok := result.(string); ok && s != "" {
						source = s
					}
				}
			}
			depId, err := l.loadModuleRecursive(gctx, source, string(m.Id), false)
			if err != nil {
				if rec.Kind == js_ast.ImportDynamic {
					// Dynamic import resolution failures are not fatal
					// to the static graph; only static and entry
					// resolution failures abort the build.
					return nil
				}
				return err
			}
			l.mu.Lock()
			ext, isExt := l.Store.GetExternal(depId)
			dep, isMod := l.Store.Get(depId)
			l.mu.Unlock()
			if isExt {
				rec.External = true
				rec.ExternalId = string(ext.Id)
				if rec.Kind == js_ast.ImportStatic && !resolver.IsRelativeSpecifier(rec.Path) {
					resolver.UnresolvedNonRelative(l.Log, &logger.Loc{File: string(m.Id)}, rec.Path)
				}
				return nil
			}
			if isMod {
				rec.ModuleIndex = ast.MakeIndex32(dep.ModuleIndex)
				l.mu.Lock()
				if rec.Kind == js_ast.ImportDynamic {
					dep.DynamicImporters = append(dep.DynamicImporters, m.Id)
				} else {
					dep.Importers = append(dep.Importers, m.Id)
				}
				l.mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// moduleParsed fires once this module's own dependency ids are
	// resolved; the dependencies themselves may still be loading.
	if l.Plugins != nil {
		_ = l.Plugins.Parallel(ctx, plugin.HookModuleParsed)
	}
	return nil
}

// load runs the load hook chain in "first" mode, falling back to a
// filesystem read through the file op queue.
func (l *Loader) load(id ast.ModuleId) (string, error) {
	if l.Plugins != nil {
		result, err := l.Plugins.First(plugin.HookLoad, nil, string(id))
		if err != nil {
			return "", err
		}
		if s, ok := result.(string); ok {
			return s, nil
		}
	}
	contents, err := l.FS.ReadFile(string(id))
	if err != nil {
		return "", logger.NewBuildError(logger.CodeBadLoader, fmt.Sprintf("Could not load %q: %v", id, err), nil)
	}
	return contents, nil
}

// resetInclusion clears the tree-shake decisions a cached program carries
// from the build that parsed it; inclusion is per-build state, not part
// of the parse result.
func resetInclusion(prog *js_ast.Program) {
	for i := range prog.Stmts {
		prog.Stmts[i].Included = false
	}
	for i := range prog.Symbols {
		prog.Symbols[i].Included = false
		prog.Symbols[i].Referenced = false
		prog.Symbols[i].RenameName = ""
	}
}

// stampModuleIndex renumbers parser-created Refs into the module's final
// slot: the parser stamps every symbol Ref
// it creates with a placeholder module index of 0 (it doesn't know its
// final slot in the graph store until the loader assigns one), so every Ref
// reachable from the parsed program must be renumbered once that slot is
// known. ast.InvalidRef is left untouched since it never equals a real
// module index of 0 combined with its reserved inner index.
func stampModuleIndex(prog *js_ast.Program, moduleIndex uint32) {
	fix := func(ref *ast.Ref) {
		if ref.IsValid() && ref.ModuleIndex == 0 {
			ref.ModuleIndex = moduleIndex
		}
	}
	for name, ref := range prog.ModuleScope.Members {
		r := ref
		fix(&r)
		prog.ModuleScope.Members[name] = r
	}
	for i := range prog.Stmts {
		fixStmt(&prog.Stmts[i].Data, fix)
	}
	fix(&prog.NamespaceRef)
	fix(&prog.ExportDefaultRef)
}

func fixStmt(sp *js_ast.S, fix func(*ast.Ref)) {
	switch v := (*sp).(type) {
	case *js_ast.SImport:
		fix(&v.DefaultLocalRef)
		fix(&v.NamespaceLocalRef)
		for i := range v.Items {
			fix(&v.Items[i].LocalRef)
		}
	case *js_ast.SExportNamed:
		for i := range v.Specifiers {
			fix(&v.Specifiers[i].LocalRef)
		}
		if v.Decl != nil {
			fixStmt(&v.Decl, fix)
		}
	case *js_ast.SExportDefault:
		fix(&v.LocalRef)
		if v.Decl != nil {
			fixStmt(&v.Decl, fix)
		} else {
			fixExpr(&v.Value, fix)
		}
	case *js_ast.SFunctionDecl:
		fix(&v.Ref)
	case *js_ast.SClassDecl:
		fix(&v.Ref)
	case *js_ast.SVarDecl:
		for i := range v.Decls {
			fix(&v.Decls[i].Ref)
			if v.Decls[i].Init != nil {
				fixExpr(v.Decls[i].Init, fix)
			}
		}
	case *js_ast.SExpr:
		fixExpr(&v.Expr, fix)
	case *js_ast.SIf:
		fixExpr(&v.Test, fix)
		if v.Consequent != nil {
			fixStmt(&v.Consequent.Data, fix)
		}
		if v.Alternate != nil {
			fixStmt(&v.Alternate.Data, fix)
		}
	}
}

func fixExpr(e *js_ast.Expr, fix func(*ast.Ref)) {
	switch v := e.Data.(type) {
	case *js_ast.EIdentifier:
		fix(&v.Ref)
	case *js_ast.ECall:
		fixExpr(&v.Callee, fix)
		for i := range v.Args {
			fixExpr(&v.Args[i], fix)
		}
	case *js_ast.EMember:
		fixExpr(&v.Target, fix)
	case *js_ast.EBinary:
		fixExpr(&v.Left, fix)
		fixExpr(&v.Right, fix)
	}
}
