// Package graph is the central data model: the process-wide store of
// Module and ExternalModule instances keyed by id, plus the ResolvedId
// value the resolver and loader hand back and forth while building that
// store. There is only one module representation to discriminate between
// here, JS modules and external modules, so the store also carries the
// execution-order, tree-shake, and chunk bookkeeping directly on Module.
package graph

import (
	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/helpers"
	"github.com/rollup-go/rollup/internal/js_ast"
)

// PreserveSignature controls how strictly an entry module's export
// signature must be reproduced by the chunk (or facade) that fronts it.
type PreserveSignature uint8

const (
	PreserveSignatureFalse PreserveSignature = iota
	PreserveSignatureStrict
	PreserveSignatureExportsOnly
	PreserveSignatureAllowExtension
)

// ModuleSideEffects is the per-module side-effect tri-state: true
// (default heuristic), false (no side effects, safe to drop if unused),
// or no-treeshake (always included, tree-shaking disabled for this
// module's own statements).
type ModuleSideEffects uint8

const (
	ModuleSideEffectsTrue ModuleSideEffects = iota
	ModuleSideEffectsFalse
	ModuleSideEffectsNoTreeshake
)

// External is the three-way external classification a ResolvedId
// carries: not external, external, or external-with-absolute-path.
type External uint8

const (
	ExternalFalse External = iota
	ExternalTrue
	ExternalAbsolute
)

// ResolvedId is the value a resolveId call (built-in or plugin)
// produces.
type ResolvedId struct {
	Id                    string
	External              External
	ModuleSideEffects     ModuleSideEffects
	SyntheticNamedExports interface{} // false, true, or a string
	Meta                  map[string]interface{}
}

// Module is a parsed module plus every fact derived about it during
// loading and analysis.
type Module struct {
	Id                      ast.ModuleId
	ModuleIndex             uint32
	Source                  string
	Program                 *js_ast.Program
	IsEntry                 bool
	IsUserDefinedEntryPoint bool
	PreserveSignature       PreserveSignature
	ModuleSideEffects       ModuleSideEffects
	SyntheticNamedExports   interface{}

	// Sources is the ordered list of static import specifiers as they
	// appear in the source.
	Sources []string
	// DynamicImports holds the specifiers reached only through import().
	DynamicImports []string

	ImplicitlyLoadedBefore []ast.ModuleId
	ImplicitlyLoadedAfter  []ast.ModuleId

	// Importers and DynamicImporters are the reverse of Sources and
	// DynamicImports: populated during load, read-only once analysis
	// starts.
	Importers        []ast.ModuleId
	DynamicImporters []ast.ModuleId

	// ExecIndex is the total order reflecting a depth-first post-order
	// walk of the static graph from the entry modules.
	ExecIndex uint32

	// Cycles holds the other module ids this module participates in an
	// import cycle with, populated once execution order is computed.
	Cycles []ast.ModuleId

	// ResolvedIds caches the resolveId result per static specifier so
	// resolution only runs once per (importer, specifier) pair.
	ResolvedIds map[string]ResolvedId

	NamespaceRef ast.Ref

	// EntryBits records which entry points can reach this module; the
	// chunk planner groups modules by this bitmask.
	EntryBits helpers.BitSet

	// Included is the tree-shake driver's per-module decision: a module
	// is included iff it is no-treeshake, reachable from an included
	// chain, or has an executed, effectful statement.
	Included bool

	// Executed records whether analyseModuleExecution's traversal reached
	// this module at all (step 1). A module can be
	// loaded (e.g. pulled in via addAdditionalModules) without ever being
	// executed, in which case it is never a seed for inclusion.
	Executed bool

	// Exports maps an exported name to the Ref that owns its value,
	// filled in by internal/treeshake's binding resolution. "default" is
	// always present when the module has a default export.
	Exports map[string]ast.Ref

	// ReexportAll records "export * [as ns] from 'id'" statements pending
	// resolution ("Import / re-export specifier
	// nodes... resolved cross-module post-parse via linkImports").
	ReexportAll []ReexportAllEntry

	// ImportBindings maps a local import binding's Ref to the Ref it
	// resolves to in the exporting module (or ast.InvalidRef if the
	// source is external or the export is missing), so that marking an
	// import used can propagate to the declaration it forwards to.
	ImportBindings map[ast.Ref]ast.Ref
}

// ReexportAllEntry is one "export * from 'id'" or "export * as ns from
// 'id'" statement, recorded during binding resolution for the inclusion
// pass to walk once the target module's own exports are known.
type ReexportAllEntry struct {
	ModuleIndex ast.Index32
	External    bool
	ExternalId  string
	As          *string
}

// InteropKind enumerates the interop modes an external dependency can
// be imported under.
type InteropKind uint8

const (
	InteropAuto InteropKind = iota
	InteropESModule
	InteropDefault
	InteropDefaultOnly
	InteropCompat
	InteropTrue
	InteropFalse
)

// ExternalModule is a module whose body is not owned by this build; it
// appears in output only as an import from a runtime path.
type ExternalModule struct {
	Id                    ast.ModuleId
	RenderPath            string
	NamedExportVariables  map[string]ast.Ref
	HasDeclaredDefault    bool
	RenormalizeRenderPath bool
	Interop               InteropKind
}

// Store is the process-wide state that owns every Module and
// ExternalModule instance through a mapping keyed by id; modules are
// created exactly once per id.
type Store struct {
	modules         map[ast.ModuleId]*Module
	byIndex         map[uint32]*Module
	externalModules map[ast.ModuleId]*ExternalModule
	order           []ast.ModuleId // insertion order, for deterministic iteration
}

func NewStore() *Store {
	return &Store{
		modules:         make(map[ast.ModuleId]*Module),
		byIndex:         make(map[uint32]*Module),
		externalModules: make(map[ast.ModuleId]*ExternalModule),
	}
}

func (s *Store) Get(id ast.ModuleId) (*Module, bool) {
	m, ok := s.modules[id]
	return m, ok
}

// ModuleByIndex looks a module up by its ModuleIndex handle, used by
// internal/treeshake when it follows a cross-module ast.Ref.
// Back-references stay handle lookups rather than pointers so cyclic
// graphs need no ownership story.
func (s *Store) ModuleByIndex(index uint32) (*Module, bool) {
	m, ok := s.byIndex[index]
	return m, ok
}

// GetOrCreate returns the existing Module for id, or creates and registers
// a new one. The second return value reports whether a new Module was
// created, so the loader knows whether it still needs to fetch/parse.
func (s *Store) GetOrCreate(id ast.ModuleId, moduleIndex uint32) (*Module, bool) {
	if m, ok := s.modules[id]; ok {
		return m, false
	}
	m := &Module{
		Id:             id,
		ModuleIndex:    moduleIndex,
		ResolvedIds:    make(map[string]ResolvedId),
		Exports:        make(map[string]ast.Ref),
		ImportBindings: make(map[ast.Ref]ast.Ref),
	}
	s.modules[id] = m
	s.byIndex[moduleIndex] = m
	s.order = append(s.order, id)
	return m, true
}

func (s *Store) GetExternal(id ast.ModuleId) (*ExternalModule, bool) {
	m, ok := s.externalModules[id]
	return m, ok
}

func (s *Store) GetOrCreateExternal(id ast.ModuleId) (*ExternalModule, bool) {
	if m, ok := s.externalModules[id]; ok {
		return m, false
	}
	m := &ExternalModule{Id: id, RenderPath: string(id), NamedExportVariables: make(map[string]ast.Ref)}
	s.externalModules[id] = m
	return m, true
}

// Modules returns every internal module in insertion order. Map
// iteration order is randomized in Go, and output must be deterministic
// for identical input, so the store keeps an explicit order slice.
func (s *Store) Modules() []*Module {
	out := make([]*Module, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.modules[id])
	}
	return out
}
