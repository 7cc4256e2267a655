// Package js_ast is the parsed, scoped representation of a single
// module. It does not model every ECMAScript expression and statement
// form; it models JavaScript at the granularity the tree-shaker and
// renderer actually need to make decisions at: top-level statements, the
// handful of expression shapes that drive constant folding and effect
// analysis (literals, identifiers, calls, logical/conditional branches,
// dynamic import, import.meta), and an opaque "verbatim" escape hatch
// for everything else. The node-set operations (hasEffects, the reference
// collection behind include, and literal truthiness for branch folding) are
// implemented as centralized type-switch dispatch in js_ast_helpers.go
// instead of per-type methods. There is no deoptimizePath operation.
package js_ast

import (
	"github.com/rollup-go/rollup/internal/ast"
)

// SymbolKind is the binding family: plain locals, default-export
// forwarders, namespace objects, synthetic named exports, external
// imports, globals, and the undefined placeholder.
type SymbolKind uint8

const (
	SymbolLocal SymbolKind = iota
	SymbolExportDefault
	SymbolNamespace
	SymbolSyntheticNamedExport
	SymbolExternal
	SymbolGlobal
	SymbolUndefined
)

// Symbol is a Variable: a binding owned by the scope that declares it.
type Symbol struct {
	Kind         SymbolKind
	OriginalName string

	// RenameName is filled in during chunk rendering (internal/renamer).
	RenameName string

	Included     bool
	Referenced   bool
	IsReassigned bool

	// ForwardsTo, when valid, names another binding this symbol aliases;
	// inclusion and render-time resolution follow it and tolerate cycles.
	// Nothing sets it: the parser and loader leave it at ast.InvalidRef for
	// every symbol, including the one "export default x" declares, so no
	// forwarding chain is followed in practice.
	ForwardsTo ast.Ref
}

// ScopeKind distinguishes the module-root scope from nested function/block
// scopes; tree-shaking only ever needs to ask "which module owns this
// name", so nested scopes are modeled but not deeply inspected.
type ScopeKind uint8

const (
	ScopeModule ScopeKind = iota
	ScopeFunction
	ScopeBlock
)

type Scope struct {
	Kind     ScopeKind
	Parent   *Scope
	Children []*Scope
	Members  map[string]ast.Ref
}

func NewScope(kind ScopeKind, parent *Scope) *Scope {
	s := &Scope{Kind: kind, Parent: parent, Members: make(map[string]ast.Ref)}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Resolve walks from this scope up to the module scope looking for a
// declared binding.
func (s *Scope) Resolve(name string) (ast.Ref, bool) {
	for scope := s; scope != nil; scope = scope.Parent {
		if ref, ok := scope.Members[name]; ok {
			return ref, true
		}
	}
	return ast.Ref{}, false
}

// ImportKind distinguishes a static "import ... from" binding from a
// dynamic import() call target.
type ImportKind uint8

const (
	ImportStatic ImportKind = iota
	ImportDynamic
)

// ImportRecord is one entry in a module's ordered list of import
// specifiers, static and dynamic. Resolution fills in ModuleIndex (or
// marks External) after the loader resolves the specifier.
type ImportRecord struct {
	Path string
	Kind ImportKind
	Span ast.Span

	ModuleIndex ast.Index32 // valid once resolved to an internal module
	External    bool
	ExternalId  string // set when External; may differ from Path after normalization
}

// Program is the parsed body of one module: an ordered sequence of
// top-level statements plus the import records collected while parsing
// them.
type Program struct {
	Source        string // original source text, used for verbatim rendering
	Stmts         []Stmt
	ImportRecords []ImportRecord
	ModuleScope   *Scope
	Symbols       []Symbol // indexed by Ref.InnerIndex

	// NamespaceRef is the synthesized binding representing this module's
	// whole export object.
	NamespaceRef ast.Ref

	// ExportDefaultRef is valid only if the module has a default export.
	ExportDefaultRef ast.Ref

	// HasTopLevelAwait records whether any statement in this module is (or
	// transitively becomes, once linked) an await at module scope; used by
	// the render phase to reject top-level await in formats other than es
	// and system.
	HasTopLevelAwait bool

	AccessedGlobals map[string]bool
}

func NewProgram(source string) *Program {
	p := &Program{Source: source, AccessedGlobals: make(map[string]bool), ExportDefaultRef: ast.InvalidRef}
	p.ModuleScope = NewScope(ScopeModule, nil)
	// NamespaceRef is synthesized unconditionally: every module has a
	// namespace object, used or not. It is stamped with the real module
	// index once the loader assigns one (internal/loader.stampModuleIndex).
	p.NamespaceRef = p.NewSymbol(0, SymbolNamespace, "namespace")
	return p
}

// NewSymbol declares a binding in scope and returns its Ref. moduleIndex
// identifies the owning module in the wider graph; callers fill it in once
// the module has a stable index in the store.
func (p *Program) NewSymbol(moduleIndex uint32, kind SymbolKind, name string) ast.Ref {
	inner := uint32(len(p.Symbols))
	// ForwardsTo defaults to ast.InvalidRef, not the Ref zero value: a
	// zero-value Ref{0,0} is itself a valid-looking handle (module 0,
	// symbol 0), so "not forwarding" has to be spelled out explicitly or
	// every non-forwarding symbol would appear to forward to whatever
	// happens to occupy that slot.
	p.Symbols = append(p.Symbols, Symbol{Kind: kind, OriginalName: name, ForwardsTo: ast.InvalidRef})
	return ast.Ref{ModuleIndex: moduleIndex, InnerIndex: inner}
}

func (p *Program) SymbolFor(ref ast.Ref) *Symbol {
	return &p.Symbols[ref.InnerIndex]
}

// Stmt is a statement node plus its original source span, so that an
// untouched statement can be rendered by slicing Program.Source
// directly; removed statements leave no trace.
type Stmt struct {
	Data S
	Span ast.Span
	Loc  ast.Loc

	// Included is set by the tree-shake driver (internal/treeshake)
	// during the inclusion fixed point.
	Included bool
}

// S is the statement tag-union marker: a sealed interface encoding a
// variant type in Go without reflection-heavy dispatch.
type S interface{ isStmt() }

func (*SImport) isStmt()        {}
func (*SExportNamed) isStmt()   {}
func (*SExportDefault) isStmt() {}
func (*SExportAll) isStmt()     {}
func (*SFunctionDecl) isStmt()  {}
func (*SClassDecl) isStmt()     {}
func (*SVarDecl) isStmt()       {}
func (*SExpr) isStmt()          {}
func (*SIf) isStmt()            {}
func (*SForOf) isStmt()         {}
func (*SVerbatim) isStmt()      {}

type ImportItem struct {
	Alias     string // name as exported by the source module, or "default" / "*"
	LocalName string
	LocalRef  ast.Ref
}

type SImport struct {
	ImportRecordIndex  int
	Items              []ImportItem // named imports ("{x, y as z}")
	DefaultLocalName   string       // "" if no default import
	DefaultLocalRef    ast.Ref
	NamespaceLocalName string // "" if no "* as ns" import
	NamespaceLocalRef  ast.Ref
}

type ExportSpecifier struct {
	Local    string // local binding name, or the re-exported source name when Source != nil
	Exported string
	LocalRef ast.Ref
}

// SExportNamed covers "export {a, b as c}" (Source == nil), "export {a, b as
// c} from 'id'" (Source != nil), and the "export <declaration>" shorthand
// ("export const x = 1", "export function f {}", "export class C {}"),
// in which case Decl holds the wrapped declaration statement so hasEffects
// and include still see its initializer/body.
type SExportNamed struct {
	Specifiers        []ExportSpecifier
	Source            *string
	ImportRecordIndex int // valid only if Source != nil
	Decl              S   // non-nil for the "export <declaration>" shorthand
}

// SExportDefault covers "export default <expr>" and "export default
// function/class Name {}". When Decl is non-nil the statement also
// declares a named binding usable from within the module.
type SExportDefault struct {
	Decl     S    // *SFunctionDecl, *SClassDecl, or nil
	Value    Expr // valid when Decl == nil
	LocalRef ast.Ref
}

// SExportAll covers "export * from 'id'" and "export * as ns from 'id'".
type SExportAll struct {
	As                *string
	ImportRecordIndex int
}

// NameSpan on SFunctionDecl/SClassDecl/VarDeclarator is the exact byte
// range of the declared identifier within the module's original source —
// the one piece of positional detail this reduced AST keeps beyond each
// node's own span, because the deconfliction pass needs to splice a new
// render name in at a precise offset without reconstructing the
// surrounding declaration syntax (function parameter lists and class
// bodies are never parsed in detail; see js_parser.go).
type SFunctionDecl struct {
	Name     string
	Ref      ast.Ref
	NameSpan ast.Span

	// BodyRefs are the identifier tokens seen while skipping the
	// parameter list and body. The reduced grammar can't tell a real
	// reference from a property name or an inner declaration, so these
	// are conservative: marking them used can only over-include.
	BodyRefs []string
}

type SClassDecl struct {
	Name     string
	Ref      ast.Ref
	NameSpan ast.Span
	BodyRefs []string
}

type VarDeclarator struct {
	Name     string
	Ref      ast.Ref
	NameSpan ast.Span
	Init     *Expr // nil if uninitialized
}

type SVarDecl struct {
	Kind  string // "var", "let", or "const"
	Decls []VarDeclarator
}

type SExpr struct {
	Expr Expr
}

type SIf struct {
	Test       Expr
	Consequent *Stmt
	Alternate  *Stmt
}

// SForOf is always conservatively treated as having effects: the
// iterator protocol can run arbitrary code.
type SForOf struct {
	BodySpan ast.Span
	BodyRefs []string
}

// SVerbatim is the escape hatch for syntax this reduced parser doesn't
// model in detail (try/catch, switch, labeled loops, nested declarations,
// etc). It is conservatively assumed to have effects unless
// AssumeNoSideEffects was set by a moduleSideEffects override, and is
// rendered by slicing its span unmodified.
type SVerbatim struct {
	AssumeNoSideEffects bool
	BodyRefs            []string
}

// Expr is an expression node plus its original span.
type Expr struct {
	Data E
	Span ast.Span
}

type E interface{ isExpr() }

func (*EString) isExpr()     {}
func (*ENumber) isExpr()     {}
func (*EBoolean) isExpr()    {}
func (*ENull) isExpr()       {}
func (*EIdentifier) isExpr() {}
func (*ECall) isExpr()       {}
func (*EImportCall) isExpr() {}
func (*EImportMeta) isExpr() {}
func (*EBinary) isExpr()     {}
func (*EMember) isExpr()     {}
func (*EOpaque) isExpr()     {}

type EString struct{ Value string }
type ENumber struct{ Value float64 }
type EBoolean struct{ Value bool }
type ENull struct{}

type EIdentifier struct {
	Name string
	Ref  ast.Ref
}

type ECall struct {
	Callee Expr
	Args   []Expr
	IsPure bool // a /* @__PURE__ */ comment preceded the call
}

// EImportCall is a dynamic "import('specifier')" expression.
// ImportRecordIndex points at the owning module's dynamic import
// record.
type EImportCall struct {
	ImportRecordIndex int
}

// EImportMeta is "import.meta" or "import.meta.<prop>". Props with the
// internal FILE_/ASSET_/CHUNK_ prefixes reference emitted files and are
// resolved at render time.
type EImportMeta struct {
	Prop string // "" for bare "import.meta"
}

// BinOp is restricted to the three short-circuiting logical operators
// the branch folder understands.
type BinOp uint8

const (
	BinOpLogicalAnd BinOp = iota
	BinOpLogicalOr
	BinOpNullishCoalescing
)

type EBinary struct {
	Op    BinOp
	Left  Expr
	Right Expr
}

// EMember is a property-access chain hanging off a modeled expression,
// e.g. the ".then" in "import('./x').then(...)". Only the target is
// modeled; the chain itself is plain text appended at render time.
type EMember struct {
	Target Expr
	Chain  string // including the leading dot
}

// EOpaque is the escape hatch for any expression shape this reduced parser
// doesn't model (member access chains, template literals, object/array
// literals, arrow functions,...). It carries whether the source text
// looked like it could have side effects via a cheap syntactic heuristic
// computed at parse time (internal/js_parser), since true per-subexpression
// effect analysis is out of scope for this node set.
type EOpaque struct {
	MayHaveEffects bool
}
