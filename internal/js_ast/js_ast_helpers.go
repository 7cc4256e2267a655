package js_ast

// This file implements the node-set operations (hasEffects, branch
// folding over literal values, and the identifier-collection half of
// "include") as centralized type-switch dispatch: visitor functions
// living next to the AST rather than per-node methods.

// StmtHasEffects answers hasEffects(context) for a single
// top-level statement, ignoring whatever its children declare (declaring a
// function or class, or a variable with no side-effecting initializer, is
// never itself an effect — using the declared binding is what matters, and
// that's handled by the inclusion fixed point via symbol references).
func StmtHasEffects(s S) bool {
	switch v := s.(type) {
	case *SImport, *SFunctionDecl, *SClassDecl:
		return false
	case *SExportNamed:
		if v.Decl != nil {
			return StmtHasEffects(v.Decl)
		}
		return false
	case *SExportAll:
		return false
	case *SExportDefault:
		if v.Decl != nil {
			return StmtHasEffects(v.Decl)
		}
		return ExprHasEffects(v.Value.Data)
	case *SVarDecl:
		for _, d := range v.Decls {
			if d.Init != nil && ExprHasEffects(d.Init.Data) {
				return true
			}
		}
		return false
	case *SExpr:
		return ExprHasEffects(v.Expr.Data)
	case *SIf:
		if ExprHasEffects(v.Test.Data) {
			return true
		}
		switch branch := UsedBranchOfIf(v); branch {
		case 1:
			return v.Consequent != nil && StmtHasEffects(v.Consequent.Data)
		case -1:
			return v.Alternate != nil && StmtHasEffects(v.Alternate.Data)
		default:
			if v.Consequent != nil && StmtHasEffects(v.Consequent.Data) {
				return true
			}
			if v.Alternate != nil && StmtHasEffects(v.Alternate.Data) {
				return true
			}
			return false
		}
	case *SForOf:
		// The iterator protocol is arbitrary code.
		return true
	case *SVerbatim:
		return !v.AssumeNoSideEffects
	default:
		return true
	}
}

// ExprHasEffects answers hasEffects for the restricted
// expression shapes this node set models.
func ExprHasEffects(e E) bool {
	switch v := e.(type) {
	case *EString, *ENumber, *EBoolean, *ENull, *EIdentifier, *EImportMeta:
		return false
	case *ECall:
		if v.IsPure {
			for _, a := range v.Args {
				if ExprHasEffects(a.Data) {
					return true
				}
			}
			return false
		}
		return true
	case *EImportCall:
		// Loading a dynamic chunk is itself an effect in the sense that the
		// module it targets must be reachable and included (handled by the
		// tree-shake driver's dynamic-entry seeding), but evaluating the
		// import expression node itself has no synchronous effect beyond
		// that reachability requirement.
		return false
	case *EBinary:
		// A short-circuiting operator with a literal decisive operand only
		// ever evaluates the surviving side, same as the folded "if".
		switch UsedBranchOfLogical(v) {
		case -1:
			return ExprHasEffects(v.Left.Data)
		case 1:
			return ExprHasEffects(v.Right.Data)
		}
		return ExprHasEffects(v.Left.Data) || ExprHasEffects(v.Right.Data)
	case *EMember:
		// A property read can run a getter.
		return true
	case *EOpaque:
		return v.MayHaveEffects
	default:
		return true
	}
}

// GetLiteralBoolValue answers, for the subset of expressions the
// constant-folder cares about: is this expression a literal whose
// truthiness is known at compile time? The second return value is false
// for the unknown-value case.
func GetLiteralBoolValue(e E) (value bool, ok bool) {
	switch v := e.(type) {
	case *EBoolean:
		return v.Value, true
	case *ENumber:
		return v.Value != 0, true
	case *EString:
		return v.Value != "", true
	case *ENull:
		return false, true
	default:
		return false, false
	}
}

// UsedBranchOfIf picks the surviving branch of an "if" statement whose
// test folds to a literal: 1 means the consequent is the single
// reachable branch, -1 means the alternate is, 0 means both arms remain
// reachable (test isn't a literal, or the parser couldn't prove it was).
func UsedBranchOfIf(s *SIf) int {
	truthy, ok := GetLiteralBoolValue(s.Test.Data)
	if !ok {
		return 0
	}
	if truthy {
		return 1
	}
	return -1
}

// UsedBranchOfLogical applies the same policy to "&&", "||", and "??":
// "||" with truthy left picks left, "&&" with falsy left picks left,
// "??" with non-null left picks left. Returns -1 for
// "picks left", 1 for "picks right", 0 for "undetermined".
func UsedBranchOfLogical(b *EBinary) int {
	switch b.Op {
	case BinOpLogicalOr:
		if truthy, ok := GetLiteralBoolValue(b.Left.Data); ok && truthy {
			return -1
		}
		if truthy, ok := GetLiteralBoolValue(b.Left.Data); ok && !truthy {
			return 1
		}
	case BinOpLogicalAnd:
		if truthy, ok := GetLiteralBoolValue(b.Left.Data); ok && !truthy {
			return -1
		}
		if truthy, ok := GetLiteralBoolValue(b.Left.Data); ok && truthy {
			return 1
		}
	case BinOpNullishCoalescing:
		if _, isNull := b.Left.Data.(*ENull); isNull {
			return 1
		}
		switch b.Left.Data.(type) {
		case *EString, *ENumber, *EBoolean:
			return -1
		}
	}
	return 0
}

// CollectExprRefNames returns the bare identifier names referenced by an
// expression subtree (ignoring ones already resolved to a Ref, which the
// parser fills in directly on EIdentifier at parse time when the binding is
// module-local).
func CollectExprRefNames(e E, out []string) []string {
	switch v := e.(type) {
	case *EIdentifier:
		// Only the root of a member chain is a binding; "lib.fn" reads the
		// "lib" binding, never a binding called "lib.fn".
		name := v.Name
		for i := 0; i < len(name); i++ {
			if name[i] == '.' {
				name = name[:i]
				break
			}
		}
		out = append(out, name)
	case *ECall:
		out = CollectExprRefNames(v.Callee.Data, out)
		for _, a := range v.Args {
			out = CollectExprRefNames(a.Data, out)
		}
	case *EMember:
		out = CollectExprRefNames(v.Target.Data, out)
	case *EBinary:
		out = CollectExprRefNames(v.Left.Data, out)
		out = CollectExprRefNames(v.Right.Data, out)
	}
	return out
}

// CollectStmtRefNames returns every bare identifier name a statement's
// modeled expression positions read.
func CollectStmtRefNames(s S) []string {
	var out []string
	switch v := s.(type) {
	case *SFunctionDecl:
		out = append(out, v.BodyRefs...)
	case *SClassDecl:
		out = append(out, v.BodyRefs...)
	case *SForOf:
		out = append(out, v.BodyRefs...)
	case *SVerbatim:
		out = append(out, v.BodyRefs...)
	case *SExportNamed:
		if v.Decl != nil {
			out = append(out, CollectStmtRefNames(v.Decl)...)
		}
	case *SExportDefault:
		if v.Decl != nil {
			out = append(out, CollectStmtRefNames(v.Decl)...)
		}
		if v.Decl == nil {
			out = CollectExprRefNames(v.Value.Data, out)
		}
	case *SVarDecl:
		for _, d := range v.Decls {
			if d.Init != nil {
				out = CollectExprRefNames(d.Init.Data, out)
			}
		}
	case *SExpr:
		out = CollectExprRefNames(v.Expr.Data, out)
	case *SIf:
		out = CollectExprRefNames(v.Test.Data, out)
		if v.Consequent != nil {
			out = append(out, CollectStmtRefNames(v.Consequent.Data)...)
		}
		if v.Alternate != nil {
			out = append(out, CollectStmtRefNames(v.Alternate.Data)...)
		}
	}
	return out
}
