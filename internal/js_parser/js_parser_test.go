package js_parser

import (
	"testing"

	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/logger"
)

func parse(t *testing.T, src string) *js_ast.Program {
	t.Helper()
	log := logger.NewLog()
	prog := Parse(log, "test.js", src)
	if log.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", log.Errors())
	}
	return prog
}

func TestParsesNamedImportAndEffectfulCall(t *testing.T) {
	prog := parse(t, "import {x} from './b';\nconsole.log(x);")
	if len(prog.Stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(prog.Stmts))
	}
	imp, ok := prog.Stmts[0].Data.(*js_ast.SImport)
	if !ok {
		t.Fatalf("expected SImport, got %T", prog.Stmts[0].Data)
	}
	if len(imp.Items) != 1 || imp.Items[0].Alias != "x" {
		t.Fatalf("expected one import item aliased x, got %+v", imp.Items)
	}
	if prog.ImportRecords[imp.ImportRecordIndex].Path != "./b" {
		t.Fatalf("expected import path ./b, got %s", prog.ImportRecords[imp.ImportRecordIndex].Path)
	}
	call, ok := prog.Stmts[1].Data.(*js_ast.SExpr)
	if !ok {
		t.Fatalf("expected SExpr, got %T", prog.Stmts[1].Data)
	}
	if js_ast.ExprHasEffects(call.Expr.Data) != true {
		t.Fatalf("expected console.log(x) call to have effects")
	}
}

func TestParsesExportedConstDeclarations(t *testing.T) {
	prog := parse(t, "export const x = 1; export const y = 2;")
	if len(prog.Stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(prog.Stmts))
	}
	named, ok := prog.Stmts[0].Data.(*js_ast.SExportNamed)
	if !ok {
		t.Fatalf("expected SExportNamed, got %T", prog.Stmts[0].Data)
	}
	if len(named.Specifiers) != 1 || named.Specifiers[0].Exported != "x" {
		t.Fatalf("expected export of x, got %+v", named.Specifiers)
	}
	if js_ast.StmtHasEffects(named) {
		t.Fatalf("a literal const export should have no effects")
	}
}

func TestConstantFoldedIfBranch(t *testing.T) {
	prog := parse(t, "const F = false; if (F) sideEffect(); export const v = 1;")
	ifStmt, ok := prog.Stmts[1].Data.(*js_ast.SIf)
	if !ok {
		t.Fatalf("expected SIf as second statement, got %T", prog.Stmts[1].Data)
	}
	lit, isBool := ifStmt.Test.Data.(*js_ast.EBoolean)
	if !isBool {
		t.Fatalf("expected the if-test's identifier reference to F to be folded to a literal boolean, got %T", ifStmt.Test.Data)
	}
	if lit.Value != false {
		t.Fatalf("expected F to fold to false, got true")
	}
	if js_ast.UsedBranchOfIf(ifStmt) != -1 {
		t.Fatalf("expected the alternate (empty) branch to be the only reachable one")
	}
	if js_ast.StmtHasEffects(ifStmt) {
		t.Fatalf("an if whose only reachable branch is empty should have no effects")
	}
}

func TestDynamicImportRecorded(t *testing.T) {
	prog := parse(t, "import('./b').then(m=>m.x())")
	if len(prog.ImportRecords) != 1 || prog.ImportRecords[0].Kind != js_ast.ImportDynamic {
		t.Fatalf("expected one dynamic import record, got %+v", prog.ImportRecords)
	}
	if prog.ImportRecords[0].Path != "./b" {
		t.Fatalf("expected dynamic import path ./b, got %s", prog.ImportRecords[0].Path)
	}
}
