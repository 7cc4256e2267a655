package renamer

import (
	"testing"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/js_ast"
)

func TestAssignAvoidsReservedNames(t *testing.T) {
	r := New(map[string]bool{"exports": true})
	name := r.Assign(ast.Ref{ModuleIndex: 0, InnerIndex: 0}, "exports")
	if name == "exports" {
		t.Fatalf("expected a reserved name to be disambiguated, got %s", name)
	}
}

func TestAssignIsIdempotentPerKey(t *testing.T) {
	r := New(nil)
	key := ast.Ref{ModuleIndex: 0, InnerIndex: 0}
	first := r.Assign(key, "foo")
	second := r.Assign(key, "foo")
	if first != second {
		t.Fatalf("expected repeat Assign calls for the same key to return the same name")
	}
}

func TestAssignDisambiguatesCollidingSymbols(t *testing.T) {
	r := New(nil)
	a := r.Assign(ast.Ref{ModuleIndex: 0, InnerIndex: 0}, "foo")
	b := r.Assign(ast.Ref{ModuleIndex: 1, InnerIndex: 0}, "foo")
	if a == b {
		t.Fatalf("expected two distinct symbols with the same preferred name to get distinct render names")
	}
	if b != "foo2" {
		t.Fatalf("expected the second collision to fall back to foo2, got %s", b)
	}
}

func TestCommitReservesNameForCrossChunkImports(t *testing.T) {
	r := New(nil)
	r.Commit("shared")
	name := r.Assign(ast.Ref{ModuleIndex: 0, InnerIndex: 0}, "shared")
	if name == "shared" {
		t.Fatalf("expected a committed name to be unavailable to a fresh local symbol")
	}
}

func TestAssignProgramSymbolsKeepsUncontestedNames(t *testing.T) {
	prog := js_ast.NewProgram("")
	prog.Symbols = []js_ast.Symbol{
		{OriginalName: "zeta", Included: true},
		{OriginalName: "alpha", Included: true},
		{OriginalName: "skipped", Included: false},
	}
	r := New(nil)
	r.AssignProgramSymbols(prog, 0)
	if prog.Symbols[0].RenameName != "zeta" || prog.Symbols[1].RenameName != "alpha" {
		t.Fatalf("expected included symbols to keep their original names when uncontested")
	}
	if prog.Symbols[2].RenameName != "" {
		t.Fatalf("expected an excluded symbol to be left unassigned")
	}
}
