package cache

import (
	"testing"

	"github.com/rollup-go/rollup/internal/js_ast"
)

func TestModuleIndexCacheIsStablePerId(t *testing.T) {
	c := MakeCacheSet()
	a := c.ModuleIndex.Get("./a.js")
	b := c.ModuleIndex.Get("./b.js")
	if a == b {
		t.Fatalf("expected distinct ids to get distinct indices")
	}
	if again := c.ModuleIndex.Get("./a.js"); again != a {
		t.Fatalf("expected repeat lookups of the same id to return the same index")
	}
}

func TestModuleCacheInvalidatesOnDigestChange(t *testing.T) {
	c := MakeCacheSet()
	prog := js_ast.NewProgram("export const x = 1;")
	c.Modules.Put("./a.js", "digest-1", prog)

	if got, ok := c.Modules.Get("./a.js", "digest-1"); !ok || got != prog {
		t.Fatalf("expected a hit on the same digest")
	}
	if _, ok := c.Modules.Get("./a.js", "digest-2"); ok {
		t.Fatalf("expected a miss once the digest changes")
	}
	if _, ok := c.Modules.Get("./missing.js", "digest-1"); ok {
		t.Fatalf("expected a miss for an id never cached")
	}
}
