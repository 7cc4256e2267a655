package graph

import "testing"

func TestGetOrCreateIsIdempotent(t *testing.T) {
	s := NewStore()
	a, created := s.GetOrCreate("./a.js", 0)
	if !created {
		t.Fatalf("expected the first GetOrCreate to create a module")
	}
	again, created := s.GetOrCreate("./a.js", 0)
	if created {
		t.Fatalf("expected a second GetOrCreate for the same id to reuse the existing module")
	}
	if a != again {
		t.Fatalf("expected the same *Module pointer back")
	}
}

func TestModulesPreservesInsertionOrder(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("./c.js", 0)
	s.GetOrCreate("./a.js", 1)
	s.GetOrCreate("./b.js", 2)
	mods := s.Modules()
	if len(mods) != 3 || mods[0].Id != "./c.js" || mods[1].Id != "./a.js" || mods[2].Id != "./b.js" {
		t.Fatalf("expected insertion order to be preserved, got %+v", mods)
	}
}

func TestExternalModulesAreDistinctFromInternal(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("react", 0)
	ext, created := s.GetOrCreateExternal("react-dom")
	if !created {
		t.Fatalf("expected the first GetOrCreateExternal to create")
	}
	if ext.RenderPath != "react-dom" {
		t.Fatalf("expected the default render path to be the id itself, got %s", ext.RenderPath)
	}
	if _, ok := s.Get("react-dom"); ok {
		t.Fatalf("external modules should not appear in the internal module map")
	}
}
