package resolver

import "testing"

type fakeFS struct{}

func (fakeFS) ReadFile(absPath string) (string, error) { return "", nil }
func (fakeFS) IsAbs(p string) bool                     { return len(p) > 0 && p[0] == '/' }
func (fakeFS) Dir(p string) string                     { return "/project" }
func (fakeFS) Join(parts ...string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}
func (fakeFS) Abs(p string) (string, error) { return p, nil }

func TestResolveRelative(t *testing.T) {
	r := Resolve(fakeFS{}, "/project/src", "./util")
	if r.External != ExternalNone {
		t.Fatalf("expected a relative specifier to resolve internally")
	}
	if r.Id != "/project/src/./util" {
		t.Fatalf("expected the id to be joined against the importer directory, got %s", r.Id)
	}
}

func TestResolveAbsolutePassesThrough(t *testing.T) {
	r := Resolve(fakeFS{}, "/project/src", "/abs/path.js")
	if r.External != ExternalNone {
		t.Fatalf("expected an absolute specifier to resolve internally")
	}
	if r.Id != "/abs/path.js" {
		t.Fatalf("expected the absolute id to pass through unchanged, got %s", r.Id)
	}
}

func TestResolveBareSpecifierIsExternal(t *testing.T) {
	r := Resolve(fakeFS{}, "/project/src", "lodash")
	if r.External != ExternalTrue {
		t.Fatalf("expected a bare specifier with no plugin claim to resolve external")
	}
	if r.Id != "lodash" {
		t.Fatalf("expected the external id to be the specifier itself, got %s", r.Id)
	}
}
