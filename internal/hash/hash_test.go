package hash

import "testing"

func TestOfIsDeterministic(t *testing.T) {
	a := Of("format:es", "export const x = 1;")
	b := Of("format:es", "export const x = 1;")
	if a != b {
		t.Fatalf("expected identical inputs to hash identically, got %s vs %s", a, b)
	}
}

func TestOfDistinguishesContent(t *testing.T) {
	a := Of("export const x = 1;")
	b := Of("export const x = 2;")
	if a == b {
		t.Fatalf("expected different content to hash differently")
	}
}

func TestOfIsFilenameSafe(t *testing.T) {
	digest := Of("anything")
	for _, c := range digest {
		if c == '+' || c == '/' || c == '=' {
			t.Fatalf("expected no URL-unsafe characters in %s", digest)
		}
	}
	if len(digest) != DefaultLength {
		t.Fatalf("expected a %d-character digest, got %d", DefaultLength, len(digest))
	}
}

func TestSubstitutePlaceholdersReplacesEveryOccurrence(t *testing.T) {
	ph := Placeholder(4)
	text := "import './chunk-" + ph + ".js'; import './chunk-" + ph + ".js';"
	out := SubstitutePlaceholders(text, ph, "ab12")
	if out != "import './chunk-ab12.js'; import './chunk-ab12.js';" {
		t.Fatalf("expected both placeholder occurrences to be replaced, got %s", out)
	}
}
