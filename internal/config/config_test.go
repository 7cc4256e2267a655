package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rollup-go/rollup/internal/compat"
)

func TestDefaultOutputOptionsUseESFormat(t *testing.T) {
	opts := DefaultOutputOptions()
	if opts.Format != compat.FormatES {
		t.Fatalf("expected the default format to be es, got %s", opts.Format)
	}
	if opts.ExternalLiveBindings != true {
		t.Fatalf("expected externalLiveBindings to default to true")
	}
	if opts.Exports != ExportAuto {
		t.Fatalf("expected exports to default to auto, got %s", opts.Exports)
	}
}

func TestDefaultOutputOptionsNamingPatternsHaveHashPlaceholder(t *testing.T) {
	opts := DefaultOutputOptions()
	if !strings.Contains(opts.ChunkFileNames, "[hash]") || !strings.Contains(opts.AssetFileNames, "[hash]") {
		t.Fatalf("expected non-entry file name patterns to carry a [hash] placeholder by default, got %q and %q", opts.ChunkFileNames, opts.AssetFileNames)
	}
}

func TestExternalPredicateReceivesResolvedFlag(t *testing.T) {
	var sawResolved bool
	pred := ExternalPredicate(func(source string, importer string, isResolved bool) bool {
		sawResolved = isResolved
		return source == "lodash"
	})
	if !pred("lodash", "/src/index.js", true) {
		t.Fatalf("expected lodash to be treated as external")
	}
	if !sawResolved {
		t.Fatalf("expected the predicate to observe isResolved=true")
	}
}

func TestManualChunksFromMapInvertsAliasToIdLookup(t *testing.T) {
	fn := ManualChunksFromMap(map[string][]string{
		"vendor":    {"/node_modules/lodash/index.js", "/node_modules/dayjs/index.js"},
		"polyfills": {"/src/polyfills.js"},
	})

	got := map[string]string{}
	for _, id := range []string{"/node_modules/lodash/index.js", "/node_modules/dayjs/index.js", "/src/polyfills.js"} {
		alias, ok := fn(id)
		if !ok {
			t.Fatalf("expected %s to resolve to a manual chunk alias", id)
		}
		got[id] = alias
	}

	want := map[string]string{
		"/node_modules/lodash/index.js": "vendor",
		"/node_modules/dayjs/index.js":  "vendor",
		"/src/polyfills.js":             "polyfills",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manual chunk assignment mismatch (-want +got):\n%s", diff)
	}

	if _, ok := fn("/src/app.js"); ok {
		t.Fatalf("expected an id with no manual chunk assignment to report ok=false")
	}
}
