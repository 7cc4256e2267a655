package runtime

import (
	"strings"
	"testing"
)

func TestSourceCoversEveryInteropHelperName(t *testing.T) {
	for _, name := range []string{"__toESM", "__toCommonJS", "__esModuleExport", "__exportStar", "__reExport"} {
		src := Source(name)
		if src == "" {
			t.Fatalf("expected a non-empty snippet for %s", name)
		}
		if !strings.Contains(src, name) {
			t.Fatalf("expected the snippet for %s to define that exact name", name)
		}
	}
}

func TestSourceUnknownNameIsEmpty(t *testing.T) {
	if Source("__notAHelper") != "" {
		t.Fatalf("expected an unknown helper name to return no source")
	}
}
