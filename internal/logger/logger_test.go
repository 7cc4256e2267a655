package logger

import "testing"

func TestWarningOnceDeduplicates(t *testing.T) {
	log := NewLog()
	for i := 0; i < 3; i++ {
		log.AddWarningOnce("a.js:1:0", &Loc{File: "a.js", Line: 1}, CodeCircularDependency, "cycle")
	}
	warnings := log.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %d", len(warnings))
	}
}

func TestDoneOrdersByLocation(t *testing.T) {
	log := NewLog()
	log.AddError(&Loc{File: "b.js", Line: 5}, CodeMissingExport, "missing")
	log.AddError(&Loc{File: "a.js", Line: 1}, CodeMissingExport, "missing")
	msgs := log.Done()
	if msgs[0].Loc.File != "a.js" {
		t.Fatalf("expected a.js first, got %s", msgs[0].Loc.File)
	}
}

func TestHasErrorsIgnoresWarnings(t *testing.T) {
	log := NewLog()
	log.AddWarning(nil, CodeCircularDependency, "cycle")
	if log.HasErrors() {
		t.Fatalf("warnings alone should not count as errors")
	}
	log.AddError(nil, CodeUnresolvedEntry, "boom")
	if !log.HasErrors() {
		t.Fatalf("expected HasErrors to be true after AddError")
	}
}
