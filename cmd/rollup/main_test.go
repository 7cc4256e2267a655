package main

import (
	"testing"

	"github.com/rollup-go/rollup/pkg/api"
)

func TestParseFormatRecognisesAliases(t *testing.T) {
	cases := map[string]api.Format{
		"es":       api.FormatES,
		"esm":      api.FormatES,
		"module":   api.FormatES,
		"cjs":      api.FormatCJS,
		"commonjs": api.FormatCJS,
		"amd":      api.FormatAMD,
		"umd":      api.FormatUMD,
		"system":   api.FormatSystem,
		"systemjs": api.FormatSystem,
	}
	for in, want := range cases {
		got := parseFormat(in)
		if got == nil || *got != want {
			t.Fatalf("parseFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseFormatUnknownReturnsNil(t *testing.T) {
	if parseFormat("") != nil {
		t.Fatalf("expected an empty string to return nil (no override)")
	}
	if parseFormat("xyz") != nil {
		t.Fatalf("expected an unrecognised format name to return nil")
	}
}
