package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrips(t *testing.T) {
	for _, name := range []string{"es", "cjs", "amd", "umd", "iife", "system"} {
		f, ok := ParseFormat(name)
		require.True(t, ok, "expected %q to parse", name)
		assert.Equal(t, name, f.String(), "expected %q to round-trip", name)
	}
}

func TestLiveBindingsOnlyESAndSystem(t *testing.T) {
	for _, f := range []Format{FormatES, FormatSystem} {
		assert.True(t, SupportsLiveBindings(f), "expected format %v to support live bindings", f)
	}
	for _, f := range []Format{FormatCJS, FormatAMD, FormatUMD, FormatIIFE} {
		assert.False(t, SupportsLiveBindings(f), "expected format %v to not support live bindings", f)
	}
}

func TestReservedNamesIncludeDefineForAMDAndUMD(t *testing.T) {
	assert.True(t, ReservedNames(FormatAMD)["define"], "expected amd to reserve 'define'")
	assert.True(t, ReservedNames(FormatUMD)["define"], "expected umd to reserve 'define'")
	assert.False(t, ReservedNames(FormatES)["define"], "expected es to not reserve 'define'")
}
