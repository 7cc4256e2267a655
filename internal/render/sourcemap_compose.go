package render

import (
	"strings"

	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/helpers"
	"github.com/rollup-go/rollup/internal/sourcemap"
)

// composeSourceMap joins the per-module source-map chunks into one JSON
// source map for the rendered chunk. Each module's mappings were computed
// independently against source index 0; joining rewrites the first mapping
// of each chunk to be relative to the end state of the previous one, and
// inserts a line break run for the unmapped wrapper/preamble lines sitting
// between module bodies.
func composeSourceMap(opts config.OutputOptions, chunkFileName string, rendered []moduleChunk, gaps []int) string {
	j := &helpers.Joiner{}
	j.AddString("{\n  \"version\": 3")

	j.AddString(",\n  \"sources\": [")
	for i, mc := range rendered {
		if i > 0 {
			j.AddString(", ")
		}
		source := string(mc.module.Id)
		if opts.SourcemapPathTransform != nil {
			source = opts.SourcemapPathTransform(source, chunkFileName)
		}
		j.AddBytes(helpers.QuoteForJSON(source, true))
	}
	j.AddString("]")

	j.AddString(",\n  \"sourcesContent\": [")
	for i, mc := range rendered {
		if i > 0 {
			j.AddString(", ")
		}
		j.AddBytes(helpers.QuoteForJSON(mc.module.Source, true))
	}
	j.AddString("]")

	j.AddString(",\n  \"mappings\": \"")
	prevEndState := sourcemap.SourceMapState{}
	prevColumnOffset := 0
	totalQuotedNameLen := 0
	pendingLines := 0
	for i, mc := range rendered {
		chunk := mc.mapped
		pendingLines += gaps[i]
		if chunk.ShouldIgnore {
			// A module with no mappings of its own still occupies lines in
			// the generated text; carry them into the next chunk's offset.
			pendingLines += strings.Count(mc.text, "\n")
			continue
		}
		startState := sourcemap.SourceMapState{
			SourceIndex:   i,
			GeneratedLine: pendingLines,
			OriginalName:  totalQuotedNameLen,
		}
		if pendingLines == 0 {
			startState.GeneratedColumn += prevColumnOffset
		}
		pendingLines = 0

		sourcemap.AppendSourceMapChunk(j, prevEndState, startState, chunk.Buffer)

		prevOriginalName := prevEndState.OriginalName
		prevEndState = chunk.EndState
		prevEndState.SourceIndex += i
		if chunk.Buffer.FirstNameOffset.IsValid() {
			prevEndState.OriginalName += totalQuotedNameLen
		} else {
			prevEndState.OriginalName = prevOriginalName
		}
		prevColumnOffset = chunk.FinalGeneratedColumn
		totalQuotedNameLen += len(chunk.QuotedNames)

		if prevEndState.GeneratedLine == 0 {
			prevEndState.GeneratedColumn += startState.GeneratedColumn
			prevColumnOffset += startState.GeneratedColumn
		}
	}
	j.AddString("\"")

	j.AddString(",\n  \"names\": [")
	first := true
	for _, mc := range rendered {
		for _, quoted := range mc.mapped.QuotedNames {
			if !first {
				j.AddString(", ")
			}
			first = false
			j.AddBytes(quoted)
		}
	}
	j.AddString("]\n}\n")

	return string(j.Done())
}

// SourceMappingURLComment is the trailer Bundle.Write appends to a chunk
// body when its map is persisted alongside it as fileName + ".map".
func SourceMappingURLComment(fileName string) string {
	if !strings.HasSuffix(fileName, ".map") {
		fileName += ".map"
	}
	return "//# sourceMappingURL=" + fileName + "\n"
}
