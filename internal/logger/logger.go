// Package logger is the diagnostics backbone used by every other
// package in this module. It never prints anything itself — it only
// accumulates typed messages — so the CLI boundary (cmd/rollup) and the
// programmatic API (pkg/api) are each free to format and print however
// they like.
package logger

import (
	"fmt"
	"sort"
	"sync"
)

type MsgKind uint8

const (
	Error MsgKind = iota
	Warning
)

func (kind MsgKind) String() string {
	switch kind {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		panic("internal error")
	}
}

// Code is the closed error-code vocabulary. It is attached to Msg so
// programmatic consumers can branch on "what kind of problem is this"
// without parsing message text.
type Code string

const (
	CodeUnresolvedEntry    Code = "UNRESOLVED_ENTRY"
	CodeUnresolvedImport   Code = "UNRESOLVED_IMPORT"
	CodeMissingExport      Code = "MISSING_EXPORT"
	CodeCircularReexport   Code = "CIRCULAR_REEXPORT"
	CodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	CodeMixedExports       Code = "MIXED_EXPORTS"
	CodeInvalidExportOpt   Code = "INVALID_EXPORT_OPTION"
	CodeInvalidTLAFormat   Code = "INVALID_TLA_FORMAT"
	CodeChunkInvalid       Code = "CHUNK_INVALID"
	CodePluginError        Code = "PLUGIN_ERROR"
	CodeValidationError    Code = "VALIDATION_ERROR"
	CodeFileNameConflict   Code = "FILE_NAME_CONFLICT"
	CodeBadLoader          Code = "BAD_LOADER"
	CodeAssetNotFinalised  Code = "ASSET_NOT_FINALISED"
	CodeAssetSourceMissing Code = "ASSET_SOURCE_MISSING"
	CodeInvalidPhase       Code = "INVALID_ROLLUP_PHASE"
	CodeAlreadyClosed      Code = "ALREADY_CLOSED"
	CodeDeprecatedFeature  Code = "DEPRECATED_FEATURE"
)

// Loc is a source location attached to a Msg. Line is 1-based, Column
// is 0-based in bytes.
type Loc struct {
	File     string
	Line     int
	Column   int
	Length   int
	LineText string
}

type Msg struct {
	Kind   MsgKind
	Code   Code
	Text   string
	Loc    *Loc
	Plugin string // set when this message originated from a plugin hook
	Notes  []string
	Frozen bool // true once the message has been emitted and must not be mutated further
}

func (m Msg) String() string {
	if m.Loc != nil {
		return fmt.Sprintf("%s: %s [%s] (%s:%d:%d)", m.Kind, m.Text, m.Code, m.Loc.File, m.Loc.Line, m.Loc.Column)
	}
	return fmt.Sprintf("%s: %s [%s]", m.Kind, m.Text, m.Code)
}

// Log is the mutable accumulator threaded through a single build. It is
// safe for concurrent use because the module loader fans out resolve/load
// work across goroutines.
type Log struct {
	mu       sync.Mutex
	msgs     []Msg
	seenOnce map[string]bool

	strictDeprecations bool
}

func NewLog() *Log {
	return &Log{seenOnce: make(map[string]bool)}
}

func (log *Log) AddError(loc *Loc, code Code, text string) {
	log.add(Msg{Kind: Error, Code: code, Text: text, Loc: loc})
}

func (log *Log) AddWarning(loc *Loc, code Code, text string) {
	log.add(Msg{Kind: Warning, Code: code, Text: text, Loc: loc})
}

// AddWarningOnce enforces that warnings for a single source location
// are emitted at most once per build. The key should uniquely identify
// the (code, location) pair.
func (log *Log) AddWarningOnce(key string, loc *Loc, code Code, text string) {
	log.mu.Lock()
	if log.seenOnce[key] {
		log.mu.Unlock()
		return
	}
	log.seenOnce[key] = true
	log.mu.Unlock()
	log.add(Msg{Kind: Warning, Code: code, Text: text, Loc: loc})
}

// SetStrictDeprecations upgrades every subsequent AddDeprecation call
// from a warning to a fatal error.
func (log *Log) SetStrictDeprecations(strict bool) {
	log.mu.Lock()
	log.strictDeprecations = strict
	log.mu.Unlock()
}

func (log *Log) AddDeprecation(loc *Loc, text string) {
	log.mu.Lock()
	strict := log.strictDeprecations
	log.mu.Unlock()
	if strict {
		log.AddError(loc, CodeDeprecatedFeature, text)
		return
	}
	log.AddWarning(loc, CodeDeprecatedFeature, text)
}

func (log *Log) AddPluginError(pluginName string, hook string, text string) {
	log.add(Msg{Kind: Error, Code: CodePluginError, Plugin: pluginName, Text: fmt.Sprintf("[plugin %s] %s hook: %s", pluginName, hook, text)})
}

func (log *Log) add(msg Msg) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.msgs = append(log.msgs, msg)
}

func (log *Log) HasErrors() bool {
	log.mu.Lock()
	defer log.mu.Unlock()
	for _, m := range log.msgs {
		if m.Kind == Error {
			return true
		}
	}
	return false
}

// Done returns a deterministically-ordered snapshot: stable by insertion
// order within the same (kind, file) pair, sorted by file/line/column so two
// runs of the same build produce byte-identical diagnostic output.
func (log *Log) Done() []Msg {
	log.mu.Lock()
	defer log.mu.Unlock()
	out := make([]Msg, len(log.msgs))
	copy(out, log.msgs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		af, bf := "", ""
		al, bl, ac, bc := 0, 0, 0, 0
		if a.Loc != nil {
			af, al, ac = a.Loc.File, a.Loc.Line, a.Loc.Column
		}
		if b.Loc != nil {
			bf, bl, bc = b.Loc.File, b.Loc.Line, b.Loc.Column
		}
		if af != bf {
			return af < bf
		}
		if al != bl {
			return al < bl
		}
		return ac < bc
	})
	return out
}

func (log *Log) Errors() []Msg {
	var out []Msg
	for _, m := range log.Done() {
		if m.Kind == Error {
			out = append(out, m)
		}
	}
	return out
}

func (log *Log) Warnings() []Msg {
	var out []Msg
	for _, m := range log.Done() {
		if m.Kind == Warning {
			out = append(out, m)
		}
	}
	return out
}

// BuildError is the fatal error type returned from the programmatic
// API (pkg/api) once a phase aborts. It wraps the triggering Msg so
// callers can inspect Code without parsing text.
type BuildError struct {
	Msg Msg
}

func (e *BuildError) Error() string {
	return e.Msg.String()
}

func NewBuildError(code Code, text string, loc *Loc) *BuildError {
	return &BuildError{Msg: Msg{Kind: Error, Code: code, Text: text, Loc: loc}}
}
