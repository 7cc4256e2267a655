// Package ast holds the small set of identifier types shared by every phase
// of the bundler: the opaque module id, the arena-style handles used to
// refer to modules and variables without taking ownership of them, and the
// source span type used to slice original text during rendering.
package ast

// ModuleId is the opaque canonical string returned by module resolution.
// Two modules with equal ids are the same module.
type ModuleId string

// Index32 is a handle into a flat arena. The zero value is invalid,
// which lets a struct embed one without an extra "is this set" bool.
type Index32 struct {
	flippedBits uint32
}

func MakeIndex32(index uint32) Index32 {
	return Index32{flippedBits: ^index}
}

func (i Index32) IsValid() bool {
	return i.flippedBits != 0
}

func (i Index32) GetIndex() uint32 {
	return ^i.flippedBits
}

var InvalidIndex32 = Index32{}

// Ref is a handle to a Variable: the module that declares it plus an index
// into that module's symbol table. Cross-module references are always by
// Ref, never by pointer, so cycles between modules (including
// ExportDefaultVariable forwarding cycles) can be broken with a visited set
// of Refs instead of needing GC-unfriendly back-pointers.
type Ref struct {
	ModuleIndex uint32
	InnerIndex  uint32
}

var InvalidRef = Ref{ModuleIndex: 0xFFFFFFFF, InnerIndex: 0xFFFFFFFF}

func (r Ref) IsValid() bool {
	return r != InvalidRef
}

// Span is a half-open byte range into a module's original source text, used
// by the renderer to slice verbatim text for statements that survive
// tree-shaking unmodified.
type Span struct {
	Start int
	End   int
}

func (s Span) Text(source string) string {
	return source[s.Start:s.End]
}

// Loc is a 1-based line, 0-based column location used in diagnostics.
type Loc struct {
	Line   int
	Column int
}
