// Package renamer implements identifier deconfliction. The set of used
// names starts as the reserved set the caller passes to New
// (internal/render passes the target format's reserved names, the interop
// helper names and the chunk's accessed globals) and grows with every name
// Assign or Commit hands out; module-local identifiers are deconflicted
// against it in a stable pass (alphabetic scope walk), and a cross-chunk
// import binding gets its exporter's render name when that name is free.
//
// Every symbol keeps its original name where possible and falls back
// to a numbered variant ("foo2", "foo3", ...) on collision during a
// stable scope walk. There is no frequency-sorted short-name scheme:
// this package only carries the "keep original names, disambiguate on
// collision" renamer a non-minifying bundler needs.
package renamer

import (
	"sort"
	"strconv"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/js_ast"
)

// Renamer assigns each included symbol across a whole chunk a render name,
// guaranteed unique within the chunk and distinct from every name in the
// chunk's reserved set.
type Renamer struct {
	used  map[string]bool
	names map[interface{}]string // keyed by a stable per-symbol key the caller provides
}

func New(reservedNames map[string]bool) *Renamer {
	used := make(map[string]bool, len(reservedNames))
	for n := range reservedNames {
		used[n] = true
	}
	return &Renamer{used: used, names: make(map[interface{}]string)}
}

// Commit reserves name as already taken without assigning it to any
// symbol — used for cross-chunk
// import bindings, which must match their exporter's render name exactly
// rather than being deconflicted locally.
func (r *Renamer) Commit(name string) {
	r.used[name] = true
}

// Assign gives key (typically an ast.Ref) a render name derived from
// preferredName, appending an ascending numeric suffix on collision.
// First-come-first-served in the order the caller walks symbols, which
// AssignProgramSymbols below does alphabetically per scope to keep
// output deterministic across otherwise-equivalent builds.
func (r *Renamer) Assign(key interface{}, preferredName string) string {
	if name, ok := r.names[key]; ok {
		return name
	}
	name := preferredName
	if !js_ast.IsIdentifier(name) {
		name = js_ast.EnsureValidIdentifier(name)
	}
	if !r.used[name] {
		r.used[name] = true
		r.names[key] = name
		return name
	}
	for n := 2; ; n++ {
		candidate := name + strconv.Itoa(n)
		if !r.used[candidate] {
			r.used[candidate] = true
			r.names[key] = candidate
			return candidate
		}
	}
}

// NameFor returns a previously assigned name, or "" if key was never
// assigned.
func (r *Renamer) NameFor(key interface{}) (string, bool) {
	name, ok := r.names[key]
	return name, ok
}

// AssignProgramSymbols walks a module's top-level symbols in alphabetic
// order by original name and assigns each included one a render name. A
// symbol whose key this Renamer already assigned keeps that name, since
// Assign is idempotent per key.
func (r *Renamer) AssignProgramSymbols(prog *js_ast.Program, moduleIndex uint32) {
	type entry struct {
		inner uint32
		name  string
	}
	var entries []entry
	for i, sym := range prog.Symbols {
		if !sym.Included {
			continue
		}
		entries = append(entries, entry{inner: uint32(i), name: sym.OriginalName})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	for _, e := range entries {
		sym := &prog.Symbols[e.inner]
		key := ast.Ref{ModuleIndex: moduleIndex, InnerIndex: e.inner}
		sym.RenameName = r.Assign(key, sym.OriginalName)
	}
}
