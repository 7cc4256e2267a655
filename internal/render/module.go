package render

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/compat"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/helpers"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/plugin"
	"github.com/rollup-go/rollup/internal/sourcemap"
)

// moduleChunk is one module's contribution to a chunk's rendered body:
// the printed text plus the source-map Chunk covering exactly that
// text, ready to be joined with its neighbours by internal/sourcemap's
// cross-file composition.
type moduleChunk struct {
	module *graph.Module
	text   string
	mapped sourcemap.Chunk
}

// renderModule walks a module's included statements in source order,
// slicing untouched spans verbatim and reconstructing only the handful
// of expression shapes js_ast models in structural detail (see the
// package doc comment). Import/re-export declarations are never
// re-emitted — the chunk's synthesized preamble and export block own
// that surface instead.
func renderModule(ctx *chunkCtx, m *graph.Module) moduleChunk {
	lineCount := int32(strings.Count(m.Source, "\n")) + 1
	tables := sourcemap.GenerateLineOffsetTables(m.Source, lineCount)
	builder := sourcemap.MakeChunkBuilder(nil, tables, true)

	var out []byte
	for i := range m.Program.Stmts {
		stmt := &m.Program.Stmts[i]
		if !stmt.Included {
			continue
		}
		text, emit := renderTopLevelStmt(ctx, m, stmt)
		if !emit {
			continue
		}
		builder.AddSourceMapping(sourcemap.SourceLoc{Start: int32(stmt.Span.Start)}, "", out)
		out = append(out, text...)
		out = append(out, '\n')
	}

	return moduleChunk{module: m, text: string(out), mapped: builder.GenerateChunk(out)}
}

// renderTopLevelStmt decides whether a top-level statement still has
// surface after import/export syntax is stripped, and if so
// reconstructs it: import and pure re-export declarations contribute
// nothing of their own; declaration-form exports keep their wrapped
// declaration without the leading "export".
func renderTopLevelStmt(ctx *chunkCtx, m *graph.Module, stmt *js_ast.Stmt) (string, bool) {
	switch v := stmt.Data.(type) {
	case *js_ast.SImport:
		return "", false
	case *js_ast.SExportAll:
		return "", false
	case *js_ast.SExportNamed:
		if v.Decl == nil {
			return "", false // "export {a, b}" / "export {a} from 'id'" — no code of its own
		}
		return renderDecl(ctx, m, v.Decl, stmt.Span), true
	case *js_ast.SExportDefault:
		if v.Decl != nil {
			text := renderDecl(ctx, m, v.Decl, stmt.Span)
			if declName(v.Decl) == "" {
				// "export default function () {}" has no name to survive
				// as a declaration; bind it to the default symbol instead.
				return "var " + ctx.localNameOrSelf(m, v.LocalRef) + " = " + text + ";", true
			}
			return text, true
		}
		name := ctx.localNameOrSelf(m, v.LocalRef)
		return "var " + name + " = " + renderExpr(ctx, m, v.Value) + ";", true
	default:
		return renderStmtBody(ctx, m, stmt.Data, stmt.Span), true
	}
}

// renderDecl renders a declaration statement that an export wrapper
// peeled off (so the "export"/"export default" keyword is dropped but the
// declaration itself, and its NameSpan substitution, is unchanged). The
// keyword is trimmed after splicing, since the splice offsets are
// relative to the statement span that still includes it.
func renderDecl(ctx *chunkCtx, m *graph.Module, decl js_ast.S, span ast.Span) string {
	text := renderStmtBody(ctx, m, decl, span)
	if rest, ok := strings.CutPrefix(text, "export"); ok {
		rest = strings.TrimLeft(rest, " \t")
		if after, ok := strings.CutPrefix(rest, "default"); ok {
			rest = strings.TrimLeft(after, " \t")
		}
		return rest
	}
	return text
}

func declName(decl js_ast.S) string {
	switch v := decl.(type) {
	case *js_ast.SFunctionDecl:
		return v.Name
	case *js_ast.SClassDecl:
		return v.Name
	}
	return ""
}

// renderStmtBody reconstructs one statement's text given its own span
// (used both for top-level statements and for SIf's nested branches, which
// carry their own span but are never independently "included" — their
// parent's inclusion covers them).
func renderStmtBody(ctx *chunkCtx, m *graph.Module, s js_ast.S, span ast.Span) string {
	base := span.Text(m.Source)
	switch v := s.(type) {
	case *js_ast.SFunctionDecl:
		return spliceName(base, span, v.NameSpan, ctx.localNameOrSelf(m, v.Ref))
	case *js_ast.SClassDecl:
		return spliceName(base, span, v.NameSpan, ctx.localNameOrSelf(m, v.Ref))
	case *js_ast.SVarDecl:
		var splices []nameSplice
		for _, d := range v.Decls {
			name := ctx.localNameOrSelf(m, d.Ref)
			if name != d.Name {
				splices = append(splices, nameSplice{Span: d.NameSpan, Name: name})
			}
			if d.Init != nil && d.Init.Data != nil {
				// Initializers are re-emitted through the expression
				// renderer so renamed bindings and external namespace
				// accessors inside them pick up their render names.
				text := renderExpr(ctx, m, *d.Init)
				if text != d.Init.Span.Text(m.Source) {
					splices = append(splices, nameSplice{Span: d.Init.Span, Name: text})
				}
			}
		}
		return applySplices(base, span, splices)
	case *js_ast.SExpr:
		return renderExpr(ctx, m, v.Expr) + ";"
	case *js_ast.SIf:
		text := "if (" + renderExpr(ctx, m, v.Test) + ") " + renderBranch(ctx, m, v.Consequent)
		if v.Alternate != nil {
			text += " else " + renderBranch(ctx, m, v.Alternate)
		}
		return text
	case *js_ast.SForOf, *js_ast.SVerbatim:
		return base
	default:
		return base
	}
}

func renderBranch(ctx *chunkCtx, m *graph.Module, stmt *js_ast.Stmt) string {
	if stmt == nil {
		return "{}"
	}
	return renderStmtBody(ctx, m, stmt.Data, stmt.Span)
}

type nameSplice struct {
	Span ast.Span
	Name string
}

func spliceName(base string, stmtSpan, nameSpan ast.Span, name string) string {
	if nameSpan.Start == 0 && nameSpan.End == 0 {
		return base
	}
	return applySplices(base, stmtSpan, []nameSplice{{Span: nameSpan, Name: name}})
}

// applySplices rewrites base (the verbatim text of stmtSpan) by replacing
// each splice's byte range — relative to stmtSpan's own start — with its
// replacement name, in a single forward pass since the declarator spans
// within one statement never overlap and appear in source order.
func applySplices(base string, stmtSpan ast.Span, splices []nameSplice) string {
	if len(splices) == 0 {
		return base
	}
	sort.Slice(splices, func(i, j int) bool { return splices[i].Span.Start < splices[j].Span.Start })
	var b strings.Builder
	cursor := 0
	for _, sp := range splices {
		relStart := sp.Span.Start - stmtSpan.Start
		relEnd := sp.Span.End - stmtSpan.Start
		if relStart < 0 || relEnd > len(base) || relStart > relEnd {
			continue
		}
		b.WriteString(base[cursor:relStart])
		b.WriteString(sp.Name)
		cursor = relEnd
	}
	b.WriteString(base[cursor:])
	return b.String()
}

// localNameOrSelf looks up a render name for a ref declared in m via the
// chunk's shared renamer/binder. An invalid ref renders as "_"; any other
// ref goes through bindingName, with no fallback to the original spelling
// for a symbol the inclusion pass never visited.
func (ctx *chunkCtx) localNameOrSelf(m *graph.Module, ref ast.Ref) string {
	if !ref.IsValid() {
		return "_"
	}
	return ctx.bindingName(m, ref)
}

// renderExpr reconstructs text for the expression shapes js_ast models
// structurally, and falls back to slicing the original span for the
// EOpaque escape hatch (render.go's package doc explains the scope this
// implies).
func renderExpr(ctx *chunkCtx, m *graph.Module, e js_ast.Expr) string {
	switch v := e.Data.(type) {
	case *js_ast.EOpaque:
		return e.Span.Text(m.Source)
	case *js_ast.EString:
		return string(helpers.QuoteSingle(v.Value, false))
	case *js_ast.ENumber:
		return formatNumber(v.Value)
	case *js_ast.EBoolean:
		if v.Value {
			return "true"
		}
		return "false"
	case *js_ast.ENull:
		return "null"
	case *js_ast.EIdentifier:
		// The parser folds dotted member chains into the identifier's
		// Name ("console.log"); only the root names a binding.
		root, chain := v.Name, ""
		if i := strings.IndexByte(root, '.'); i >= 0 {
			root, chain = root[:i], root[i:]
		}
		ref := v.Ref
		if !ref.IsValid() {
			if r, ok := m.Program.ModuleScope.Resolve(root); ok {
				ref = r
			} else {
				return v.Name // unresolved global, rendered as-is
			}
		}
		return ctx.bindingName(m, ref) + chain
	case *js_ast.ECall:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = renderExpr(ctx, m, a)
		}
		callee := renderExpr(ctx, m, v.Callee)
		text := callee + "(" + strings.Join(args, ", ") + ")"
		if v.IsPure {
			text = "/* @__PURE__ */ " + text
		}
		return text
	case *js_ast.EImportCall:
		return ctx.renderDynamicImport(m, v.ImportRecordIndex)
	case *js_ast.EImportMeta:
		return ctx.renderImportMeta(m, v)
	case *js_ast.EMember:
		return renderExpr(ctx, m, v.Target) + v.Chain
	case *js_ast.EBinary:
		// Render only the used branch when the operator's decision is a
		// compile-time literal; the discarded side leaves no trace.
		switch js_ast.UsedBranchOfLogical(v) {
		case -1:
			return renderExpr(ctx, m, v.Left)
		case 1:
			return renderExpr(ctx, m, v.Right)
		}
		return renderExpr(ctx, m, v.Left) + " " + binOpText(v.Op) + " " + renderExpr(ctx, m, v.Right)
	default:
		return e.Span.Text(m.Source)
	}
}

// renderImportMeta resolves an import.meta expression: the internal
// FILE_/ASSET_/CHUNK_ prefixes (references to emitted files) go through
// the resolveFileUrl hook, everything else through resolveImportMeta,
// each with a per-format fallback. es and system keep the native
// expression; the other formats have no import.meta, so the url property
// is derived from __filename and unknown properties become undefined.
func (ctx *chunkCtx) renderImportMeta(m *graph.Module, v *js_ast.EImportMeta) string {
	isFileRef := strings.HasPrefix(v.Prop, "FILE_") ||
		strings.HasPrefix(v.Prop, "ASSET_") ||
		strings.HasPrefix(v.Prop, "CHUNK_")

	if ctx.plugins != nil {
		hook := plugin.HookResolveImportMeta
		if isFileRef {
			hook = plugin.HookResolveFileUrl
		}
		if result, err := ctx.plugins.First(hook, nil, v.Prop, string(m.Id), ctx.chunk.FileName); err == nil {
			if s, ok := result.(string); ok && s != "" {
				return s
			}
		}
	}

	if isFileRef {
		// No hook claimed the reference; there is no file to point at.
		return "undefined"
	}

	switch ctx.format {
	case compat.FormatES, compat.FormatSystem:
		if v.Prop == "" {
			return "import.meta"
		}
		return "import.meta." + v.Prop
	default:
		switch v.Prop {
		case "url":
			return "require('url').pathToFileURL(__filename).href"
		case "":
			return "({ url: require('url').pathToFileURL(__filename).href })"
		default:
			return "undefined"
		}
	}
}

func binOpText(op js_ast.BinOp) string {
	switch op {
	case js_ast.BinOpLogicalAnd:
		return "&&"
	case js_ast.BinOpLogicalOr:
		return "||"
	case js_ast.BinOpNullishCoalescing:
		return "??"
	default:
		return "&&"
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
