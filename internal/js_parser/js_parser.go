// Package js_parser turns lexer tokens into a js_ast.Program.
//
// A bundler that re-prints every expression from scratch needs a full
// ECMAScript expression tree. This parser instead recognizes only the
// statement and expression shapes the effect-analysis policies need
// (import/export declarations, variable/function/class declarations,
// if/logical branch folding, dynamic import, import.meta) and treats
// everything else — member chains, arrow functions, template literals,
// destructuring, try/switch/labeled loops — as an opaque, verbatim span
// that renders unmodified and is conservatively assumed to have effects.
// The renderer is fundamentally a string builder recording edits against
// original offsets: most of the output is untouched source text, not
// regenerated code, so a full expression-level parser buys little for
// tree-shaking, chunking, and format wrapping.
package js_parser

import (
	"strconv"
	"strings"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/js_ast"
	"github.com/rollup-go/rollup/internal/js_lexer"
	"github.com/rollup-go/rollup/internal/logger"
)

type parser struct {
	source string
	toks   []js_lexer.Token
	pos    int
	prog   *js_ast.Program
	log    *logger.Log
	file   string
}

// Parse tokenizes and parses source into a Program. Every Ref it creates
// carries a placeholder module index of 0; the loader renumbers them
// (stampModuleIndex) once the module has a slot in the store.
func Parse(log *logger.Log, file string, source string) *js_ast.Program {
	p := &parser{
		source: source,
		toks:   js_lexer.Tokenize(source),
		prog:   js_ast.NewProgram(source),
		log:    log,
		file:   file,
	}
	for !p.isEOF() {
		start := p.pos
		stmt := p.parseStmt()
		if p.pos == start {
			// Safety net: never spin forever on unrecognized input.
			p.advance()
			continue
		}
		p.prog.Stmts = append(p.prog.Stmts, stmt)
	}
	resolveHoistedExports(p.prog)
	foldConstants(p.prog)
	return p.prog
}

// resolveHoistedExports re-resolves "export {x}" specifiers whose binding
// is declared later in the file than the export statement; at the point
// the clause was parsed the name wasn't in scope yet.
func resolveHoistedExports(prog *js_ast.Program) {
	for i := range prog.Stmts {
		named, ok := prog.Stmts[i].Data.(*js_ast.SExportNamed)
		if !ok || named.Source != nil || named.Decl != nil {
			continue
		}
		for j := range named.Specifiers {
			if named.Specifiers[j].LocalRef == (ast.Ref{}) {
				if ref, found := prog.ModuleScope.Resolve(named.Specifiers[j].Local); found {
					named.Specifiers[j].LocalRef = ref
				} else {
					named.Specifiers[j].LocalRef = ast.InvalidRef
				}
			}
		}
	}
}

// foldConstants implements the local half of constant folding: a
// top-level "const NAME = <literal>" binding can never be reassigned
// (the language guarantees it), so every EIdentifier that resolves to it
// within the same module is safe to treat as that literal when deciding
// which "if" branch survives.
func foldConstants(prog *js_ast.Program) {
	consts := map[ast.Ref]js_ast.E{}
	collectLiteralConsts(prog.Stmts, consts)
	if len(consts) == 0 {
		return
	}
	for i := range prog.Stmts {
		substituteConstsInStmt(&prog.Stmts[i], consts)
	}
}

func collectLiteralConsts(stmts []js_ast.Stmt, consts map[ast.Ref]js_ast.E) {
	for _, stmt := range stmts {
		s := stmt.Data
		if named, ok := s.(*js_ast.SExportNamed); ok && named.Decl != nil {
			s = named.Decl
		}
		decl, ok := s.(*js_ast.SVarDecl)
		if !ok || decl.Kind != "const" {
			continue
		}
		for _, d := range decl.Decls {
			if d.Init != nil && isLiteralExpr(d.Init.Data) && d.Ref.IsValid() {
				consts[d.Ref] = d.Init.Data
			}
		}
	}
}

func isLiteralExpr(e js_ast.E) bool {
	switch e.(type) {
	case *js_ast.EString, *js_ast.ENumber, *js_ast.EBoolean, *js_ast.ENull:
		return true
	default:
		return false
	}
}

func substituteConstsInStmt(stmt *js_ast.Stmt, consts map[ast.Ref]js_ast.E) {
	switch v := stmt.Data.(type) {
	case *js_ast.SIf:
		substituteConstsInExpr(&v.Test, consts)
		if v.Consequent != nil {
			substituteConstsInStmt(v.Consequent, consts)
		}
		if v.Alternate != nil {
			substituteConstsInStmt(v.Alternate, consts)
		}
	case *js_ast.SExpr:
		substituteConstsInExpr(&v.Expr, consts)
	case *js_ast.SExportDefault:
		if v.Decl == nil {
			substituteConstsInExpr(&v.Value, consts)
		}
	}
}

func substituteConstsInExpr(e *js_ast.Expr, consts map[ast.Ref]js_ast.E) {
	switch v := e.Data.(type) {
	case *js_ast.EIdentifier:
		if v.Ref.IsValid() {
			if lit, ok := consts[v.Ref]; ok {
				e.Data = lit
			}
		}
	case *js_ast.EBinary:
		substituteConstsInExpr(&v.Left, consts)
		substituteConstsInExpr(&v.Right, consts)
	}
}

func (p *parser) isEOF() bool {
	return p.cur().T == js_lexer.TEndOfFile
}

func (p *parser) cur() js_lexer.Token {
	return p.toks[p.pos]
}

func (p *parser) at(t js_lexer.T) bool {
	return p.cur().T == t
}

func (p *parser) atKeyword(kw string) bool {
	tok := p.cur()
	return tok.T == js_lexer.TKeyword && tok.Raw == kw
}

func (p *parser) advance() js_lexer.Token {
	tok := p.cur()
	if tok.T != js_lexer.TEndOfFile {
		p.pos++
	}
	return tok
}

func (p *parser) expect(t js_lexer.T) js_lexer.Token {
	if !p.at(t) {
		return p.advance()
	}
	return p.advance()
}

func (p *parser) spanFrom(start int) ast.Span {
	return ast.Span{Start: start, End: p.toks[p.pos].Start}
}

// ---- top-level statement dispatch ----

func (p *parser) parseStmt() js_ast.Stmt {
	start := p.toks[p.pos].Start
	var data js_ast.S

	switch {
	case p.atKeyword("import") && !p.isImportCallAhead():
		data = p.parseImport()
	case p.atKeyword("export"):
		data = p.parseExport()
	case p.atKeyword("const") || p.atKeyword("let") || p.atKeyword("var"):
		data = p.parseVarDeclStmt()
	case p.atKeyword("function"):
		data = p.parseFunctionDecl()
	case p.atKeyword("async") && p.peekIsKeyword(1, "function"):
		p.advance() // async
		data = p.parseFunctionDecl()
	case p.atKeyword("class"):
		data = p.parseClassDecl()
	case p.atKeyword("if"):
		data = p.parseIf()
	case p.atKeyword("for"):
		data = p.parseForVerbatimOrForOf()
	default:
		data = p.parseExprStmtOrVerbatim()
	}

	p.skipStatementSeparator()
	return js_ast.Stmt{Data: data, Span: p.spanFrom(start)}
}

func (p *parser) peekIsKeyword(offset int, kw string) bool {
	i := p.pos + offset
	if i >= len(p.toks) {
		return false
	}
	tok := p.toks[i]
	return tok.T == js_lexer.TKeyword && tok.Raw == kw
}

// isImportCallAhead distinguishes "import(" (a dynamic import expression
// statement) from "import..." (a static import declaration).
func (p *parser) isImportCallAhead() bool {
	i := p.pos + 1
	return i < len(p.toks) && p.toks[i].T == js_lexer.TOpenParen
}

func (p *parser) skipStatementSeparator() {
	if p.at(js_lexer.TSemicolon) {
		p.advance()
	}
}

// skipBalancedCollect is skipBalanced, additionally recording every
// identifier token inside the skipped span. The enclosing statement keeps
// them as conservative reference names so a binding used only inside an
// unmodeled body is still marked used.
func (p *parser) skipBalancedCollect(refs *[]string) {
	start := p.pos
	p.skipBalanced()
	for i := start; i < p.pos && i < len(p.toks); i++ {
		if p.toks[i].T == js_lexer.TIdentifier {
			*refs = append(*refs, p.toks[i].Raw)
		}
	}
}

// skipBalanced consumes the current open-bracket token and everything up to
// and including its matching close, tracking all three bracket kinds so
// mismatched nesting inside (e.g. an object literal inside call arguments)
// doesn't terminate the scan early.
func (p *parser) skipBalanced() {
	var stack []js_lexer.T
	open := p.cur().T
	switch open {
	case js_lexer.TOpenParen, js_lexer.TOpenBrace, js_lexer.TOpenBracket:
	default:
		return
	}
	stack = append(stack, open)
	p.advance()
	for len(stack) > 0 && !p.isEOF() {
		switch p.cur().T {
		case js_lexer.TOpenParen, js_lexer.TOpenBrace, js_lexer.TOpenBracket:
			stack = append(stack, p.cur().T)
			p.advance()
		case js_lexer.TCloseParen, js_lexer.TCloseBrace, js_lexer.TCloseBracket:
			stack = stack[:len(stack)-1]
			p.advance()
		default:
			p.advance()
		}
	}
}

// skipToStatementEnd is the verbatim fallback's boundary detector: consume
// tokens (descending into balanced groups without ending the statement)
// until a depth-0 semicolon, a depth-0 newline-separated boundary (a cheap
// approximation of automatic semicolon insertion), or end of file.
func (p *parser) skipToStatementEnd() {
	consumedAny := false
	for !p.isEOF() {
		tok := p.cur()
		if consumedAny && tok.NewlineBefore && isStatementBoundaryToken(tok) {
			return
		}
		switch tok.T {
		case js_lexer.TSemicolon:
			p.advance()
			return
		case js_lexer.TOpenParen, js_lexer.TOpenBrace, js_lexer.TOpenBracket:
			p.skipBalanced()
			consumedAny = true
			continue
		case js_lexer.TCloseBrace:
			return
		case js_lexer.TKeyword:
			if tok.Raw == "await" {
				p.prog.HasTopLevelAwait = true
			}
		}
		p.advance()
		consumedAny = true
	}
}

func isStatementBoundaryToken(tok js_lexer.Token) bool {
	if tok.T == js_lexer.TKeyword {
		switch tok.Raw {
		case "const", "let", "var", "function", "class", "import", "export", "if", "for", "return", "throw":
			return true
		}
	}
	return tok.T == js_lexer.TIdentifier
}

// ---- import ----

func (p *parser) parseImport() js_ast.S {
	start := p.toks[p.pos].Start
	p.advance() // "import"
	stmt := &js_ast.SImport{ImportRecordIndex: -1}

	if p.at(js_lexer.TStringLiteral) {
		// Side-effect-only import: "import 'polyfill'"
		path := p.stringLiteralValue(p.advance())
		stmt.ImportRecordIndex = p.addImportRecord(path, js_ast.ImportStatic, p.spanFrom(start))
		return stmt
	}

	if p.cur().T == js_lexer.TIdentifier {
		name := p.advance().Raw
		stmt.DefaultLocalName = name
		stmt.DefaultLocalRef = p.declareLocal(name)
		if p.at(js_lexer.TComma) {
			p.advance()
		}
	}

	if p.cur().T == js_lexer.TPunct && p.cur().Raw == "*" {
		p.advance()
		p.expectKeyword("as")
		name := p.advance().Raw
		stmt.NamespaceLocalName = name
		stmt.NamespaceLocalRef = p.declareLocal(name)
	} else if p.at(js_lexer.TOpenBrace) {
		p.advance()
		for !p.at(js_lexer.TCloseBrace) && !p.isEOF() {
			alias := p.advance().Raw
			local := alias
			if p.atKeyword("as") {
				p.advance()
				local = p.advance().Raw
			}
			ref := p.declareLocal(local)
			stmt.Items = append(stmt.Items, js_ast.ImportItem{Alias: alias, LocalName: local, LocalRef: ref})
			if p.at(js_lexer.TComma) {
				p.advance()
			}
		}
		p.expect(js_lexer.TCloseBrace)
	}

	p.expectKeyword("from")
	path := p.stringLiteralValue(p.advance())
	stmt.ImportRecordIndex = p.addImportRecord(path, js_ast.ImportStatic, p.spanFrom(start))
	return stmt
}

func (p *parser) expectKeyword(kw string) {
	if p.atKeyword(kw) {
		p.advance()
	}
}

func (p *parser) stringLiteralValue(tok js_lexer.Token) string {
	raw := tok.Raw
	if len(raw) >= 2 {
		return raw[1 : len(raw)-1]
	}
	return raw
}

func (p *parser) addImportRecord(path string, kind js_ast.ImportKind, span ast.Span) int {
	idx := len(p.prog.ImportRecords)
	p.prog.ImportRecords = append(p.prog.ImportRecords, js_ast.ImportRecord{Path: path, Kind: kind, Span: span})
	return idx
}

func (p *parser) declareLocal(name string) ast.Ref {
	ref := p.prog.NewSymbol(0, js_ast.SymbolLocal, name)
	p.prog.ModuleScope.Members[name] = ref
	return ref
}

// ---- export ----

func (p *parser) parseExport() js_ast.S {
	start := p.toks[p.pos].Start
	p.advance() // "export"

	if p.atKeyword("default") {
		p.advance()
		return p.parseExportDefault()
	}

	if p.cur().T == js_lexer.TPunct && p.cur().Raw == "*" {
		p.advance()
		var as *string
		if p.atKeyword("as") {
			p.advance()
			name := p.advance().Raw
			as = &name
		}
		p.expectKeyword("from")
		path := p.stringLiteralValue(p.advance())
		idx := p.addImportRecord(path, js_ast.ImportStatic, p.spanFrom(start))
		return &js_ast.SExportAll{As: as, ImportRecordIndex: idx}
	}

	if p.at(js_lexer.TOpenBrace) {
		p.advance()
		var specs []js_ast.ExportSpecifier
		for !p.at(js_lexer.TCloseBrace) && !p.isEOF() {
			local := p.advance().Raw
			exported := local
			if p.atKeyword("as") {
				p.advance()
				exported = p.advance().Raw
			}
			specs = append(specs, js_ast.ExportSpecifier{Local: local, Exported: exported})
			if p.at(js_lexer.TComma) {
				p.advance()
			}
		}
		p.expect(js_lexer.TCloseBrace)
		stmt := &js_ast.SExportNamed{Specifiers: specs, ImportRecordIndex: -1}
		if p.atKeyword("from") {
			p.advance()
			path := p.stringLiteralValue(p.advance())
			stmt.ImportRecordIndex = p.addImportRecord(path, js_ast.ImportStatic, p.spanFrom(start))
			idx := stmt.ImportRecordIndex
			stmt.Source = &p.prog.ImportRecords[idx].Path
		} else {
			for i := range specs {
				if ref, ok := p.prog.ModuleScope.Resolve(specs[i].Local); ok {
					specs[i].LocalRef = ref
				}
			}
			stmt.Specifiers = specs
		}
		return stmt
	}

	if p.atKeyword("const") || p.atKeyword("let") || p.atKeyword("var") {
		decl := p.parseVarDeclStmt().(*js_ast.SVarDecl)
		named := &js_ast.SExportNamed{ImportRecordIndex: -1, Decl: decl}
		for _, d := range decl.Decls {
			named.Specifiers = append(named.Specifiers, js_ast.ExportSpecifier{Local: d.Name, Exported: d.Name, LocalRef: d.Ref})
		}
		return named
	}

	if p.atKeyword("function") {
		fn := p.parseFunctionDecl().(*js_ast.SFunctionDecl)
		return &js_ast.SExportNamed{ImportRecordIndex: -1, Specifiers: []js_ast.ExportSpecifier{{Local: fn.Name, Exported: fn.Name, LocalRef: fn.Ref}}, Decl: fn}
	}

	if p.atKeyword("async") && p.peekIsKeyword(1, "function") {
		p.advance()
		fn := p.parseFunctionDecl().(*js_ast.SFunctionDecl)
		return &js_ast.SExportNamed{ImportRecordIndex: -1, Specifiers: []js_ast.ExportSpecifier{{Local: fn.Name, Exported: fn.Name, LocalRef: fn.Ref}}, Decl: fn}
	}

	if p.atKeyword("class") {
		cls := p.parseClassDecl().(*js_ast.SClassDecl)
		return &js_ast.SExportNamed{ImportRecordIndex: -1, Specifiers: []js_ast.ExportSpecifier{{Local: cls.Name, Exported: cls.Name, LocalRef: cls.Ref}}, Decl: cls}
	}

	// Unrecognized export form; treat conservatively.
	var bodyRefs []string
	p.skipToStatementEndCollect(&bodyRefs)
	return &js_ast.SVerbatim{BodyRefs: bodyRefs}
}

func (p *parser) parseExportDefault() js_ast.S {
	if p.atKeyword("function") || (p.atKeyword("async") && p.peekIsKeyword(1, "function")) {
		if p.atKeyword("async") {
			p.advance()
		}
		fn := p.parseFunctionDecl().(*js_ast.SFunctionDecl)
		ref := fn.Ref
		if fn.Name == "" {
			ref = p.prog.NewSymbol(0, js_ast.SymbolExportDefault, "default")
		}
		p.prog.ExportDefaultRef = ref
		return &js_ast.SExportDefault{Decl: fn, LocalRef: ref}
	}
	if p.atKeyword("class") {
		cls := p.parseClassDecl().(*js_ast.SClassDecl)
		ref := cls.Ref
		if cls.Name == "" {
			ref = p.prog.NewSymbol(0, js_ast.SymbolExportDefault, "default")
		}
		p.prog.ExportDefaultRef = ref
		return &js_ast.SExportDefault{Decl: cls, LocalRef: ref}
	}
	expr := p.parseExpr()
	ref := p.prog.NewSymbol(0, js_ast.SymbolExportDefault, "default")
	p.prog.ExportDefaultRef = ref
	return &js_ast.SExportDefault{Value: expr, LocalRef: ref}
}

// ---- declarations ----

func (p *parser) parseVarDeclStmt() js_ast.S {
	kind := p.advance().Raw // const/let/var
	decl := &js_ast.SVarDecl{Kind: kind}
	for {
		if p.at(js_lexer.TOpenBrace) || p.at(js_lexer.TOpenBracket) {
			// Destructuring pattern: out of scope for named-symbol tracking;
			// consume it verbatim and fall back to conservative effects by
			// not registering any declared names (inclusion
			// propagation simply can't target this declarator specifically,
			// which is safe — it will just never be pruned).
			p.skipBalanced()
		} else if p.cur().T == js_lexer.TIdentifier {
			nameTok := p.advance()
			name := nameTok.Raw
			ref := p.declareLocal(name)
			d := js_ast.VarDeclarator{Name: name, Ref: ref, NameSpan: ast.Span{Start: nameTok.Start, End: nameTok.End}}
			if p.cur().T == js_lexer.TPunct && p.cur().Raw == "=" {
				p.advance()
				initPos := p.pos
				initStart := p.toks[p.pos].Start
				expr, ok := p.tryParseExpr()
				if !ok || !p.atDeclaratorBoundary() {
					// The initializer is a shape the minimal grammar
					// doesn't express; keep it as one opaque span.
					p.pos = initPos
					expr = p.scanOpaqueInitializer(initStart)
				}
				d.Init = &expr
			}
			decl.Decls = append(decl.Decls, d)
		} else {
			break
		}
		if p.at(js_lexer.TComma) {
			p.advance()
			continue
		}
		break
	}
	return decl
}

func (p *parser) parseFunctionDecl() js_ast.S {
	p.advance() // "function"
	if p.cur().T == js_lexer.TPunct && p.cur().Raw == "*" {
		p.advance() // generator
	}
	name := ""
	var ref ast.Ref
	var nameSpan ast.Span
	if p.cur().T == js_lexer.TIdentifier {
		tok := p.advance()
		name = tok.Raw
		ref = p.declareLocal(name)
		nameSpan = ast.Span{Start: tok.Start, End: tok.End}
	}
	var bodyRefs []string
	if p.at(js_lexer.TOpenParen) {
		p.skipBalancedCollect(&bodyRefs)
	}
	if p.at(js_lexer.TOpenBrace) {
		p.skipBalancedCollect(&bodyRefs)
	}
	return &js_ast.SFunctionDecl{Name: name, Ref: ref, NameSpan: nameSpan, BodyRefs: bodyRefs}
}

func (p *parser) parseClassDecl() js_ast.S {
	p.advance() // "class"
	name := ""
	var ref ast.Ref
	var nameSpan ast.Span
	if p.cur().T == js_lexer.TIdentifier {
		tok := p.advance()
		name = tok.Raw
		ref = p.declareLocal(name)
		nameSpan = ast.Span{Start: tok.Start, End: tok.End}
	}
	var bodyRefs []string
	if p.atKeyword("extends") {
		p.advance()
		if p.cur().T == js_lexer.TIdentifier {
			bodyRefs = append(bodyRefs, p.cur().Raw)
		}
		p.parseExpr()
	}
	if p.at(js_lexer.TOpenBrace) {
		p.skipBalancedCollect(&bodyRefs)
	}
	return &js_ast.SClassDecl{Name: name, Ref: ref, NameSpan: nameSpan, BodyRefs: bodyRefs}
}

// ---- control flow ----

func (p *parser) parseIf() js_ast.S {
	p.advance() // "if"
	p.expect(js_lexer.TOpenParen)
	test := p.parseExprUntilCloseParen()
	p.expect(js_lexer.TCloseParen)
	cons := p.parseStmt()
	s := &js_ast.SIf{Test: test, Consequent: &cons}
	if p.atKeyword("else") {
		p.advance()
		alt := p.parseStmt()
		s.Alternate = &alt
	}
	return s
}

func (p *parser) parseForVerbatimOrForOf() js_ast.S {
	p.advance() // "for"
	if p.at(js_lexer.TOpenParen) {
		// Scan ahead inside the parens for a top-level "of" keyword.
		depth := 0
		isOf := false
		for i := p.pos; i < len(p.toks); i++ {
			t := p.toks[i]
			switch t.T {
			case js_lexer.TOpenParen:
				depth++
			case js_lexer.TCloseParen:
				depth--
				if depth == 0 {
					i = len(p.toks)
					continue
				}
			}
			if depth == 1 && t.T == js_lexer.TKeyword && t.Raw == "of" {
				isOf = true
			}
			if depth <= 0 {
				break
			}
		}
		var bodyRefs []string
		p.skipBalancedCollect(&bodyRefs) // the "(...)" header
		bodyStart := p.toks[p.pos].Start
		if p.at(js_lexer.TOpenBrace) {
			p.skipBalancedCollect(&bodyRefs)
		} else {
			p.skipToStatementEndCollect(&bodyRefs)
		}
		bodySpan := ast.Span{Start: bodyStart, End: p.toks[p.pos].Start}
		if isOf {
			return &js_ast.SForOf{BodySpan: bodySpan, BodyRefs: bodyRefs}
		}
		return &js_ast.SVerbatim{BodyRefs: bodyRefs}
	}
	// Fallback: treat the whole "for" construct conservatively.
	return &js_ast.SVerbatim{}
}

// parseExprStmtOrVerbatim tries the minimal expression grammar first; if
// it doesn't make progress or leaves trailing tokens before the statement
// boundary, it falls back to a verbatim span so nothing is corrupted.
func (p *parser) parseExprStmtOrVerbatim() js_ast.S {
	start := p.pos
	expr, ok := p.tryParseExpr()
	if ok && (p.at(js_lexer.TSemicolon) || p.cur().NewlineBefore || p.isEOF()) {
		return &js_ast.SExpr{Expr: expr}
	}
	p.pos = start
	var bodyRefs []string
	p.skipToStatementEndCollect(&bodyRefs)
	return &js_ast.SVerbatim{BodyRefs: bodyRefs}
}

// skipToStatementEndCollect is skipToStatementEnd with the same
// identifier capture skipBalancedCollect performs.
func (p *parser) skipToStatementEndCollect(refs *[]string) {
	start := p.pos
	p.skipToStatementEnd()
	for i := start; i < p.pos && i < len(p.toks); i++ {
		if p.toks[i].T == js_lexer.TIdentifier {
			*refs = append(*refs, p.toks[i].Raw)
		}
	}
}

// ---- minimal expression grammar ----
//
// Recognizes: literals, bare identifiers, call expressions (including
// dotted member-call receivers like "console.log(...)" or "a.b.c(...)"),
// import and import.meta, and a single level of &&/||/?? combining two
// already-recognized operands. Anything else bails out to EOpaque, which
// still consumes a syntactically balanced span so the caller can tell
// whether the expression parse reached the right boundary.

func (p *parser) parseExpr() js_ast.Expr {
	e, _ := p.tryParseExpr()
	return e
}

func (p *parser) parseExprUntilCloseParen() js_ast.Expr {
	e, _ := p.tryParseExpr()
	return e
}

func (p *parser) tryParseExpr() (js_ast.Expr, bool) {
	left, ok := p.tryParsePrimary()
	if !ok {
		return left, false
	}
	left, ok = p.parsePostfixChain(left)
	if !ok {
		return left, false
	}
	for {
		op, isOp := logicalOpAt(p.cur())
		if !isOp {
			break
		}
		p.advance()
		right, rok := p.tryParsePrimary()
		if !rok {
			break
		}
		left = js_ast.Expr{
			Data: &js_ast.EBinary{Op: op, Left: left, Right: right},
			Span: ast.Span{Start: left.Span.Start, End: right.Span.End},
		}
	}
	return left, true
}

// parsePostfixChain consumes ".prop" and ".prop(...)" chains hanging off
// an already-parsed expression, so "import('./x').then(cb)" keeps its
// modeled EImportCall at the root instead of degrading to verbatim.
func (p *parser) parsePostfixChain(left js_ast.Expr) (js_ast.Expr, bool) {
	for p.at(js_lexer.TDot) {
		chain := ""
		for p.at(js_lexer.TDot) {
			p.advance()
			if p.cur().T != js_lexer.TIdentifier && p.cur().T != js_lexer.TKeyword {
				return left, false
			}
			chain += "." + p.advance().Raw
		}
		member := js_ast.Expr{
			Data: &js_ast.EMember{Target: left, Chain: chain},
			Span: ast.Span{Start: left.Span.Start, End: p.toks[p.pos].Start},
		}
		if !p.at(js_lexer.TOpenParen) {
			left = member
			continue
		}
		p.advance() // "("
		args := p.parseCallArgs()
		left = js_ast.Expr{
			Data: &js_ast.ECall{Callee: member, Args: args},
			Span: ast.Span{Start: left.Span.Start, End: p.toks[p.pos].Start},
		}
	}
	return left, true
}

// atDeclaratorBoundary reports whether the parser sits at a point a var
// declarator can legally end: the next declarator, the statement end, or
// a newline-separated boundary.
func (p *parser) atDeclaratorBoundary() bool {
	return p.at(js_lexer.TComma) || p.at(js_lexer.TSemicolon) || p.isEOF() || p.cur().NewlineBefore
}

// scanOpaqueInitializer consumes one declarator initializer as a single
// balanced opaque fragment, stopping at a top-level comma or statement
// end. A top-level "await" keyword inside it marks the whole module as
// using top-level await.
func (p *parser) scanOpaqueInitializer(start int) js_ast.Expr {
	depth := 0
	for !p.isEOF() {
		t := p.cur()
		if depth == 0 && (t.T == js_lexer.TComma || t.T == js_lexer.TSemicolon) {
			break
		}
		if depth == 0 && t.NewlineBefore && t.Start > start && isStatementBoundaryToken(t) {
			break
		}
		switch t.T {
		case js_lexer.TOpenParen, js_lexer.TOpenBrace, js_lexer.TOpenBracket:
			depth++
		case js_lexer.TCloseParen, js_lexer.TCloseBrace, js_lexer.TCloseBracket:
			if depth == 0 {
				return js_ast.Expr{Data: &js_ast.EOpaque{MayHaveEffects: true}, Span: p.spanFrom(start)}
			}
			depth--
		case js_lexer.TKeyword:
			if depth == 0 && t.Raw == "await" {
				p.prog.HasTopLevelAwait = true
			}
		}
		p.advance()
	}
	return js_ast.Expr{Data: &js_ast.EOpaque{MayHaveEffects: true}, Span: p.spanFrom(start)}
}

// parseCallArgs parses a call's argument list up to and including the
// closing paren. An argument the minimal grammar can't express — or one
// it parses but doesn't reach the following comma/close-paren boundary
// of, like an arrow function whose head parses as a bare identifier — is
// rewound and consumed as one opaque balanced fragment.
func (p *parser) parseCallArgs() []js_ast.Expr {
	var args []js_ast.Expr
	for !p.at(js_lexer.TCloseParen) && !p.isEOF() {
		argPos := p.pos
		argStart := p.toks[p.pos].Start
		arg, ok := p.tryParseExpr()
		if !ok || !(p.at(js_lexer.TComma) || p.at(js_lexer.TCloseParen)) {
			p.pos = argPos
			depth := 0
			for !p.isEOF() {
				t := p.cur()
				if depth == 0 && (t.T == js_lexer.TComma || t.T == js_lexer.TCloseParen) {
					break
				}
				switch t.T {
				case js_lexer.TOpenParen, js_lexer.TOpenBrace, js_lexer.TOpenBracket:
					depth++
				case js_lexer.TCloseParen, js_lexer.TCloseBrace, js_lexer.TCloseBracket:
					depth--
				}
				p.advance()
			}
			arg = js_ast.Expr{Data: &js_ast.EOpaque{MayHaveEffects: true}, Span: p.spanFrom(argStart)}
		}
		args = append(args, arg)
		if p.at(js_lexer.TComma) {
			p.advance()
		}
	}
	p.expect(js_lexer.TCloseParen)
	return args
}

func logicalOpAt(tok js_lexer.Token) (js_ast.BinOp, bool) {
	if tok.T != js_lexer.TPunct {
		return 0, false
	}
	switch tok.Raw {
	case "&&":
		return js_ast.BinOpLogicalAnd, true
	case "||":
		return js_ast.BinOpLogicalOr, true
	case "??":
		return js_ast.BinOpNullishCoalescing, true
	}
	return 0, false
}

func (p *parser) tryParsePrimary() (js_ast.Expr, bool) {
	start := p.toks[p.pos].Start
	tok := p.cur()
	pure := tok.HadPureCommentBefore

	switch tok.T {
	case js_lexer.TStringLiteral:
		p.advance()
		return js_ast.Expr{Data: &js_ast.EString{Value: p.stringLiteralValue(tok)}, Span: p.spanFrom(start)}, true
	case js_lexer.TNumericLiteral:
		p.advance()
		n, _ := strconv.ParseFloat(strings.ReplaceAll(tok.Raw, "_", ""), 64)
		return js_ast.Expr{Data: &js_ast.ENumber{Value: n}, Span: p.spanFrom(start)}, true
	case js_lexer.TKeyword:
		switch tok.Raw {
		case "true", "false":
			p.advance()
			return js_ast.Expr{Data: &js_ast.EBoolean{Value: tok.Raw == "true"}, Span: p.spanFrom(start)}, true
		case "null":
			p.advance()
			return js_ast.Expr{Data: &js_ast.ENull{}, Span: p.spanFrom(start)}, true
		case "import":
			return p.tryParseImportExprOrMeta(start)
		}
		return js_ast.Expr{}, false
	case js_lexer.TIdentifier:
		return p.tryParseIdentifierOrCall(start, pure)
	default:
		return js_ast.Expr{}, false
	}
}

func (p *parser) tryParseImportExprOrMeta(start int) (js_ast.Expr, bool) {
	p.advance() // "import"
	if p.at(js_lexer.TDot) {
		p.advance()
		prop := ""
		if p.cur().T == js_lexer.TIdentifier {
			prop = p.advance().Raw
		}
		return js_ast.Expr{Data: &js_ast.EImportMeta{Prop: prop}, Span: p.spanFrom(start)}, true
	}
	if p.at(js_lexer.TOpenParen) {
		p.advance()
		var path string
		if p.at(js_lexer.TStringLiteral) {
			path = p.stringLiteralValue(p.cur())
		}
		// Consume the rest of the argument list verbatim (there may be an
		// options bag as a second argument).
		depth := 1
		for !p.isEOF() && depth > 0 {
			switch p.cur().T {
			case js_lexer.TOpenParen:
				depth++
			case js_lexer.TCloseParen:
				depth--
			}
			p.advance()
		}
		span := p.spanFrom(start)
		idx := p.addImportRecord(path, js_ast.ImportDynamic, span)
		return js_ast.Expr{Data: &js_ast.EImportCall{ImportRecordIndex: idx}, Span: span}, true
	}
	return js_ast.Expr{}, false
}

func (p *parser) tryParseIdentifierOrCall(start int, pure bool) (js_ast.Expr, bool) {
	name := p.advance().Raw
	ref, hasRef := p.prog.ModuleScope.Resolve(name)
	if !hasRef {
		ref = ast.InvalidRef
	}
	callee := js_ast.Expr{Data: &js_ast.EIdentifier{Name: name, Ref: ref}, Span: p.spanFrom(start)}

	// Swallow a chain of ".prop" accessors before a possible call, e.g.
	// "console.log(...)"; the chain itself is folded into the callee's
	// identity for purposes of this reduced grammar.
	fullName := name
	for p.at(js_lexer.TDot) {
		p.advance()
		if p.cur().T != js_lexer.TIdentifier && p.cur().T != js_lexer.TKeyword {
			return js_ast.Expr{}, false
		}
		fullName += "." + p.advance().Raw
	}
	callee.Data = &js_ast.EIdentifier{Name: fullName, Ref: ref}

	if !p.at(js_lexer.TOpenParen) {
		if fullName == name {
			return callee, true
		}
		// A bare member-access expression with no call; treat conservatively
		// as opaque since property reads can have getters with effects.
		return js_ast.Expr{Data: &js_ast.EOpaque{MayHaveEffects: true}, Span: p.spanFrom(start)}, true
	}

	p.advance() // "("
	args := p.parseCallArgs()
	return js_ast.Expr{Data: &js_ast.ECall{Callee: callee, Args: args, IsPure: pure}, Span: p.spanFrom(start)}, true
}
