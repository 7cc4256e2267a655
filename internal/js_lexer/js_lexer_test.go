package js_lexer

import "testing"

func TestTokenizeBasicImport(t *testing.T) {
	toks := Tokenize(`import {x} from './b';console.log(x);`)
	var kinds []T
	for _, tok := range toks {
		if tok.T != TEndOfFile {
			kinds = append(kinds, tok.T)
		}
	}
	if len(kinds) == 0 || kinds[0] != TKeyword {
		t.Fatalf("expected first token to be the 'import' keyword, got %v", kinds)
	}
}

func TestTemplateLiteralBalancesInterpolation(t *testing.T) {
	src := "const x = `a${ {y: 1} }b`; const z = 2;"
	toks := Tokenize(src)
	count := 0
	for _, tok := range toks {
		if tok.T == TTemplateLiteral {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one template literal token, got %d", count)
	}
}

func TestPureCommentAttachesToNextToken(t *testing.T) {
	toks := Tokenize("/* @__PURE__ */ foo()")
	if !toks[0].HadPureCommentBefore {
		t.Fatalf("expected pure comment flag on first token")
	}
}

func TestRegexNotConfusedWithDivision(t *testing.T) {
	toks := Tokenize("const r = /abc/; const q = a / b;")
	regexCount := 0
	for _, tok := range toks {
		if tok.T == TRegexLiteral {
			regexCount++
		}
	}
	if regexCount != 1 {
		t.Fatalf("expected /abc/ as the only regex literal (a / b is a division), got %d", regexCount)
	}
}
