package js_ast

// Helpers for synthesizing safe identifiers during chunk rendering
// (internal/renamer, and internal/render's external-namespace, global and
// chunk-namespace names).

func IsIdentifierStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func IsIdentifierPart(c byte) bool {
	return IsIdentifierStart(c) || (c >= '0' && c <= '9')
}

func IsIdentifier(name string) bool {
	if name == "" || !IsIdentifierStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !IsIdentifierPart(name[i]) {
			return false
		}
	}
	return !reservedWords[name]
}

// EnsureValidIdentifier mangles an arbitrary string (e.g. a chunk name or a
// package name) into a syntactically valid JS identifier fragment, used
// when synthesizing namespace-object variable names for modules whose own
// name isn't already a safe identifier.
func EnsureValidIdentifier(name string) string {
	if name == "" {
		return "_"
	}
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case i == 0 && IsIdentifierStart(c):
			out = append(out, c)
		case i > 0 && IsIdentifierPart(c):
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 || !IsIdentifierStart(out[0]) {
		out = append([]byte{'_'}, out...)
	}
	if reservedWords[string(out)] {
		out = append(out, '_')
	}
	return string(out)
}

var reservedWords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true, "do": true,
	"else": true, "export": true, "extends": true, "finally": true, "for": true,
	"function": true, "if": true, "import": true, "in": true, "instanceof": true,
	"new": true, "return": true, "super": true, "switch": true, "this": true,
	"throw": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true, "let": true, "static": true,
	"enum": true, "await": true, "implements": true, "package": true,
	"protected": true, "interface": true, "private": true, "public": true,
	"null": true, "true": true, "false": true, "arguments": true, "eval": true,
}
