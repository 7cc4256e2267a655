// Package runtime holds the interop helper snippets the render phase
// injects per external dependency according to its interop mode. The
// helpers are a fixed library of small JS functions kept as source text
// rather than constructed AST nodes, limited to the namespace/interop
// helpers the render phase actually emits. There are no syntax-lowering
// helpers (__pow, __rest, __spreadValues, decorator metadata,
// async-generator polyfills), since this bundler never lowers syntax to
// an older target.
package runtime

// Source returns the literal JS text for a given interop helper name, one
// of compat.InteropHelperNames. Helpers are emitted only if referenced
// (chunk rendering calls Source lazily), so unused helpers never appear
// in output; the helpers are themselves tree-shaken.
func Source(name string) string {
	switch name {
	case "__toESM":
		return `var __toESM = (mod) => {
	if (mod && mod.__esModule) return mod
	var result = {}
	for (var key in mod) result[key] = mod[key]
	result.default = mod
	return result
}`
	case "__toCommonJS":
		return `var __toCommonJS = (mod) => {
	var result = {}
	for (var key in mod) if (key !== 'default') result[key] = mod[key]
	if (mod && mod.default !== undefined) result.default = mod.default
	return result
}`
	case "__esModuleExport":
		return `var __esModuleExport = (target) => Object.defineProperty(target, '__esModule', { value: true })`
	case "__exportStar":
		return `var __exportStar = (target, mod) => {
	for (var key in mod)
		if (key !== 'default' && !Object.prototype.hasOwnProperty.call(target, key))
			Object.defineProperty(target, key, { get: () => mod[key], enumerable: true })
	return target
}`
	case "__reExport":
		return `var __reExport = (target, mod, names) => {
	for (var i = 0; i < names.length; i++)
		Object.defineProperty(target, names[i], { get: () => mod[names[i]], enumerable: true })
	return target
}`
	default:
		return ""
	}
}
