package render

import (
	"sort"
	"strings"

	"github.com/rollup-go/rollup/internal/chunk"
	"github.com/rollup-go/rollup/internal/compat"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/logger"
	"github.com/rollup-go/rollup/internal/runtime"
)

// assembled is assembleBody's result: the full chunk text plus, for each
// rendered module in order, the number of unmapped lines inserted before
// its text (wrapper preamble, import block, helpers, a preceding module's
// namespace object), which the source-map composer needs to keep
// generated positions honest.
type assembled struct {
	text string
	gaps []int
}

// assembleBody wraps the rendered module bodies in the target format's
// preamble/epilogue: import block, interop requires, helper definitions,
// namespace objects, export block, and banner/footer/intro/outro addons.
func assembleBody(in Input, ctx *chunkCtx, c *chunk.Chunk, rendered []moduleChunk, ex chunkExports) (assembled, error) {
	if err := validateExternalImports(ctx, c); err != nil {
		return assembled{}, err
	}

	crossImports := crossChunkImports(ctx)
	externals := externalImports(ctx)

	if (ctx.format == compat.FormatIIFE || ctx.format == compat.FormatUMD) && len(crossImports) > 0 {
		return assembled{}, formatError(c, logger.CodeChunkInvalid,
			"\""+ctx.format.String()+"\" output does not support chunks that import from other chunks")
	}

	// Body segments first: module texts with namespace objects interposed.
	// Namespace access and star re-exports can mark helpers used, so the
	// helper block (emitted above the body) must be built afterwards.
	segments := make([]string, len(rendered))
	interposed := make([]string, len(rendered))
	for i, mc := range rendered {
		segments[i] = mc.text
		if nsText := namespaceObject(ctx, mc.module); nsText != "" {
			interposed[i] = nsText
		}
	}

	var pre, post strings.Builder
	var err error
	switch ctx.format {
	case compat.FormatES:
		err = wrapES(ctx, c, ex, crossImports, externals, &pre, &post)
	case compat.FormatCJS:
		err = wrapCJS(ctx, c, ex, crossImports, externals, &pre, &post)
	case compat.FormatAMD:
		err = wrapAMD(ctx, c, ex, crossImports, externals, &pre, &post)
	case compat.FormatUMD:
		err = wrapUMD(ctx, c, ex, externals, &pre, &post)
	case compat.FormatIIFE:
		err = wrapIIFE(ctx, c, ex, externals, &pre, &post)
	case compat.FormatSystem:
		err = wrapSystem(ctx, c, ex, crossImports, externals, &pre, &post)
	}
	if err != nil {
		return assembled{}, err
	}

	opts := ctx.output
	var out strings.Builder
	gaps := make([]int, len(rendered))

	writeAddon := func(s string) int {
		if s == "" {
			return 0
		}
		out.WriteString(s)
		if !strings.HasSuffix(s, "\n") {
			out.WriteString("\n")
		}
		return strings.Count(s, "\n") + b2i(!strings.HasSuffix(s, "\n"))
	}

	lines := 0
	lines += writeAddon(opts.Banner)
	lines += writeAddon(pre.String())
	lines += writeAddon(opts.Intro)

	for i := range segments {
		gaps[i] = lines
		out.WriteString(segments[i])
		lines = 0
		lines += writeAddon(interposed[i])
	}

	writeAddon(opts.Outro)
	writeAddon(post.String())
	writeAddon(opts.Footer)

	return assembled{text: out.String(), gaps: gaps}, nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// namespaceObject synthesises the frozen namespace literal for a module
// whose namespace binding survived tree-shaking, except under
// preserveModules where the per-module chunk itself is the namespace.
func namespaceObject(ctx *chunkCtx, m *graph.Module) string {
	if ctx.output.PreserveModules || m.Program == nil {
		return ""
	}
	nsRef := m.NamespaceRef
	if !nsRef.IsValid() || int(nsRef.InnerIndex) >= len(m.Program.Symbols) {
		return ""
	}
	if !m.Program.SymbolFor(nsRef).Included {
		return ""
	}
	name := ctx.globalNames[nsRef]
	if name == "" {
		return ""
	}

	exportNames := make([]string, 0, len(m.Exports))
	for n := range m.Exports {
		exportNames = append(exportNames, n)
	}
	sort.Strings(exportNames)

	var b strings.Builder
	b.WriteString("var " + name + " = /*#__PURE__*/Object.freeze({\n")
	b.WriteString("\t__proto__: null")
	for _, n := range exportNames {
		ref := m.Exports[n]
		if !ref.IsValid() {
			continue
		}
		owner, ok := ctx.store.ModuleByIndex(ref.ModuleIndex)
		if !ok {
			continue
		}
		b.WriteString(",\n\t" + n + ": " + ctx.noteReference(owner, ref))
	}
	b.WriteString("\n});\n")
	return b.String()
}

func helperBlock(ctx *chunkCtx) string {
	if len(ctx.helperOrder) == 0 {
		return ""
	}
	var b strings.Builder
	for _, name := range ctx.helperOrder {
		if src := runtime.Source(name); src != "" {
			b.WriteString(src)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func wrapES(ctx *chunkCtx, c *chunk.Chunk, ex chunkExports, crossImports []crossChunkImport, externals []externalImport, pre, post *strings.Builder) error {
	for _, ci := range crossImports {
		specs := make([]string, len(ci.specs))
		for i, s := range ci.specs {
			if s.exported == s.local {
				specs[i] = s.exported
			} else {
				specs[i] = s.exported + " as " + s.local
			}
		}
		pre.WriteString("import { " + strings.Join(specs, ", ") + " } from " +
			quotePath(relativeImportPath(c.FileName, ci.producer.FileName)) + ";\n")
	}
	for _, ei := range externals {
		pre.WriteString("import * as " + ei.alias + " from " + quotePath(renderPathFor(ctx, ei.ext)) + ";\n")
	}
	for _, ext := range ex.starReexports {
		pre.WriteString("export * from " + quotePath(renderPathFor(ctx, ext)) + ";\n")
	}
	pre.WriteString(helperBlock(ctx))

	if len(ex.named) > 0 {
		specs := make([]string, len(ex.named))
		for i, e := range ex.named {
			if e.local == e.exported && !strings.Contains(e.local, ".") {
				specs[i] = e.exported
			} else if strings.Contains(e.local, ".") {
				// A dotted access can't appear in an export clause; bind it
				// first. Not a live binding, which matches the non-native
				// interop semantics such a binding already has.
				bound := ctx.renamer.Assign("esExportBinding:"+e.exported, e.exported)
				post.WriteString("var " + bound + " = " + e.local + ";\n")
				specs[i] = bound + " as " + e.exported
			} else {
				specs[i] = e.local + " as " + e.exported
			}
		}
		post.WriteString("export { " + strings.Join(specs, ", ") + " };\n")
	}
	for _, r := range ex.reexports {
		spec := r.local
		if r.local != r.exported {
			spec = r.local + " as " + r.exported
		}
		post.WriteString("export { " + spec + " } from " + quotePath(renderPathFor(ctx, r.ext)) + ";\n")
	}
	return nil
}

func wrapCJS(ctx *chunkCtx, c *chunk.Chunk, ex chunkExports, crossImports []crossChunkImport, externals []externalImport, pre, post *strings.Builder) error {
	var reqs strings.Builder
	for _, ci := range crossImports {
		nsName := ctx.renamer.Assign("chunkRequire:"+ci.producer.FileName, chunkNamespacePreferred(ci.producer))
		reqs.WriteString("var " + nsName + " = require(" + quotePath(relativeImportPath(c.FileName, ci.producer.FileName)) + ");\n")
		for _, s := range ci.specs {
			reqs.WriteString("var " + s.local + " = " + nsName + "." + s.exported + ";\n")
		}
	}
	for _, ei := range externals {
		reqs.WriteString("var " + ei.alias + " = " + requireExpr(ctx, ei.ext) + ";\n")
	}
	for _, ext := range ex.starReexports {
		ctx.useHelper("__exportStar")
		ctx.useHelper("__toESM")
		reqs.WriteString("__exportStar(exports, __toESM(require(" + quotePath(renderPathFor(ctx, ext)) + ")));\n")
	}

	pre.WriteString("'use strict';\n\n")
	if ex.mode == config.ExportNamed {
		pre.WriteString("Object.defineProperty(exports, '__esModule', { value: true });\n\n")
	}
	pre.WriteString(helperBlock(ctx))
	pre.WriteString(reqs.String())

	switch ex.mode {
	case config.ExportDefault:
		post.WriteString("module.exports = " + ex.defaultLocal + ";\n")
	case config.ExportNamed:
		for _, e := range ex.named {
			post.WriteString("exports." + e.exported + " = " + e.local + ";\n")
		}
		for _, r := range ex.reexports {
			nsName := ctx.externalNamespaceName(r.ext)
			post.WriteString("exports." + r.exported + " = " + nsName + "." + r.local + ";\n")
		}
	}
	return nil
}

func wrapAMD(ctx *chunkCtx, c *chunk.Chunk, ex chunkExports, crossImports []crossChunkImport, externals []externalImport, pre, post *strings.Builder) error {
	deps := []string{}
	params := []string{}
	if ex.mode == config.ExportNamed {
		deps = append(deps, "'exports'")
		params = append(params, "exports")
	}
	var binds strings.Builder
	for _, ci := range crossImports {
		nsName := ctx.renamer.Assign("chunkRequire:"+ci.producer.FileName, chunkNamespacePreferred(ci.producer))
		deps = append(deps, quotePath(relativeImportPath(c.FileName, ci.producer.FileName)))
		params = append(params, nsName)
		for _, s := range ci.specs {
			binds.WriteString("var " + s.local + " = " + nsName + "." + s.exported + ";\n")
		}
	}
	for _, ei := range externals {
		deps = append(deps, quotePath(renderPathFor(ctx, ei.ext)))
		params = append(params, ei.alias)
		if interopFor(ctx, ei.ext) != graph.InteropFalse {
			ctx.useHelper("__toESM")
			binds.WriteString(ei.alias + " = __toESM(" + ei.alias + ");\n")
		}
	}

	pre.WriteString("define([" + strings.Join(deps, ", ") + "], (function (" + strings.Join(params, ", ") + ") { 'use strict';\n\n")
	if ex.mode == config.ExportNamed {
		pre.WriteString("Object.defineProperty(exports, '__esModule', { value: true });\n\n")
	}
	pre.WriteString(helperBlock(ctx))
	pre.WriteString(binds.String())

	switch ex.mode {
	case config.ExportDefault:
		post.WriteString("return " + ex.defaultLocal + ";\n")
	case config.ExportNamed:
		for _, e := range ex.named {
			post.WriteString("exports." + e.exported + " = " + e.local + ";\n")
		}
		for _, r := range ex.reexports {
			nsName := ctx.externalNamespaceName(r.ext)
			post.WriteString("exports." + r.exported + " = " + nsName + "." + r.local + ";\n")
		}
	}
	post.WriteString("\n}));\n")
	return nil
}

func umdGlobalName(c *chunk.Chunk) string {
	return chunkNamespacePreferred(c)
}

func wrapUMD(ctx *chunkCtx, c *chunk.Chunk, ex chunkExports, externals []externalImport, pre, post *strings.Builder) error {
	name := umdGlobalName(c)

	cjsArgs := []string{}
	amdDeps := []string{}
	globalArgs := []string{}
	params := []string{}
	if ex.mode == config.ExportNamed {
		cjsArgs = append(cjsArgs, "exports")
		amdDeps = append(amdDeps, "'exports'")
		globalArgs = append(globalArgs, "(global."+name+" = {})")
		params = append(params, "exports")
	}
	var binds strings.Builder
	for _, ei := range externals {
		cjsArgs = append(cjsArgs, "require("+quotePath(renderPathFor(ctx, ei.ext))+")")
		amdDeps = append(amdDeps, quotePath(renderPathFor(ctx, ei.ext)))
		globalArgs = append(globalArgs, "global."+globalNameGuess(ei.ext))
		params = append(params, ei.alias)
		if interopFor(ctx, ei.ext) != graph.InteropFalse {
			ctx.useHelper("__toESM")
			binds.WriteString(ei.alias + " = __toESM(" + ei.alias + ");\n")
		}
	}

	factoryCJS := "factory(" + strings.Join(cjsArgs, ", ") + ")"
	if ex.mode == config.ExportDefault {
		factoryCJS = "module.exports = factory(" + strings.Join(cjsArgs, ", ") + ")"
	}
	factoryGlobal := "factory(" + strings.Join(globalArgs, ", ") + ")"
	if ex.mode == config.ExportDefault {
		factoryGlobal = "global." + name + " = factory(" + strings.Join(globalArgs, ", ") + ")"
	}

	pre.WriteString("(function (global, factory) {\n")
	pre.WriteString("\ttypeof exports === 'object' && typeof module !== 'undefined' ? " + factoryCJS + " :\n")
	pre.WriteString("\ttypeof define === 'function' && define.amd ? define([" + strings.Join(amdDeps, ", ") + "], factory) :\n")
	pre.WriteString("\t(global = typeof globalThis !== 'undefined' ? globalThis : global || self, " + factoryGlobal + ");\n")
	pre.WriteString("})(this, (function (" + strings.Join(params, ", ") + ") { 'use strict';\n\n")
	if ex.mode == config.ExportNamed {
		pre.WriteString("Object.defineProperty(exports, '__esModule', { value: true });\n\n")
	}
	pre.WriteString(helperBlock(ctx))
	pre.WriteString(binds.String())

	switch ex.mode {
	case config.ExportDefault:
		post.WriteString("return " + ex.defaultLocal + ";\n")
	case config.ExportNamed:
		for _, e := range ex.named {
			post.WriteString("exports." + e.exported + " = " + e.local + ";\n")
		}
		for _, r := range ex.reexports {
			nsName := ctx.externalNamespaceName(r.ext)
			post.WriteString("exports." + r.exported + " = " + nsName + "." + r.local + ";\n")
		}
	}
	post.WriteString("\n}));\n")
	return nil
}

func wrapIIFE(ctx *chunkCtx, c *chunk.Chunk, ex chunkExports, externals []externalImport, pre, post *strings.Builder) error {
	name := umdGlobalName(c)

	params := []string{}
	args := []string{}
	if ex.mode == config.ExportNamed {
		params = append(params, "exports")
		args = append(args, "{}")
	}
	var binds strings.Builder
	for _, ei := range externals {
		params = append(params, ei.alias)
		args = append(args, globalNameGuess(ei.ext))
		if interopFor(ctx, ei.ext) != graph.InteropFalse {
			ctx.useHelper("__toESM")
			binds.WriteString(ei.alias + " = __toESM(" + ei.alias + ");\n")
		}
	}

	switch ex.mode {
	case config.ExportNone:
		pre.WriteString("(function (" + strings.Join(params, ", ") + ") { 'use strict';\n\n")
	default:
		pre.WriteString("var " + name + " = (function (" + strings.Join(params, ", ") + ") { 'use strict';\n\n")
	}
	pre.WriteString(helperBlock(ctx))
	pre.WriteString(binds.String())

	switch ex.mode {
	case config.ExportDefault:
		post.WriteString("return " + ex.defaultLocal + ";\n")
	case config.ExportNamed:
		for _, e := range ex.named {
			post.WriteString("exports." + e.exported + " = " + e.local + ";\n")
		}
		for _, r := range ex.reexports {
			nsName := ctx.externalNamespaceName(r.ext)
			post.WriteString("exports." + r.exported + " = " + nsName + "." + r.local + ";\n")
		}
		post.WriteString("return exports;\n")
	}
	post.WriteString("\n})(" + strings.Join(args, ", ") + ");\n")
	return nil
}

func wrapSystem(ctx *chunkCtx, c *chunk.Chunk, ex chunkExports, crossImports []crossChunkImport, externals []externalImport, pre, post *strings.Builder) error {
	deps := []string{}
	var decls []string
	var setters []string
	for _, ci := range crossImports {
		deps = append(deps, quotePath(relativeImportPath(c.FileName, ci.producer.FileName)))
		var setter strings.Builder
		setter.WriteString("function (module) {\n")
		for _, s := range ci.specs {
			decls = append(decls, s.local)
			setter.WriteString("\t\t\t" + s.local + " = module." + s.exported + ";\n")
		}
		setter.WriteString("\t\t}")
		setters = append(setters, setter.String())
	}
	for _, ei := range externals {
		deps = append(deps, quotePath(renderPathFor(ctx, ei.ext)))
		decls = append(decls, ei.alias)
		setters = append(setters, "function (module) {\n\t\t\t"+ei.alias+" = module;\n\t\t}")
	}

	pre.WriteString("System.register([" + strings.Join(deps, ", ") + "], (function (exports, module) {\n")
	pre.WriteString("\t'use strict';\n")
	if len(decls) > 0 {
		pre.WriteString("\tvar " + strings.Join(decls, ", ") + ";\n")
	}
	pre.WriteString("\treturn {\n")
	if len(setters) > 0 {
		pre.WriteString("\t\tsetters: [" + strings.Join(setters, ", ") + "],\n")
	}
	pre.WriteString("\t\texecute: (function () {\n\n")
	pre.WriteString(helperBlock(ctx))

	switch ex.mode {
	case config.ExportDefault:
		post.WriteString("exports('default', " + ex.defaultLocal + ");\n")
	case config.ExportNamed:
		if len(ex.named) > 0 || len(ex.reexports) > 0 {
			var entries []string
			for _, e := range ex.named {
				entries = append(entries, e.exported+": "+e.local)
			}
			for _, r := range ex.reexports {
				nsName := ctx.externalNamespaceName(r.ext)
				entries = append(entries, r.exported+": "+nsName+"."+r.local)
			}
			post.WriteString("exports({ " + strings.Join(entries, ", ") + " });\n")
		}
	}
	post.WriteString("\n\t\t})\n\t};\n}));\n")
	return nil
}

// renderFacadeBody emits a facade chunk: no statements of its own, just
// a forwarding export surface over the chunk that carries the entry's
// code. Each exposed name forwards from the render name the backing
// chunk exports the binding under.
func renderFacadeBody(ctx *chunkCtx, c *chunk.Chunk) string {
	home := c.Facade.Of
	path := quotePath(relativeImportPath(c.FileName, home.FileName))
	binds := facadeBindings(ctx, c)

	var b strings.Builder
	switch ctx.format {
	case compat.FormatES:
		if len(binds) > 0 {
			specs := make([]string, len(binds))
			for i, fb := range binds {
				if fb.producer == fb.exposed {
					specs[i] = fb.exposed
				} else {
					specs[i] = fb.producer + " as " + fb.exposed
				}
			}
			b.WriteString("export { " + strings.Join(specs, ", ") + " } from " + path + ";\n")
		} else {
			b.WriteString("import " + path + ";\n")
		}
	case compat.FormatSystem:
		b.WriteString("System.register([" + path + "], (function (exports) {\n")
		b.WriteString("\t'use strict';\n")
		b.WriteString("\treturn {\n")
		b.WriteString("\t\tsetters: [function (module) {\n")
		if len(binds) > 0 {
			var entries []string
			for _, fb := range binds {
				entries = append(entries, fb.exposed+": module."+fb.producer)
			}
			b.WriteString("\t\t\texports({ " + strings.Join(entries, ", ") + " });\n")
		}
		b.WriteString("\t\t}],\n")
		b.WriteString("\t\texecute: (function () {})\n")
		b.WriteString("\t};\n}));\n")
	case compat.FormatAMD:
		b.WriteString("define(['exports', " + path + "], (function (exports, home) {\n")
		b.WriteString("'use strict';\n")
		for _, fb := range binds {
			b.WriteString("exports." + fb.exposed + " = home." + fb.producer + ";\n")
		}
		b.WriteString("}));\n")
	default:
		// cjs form; renderOne rejects UMD and IIFE facades before they
		// reach this point, as assembleBody rejects their other chunks
		// that import from a chunk.
		b.WriteString("'use strict';\n\n")
		if len(binds) > 0 {
			b.WriteString("Object.defineProperty(exports, '__esModule', { value: true });\n\n")
		}
		b.WriteString("var home = require(" + path + ");\n")
		for _, fb := range binds {
			b.WriteString("exports." + fb.exposed + " = home." + fb.producer + ";\n")
		}
	}
	return b.String()
}
