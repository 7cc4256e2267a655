package chunk

import (
	"testing"

	"github.com/rollup-go/rollup/internal/ast"
	"github.com/rollup-go/rollup/internal/config"
	"github.com/rollup-go/rollup/internal/graph"
	"github.com/rollup-go/rollup/internal/js_ast"
)

func newTestModule(store *graph.Store, id string, index uint32) *graph.Module {
	m, _ := store.GetOrCreate(ast.ModuleId(id), index)
	m.ModuleIndex = index
	m.Included = true
	m.Executed = true
	m.ExecIndex = index
	m.Program = js_ast.NewProgram("")
	return m
}

func addStaticImport(parent, dep *graph.Module, source string) {
	parent.Sources = append(parent.Sources, source)
	parent.Program.ImportRecords = append(parent.Program.ImportRecords, js_ast.ImportRecord{
		Path: source, Kind: js_ast.ImportStatic, ModuleIndex: ast.MakeIndex32(dep.ModuleIndex),
	})
}

func addDynamicImport(parent, dep *graph.Module, source string) {
	parent.DynamicImports = append(parent.DynamicImports, source)
	parent.Program.ImportRecords = append(parent.Program.ImportRecords, js_ast.ImportRecord{
		Path: source, Kind: js_ast.ImportDynamic, ModuleIndex: ast.MakeIndex32(dep.ModuleIndex),
	})
}

func chunkContaining(t *testing.T, chunks []*Chunk, id ast.ModuleId) *Chunk {
	t.Helper()
	for _, c := range chunks {
		for _, m := range c.Modules {
			if m.Id == id {
				return c
			}
		}
	}
	t.Fatalf("no chunk contains module %s", id)
	return nil
}

func TestSignaturePartitionSplitsSharedDependencyIntoItsOwnChunk(t *testing.T) {
	store := graph.NewStore()
	shared := newTestModule(store, "./shared.js", 0)
	a := newTestModule(store, "./a.js", 1)
	b := newTestModule(store, "./b.js", 2)
	addStaticImport(a, shared, "./shared.js")
	addStaticImport(b, shared, "./shared.js")
	a.PreserveSignature = graph.PreserveSignatureStrict
	a.Exports = map[string]ast.Ref{"x": {ModuleIndex: 1, InnerIndex: 0}}
	a.IsUserDefinedEntryPoint = true
	b.IsUserDefinedEntryPoint = true

	chunks, err := Plan(Input{Store: store, EntryModules: []*graph.Module{a, b}, Output: config.DefaultOutputOptions()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks (a, b, shared), got %d", len(chunks))
	}

	sharedChunk := chunkContaining(t, chunks, shared.Id)
	if sharedChunk.EntryModule != nil {
		t.Fatalf("expected shared.js's chunk to have no entry module, it is reached by both a and b")
	}
	if len(sharedChunk.Modules) != 1 || sharedChunk.Modules[0] != shared {
		t.Fatalf("expected shared.js's chunk to contain only shared.js")
	}

	aChunk := chunkContaining(t, chunks, a.Id)
	if aChunk.EntryModule != a {
		t.Fatalf("expected a.js's own chunk to be recognised as a's entry chunk")
	}
	if aChunk.Facade == nil || !aChunk.Facade.Strict {
		t.Fatalf("expected a.js's chunk to be marked a strict facade since preserveSignature is strict")
	}
	if len(aChunk.StaticDependencies) != 1 || aChunk.StaticDependencies[0] != sharedChunk {
		t.Fatalf("expected a.js's chunk to statically depend on shared.js's chunk")
	}
}

func TestDynamicImportTargetGetsItsOwnChunk(t *testing.T) {
	store := graph.NewStore()
	a := newTestModule(store, "./a.js", 0)
	b := newTestModule(store, "./b.js", 1)
	addDynamicImport(a, b, "./b.js")

	chunks, err := Plan(Input{Store: store, EntryModules: []*graph.Module{a}, Output: config.DefaultOutputOptions()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (entry + dynamic target), got %d", len(chunks))
	}
	aChunk := chunkContaining(t, chunks, a.Id)
	bChunk := chunkContaining(t, chunks, b.Id)
	if aChunk == bChunk {
		t.Fatalf("expected the dynamic import target to live in its own chunk")
	}
	found := false
	for _, dep := range aChunk.DynamicDependencies {
		if dep == bChunk {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a.js's chunk to record a dynamic dependency on b.js's chunk")
	}
}

func TestManualChunksGreedilyClaimsStaticDependencyClosure(t *testing.T) {
	store := graph.NewStore()
	vendor := newTestModule(store, "./vendor.js", 0)
	helper := newTestModule(store, "./helper.js", 1)
	entry := newTestModule(store, "./entry.js", 2)
	addStaticImport(helper, vendor, "./vendor.js")
	addStaticImport(entry, helper, "./helper.js")

	manualChunks := config.ManualChunksFunc(func(id string) (string, bool) {
		if id == "./helper.js" {
			return "vendor-bundle", true
		}
		return "", false
	})
	out := config.DefaultOutputOptions()
	out.ManualChunks = manualChunks

	chunks, err := Plan(Input{Store: store, EntryModules: []*graph.Module{entry}, Output: out})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vendorChunk := chunkContaining(t, chunks, vendor.Id)
	helperChunk := chunkContaining(t, chunks, helper.Id)
	if vendorChunk != helperChunk {
		t.Fatalf("expected vendor.js to be greedily claimed into helper.js's manual chunk")
	}
	if vendorChunk.ManualChunkAlias != "vendor-bundle" {
		t.Fatalf("expected manual chunk alias 'vendor-bundle', got %q", vendorChunk.ManualChunkAlias)
	}
	entryChunk := chunkContaining(t, chunks, entry.Id)
	if entryChunk.ManualChunkAlias != "" {
		t.Fatalf("expected entry.js to remain outside the manual chunk")
	}
}

func TestFileNameCollisionsGetNumericSuffix(t *testing.T) {
	store := graph.NewStore()
	a := newTestModule(store, "./pkg/a/index.js", 0)
	b := newTestModule(store, "./pkg/b/index.js", 1)
	a.IsUserDefinedEntryPoint = true
	b.IsUserDefinedEntryPoint = true

	chunks, err := Plan(Input{Store: store, EntryModules: []*graph.Module{a, b}, Output: config.DefaultOutputOptions()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := map[string]bool{}
	for _, c := range chunks {
		if names[c.FileName] {
			t.Fatalf("expected unique file names, got duplicate %q", c.FileName)
		}
		names[c.FileName] = true
	}
	if !names["index.js"] {
		t.Fatalf("expected the first index.js to keep its unsuffixed name, got %+v", names)
	}
}

func TestManualChunksFromMapNormalisesObjectForm(t *testing.T) {
	fn := config.ManualChunksFromMap(map[string][]string{
		"vendor": {"react", "react-dom"},
	})
	if alias, ok := fn("react"); !ok || alias != "vendor" {
		t.Fatalf("expected react to resolve to the vendor alias, got %q, %v", alias, ok)
	}
	if _, ok := fn("lodash"); ok {
		t.Fatalf("expected lodash to not be claimed by any alias")
	}
}

func TestPreserveModulesEmitsOneChunkPerModule(t *testing.T) {
	store := graph.NewStore()
	a := newTestModule(store, "./src/a.js", 0)
	b := newTestModule(store, "./src/b.js", 1)
	addStaticImport(a, b, "./src/b.js")
	a.IsUserDefinedEntryPoint = true

	out := config.DefaultOutputOptions()
	out.PreserveModules = true
	out.PreserveModulesRoot = "./src"

	chunks, err := Plan(Input{Store: store, EntryModules: []*graph.Module{a}, Output: out})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected one chunk per module, got %d", len(chunks))
	}
	aChunk := chunkContaining(t, chunks, a.Id)
	if aChunk.FileName != "a.js" {
		t.Fatalf("expected a.js's preserveModules file name rebased against the root, got %q", aChunk.FileName)
	}
}
