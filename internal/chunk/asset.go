package chunk

import (
	"path"
	"strings"

	"github.com/rollup-go/rollup/internal/hash"
)

// Asset is one emitted non-JS file, the
// `emitFile({type: 'asset', source, fileName, name?})` case, living
// alongside the chunk emitter this package already owns.
type Asset struct {
	FileName string
	Source   []byte
	Name     string
}

// AssetEmitter deduplicates emitted assets with a content-hash index
// rather than a linear scan over everything emitted so far: two emitFile
// calls with byte-identical source collapse onto the same output file
// regardless of emission order, and the result stays order-independent.
type AssetEmitter struct {
	pattern string
	byHash  map[string]string
	used    map[string]int
}

func NewAssetEmitter(pattern string) *AssetEmitter {
	if pattern == "" {
		pattern = "assets/[name]-[hash][extname]"
	}
	return &AssetEmitter{pattern: pattern, byHash: make(map[string]string), used: make(map[string]int)}
}

// Emit returns the Asset for source, reusing a previously emitted file
// name when an identical asset was already emitted.
func (e *AssetEmitter) Emit(name string, source []byte) Asset {
	digest := hash.Of(string(source))
	if fileName, ok := e.byHash[digest]; ok {
		return Asset{FileName: fileName, Source: source, Name: name}
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(path.Base(name), ext)
	if base == "" {
		base = "asset"
	}
	fileName := strings.NewReplacer(
		"[name]", base,
		"[hash]", digest,
		"[extname]", ext,
	).Replace(e.pattern)
	fileName = dedupeFileName(e.used, fileName)

	e.byHash[digest] = fileName
	return Asset{FileName: fileName, Source: source, Name: name}
}
