// Package hash implements content hashing for chunk file names, including
// the two-pass [hash] placeholder substitution: chunk ids and facade file
// names can contain [hash], but the hash depends on rendered content which
// in turn depends on the final chunk ids of dependencies. This is resolved
// by rendering with a placeholder hash first, computing hashes bottom-up in
// chunk-dependency order, then replacing the placeholders.
//
// Chunk content is hashed with github.com/cespare/xxhash/v2, a dedicated
// fast non-cryptographic hash — chunk-name hashing has no security
// requirement, only stability and enough collision resistance to dedupe
// content, which is exactly xxhash's niche.
package hash

import (
	"encoding/base64"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultLength is the number of base64 characters kept in a rendered
// [hash] substitution.
const DefaultLength = 8

// The alphabet avoids '+', '/', and '=' so a hash is always
// filename-safe without escaping; hashes feed directly into chunk and
// asset file names.
var encoding = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_").WithPadding(base64.NoPadding)

// Of hashes arbitrary content — format, addons, rendered source, sorted
// export names, and a transitive hash of each dependency chunk's hash
// plus its id; callers are responsible for concatenating those inputs
// in a stable order — and returns a filename-safe digest truncated to
// DefaultLength characters.
func Of(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	digest := encoding.EncodeToString(sum)
	if len(digest) > DefaultLength {
		digest = digest[:DefaultLength]
	}
	return digest
}

// Placeholder is the first-pass stand-in substituted into a [hash]
// pattern position before a chunk's final content (and therefore its
// dependents' hashes) is known. It's a fixed-length run of a character
// that can never appear in a real digest, so a later substitution pass
// can find-and-replace it unambiguously.
func Placeholder(length int) string {
	return strings.Repeat("\x00", length)
}

// PlaceholderForIndex is Placeholder specialised per chunk: every chunk's
// file name needs its own placeholder, distinguishable from every other
// chunk's, since a chunk's rendered import specifiers embed its
// dependencies' (still-unresolved) file names verbatim — substituting one
// shared placeholder would collapse every chunk onto whichever hash
// finished last. Encoding index into the low bytes keeps the result the
// same length as Placeholder and just as incapable of colliding with a
// real base64 digest (the encoding alphabet never emits a NUL byte).
func PlaceholderForIndex(index int, length int) string {
	b := make([]byte, length)
	v := index
	for i := length - 1; i >= 0 && v > 0; i-- {
		b[i] = byte(v & 0xFF)
		v >>= 8
	}
	return string(b)
}

// SubstitutePlaceholders implements the second pass: replace every
// chunk's placeholder occurrence (in every other chunk's already-rendered
// text, since a chunk's file name can appear inside a sibling's import
// statements) with its final computed hash. Callers must process chunks
// in dependency order (leaves first) so a chunk's own hash is final
// before a dependent's hash is computed from it.
func SubstitutePlaceholders(text string, placeholder string, final string) string {
	if placeholder == "" {
		// The chunk's pattern carried no [hash] token; there is nothing
		// to substitute (and ReplaceAll with an empty old-string would
		// splice `final` between every byte).
		return text
	}
	return strings.ReplaceAll(text, placeholder, final)
}
