// Package fs is the host filesystem collaborator named in:
// "the host filesystem and the network; these appear only through the
// plugin-callable load/resolveId surface." The bundler core never touches
// the filesystem directly outside of the loader's built-in fallback (used
// only when no plugin's "load" hook handles a given module), so this
// package stays intentionally small: virtual archive filesystems and
// directory watching belong to outer tooling, not the core engine, so
// they were not carried over here.
package fs

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FS is the minimal surface the default resolver and the default loader
// fallback need. Real builds use RealFS; tests use MockFS.
type FS interface {
	ReadFile(absPath string) (contents string, err error)
	IsAbs(p string) bool
	Dir(p string) string
	Join(parts ...string) string
	Abs(p string) (string, error)
}

// RealFS reads from the actual operating system filesystem.
type RealFS struct{}

func (RealFS) ReadFile(absPath string) (string, error) {
	b, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (RealFS) IsAbs(p string) bool {
	return path.IsAbs(p) || (len(p) >= 2 && p[1] == ':') // tolerate "C:\..." on Windows-authored ids
}

func (RealFS) Dir(p string) string {
	return path.Dir(normalizeSlashes(p))
}

func (RealFS) Join(parts ...string) string {
	return path.Clean(strings.Join(parts, "/"))
}

func (RealFS) Abs(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return normalizeSlashes(abs), nil
}

// WriteFile is the write half of Bundle.Write: the only place this
// library ever mutates the host filesystem. pkg/api reaches it through a
// type assertion, so an FS implementation that never writes can simply
// omit it.
func (RealFS) WriteFile(path string, contents []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, contents, 0o644)
}

func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
