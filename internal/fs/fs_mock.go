package fs

import (
	"fmt"
	"path"
)

// mockFS backs the loader/resolver tests with an in-memory map instead
// of real file I/O, trimmed to the operations this package's FS
// interface actually declares.
type mockFS struct {
	files map[string]string
}

func MockFS(files map[string]string) FS {
	return &mockFS{files: files}
}

func (m *mockFS) ReadFile(absPath string) (string, error) {
	contents, ok := m.files[absPath]
	if !ok {
		return "", fmt.Errorf("no such mock file: %s", absPath)
	}
	return contents, nil
}

func (*mockFS) IsAbs(p string) bool {
	return path.IsAbs(p)
}

func (*mockFS) Dir(p string) string {
	return path.Dir(p)
}

func (*mockFS) Join(parts ...string) string {
	return path.Clean(path.Join(parts...))
}

func (*mockFS) Abs(p string) (string, error) {
	return path.Clean(path.Join("/", p)), nil
}

// WriteFile lets MockFS stand in for RealFS in pkg/api.Bundle.Write tests:
// writes land back in the same in-memory map a test constructed MockFS
// with, so a test can assert on m.files afterwards.
func (m *mockFS) WriteFile(absPath string, contents []byte) error {
	m.files[absPath] = string(contents)
	return nil
}
