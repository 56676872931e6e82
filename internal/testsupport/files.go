package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, along with any missing parents, holding size bytes
// of filler. Sizes below one are bumped to one so the file is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	size = max(size, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, filler(size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// filler repeats a short marker so copied files can be compared byte for
// byte without being uniform.
func filler(size int64) []byte {
	const marker = "webupload-media:"
	data := bytes.Repeat([]byte(marker), int(size)/len(marker)+1)
	return data[:size]
}
