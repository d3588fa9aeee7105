package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of a repeating pattern. A size <= 0
// writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte('A' + i%26)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteAcquisition creates root.xml plus one root_fractions.tiff frame file
// in dir, matching the default [find] settings, and returns the marker path.
func WriteAcquisition(t testing.TB, dir, root string) string {
	t.Helper()

	marker := filepath.Join(dir, root+".xml")
	WriteFile(t, marker, 64)
	WriteFile(t, filepath.Join(dir, root+"_fractions.tiff"), 512)
	return marker
}
