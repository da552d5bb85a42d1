package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// WriteArchive writes a zip file named name into a fresh temporary
// directory and returns its path. files maps entry names to contents.
func WriteArchive(t *testing.T, name string, files map[string]string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("create entry %s: %v", n, err)
		}
		if _, err := w.Write([]byte(files[n])); err != nil {
			t.Fatalf("write entry %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return p
}
