package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
}

func TestDiscoverFiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.gguf", "a.GGUF", "not-model.txt", "model.bin")

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 models, got %d", len(files))
	}
	// sorted by ID, extension stripped
	if files[0].ID != "a" || files[1].ID != "b" {
		t.Fatalf("unexpected ids: %+v", files)
	}
	for _, f := range files {
		if !filepath.IsAbs(f.Path) {
			t.Fatalf("path not absolute: %q", f.Path)
		}
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestResolveFilePath(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "tinyllama-q4.gguf")

	f, err := Resolve(filepath.Join(dir, "tinyllama-q4.gguf"), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f.ID != "tinyllama-q4" {
		t.Fatalf("id = %q", f.ID)
	}
}

func TestResolveMissingFile(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "gone.gguf"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolveDirByID(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "small.gguf", "large.gguf")

	f, err := Resolve(dir, "small")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Base(f.Path) != "small.gguf" {
		t.Fatalf("path = %q", f.Path)
	}
	// the ID may carry the extension
	if _, err := Resolve(dir, "small.gguf"); err != nil {
		t.Fatalf("resolve with extension: %v", err)
	}
	if _, err := Resolve(dir, "absent"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestResolveDirWithoutID(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "only.gguf")
	f, err := Resolve(dir, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f.ID != "only" {
		t.Fatalf("id = %q", f.ID)
	}

	writeFiles(t, dir, "second.gguf")
	if _, err := Resolve(dir, ""); err == nil {
		t.Fatal("expected error with multiple models and no id")
	}
}

func TestResolveEmptyDir(t *testing.T) {
	if _, err := Resolve(t.TempDir(), ""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
