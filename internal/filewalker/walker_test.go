package filewalker

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalk_FindsCodeFilesSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.go"), "package b")
	writeFile(t, filepath.Join(root, "a.go"), "package a")
	writeFile(t, filepath.Join(root, "notes.txt"), "not indexed")

	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(files), files)
	}
	if files[0].RelPath != "a.go" || files[1].RelPath != "b.go" {
		t.Errorf("expected sorted [a.go b.go], got [%s %s]", files[0].RelPath, files[1].RelPath)
	}
}

func TestWalk_SkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main")
	writeFile(t, filepath.Join(root, "node_modules", "dep.go"), "package dep")
	writeFile(t, filepath.Join(root, ".git", "fake.go"), "package fake")
	writeFile(t, filepath.Join(root, "vendor", "v.go"), "package v")

	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "main.go" {
		t.Fatalf("expected only main.go, got %+v", files)
	}
}

func TestWalk_SkipsOwnStateDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main")
	writeFile(t, filepath.Join(root, ".indexcore", "lock.go"), "package lock")

	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "main.go" {
		t.Fatalf("expected only main.go, got %+v", files)
	}
}

func TestWalk_SkipsFilesOverSizeLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "small.go"), "package small")
	writeFile(t, filepath.Join(root, "big.go"), string(make([]byte, 200)))

	files, err := Walk(root, Options{MaxFileSize: 100})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "small.go" {
		t.Fatalf("expected only small.go under the size limit, got %+v", files)
	}
}

func TestWalk_FollowsSymlinkToRealFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.go")
	writeFile(t, target, "package real")

	link := filepath.Join(root, "link.go")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected real.go and link.go to both resolve, got %+v", files)
	}
}

func TestWalk_SkipsBrokenSymlink(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "dangling.go")
	if err := os.Symlink(filepath.Join(root, "missing.go"), link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	writeFile(t, filepath.Join(root, "main.go"), "package main")

	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "main.go" {
		t.Fatalf("expected dangling symlink to be skipped, got %+v", files)
	}
}

func TestWalk_SkipsSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.go")
	b := filepath.Join(root, "b.go")
	if err := os.Symlink(b, a); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(a, b); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk of a cyclic symlink pair should not error, got: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected symlink cycle to be skipped entirely, got %+v", files)
	}
}

func TestWalk_EmptyDirectory(t *testing.T) {
	root := t.TempDir()
	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files in empty directory, got %+v", files)
	}
}

func TestWalk_RelPathUsesForwardSlashes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "sub", "file.go"), "package sub")

	files, err := Walk(root, Options{})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %+v", files)
	}
	if files[0].RelPath != "pkg/sub/file.go" {
		t.Errorf("expected forward-slashed relpath, got %q", files[0].RelPath)
	}
}
