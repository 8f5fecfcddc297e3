package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadAll(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "part.3dm")
	if err := os.WriteFile(src, []byte("geometry"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadAll(src)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "geometry" {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestReadAllRejectsDirectory(t *testing.T) {
	if _, err := ReadAll(t.TempDir()); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestReadAllMissingFile(t *testing.T) {
	if _, err := ReadAll(filepath.Join(t.TempDir(), "missing.sdtf")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestWriteAllTruncatesExistingFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.glb")
	if err := os.WriteFile(dst, []byte("a much longer previous payload"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := WriteAll(dst, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("content mismatch: got %q, want %q", got, "new")
	}
}

func TestWriteAllCreatesWithMode(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.sdtf")
	if err := WriteAll(dst, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	// umask may clear bits but never adds execute.
	if info.Mode().Perm()&0o111 != 0 {
		t.Fatalf("unexpected execute bits: %v", info.Mode().Perm())
	}
}

func TestWriteAllMissingDirectory(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nope", "out.sdtf")
	if err := WriteAll(dst, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestChecksumMatchesFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.bin")
	data := []byte("hello world")
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sum, n, err := ChecksumFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(data)) {
		t.Fatalf("size = %d, want %d", n, len(data))
	}
	if sum != Checksum(data) {
		t.Fatalf("checksum mismatch: %s vs %s", sum, Checksum(data))
	}
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if sum != want {
		t.Fatalf("checksum = %s, want %s", sum, want)
	}
}
