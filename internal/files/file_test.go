package files

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriter(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "packgen_gen.go")
	if err := os.WriteFile(dst, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(dst)
	defer w.Cleanup()
	if _, err := w.Write([]byte("package shop\n")); err != nil {
		t.Fatal(err)
	}

	// The destination is untouched until Close.
	if got, _ := os.ReadFile(dst); string(got) != "old" {
		t.Errorf("before Close: %q", got)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("package shop\n", string(got)); diff != "" {
		t.Errorf("content (-want +got):\n%s", diff)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(dst)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != Mode {
			t.Errorf("mode = %v, want %v", info.Mode().Perm(), Mode)
		}
	}
	assertOnlyFile(t, filepath.Dir(dst), "packgen_gen.go")
}

func TestWriterCleanup(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "packgen_gen.go")

	w := NewWriter(dst)
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatal(err)
	}
	w.Cleanup()

	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("destination exists after Cleanup: %v", err)
	}
	assertOnlyFile(t, dir)
	if _, err := w.Write([]byte("more")); err == nil {
		t.Errorf("Write after Cleanup succeeded")
	}
	if err := w.Close(); err == nil {
		t.Errorf("Close after Cleanup succeeded")
	}
}

func TestWriterMissingDir(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "missing", "packgen_gen.go"))
	defer w.Cleanup()
	if _, err := w.Write([]byte("x")); err == nil {
		t.Errorf("Write succeeded")
	}
	if err := w.Close(); err == nil {
		t.Errorf("Close succeeded")
	}
}

func assertOnlyFile(t *testing.T, dir string, want ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("directory entries (-want +got):\n%s", diff)
	}
}
