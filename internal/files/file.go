// Package files writes generated files atomically.
package files

import (
	"fmt"
	"os"
	"path/filepath"
)

// Mode is the permission of files written by a Writer.
const Mode os.FileMode = 0o644

// Writer writes a file through a temporary file in the same directory that
// is renamed into place on Close. Readers never observe a partially written
// file, and a failed write leaves the previous file untouched.
type Writer struct {
	dst     string   // destination file
	tmp     *os.File // temporary file being written
	tmpName string
	err     error
}

func NewWriter(file string) *Writer {
	w := &Writer{dst: file}
	dir, base := filepath.Dir(file), filepath.Base(file)
	w.tmp, w.err = os.CreateTemp(dir, base+".tmp*")
	if w.err == nil {
		w.tmpName = w.tmp.Name()
	}
	return w
}

func (w *Writer) Write(p []byte) (n int, err error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.tmp == nil {
		return 0, fmt.Errorf("file %s already cleaned up", w.dst)
	}

	n, err = w.tmp.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

// Close renames the temporary file to the destination.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.tmp == nil {
		return fmt.Errorf("file %s already cleaned up", w.dst)
	}

	// os.CreateTemp creates files readable by the owner only.
	err := w.tmp.Chmod(Mode)
	if cerr := w.tmp.Close(); err == nil {
		err = cerr
	}
	w.tmp = nil
	if err != nil {
		_ = os.Remove(w.tmpName)
		return err
	}

	if err := os.Rename(w.tmpName, w.dst); err != nil {
		_ = os.Remove(w.tmpName)
		return err
	}
	return nil
}

// Cleanup removes the temporary file if Close was not called or failed. It
// is meant to be deferred right after NewWriter.
func (w *Writer) Cleanup() {
	if w.tmp == nil {
		return
	}
	_ = w.tmp.Close()
	w.tmp = nil
	_ = os.Remove(w.tmpName)
}
