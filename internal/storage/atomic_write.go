// Package storage persists whatsdemo data on the local file system: the
// saved script, finished recordings and the locks that keep concurrent
// processes from clobbering either.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// RenameError wraps the failure of the final rename step, keeping the path of
// the temporary file that was being moved into place.
type RenameError struct {
	Err      error
	tempPath string
}

func (e RenameError) Error() string    { return e.Err.Error() }
func (e RenameError) TempPath() string { return e.tempPath }
func (e RenameError) Unwrap() error    { return e.Err }

// AtomicWriteFile replaces filename with data through a temporary sibling
// file and a rename, so a reader sees either the old or the new content.
// Missing parent directories are created.
func AtomicWriteFile(filename string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-whatsdemo-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("failed to remove temporary file", "path", tmp.Name(), "error", rmErr)
		}
	}()

	if err := writeSynced(tmp, data); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := renameFile(tmp.Name(), filename); err != nil {
		return RenameError{Err: err, tempPath: tmp.Name()}
	}
	return nil
}

// writeSynced writes data to f, flushes it to disk and closes f.
func writeSynced(f *os.File, data []byte) error {
	_, err := f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write temp file %q: %w", f.Name(), err)
	}
	return nil
}

// WriteNewFile atomically writes data under dir using name, or, if that name
// is taken, the first free "base-N.ext" variant. It returns the path written.
// Used for artifacts that must never overwrite an earlier one.
func WriteNewFile(dir, name string, data []byte, perm os.FileMode) (string, error) {
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			break
		} else if err != nil {
			return "", fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
	}
	if err := AtomicWriteFile(candidate, data, perm); err != nil {
		return "", err
	}
	return candidate, nil
}
