package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFileWriter appends to a log file and, once the file would exceed
// its size limit, shifts it to path.1 (path.1 to path.2 and so on) before
// continuing in an empty file. Backups beyond maxFiles are deleted.
type RotatingFileWriter struct {
	path     string
	limit    int64
	maxFiles int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingFileWriter opens path for appending. maxSizeMB is raised to at
// least 1; maxFiles of 0 keeps no backups.
func NewRotatingFileWriter(path string, maxSizeMB, maxFiles int) (*RotatingFileWriter, error) {
	return newRotatingFileWriter(path, int64(max(maxSizeMB, 1))<<20, maxFiles)
}

func newRotatingFileWriter(path string, limit int64, maxFiles int) (*RotatingFileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log file directory: %w", err)
	}
	w := &RotatingFileWriter{path: path, limit: limit, maxFiles: max(maxFiles, 0)}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file, w.size = f, info.Size()
	return nil
}

// Write keeps p in one file. A record bigger than the limit is written
// alone into a fresh file.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the file. Later writes fail with os.ErrClosed.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate requires w.mu.
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := func(n int) string { return fmt.Sprintf("%s.%d", w.path, n) }
	if w.maxFiles == 0 {
		_ = os.Remove(w.path)
	} else {
		_ = os.Remove(backup(w.maxFiles))
		for n := w.maxFiles - 1; n >= 1; n-- {
			_ = os.Rename(backup(n), backup(n+1))
		}
		_ = os.Rename(w.path, backup(1))
	}
	return w.open()
}

var _ io.WriteCloser = (*RotatingFileWriter)(nil)
