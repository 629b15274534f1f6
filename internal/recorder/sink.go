package recorder

import (
	"fmt"
	"os"

	"github.com/joeycumines/whatsdemo/internal/storage"
)

// Sink receives finished recordings.
type Sink interface {
	// Deliver stores data under name and returns where it went.
	Deliver(name string, data []byte) (string, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(name string, data []byte) (string, error)

// Deliver implements Sink.
func (f SinkFunc) Deliver(name string, data []byte) (string, error) {
	return f(name, data)
}

// DirSink writes recordings into a directory, atomically, never replacing
// an existing file: a clashing name gets a numeric suffix.
type DirSink struct {
	Dir string
}

// Deliver implements Sink.
func (s DirSink) Deliver(name string, data []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path, err := storage.WriteNewFile(dir, name, data, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}
	return path, nil
}
