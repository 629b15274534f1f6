package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joeycumines/whatsdemo/internal/chat"
)

// ErrStateLocked is returned by Save when another process is writing the
// same state file.
var ErrStateLocked = errors.New("state file is locked by another process")

// StateStore persists the current script (profile and messages) as a JSON
// document in a single file.
type StateStore struct {
	// Path of the JSON state file.
	Path string
	// Logger receives diagnostics for state that could not be loaded. If
	// nil, slog.Default is used.
	Logger *slog.Logger
	// LockTimeout bounds how long Save waits for a concurrent writer. Zero
	// means a single attempt.
	LockTimeout time.Duration
}

func (s *StateStore) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Load reads the saved script. It returns nil, and never an error, when the
// file is missing, unreadable or does not hold a valid script, so callers
// can fall back to defaults.
func (s *StateStore) Load() *chat.Script {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger().Warn("failed to read state file", "path", s.Path, "error", err)
		}
		return nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger().Warn("ignoring corrupt state file", "path", s.Path, "error", err)
		return nil
	}
	script, err := chat.ValidateImport(doc)
	if err != nil {
		s.logger().Warn("ignoring invalid state file", "path", s.Path, "error", err)
		return nil
	}
	return &script
}

// Save writes script to the state file atomically, holding a lock file next
// to it for the duration of the write.
func (s *StateStore) Save(script chat.Script) error {
	if script.Messages == nil {
		// Load rejects a null message list.
		script.Messages = []chat.Message{}
	}
	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	lock, err := s.lock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger().Warn("failed to release state lock", "path", s.Path, "error", err)
		}
	}()

	if err := AtomicWriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (s *StateStore) lock() (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lockPath := s.Path + ".lock"
	deadline := time.Now().Add(s.LockTimeout)
	for {
		lock, err := TryLock(lockPath)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrStateLocked
		}
		time.Sleep(10 * time.Millisecond)
	}
}
