package storage

import (
	"errors"
	"fmt"
	"os"
)

// ErrWouldBlock is returned by TryLock while another process holds the lock.
var ErrWouldBlock = errors.New("file lock would block")

// Lock is an exclusive advisory lock on a lock file. The state store takes
// one around every read-modify-write of the saved script.
type Lock struct {
	f *os.File
}

// TryLock takes the lock at path without waiting, creating the file if
// needed.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %q: open: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrWouldBlock) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("failed to lock %q: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Unlock releases the lock. The lock file stays in place: removing it would
// let a later TryLock create a new file and lock it while another process
// still holds the lock on the old one. Calling Unlock on a nil or released
// Lock does nothing.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	return errors.Join(unlockFile(f), f.Close())
}
