// Package filelock provides a non-blocking advisory lock so that two
// journaled pngdup runs never write into the same directory at once.
package filelock

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked indicates another process already holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// Lock represents an acquired advisory file lock.
type Lock struct {
	file *os.File
}

// Acquire opens (creating if needed) the file at path and takes an exclusive
// lock on it. It never waits: a held lock yields an error wrapping ErrLocked.
// The parent directory must exist.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquire lock: %w: %w", ErrLocked, err)
	}

	return &Lock{file: f}, nil
}

// Close releases the lock and removes the lock file.
// Calling Close on a nil Lock is a no-op.
func (l *Lock) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	path := l.file.Name()

	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	removeErr := os.Remove(path)
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("remove lock file: %w", removeErr)
	}

	return nil
}
