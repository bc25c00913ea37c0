package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DataDirLock guards the data directory against concurrent docuchat
// processes. The chat database and blob tree assume a single writer.
type DataDirLock struct {
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock creates a lock at <dir>/.docuchat.lock.
func NewDataDirLock(dir string) *DataDirLock {
	return &DataDirLock{
		flock: flock.New(filepath.Join(dir, ".docuchat.lock")),
	}
}

// TryLock attempts to acquire the lock without blocking. Returns false when
// another process holds it.
func (l *DataDirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return false, fmt.Errorf("create data directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire data dir lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release data dir lock: %w", err)
	}
	return nil
}
