package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/roivol/roivol/pkg/errors"
)

// Lock is held for the lifetime of a session so two sessions never share
// the same local state directory.
type Lock struct {
	lock *flock.Flock
}

// AcquireLock takes the session lock at path without blocking.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create lock directory")
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire session lock")
	}
	if !ok {
		return nil, fmt.Errorf("another session is already running (lock %s)", path)
	}

	slog.Info("session_lock_acquired", "path", path)
	return &Lock{lock: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	slog.Info("session_lock_released", "path", l.lock.Path())
	return l.lock.Unlock()
}
