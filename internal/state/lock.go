package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"olcsync/internal/services"
)

// Lock is an exclusive claim on one scope.
type Lock struct {
	path string
	fl   *flock.Flock
}

// LockPath returns the lock file guarding scope inside stateDir.
func LockPath(stateDir, scope string) string {
	return filepath.Join(stateDir, scope+".lock")
}

// Acquire takes the scope lock without waiting. A lock held by another
// process is reported as a configuration error.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "state", "lock", "create lock directory", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "state", "lock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "state", "lock",
			fmt.Sprintf("another olcsync run holds %s", path), nil)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
