// Package lockfile guards a store directory against concurrent use by
// holding an exclusive OS lock on a file inside it.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Name is the lock file created inside a locked directory.
const Name = "LOCK"

// ErrLocked is returned when another process (or another open handle in this
// process) holds the lock.
var ErrLocked = errors.New("lockfile: directory is locked")

// Lock is a held directory lock.
type Lock struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Acquire creates dir if needed and takes the lock on dir/Name without waiting.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, Name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &Lock{path: path, f: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. The file is left in place; releasing twice is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	uerr := unlock(l.f)
	cerr := l.f.Close()
	l.f = nil
	return errors.Join(uerr, cerr)
}
