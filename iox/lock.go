package iox

import (
	"fmt"

	"github.com/gofrs/flock"
)

// LockPath is the sibling lock file guarding path.
func LockPath(path string) string {
	return path + ".lock"
}

// WithFileLock runs fn while holding an exclusive cross-process lock on
// the sibling lock file of path. Callers still need their own in-process
// mutex: the lock is per file descriptor, not per goroutine.
func WithFileLock(path string, fn func() error) error {
	fl := flock.New(LockPath(path))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer DiscardErr(fl.Unlock)
	return fn()
}
