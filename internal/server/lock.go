package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrInstanceLocked is returned by Listen when another process holds the lock file.
var ErrInstanceLocked = errors.New("another instance holds the lock")

// instanceLock keeps a second process from starting with the same lock file.
// A nil *instanceLock is a no-op.
type instanceLock struct {
	path    string
	timeout time.Duration
	flock   *flock.Flock
}

func newInstanceLock(path string, timeout time.Duration) *instanceLock {
	return &instanceLock{
		path:    path,
		timeout: timeout,
		flock:   flock.New(path),
	}
}

// acquire takes the lock, retrying every 10ms for up to the configured timeout.
func (l *instanceLock) acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	var (
		locked bool
		err    error
	)
	if l.timeout > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		locked, err = l.flock.TryLockContext(lockCtx, 10*time.Millisecond)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %s (waited %v)", ErrInstanceLocked, l.path, l.timeout)
		}
	} else {
		locked, err = l.flock.TryLock()
	}
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrInstanceLocked, l.path)
	}
	return nil
}

func (l *instanceLock) release() error {
	if l == nil {
		return nil
	}
	return l.flock.Unlock()
}
