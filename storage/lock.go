package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when the data lock could not be taken in time
var ErrLockTimeout = errors.New("timed out waiting for data lock")

const lockRetryDelay = 50 * time.Millisecond

// FileLock is an advisory lock file shared by every process working on the same
// data directory. A nil *FileLock runs functions without locking.
//
// The timeout covers the whole wait: queuing behind other goroutines of this
// process as well as waiting for other processes.
type FileLock struct {
	sem     chan struct{} // flock is per file handle, so goroutines queue here first
	fl      *flock.Flock
	timeout time.Duration
}

// NewFileLock creates a lock backed by path
func NewFileLock(path string, timeout time.Duration) *FileLock {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FileLock{
		sem:     make(chan struct{}, 1),
		fl:      flock.New(path),
		timeout: timeout,
	}
}

// With runs fn while holding the lock
func (l *FileLock) With(fn func() error) error {
	if l == nil {
		return fn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", l.fl.Path(), ErrLockTimeout)
	}
	defer func() { <-l.sem }()

	locked, err := l.fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", l.fl.Path(), ErrLockTimeout)
		}
		return fmt.Errorf("failed to lock %s: %w", l.fl.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", l.fl.Path(), ErrLockTimeout)
	}
	defer func() {
		if err := l.fl.Unlock(); err != nil {
			log.Printf("Warning: failed to unlock %s: %v", l.fl.Path(), err)
		}
	}()

	return fn()
}
