package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrLockTimeout is returned when another process keeps the working tree
	// locked past the timeout.
	ErrLockTimeout = errors.New("timeout acquiring working tree lock")
	// ErrNilLock is returned when releasing a nil lock.
	ErrNilLock = errors.New("nil lock handle")
)

const (
	fileName     = "lock"
	pollInterval = 10 * time.Millisecond
)

// TreeLock is an exclusive OS-level lock on a working tree, held while a
// response is applied to it.
type TreeLock struct {
	Path  string
	flock *flock.Flock
}

// Acquire locks the working tree whose state lives in stateDir, waiting up
// to timeout. A zero timeout tries once.
func Acquire(ctx context.Context, stateDir string, timeout time.Duration) (*TreeLock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	path := filepath.Join(stateDir, fileName)
	fileLock := flock.New(path)

	if timeout <= 0 {
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("error acquiring file lock %s: %w", path, err)
		}
		if !locked {
			return nil, ErrLockTimeout
		}
		return &TreeLock{Path: path, flock: fileLock}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, pollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("error acquiring file lock %s: %w", path, err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	return &TreeLock{Path: path, flock: fileLock}, nil
}

// Release unlocks the working tree.
func (l *TreeLock) Release() error {
	if l == nil {
		return ErrNilLock
	}
	if l.flock != nil {
		return l.flock.Unlock()
	}
	return nil
}
