package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireIsExclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(context.Background(), dir, time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := Acquire(context.Background(), dir, 50*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while held, got %v", err)
	}
	if _, err := Acquire(context.Background(), dir, 0); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout for a single try, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	second, err := Acquire(context.Background(), dir, time.Second)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	defer second.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *TreeLock
	if err := l.Release(); !errors.Is(err, ErrNilLock) {
		t.Errorf("expected ErrNilLock, got %v", err)
	}
}
