package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flarebyte/datamove/internal/store"
	"github.com/gofrs/flock"
)

// MutexLocker serializes imports inside one process.
type MutexLocker struct {
	mu sync.Mutex
}

func (l *MutexLocker) TryLock(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, store.ErrLocked
	}
	return l.mu.Unlock, nil
}

// FileLocker serializes imports across processes on one host.
type FileLocker struct {
	fl *flock.Flock
}

// NewFileLocker locks path, creating its directory when missing.
func NewFileLocker(path string) (*FileLocker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	return &FileLocker{fl: flock.New(path)}, nil
}

func (l *FileLocker) TryLock(ctx context.Context) (func(), error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("file lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return nil, store.ErrLocked
	}
	return func() { _ = l.fl.Unlock() }, nil
}

// Chain acquires every locker in order and releases them in reverse.
// If one fails the ones already held are released.
type Chain []store.Locker

func (c Chain) TryLock(ctx context.Context) (func(), error) {
	held := make([]func(), 0, len(c))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, l := range c {
		if l == nil {
			continue
		}
		unlock, err := l.TryLock(ctx)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return release, nil
}
