// Package lock provides short-lived per-key leases so a post is never worked
// on by two attempts at once.
package lock

import (
	"context"
	"sync"
)

// Locker hands out exclusive leases. TryLock never blocks: ok is false when
// the key is already held. The returned release func is safe to call once.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker returns an in-process Locker.
func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]struct{})}
}

func (l *localLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
