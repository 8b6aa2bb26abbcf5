// Package lock provides the in-process per-entity write lock.
package lock

import (
	"sync"

	"reliability/internal/ports"
)

// KeyedLocker hands out one exclusive, non-blocking lock per key.
type KeyedLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ ports.KeyLocker = (*KeyedLocker)(nil)

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{held: make(map[string]struct{})}
}

// TryLock returns ok=false without waiting when key is already held.
// The returned unlock is safe to call more than once.
func (l *KeyedLocker) TryLock(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true
}

// Held reports how many keys are currently locked.
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
