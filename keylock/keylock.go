// Package keylock serializes work per key while allowing work for
// different keys to proceed concurrently.
//
// Typical use-case: event-sourced entities, where writes for one entity
// identity must not race but distinct entities are independent.
package keylock

import "sync"

// KeyLock runs functions such that for any given key K they execute
// sequentially, in lock-acquisition order. Functions for different keys
// can proceed in parallel. Locks are created on first use and released
// when no caller holds or waits on them.
type KeyLock[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*lock
}

type lock struct {
	mu   sync.Mutex
	refs int
}

func New[K comparable]() *KeyLock[K] {
	return &KeyLock[K]{
		locks: make(map[K]*lock),
	}
}

// Do runs fn while holding the lock for key and returns fn's error.
// The lock is released even when fn panics, so a caller that recovers
// does not leave the key wedged for every later caller.
func (l *KeyLock[K]) Do(key K, fn func() error) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lock{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}
