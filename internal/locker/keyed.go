package locker

import (
	"context"
	"sync"
)

// KeyedMutex provides mutual exclusion scoped to a string key. Locks for
// distinct keys never contend; waiters on the same key acquire in channel
// order. Entries are refcounted and removed once the last holder or waiter
// leaves, so the table stays proportional to in-flight work rather than to
// the number of tickets ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Acquire blocks until the key's lock is held or ctx is done. On success it
// returns a release function that must be called exactly once.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			k.put(key, e)
		}, nil
	case <-ctx.Done():
		k.put(key, e)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) put(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// Len reports the number of live lock entries.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
