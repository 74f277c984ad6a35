package syncer

import (
	"sync"

	"github.com/dshills/docsync/pkg/types"
)

// KeyLock serializes work on a single record key while leaving other keys
// free to proceed. Entries are reference counted and dropped when unused.
type KeyLock struct {
	mu    sync.Mutex
	locks map[types.RecordKey]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLock creates an empty lock table
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[types.RecordKey]*keyEntry)}
}

// Lock blocks until key is free and returns the matching unlock function
func (l *KeyLock) Lock(key types.RecordKey) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
