// Package keylock serializes writers per entity id. Every contract or
// payment transition runs under the lock for its id, so a user action
// and a background sweep can never both apply to the same entity.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

func (k *KeyLock) Lock(id string) {
	k.mu.Lock()
	e := k.entries[id]
	if e == nil {
		e = &entry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()
	e.mu.Lock()
}

func (k *KeyLock) Unlock(id string) {
	k.mu.Lock()
	e := k.entries[id]
	if e == nil {
		k.mu.Unlock()
		panic("keylock: unlock of unheld id " + id)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
	k.mu.Unlock()
	e.mu.Unlock()
}

// Do runs fn while holding the lock for id.
func (k *KeyLock) Do(id string, fn func() error) error {
	k.Lock(id)
	defer k.Unlock(id)
	return fn()
}
