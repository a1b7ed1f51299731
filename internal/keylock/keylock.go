// Package keylock provides mutual exclusion per string key: one lock per
// instrument, user or contest, created on demand.
package keylock

import "sync"

// Map hands out a mutex per key. Locks are never freed; the key space
// (players, users, contests) is bounded by the catalog and user base.
type Map struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty lock map.
func New() *Map {
	return &Map{locks: make(map[string]*sync.Mutex)}
}

func (m *Map) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Lock acquires the lock for key and returns its release function.
func (m *Map) Lock(key string) (unlock func()) {
	l := m.get(key)
	l.Lock()
	return l.Unlock
}

// With runs fn while holding the lock for key.
func (m *Map) With(key string, fn func() error) error {
	unlock := m.Lock(key)
	defer unlock()
	return fn()
}
