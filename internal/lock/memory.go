package lock

import (
	"context"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Memory is a process-local Locker. Entries are created on demand and
// removed once no caller references them.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
}

var _ Locker = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

func (m *Memory) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	if !e.mu.TryLock() {
		m.unref(key, e)
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Unlock()
			m.unref(key, e)
		})
	}
	return release, true, nil
}

func (m *Memory) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Len reports how many keys currently have entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
