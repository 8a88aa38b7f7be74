package blob

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	Keyspace

	mu      sync.RWMutex
	objects map[string][]byte
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty Memory store whose URLs start with baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{
		Keyspace: Keyspace{BaseURL: baseURL},
		objects:  make(map[string][]byte),
		now:      time.Now,
	}
}

func (m *Memory) Put(_ context.Context, data []byte, folder, contentType string) (Object, error) {
	key := NewKey(folder, contentType, m.now())
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = buf
	m.mu.Unlock()

	return Object{Key: key, URL: m.URL(key), ContentType: contentType, Size: len(data)}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Seed stores data under an exact key, bypassing key generation.
func (m *Memory) Seed(key string, data []byte) string {
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return m.URL(key)
}

// Keys returns the stored keys, for assertions in tests.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
