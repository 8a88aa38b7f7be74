package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process DocumentStore. Bodies are kept as JSON so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string, out any) (bool, error) {
	s.mu.RLock()
	body, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (s *MemoryStore) Put(_ context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, body)
	return nil
}

func (s *MemoryStore) PutVersioned(_ context.Context, collection, id string, doc any, version int64) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[collection][id]
	switch {
	case !ok && version != 1:
		return ErrVersionConflict
	case ok:
		stored, err := versionOf(existing)
		if err != nil {
			return fmt.Errorf("read version %s/%s: %w", collection, id, err)
		}
		if stored != version-1 {
			return ErrVersionConflict
		}
	}
	s.put(collection, id, body)
	return nil
}

func (s *MemoryStore) put(collection, id string, body []byte) {
	c, ok := s.docs[collection]
	if !ok {
		c = make(map[string][]byte)
		s.docs[collection] = c
	}
	c[id] = body
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], id)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, f Filter) ([]Document, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Document
	for id, body := range s.docs[collection] {
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
		}
		v, ok := fields[f.Field]
		if !ok || !matches(v, f.Op, f.Value) {
			continue
		}
		b := body
		results = append(results, Document{
			ID:     id,
			decode: func(out any) error { return json.Unmarshal(b, out) },
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func versionOf(body []byte) (int64, error) {
	var v struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return 0, err
	}
	return v.Version, nil
}

// matches compares a JSON-decoded value with a filter value.
func matches(stored any, op Op, want any) bool {
	switch w := want.(type) {
	case string:
		s, ok := stored.(string)
		if !ok {
			return false
		}
		return compareOrdered(s, w, op)
	case bool:
		b, ok := stored.(bool)
		if !ok {
			return false
		}
		if op == OpEq {
			return b == w
		}
		return b != w
	default:
		wf, ok := toFloat(want)
		if !ok {
			return false
		}
		sf, ok := stored.(float64)
		if !ok {
			return false
		}
		return compareOrdered(sf, wf, op)
	}
}

func compareOrdered[T string | float64](a, b T, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
