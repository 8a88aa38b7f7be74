package chathistory

import (
	"context"
	"errors"
	"fmt"

	"github.com/fpang/vista-staging/internal/store"
)

var (
	// ErrNotFound is returned when no history exists for an id.
	ErrNotFound = errors.New("chat history not found")
	// ErrExists is returned by Create when the id is taken.
	ErrExists = errors.New("chat history already exists")
	// ErrConflict is returned when a mutation keeps losing to concurrent writers.
	ErrConflict = errors.New("chat history update conflict")
)

// Repository persists histories with compare-and-swap on History.Version.
type Repository struct {
	docs     store.DocumentStore
	attempts int
}

func NewRepository(docs store.DocumentStore, attempts int) *Repository {
	if attempts <= 0 {
		attempts = 5
	}
	return &Repository{docs: docs, attempts: attempts}
}

func (r *Repository) Create(ctx context.Context, h *History) error {
	h.Version = 1
	err := r.docs.PutVersioned(ctx, Collection, h.HistoryID, h, h.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		return fmt.Errorf("%w: %s", ErrExists, h.HistoryID)
	}
	if err != nil {
		return fmt.Errorf("create chat history %s: %w", h.HistoryID, err)
	}
	return nil
}

// Get returns (nil, nil) when the history does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*History, error) {
	var h History
	found, err := r.docs.Get(ctx, Collection, id, &h)
	if err != nil {
		return nil, fmt.Errorf("get chat history %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &h, nil
}

// Mutate loads the history, applies fn, and writes it back, retrying from a
// fresh read when another writer got there first.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(*History) error) (*History, error) {
	for attempt := 0; attempt < r.attempts; attempt++ {
		h, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := fn(h); err != nil {
			return nil, err
		}
		h.Version++
		err = r.docs.PutVersioned(ctx, Collection, id, h, h.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update chat history %s: %w", id, err)
		}
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, id, r.attempts)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.docs.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("delete chat history %s: %w", id, err)
	}
	return nil
}
