package staging

import (
	"context"
	"errors"
	"fmt"

	"github.com/fpang/vista-staging/internal/store"
)

var errExists = errors.New("session already exists")

// Repository persists sessions with compare-and-swap on Session.Version.
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

func (r *Repository) Create(ctx context.Context, s *Session) error {
	s.Version = 1
	err := r.docs.PutVersioned(ctx, Collection, s.SessionID, s, s.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		return fmt.Errorf("%w: %s", errExists, s.SessionID)
	}
	if err != nil {
		return fmt.Errorf("create session %s: %w", s.SessionID, err)
	}
	return nil
}

// Get returns (nil, nil) when the session does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	found, err := r.docs.Get(ctx, Collection, id, &s)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &s, nil
}

// Mutate applies fn to a fresh copy of the session and writes it back,
// retrying from a new read on version conflicts. Errors returned by fn stop
// the loop and are returned unchanged.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	for attempt := 0; attempt < r.attempts; attempt++ {
		s, err := r.Get(ctx, id)
		if err != nil {
			return nil, newError(KindInternal, err, "load session")
		}
		if s == nil {
			return nil, newError(KindNotFound, nil, "session %s not found", id)
		}
		if err := fn(s); err != nil {
			return nil, err
		}
		s.Version++
		err = r.docs.PutVersioned(ctx, Collection, id, s, s.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, newError(KindInternal, err, "update session %s", id)
		}
		return s, nil
	}
	return nil, newError(KindConflict, store.ErrVersionConflict, "session %s was modified concurrently, try again", id)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.docs.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ByProperty returns the sessions for a property ordered by id.
func (r *Repository) ByProperty(ctx context.Context, propertyID string) ([]*Session, error) {
	return r.query(ctx, store.Where("property_id", store.OpEq, propertyID))
}

// ByUser returns the sessions started by a user ordered by id.
func (r *Repository) ByUser(ctx context.Context, userID string) ([]*Session, error) {
	return r.query(ctx, store.Where("user_id", store.OpEq, userID))
}

func (r *Repository) query(ctx context.Context, f store.Filter) ([]*Session, error) {
	docs, err := r.docs.Query(ctx, Collection, f)
	if err != nil {
		return nil, fmt.Errorf("query sessions where %s %s %v: %w", f.Field, f.Op, f.Value, err)
	}
	out := make([]*Session, 0, len(docs))
	for _, d := range docs {
		var s Session
		if err := d.Decode(&s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", d.ID, err)
		}
		out = append(out, &s)
	}
	return out, nil
}
