// Package events publishes staging domain events. Publishing is best effort:
// the staging service logs publish failures and carries on.
package events

import (
	"context"
	"sync"
	"time"
)

// Detail types.
const (
	TypeSessionCreated = "SessionCreated"
	TypeImageGenerated = "ImageGenerated"
	TypeImageSaved     = "ImageSaved"
	TypeSessionDeleted = "SessionDeleted"
)

// Event is the detail payload of a staging event.
type Event struct {
	Type       string    `json:"event_type"`
	SessionID  string    `json:"session_id"`
	PropertyID string    `json:"property_id,omitempty"`
	ImageIndex *int      `json:"image_index,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

// Types returns the detail types recorded so far, in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
