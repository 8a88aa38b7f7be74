package chathistory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/vista-staging/internal/ids"
	"github.com/fpang/vista-staging/internal/store"
)

// DefaultLastN is the recency window used when ContextOptions.LastN is zero.
const DefaultLastN = 10

// ContextOptions selects which messages Context renders.
type ContextOptions struct {
	Full  bool
	LastN int
}

// Service is the only writer of chat histories.
type Service struct {
	repo *Repository
	now  func() time.Time
}

// NewService creates a Service over docs. attempts bounds compare-and-swap
// retries per mutation.
func NewService(docs store.DocumentStore, attempts int) *Service {
	return &Service{repo: NewRepository(docs, attempts), now: time.Now}
}

// Create starts the history paired with sessionID.
func (s *Service) Create(ctx context.Context, sessionID, propertyID, userID string) (*History, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(propertyID) == "" {
		return nil, errors.New("session id and property id are required")
	}
	now := s.now().UTC()
	h := &History{
		HistoryID:              ids.ChatHistory(sessionID),
		SessionID:              sessionID,
		PropertyID:             propertyID,
		UserID:                 userID,
		Messages:               []Message{},
		AccumulatedRefinements: map[string]any{},
		TotalIterations:        1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}
	log.Debug().Str("historyId", h.HistoryID).Str("sessionId", sessionID).Msg("Chat history created")
	return h, nil
}

// Get returns ErrNotFound when the history does not exist.
func (s *Service) Get(ctx context.Context, historyID string) (*History, error) {
	h, err := s.repo.Get(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, historyID)
	}
	return h, nil
}

func (s *Service) AddUserMessage(ctx context.Context, historyID, content string) (*Message, error) {
	return s.add(ctx, historyID, RoleUser, content, nil)
}

// AddAssistantMessage records a model turn and the parameters it was produced with.
func (s *Service) AddAssistantMessage(ctx context.Context, historyID, content string, params map[string]any) (*Message, error) {
	return s.add(ctx, historyID, RoleAssistant, content, params)
}

func (s *Service) AddSystemMessage(ctx context.Context, historyID, content string) (*Message, error) {
	return s.add(ctx, historyID, RoleSystem, content, nil)
}

func (s *Service) add(ctx context.Context, historyID string, role Role, content string, params map[string]any) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("message content is required")
	}
	var msg Message
	_, err := s.repo.Mutate(ctx, historyID, func(h *History) error {
		msg = Message{
			MessageID:             ids.Message(),
			SessionID:             h.SessionID,
			Role:                  role,
			Content:               content,
			RefinementIteration:   h.TotalIterations,
			StagingParametersUsed: params,
			CreatedAt:             s.now().UTC(),
		}
		h.append(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Context renders the history for inclusion in a prompt.
func (s *Service) Context(ctx context.Context, historyID string, opts ContextOptions) (string, error) {
	h, err := s.Get(ctx, historyID)
	if err != nil {
		return "", err
	}
	lastN := opts.LastN
	if lastN <= 0 {
		lastN = DefaultLastN
	}
	return h.Render(opts.Full, lastN), nil
}

// RecentLines returns the rendered context for the last n messages split
// into lines.
func (s *Service) RecentLines(ctx context.Context, historyID string, n int) ([]string, error) {
	text, err := s.Context(ctx, historyID, ContextOptions{LastN: n})
	if err != nil {
		return nil, err
	}
	return strings.Split(text, "\n"), nil
}

func (s *Service) UpdateContextSummary(ctx context.Context, historyID, summary string) error {
	_, err := s.repo.Mutate(ctx, historyID, func(h *History) error {
		h.ContextSummary = summary
		h.UpdatedAt = s.now().UTC()
		return nil
	})
	return err
}

// MergeRefinements overlays refinements onto the accumulated map.
func (s *Service) MergeRefinements(ctx context.Context, historyID string, refinements map[string]any) error {
	_, err := s.repo.Mutate(ctx, historyID, func(h *History) error {
		if h.AccumulatedRefinements == nil {
			h.AccumulatedRefinements = map[string]any{}
		}
		maps.Copy(h.AccumulatedRefinements, refinements)
		h.UpdatedAt = s.now().UTC()
		return nil
	})
	return err
}

func (s *Service) IncrementIteration(ctx context.Context, historyID string) (int, error) {
	h, err := s.repo.Mutate(ctx, historyID, func(h *History) error {
		h.TotalIterations++
		h.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return h.TotalIterations, nil
}

func (s *Service) Summary(ctx context.Context, historyID string) (*Summary, error) {
	h, err := s.Get(ctx, historyID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		HistoryID:              h.HistoryID,
		TotalMessages:          h.TotalMessages,
		TotalIterations:        h.TotalIterations,
		ContextSummary:         h.ContextSummary,
		LastMessageAt:          h.LastMessageAt,
		AccumulatedRefinements: h.AccumulatedRefinements,
		CreatedAt:              h.CreatedAt,
		UpdatedAt:              h.UpdatedAt,
	}, nil
}

// Delete removes the history. Deleting an absent history is not an error.
func (s *Service) Delete(ctx context.Context, historyID string) error {
	return s.repo.Delete(ctx, historyID)
}
