package chathistory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/vista-staging/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(store.NewMemoryStore(), 3)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestService_CreateAndGet(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	h, err := s.Create(ctx, "vs_0123456789ab", "prop-1", "")
	require.NoError(t, err)
	assert.Equal(t, "chat_vs_0123456789ab", h.HistoryID)
	assert.Equal(t, 1, h.TotalIterations)
	assert.Equal(t, int64(1), h.Version)

	got, err := s.Get(ctx, h.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, "prop-1", got.PropertyID)
	assert.Empty(t, got.Messages)

	_, err = s.Create(ctx, "vs_0123456789ab", "prop-1", "")
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Create(ctx, "", "prop-1", "")
	assert.Error(t, err)
}

func TestService_AppendMessages(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h, err := s.Create(ctx, "vs_0123456789ab", "prop-1", "")
	require.NoError(t, err)

	_, err = s.AddUserMessage(ctx, h.HistoryID, "make it cozier")
	require.NoError(t, err)
	msg, err := s.AddAssistantMessage(ctx, h.HistoryID, "Generated refined image", map[string]any{"style": "warm"})
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.True(t, strings.HasPrefix(msg.MessageID, "msg_"))
	_, err = s.AddSystemMessage(ctx, h.HistoryID, "session started")
	require.NoError(t, err)

	got, err := s.Get(ctx, h.HistoryID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, 3, got.TotalMessages)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "warm", got.Messages[1].StagingParametersUsed["style"])
	require.NotNil(t, got.LastMessageAt)
	assert.Equal(t, got.Messages[2].CreatedAt, *got.LastMessageAt)

	_, err = s.AddUserMessage(ctx, h.HistoryID, "  ")
	assert.Error(t, err)

	_, err = s.AddUserMessage(ctx, "chat_missing", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ContextRendering(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h, err := s.Create(ctx, "vs_0123456789ab", "prop-1", "")
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := s.AddUserMessage(ctx, h.HistoryID, text)
		require.NoError(t, err)
	}
	require.NoError(t, s.UpdateContextSummary(ctx, h.HistoryID, "prefers warm tones"))
	require.NoError(t, s.MergeRefinements(ctx, h.HistoryID, map[string]any{"style": "warm", "color_scheme": "#8B4513"}))

	full, err := s.Context(ctx, h.HistoryID, ContextOptions{Full: true})
	require.NoError(t, err)
	want := strings.Join([]string{
		"Session ID: vs_0123456789ab",
		"Property ID: prop-1",
		"",
		"Context Summary:",
		"prefers warm tones",
		"",
		"Accumulated Refinements:",
		"  - color_scheme: #8B4513",
		"  - style: warm",
		"",
		"Conversation History:",
		"[user] one",
		"[user] two",
		"[user] three",
		"[user] four",
	}, "\n")
	assert.Equal(t, want, full)

	recent, err := s.Context(ctx, h.HistoryID, ContextOptions{LastN: 2})
	require.NoError(t, err)
	assert.NotContains(t, recent, "[user] two")
	assert.True(t, strings.HasSuffix(recent, "[user] three\n[user] four"))

	lines, err := s.RecentLines(ctx, h.HistoryID, 1)
	require.NoError(t, err)
	assert.Equal(t, "[user] four", lines[len(lines)-1])
}

func TestService_IterationAndSummary(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h, err := s.Create(ctx, "vs_0123456789ab", "prop-1", "")
	require.NoError(t, err)

	n, err := s.IncrementIteration(ctx, h.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msg, err := s.AddUserMessage(ctx, h.HistoryID, "again")
	require.NoError(t, err)
	assert.Equal(t, 2, msg.RefinementIteration)

	sum, err := s.Summary(ctx, h.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalMessages)
	assert.Equal(t, 2, sum.TotalIterations)
}

func TestService_Delete(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	h, err := s.Create(ctx, "vs_0123456789ab", "prop-1", "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, h.HistoryID))
	require.NoError(t, s.Delete(ctx, h.HistoryID))

	_, err = s.Get(ctx, h.HistoryID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Summary(ctx, h.HistoryID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// racingStore bumps the stored version before every versioned write so the
// first attempts lose.
type racingStore struct {
	store.DocumentStore
	losses int
}

func (r *racingStore) PutVersioned(ctx context.Context, c, id string, doc any, version int64) error {
	if r.losses > 0 {
		r.losses--
		return store.ErrVersionConflict
	}
	return r.DocumentStore.PutVersioned(ctx, c, id, doc, version)
}

func TestRepository_MutateRetries(t *testing.T) {
	ctx := context.Background()
	rs := &racingStore{DocumentStore: store.NewMemoryStore()}
	repo := NewRepository(rs, 3)
	require.NoError(t, repo.Create(ctx, &History{HistoryID: "chat_x", SessionID: "x", PropertyID: "p"}))

	rs.losses = 2
	calls := 0
	h, err := repo.Mutate(ctx, "chat_x", func(h *History) error {
		calls++
		h.ContextSummary = "ok"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), h.Version)

	rs.losses = 5
	_, err = repo.Mutate(ctx, "chat_x", func(h *History) error { return nil })
	assert.ErrorIs(t, err, ErrConflict)

	boom := errors.New("boom")
	_, err = repo.Mutate(ctx, "chat_x", func(h *History) error { return boom })
	assert.ErrorIs(t, err, boom)
}
