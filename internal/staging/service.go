// Package staging runs the virtual staging session lifecycle: sessions are
// created over a property's panoramas, each panorama can be re-rendered by
// the image model into an unsaved draft, drafts are saved or refined, and
// the whole session is deleted together with its chat history and blobs.
package staging

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/vista-staging/internal/blob"
	"github.com/fpang/vista-staging/internal/chathistory"
	"github.com/fpang/vista-staging/internal/events"
	"github.com/fpang/vista-staging/internal/ids"
	"github.com/fpang/vista-staging/internal/imagegen"
	"github.com/fpang/vista-staging/internal/imagesrc"
	"github.com/fpang/vista-staging/internal/lock"
	"github.com/fpang/vista-staging/internal/metrics"
	"github.com/fpang/vista-staging/internal/property"
	"github.com/fpang/vista-staging/internal/store"
)

// cleanupConcurrency bounds parallel blob deletes during Delete.
const cleanupConcurrency = 4

// ImageLoader fetches source and mask images.
type ImageLoader interface {
	Load(ctx context.Context, url string) (*imagesrc.Image, error)
}

// Deps are the collaborators of a Service. Events defaults to a no-op
// publisher and Locker to an in-process lock.
type Deps struct {
	Docs       store.DocumentStore
	Blobs      blob.Store
	Images     ImageLoader
	Generator  imagegen.Generator
	Properties property.Lookup
	Locker     lock.Locker
	Events     events.Publisher
}

// Options tune a Service.
type Options struct {
	// ChatContextMessages is how many recent chat messages refinement reads.
	ChatContextMessages int
	// MutateAttempts bounds compare-and-swap retries per document update.
	MutateAttempts int
	// VersioningEnabled keeps saved versions and allows revert.
	VersioningEnabled bool
	// MaxVersions caps the saved versions kept per session.
	MaxVersions int
}

func (o Options) withDefaults() Options {
	if o.ChatContextMessages <= 0 {
		o.ChatContextMessages = 6
	}
	if o.MutateAttempts <= 0 {
		o.MutateAttempts = 5
	}
	if o.MaxVersions <= 0 {
		o.MaxVersions = 10
	}
	return o
}

// Service is the only writer of sessions and their chat histories.
type Service struct {
	sessions   *Repository
	chat       *chathistory.Service
	blobs      blob.Store
	images     ImageLoader
	generator  imagegen.Generator
	properties property.Lookup
	locker     lock.Locker
	events     events.Publisher
	opts       Options
	now        func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	opts = opts.withDefaults()
	s := &Service{
		sessions:   NewRepository(deps.Docs, opts.MutateAttempts),
		chat:       chathistory.NewService(deps.Docs, opts.MutateAttempts),
		blobs:      deps.Blobs,
		images:     deps.Images,
		generator:  deps.Generator,
		properties: deps.Properties,
		locker:     deps.Locker,
		events:     deps.Events,
		opts:       opts,
		now:        time.Now,
	}
	if s.locker == nil {
		s.locker = lock.NewMemory()
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

// CreateInput describes a new session.
type CreateInput struct {
	PropertyID   string
	UserID       string
	PanoramaURLs []string
	Parameters   Parameters
}

// CreateSession stores a new session and its chat history. If the chat
// history cannot be created the session is not created either.
func (s *Service) CreateSession(ctx context.Context, in CreateInput) (sess *Session, err error) {
	start := time.Now()
	defer func() { recordOp("create", start, err) }()

	propertyID := strings.TrimSpace(in.PropertyID)
	if propertyID == "" {
		return nil, newError(KindValidation, nil, "property_id is required")
	}
	if len(in.PanoramaURLs) == 0 {
		return nil, newError(KindValidation, nil, "at least one panoramic image is required")
	}
	for i, u := range in.PanoramaURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return nil, newError(KindValidation, nil, "panoramic image %d is not an http(s) url", i)
		}
	}
	params, err := prepareParameters(in.Parameters)
	if err != nil {
		return nil, err
	}

	sessionID := ids.Session()
	history, err := s.chat.Create(ctx, sessionID, propertyID, in.UserID)
	if err != nil {
		return nil, newError(KindInternal, err, "create chat history")
	}

	now := s.now().UTC()
	sess = &Session{
		SessionID:         sessionID,
		PropertyID:        propertyID,
		UserID:            in.UserID,
		Status:            StatusActive,
		PanoramicImages:   append([]string(nil), in.PanoramaURLs...),
		CurrentImageIndex: 0,
		WorkingImages:     map[string]string{},
		OriginalImageURL:  in.PanoramaURLs[0],
		CurrentParameters: params,
		GenerationHistory: []GenerationEntry{},
		ChatHistoryID:     history.HistoryID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if key, ok := s.blobs.KeyFromURL(sess.OriginalImageURL); ok {
		sess.OriginalImageKey = key
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		if delErr := s.chat.Delete(ctx, history.HistoryID); delErr != nil {
			log.Warn().Err(delErr).Str("historyId", history.HistoryID).Msg("Failed to remove chat history of uncreated session")
		}
		return nil, newError(KindInternal, err, "create session")
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("propertyId", propertyID).
		Int("panoramas", len(sess.PanoramicImages)).
		Msg("Staging session created")
	s.publish(ctx, events.Event{Type: events.TypeSessionCreated, SessionID: sessionID, PropertyID: propertyID})
	return sess, nil
}

// CreateForProperty looks up the property and seeds a session with its
// panoramic images.
func (s *Service) CreateForProperty(ctx context.Context, propertyID, userID string, params Parameters) (*Session, error) {
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return nil, newError(KindValidation, nil, "property_id is required")
	}
	if s.properties == nil {
		return nil, newError(KindInternal, nil, "property lookup is not configured")
	}
	p, err := s.properties.Get(ctx, propertyID)
	if err != nil {
		return nil, newError(KindInternal, err, "look up property %s", propertyID)
	}
	if p == nil {
		return nil, newError(KindNotFound, nil, "property %s not found", propertyID)
	}
	urls := p.PanoramaURLs()
	if len(urls) == 0 {
		return nil, newError(KindValidation, nil, "property %s has no panoramic images", propertyID)
	}
	return s.CreateSession(ctx, CreateInput{
		PropertyID:   propertyID,
		UserID:       userID,
		PanoramaURLs: urls,
		Parameters:   params,
	})
}

// Get returns the stored session.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, newError(KindInternal, err, "load session")
	}
	if sess == nil {
		return nil, newError(KindNotFound, nil, "session %s not found", sessionID)
	}
	return sess, nil
}

// View returns the session with the property's panorama metadata merged
// over the session's current panorama URLs. Property lookup failures
// degrade to URL-only panoramas.
func (s *Service) View(ctx context.Context, sessionID string) (*View, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var pans []property.Image
	if s.properties != nil {
		p, err := s.properties.Get(ctx, sess.PropertyID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("sessionId", sessionID).Str("propertyId", sess.PropertyID).Msg("Could not load property panoramas")
		case p != nil:
			pans = p.Panoramas()
		}
	}

	views := make([]PanoramaView, len(sess.PanoramicImages))
	for i, u := range sess.PanoramicImages {
		v := PanoramaView{URL: u}
		if i < len(pans) {
			v.ID = pans[i].ID
			v.Filename = pans[i].Filename
			v.ImageType = pans[i].ImageType
		}
		_, v.HasUnsavedChanges = sess.WorkingImage(i)
		views[i] = v
	}

	return &View{
		SessionID:         sess.SessionID,
		PropertyID:        sess.PropertyID,
		Status:            sess.Status,
		ChatHistoryID:     sess.ChatHistoryID,
		OriginalImageURL:  sess.OriginalImageURL,
		CurrentImageURL:   sess.CurrentImageURL,
		CurrentImageIndex: sess.CurrentImageIndex,
		PanoramicImages:   views,
		StagingParameters: sess.CurrentParameters,
		HasUnsavedChanges: sess.HasUnsavedChanges(),
		TotalGenerations:  len(sess.GenerationHistory),
		CreatedAt:         sess.CreatedAt,
		UpdatedAt:         sess.UpdatedAt,
		CompletedAt:       sess.CompletedAt,
		ErrorMessage:      sess.ErrorMessage,
	}, nil
}

// ListByProperty returns a property's sessions, newest first.
func (s *Service) ListByProperty(ctx context.Context, propertyID string) ([]*Session, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, newError(KindValidation, nil, "property_id is required")
	}
	list, err := s.sessions.ByProperty(ctx, propertyID)
	if err != nil {
		return nil, newError(KindInternal, err, "list sessions")
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// ListByUser returns the sessions a user started, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(KindValidation, nil, "user_id is required")
	}
	list, err := s.sessions.ByUser(ctx, userID)
	if err != nil {
		return nil, newError(KindInternal, err, "list sessions")
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// ChatContext renders the session's conversation as it is given to the
// model: the last lastN messages, or every message when full is set.
func (s *Service) ChatContext(ctx context.Context, sessionID string, full bool, lastN int) (string, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	text, err := s.chat.Context(ctx, sess.ChatHistoryID, chathistory.ContextOptions{Full: full, LastN: lastN})
	if err != nil {
		return "", chatError(err)
	}
	return text, nil
}

// ChatHistory returns the session's chat transcript.
func (s *Service) ChatHistory(ctx context.Context, sessionID string) (*chathistory.History, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h, err := s.chat.Get(ctx, sess.ChatHistoryID)
	if err != nil {
		return nil, chatError(err)
	}
	return h, nil
}

// ChatSummary returns the session's chat counters.
func (s *Service) ChatSummary(ctx context.Context, sessionID string) (*chathistory.Summary, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sum, err := s.chat.Summary(ctx, sess.ChatHistoryID)
	if err != nil {
		return nil, chatError(err)
	}
	return sum, nil
}

// Delete removes the chat history, every blob under the session's folder,
// and finally the session document. Chat and blob cleanup failures are
// logged and do not stop the rest.
func (s *Service) Delete(ctx context.Context, sessionID string) (err error) {
	start := time.Now()
	defer func() { recordOp("delete", start, err) }()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if sess.ChatHistoryID != "" {
		if err := s.chat.Delete(ctx, sess.ChatHistoryID); err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Str("historyId", sess.ChatHistoryID).Msg("Failed to delete chat history")
		}
	}

	keys := s.ownedKeys(sess)
	var failed int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupConcurrency)
	results := make([]error, len(keys))
	for i, key := range keys {
		g.Go(func() error {
			if _, err := s.blobs.Delete(gctx, key); err != nil {
				results[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	for i, err := range results {
		if err != nil {
			failed++
			log.Warn().Err(err).Str("sessionId", sessionID).Str("key", keys[i]).Msg("Failed to delete session blob")
		}
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return newError(KindInternal, err, "delete session")
	}

	log.Info().
		Str("sessionId", sessionID).
		Int("blobs", len(keys)).
		Int("blobFailures", failed).
		Msg("Staging session deleted")
	s.publish(ctx, events.Event{Type: events.TypeSessionDeleted, SessionID: sessionID, PropertyID: sess.PropertyID})
	return nil
}

// ownedKeys collects the blob keys this session wrote. Only keys under the
// session's own folder are returned, so property images are never removed.
func (s *Service) ownedKeys(sess *Session) []string {
	prefix := sessionFolder(sess.SessionID) + "/"
	seen := map[string]bool{}
	var keys []string
	add := func(key string) {
		if key != "" && strings.HasPrefix(key, prefix) && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	addURL := func(u string) {
		if key, ok := s.blobs.KeyFromURL(u); ok {
			add(key)
		}
	}

	add(sess.CurrentImageKey)
	add(sess.OriginalImageKey)
	for _, u := range sess.WorkingImages {
		addURL(u)
	}
	for _, u := range sess.PanoramicImages {
		addURL(u)
	}
	for _, e := range sess.GenerationHistory {
		add(e.ImageKey)
		addURL(e.ImageURL)
	}
	for _, v := range sess.SavedVersions {
		add(v.ImageKey)
		addURL(v.ImageURL)
	}
	sort.Strings(keys)
	return keys
}

func sessionFolder(sessionID string) string {
	return "staging/" + sessionID
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("sessionId", e.SessionID).Str("eventType", e.Type).Msg("Failed to publish staging event")
	}
}

func chatError(err error) error {
	switch {
	case errors.Is(err, chathistory.ErrNotFound):
		return newError(KindNotFound, err, "chat history not found")
	case errors.Is(err, chathistory.ErrConflict):
		return newError(KindConflict, err, "chat history was modified concurrently")
	default:
		return newError(KindInternal, err, "chat history")
	}
}

func recordOp(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = KindOf(err).String()
	}
	metrics.Default().
		Dimension("Operation", op).
		Dimension("Result", result).
		Metric("StagingOperationMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Count("StagingOperation").
		Flush()
}
