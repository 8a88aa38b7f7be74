package staging

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/vista-staging/internal/blob"
	"github.com/fpang/vista-staging/internal/events"
	"github.com/fpang/vista-staging/internal/imagegen"
	"github.com/fpang/vista-staging/internal/imagesrc"
)

const (
	maxCustomPromptLen = 4000
	maxUserMessageLen  = 2000

	generatedMessage = "Generated initial virtual staging with the specified parameters"
	refinedMessage   = "Generated refined image with the following adjustments"
)

// GenerateInput asks for a new draft of one panorama.
type GenerateInput struct {
	SessionID    string
	ImageIndex   int
	Parameters   Parameters
	CustomPrompt string
	MaskURL      string
	UserMessage  string
}

// RefineInput asks for an incremental edit of the latest image.
type RefineInput struct {
	SessionID   string
	Parameters  Parameters
	UserMessage string
	MaskURL     string
}

// GenerateResult is returned by Generate and Refine.
type GenerateResult struct {
	SessionID  string    `json:"session_id"`
	ImageIndex int       `json:"image_index"`
	ImageURL   string    `json:"image_url"`
	ImageKey   string    `json:"image_key"`
	PromptUsed string    `json:"prompt_used"`
	UpdatedAt  time.Time `json:"updated_at"`
	Session    *Session  `json:"-"`
}

func validateCommon(sessionID, maskURL, userMessage string) error {
	if strings.TrimSpace(sessionID) == "" {
		return newError(KindValidation, nil, "session_id is required")
	}
	if maskURL != "" && !strings.HasPrefix(maskURL, "http://") && !strings.HasPrefix(maskURL, "https://") {
		return newError(KindValidation, nil, "mask_image_url must be an http(s) url")
	}
	if len(userMessage) > maxUserMessageLen {
		return newError(KindValidation, nil, "user_message must be at most %d characters", maxUserMessageLen)
	}
	return nil
}

// Generate renders a new draft for one panorama. The draft starts from the
// panorama's existing draft when there is one, so repeated calls iterate on
// the same unsaved image. Nothing is written unless both generation and
// upload succeed.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (res *GenerateResult, err error) {
	start := time.Now()
	defer func() { recordOp("generate", start, err) }()

	if err := validateCommon(in.SessionID, in.MaskURL, in.UserMessage); err != nil {
		return nil, err
	}
	if len(in.CustomPrompt) > maxCustomPromptLen {
		return nil, newError(KindValidation, nil, "custom_prompt must be at most %d characters", maxCustomPromptLen)
	}
	if _, err := prepareParameters(in.Parameters); err != nil {
		return nil, err
	}

	idx := in.ImageIndex
	sess, release, err := s.lockSession(ctx, in.SessionID, func(sess *Session) error {
		if !sess.inRange(idx) {
			return newError(KindValidation, nil, "image_index %d out of range [0, %d)", idx, len(sess.PanoramicImages))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer release()
	params := effectiveParameters(in.Parameters, sess)

	sourceURL := sess.SourceImage(idx)
	prompt := ComposeGeneratePrompt(in.CustomPrompt, params, in.MaskURL != "")
	log.Debug().
		Str("sessionId", sess.SessionID).
		Int("imageIndex", idx).
		Str("source", sourceURL).
		Str("prompt", prompt).
		Msg("Generating staged image")

	obj, err := s.render(ctx, sess.SessionID, sourceURL, in.MaskURL, prompt)
	if err != nil {
		return nil, err
	}

	updated, err := s.sessions.Mutate(ctx, sess.SessionID, func(cur *Session) error {
		if !cur.inRange(idx) {
			return newError(KindConflict, nil, "panorama %d no longer exists", idx)
		}
		now := s.now().UTC()
		cur.setWorkingImage(idx, obj.URL)
		cur.PanoramicImages[idx] = obj.URL
		cur.CurrentImageIndex = idx
		cur.CurrentImageURL = obj.URL
		cur.CurrentImageKey = obj.Key
		cur.CurrentParameters = params
		cur.CurrentPrompt = prompt
		cur.GenerationHistory = append(cur.GenerationHistory, GenerationEntry{
			Timestamp:  now,
			ImageIndex: idx,
			ImageKey:   obj.Key,
			ImageURL:   obj.URL,
			Prompt:     prompt,
			Parameters: params,
			Type:       EntryGeneration,
		})
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.discardBlob(obj.Key)
		return nil, err
	}

	s.recordChat(ctx, updated.ChatHistoryID, in.UserMessage, generatedMessage, params)

	log.Info().
		Str("sessionId", updated.SessionID).
		Int("imageIndex", idx).
		Str("imageUrl", obj.URL).
		Dur("duration", time.Since(start)).
		Msg("Staged image generated")
	s.publish(ctx, events.Event{
		Type:       events.TypeImageGenerated,
		SessionID:  updated.SessionID,
		PropertyID: updated.PropertyID,
		ImageIndex: &idx,
		ImageURL:   obj.URL,
		Kind:       EntryGeneration,
	})

	return &GenerateResult{
		SessionID:  updated.SessionID,
		ImageIndex: idx,
		ImageURL:   obj.URL,
		ImageKey:   obj.Key,
		PromptUsed: prompt,
		UpdatedAt:  updated.UpdatedAt,
		Session:    updated,
	}, nil
}

// Refine edits the latest image of the session (its current draft, else
// the original) using the recent conversation and the parameter changes
// since the last generation as extra context.
func (s *Service) Refine(ctx context.Context, in RefineInput) (res *GenerateResult, err error) {
	start := time.Now()
	defer func() { recordOp("refine", start, err) }()

	if err := validateCommon(in.SessionID, in.MaskURL, in.UserMessage); err != nil {
		return nil, err
	}
	if _, err := prepareParameters(in.Parameters); err != nil {
		return nil, err
	}

	sess, release, err := s.lockSession(ctx, in.SessionID, func(sess *Session) error {
		if sess.LatestImage() == "" {
			return newError(KindValidation, nil, "session %s has no image to refine", sess.SessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer release()
	params := effectiveParameters(in.Parameters, sess)
	sourceURL := sess.LatestImage()
	idx := sess.CurrentImageIndex

	lines, err := s.chat.RecentLines(ctx, sess.ChatHistoryID, s.opts.ChatContextMessages)
	if err != nil {
		return nil, chatError(err)
	}
	refineContext := BuildRefinementContext(sess.CurrentParameters, params, lines)
	prompt := ComposeRefinePrompt(refineContext, params, in.MaskURL != "")
	log.Debug().
		Str("sessionId", sess.SessionID).
		Int("imageIndex", idx).
		Str("source", sourceURL).
		Str("prompt", prompt).
		Msg("Refining staged image")

	obj, err := s.render(ctx, sess.SessionID, sourceURL, in.MaskURL, prompt)
	if err != nil {
		return nil, err
	}

	var previous Parameters
	updated, err := s.sessions.Mutate(ctx, sess.SessionID, func(cur *Session) error {
		now := s.now().UTC()
		previous = cur.CurrentParameters
		if cur.inRange(idx) {
			cur.setWorkingImage(idx, obj.URL)
			cur.PanoramicImages[idx] = obj.URL
		}
		cur.CurrentImageIndex = idx
		cur.CurrentImageURL = obj.URL
		cur.CurrentImageKey = obj.Key
		cur.CurrentParameters = params
		cur.CurrentPrompt = prompt
		cur.GenerationHistory = append(cur.GenerationHistory, GenerationEntry{
			Timestamp:  now,
			ImageIndex: idx,
			ImageKey:   obj.Key,
			ImageURL:   obj.URL,
			Prompt:     prompt,
			Parameters: params,
			Type:       EntryRefinement,
		})
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.discardBlob(obj.Key)
		return nil, err
	}

	if updated.ChatHistoryID != "" {
		s.recordChat(ctx, updated.ChatHistoryID, in.UserMessage, refinedMessage, params)
		if err := s.chat.MergeRefinements(ctx, updated.ChatHistoryID, refinements(previous, params, in.UserMessage)); err != nil {
			log.Warn().Err(err).Str("sessionId", updated.SessionID).Msg("Failed to record refinements")
		}
		summary := contextSummary(params, ParameterChanges(previous, params), in.UserMessage)
		if err := s.chat.UpdateContextSummary(ctx, updated.ChatHistoryID, summary); err != nil {
			log.Warn().Err(err).Str("sessionId", updated.SessionID).Msg("Failed to update chat context summary")
		}
		if _, err := s.chat.IncrementIteration(ctx, updated.ChatHistoryID); err != nil {
			log.Warn().Err(err).Str("sessionId", updated.SessionID).Msg("Failed to increment chat iteration")
		}
	}

	log.Info().
		Str("sessionId", updated.SessionID).
		Int("imageIndex", idx).
		Str("imageUrl", obj.URL).
		Dur("duration", time.Since(start)).
		Msg("Staged image refined")
	s.publish(ctx, events.Event{
		Type:       events.TypeImageGenerated,
		SessionID:  updated.SessionID,
		PropertyID: updated.PropertyID,
		ImageIndex: &idx,
		ImageURL:   obj.URL,
		Kind:       EntryRefinement,
	})

	return &GenerateResult{
		SessionID:  updated.SessionID,
		ImageIndex: idx,
		ImageURL:   obj.URL,
		ImageKey:   obj.Key,
		PromptUsed: prompt,
		UpdatedAt:  updated.UpdatedAt,
		Session:    updated,
	}, nil
}

// lockSession runs check against the stored session before taking the
// session lock, so bad requests never reach the locker. The session is then
// reloaded and checked again under the lock.
func (s *Service) lockSession(ctx context.Context, sessionID string, check func(*Session) error) (*Session, func(), error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := check(sess); err != nil {
		return nil, nil, err
	}

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	sess, err = s.Get(ctx, sessionID)
	if err == nil {
		err = check(sess)
	}
	if err != nil {
		release()
		return nil, nil, err
	}
	return sess, release, nil
}

func (s *Service) acquire(ctx context.Context, sessionID string) (func(), error) {
	release, ok, err := s.locker.TryAcquire(ctx, sessionID)
	if err != nil {
		return nil, newError(KindInternal, err, "acquire session lock")
	}
	if !ok {
		return nil, newError(KindBusy, nil, "session %s is busy with another generation, try again", sessionID)
	}
	return release, nil
}

// render loads the inputs, calls the generator and stores the result under
// the session folder.
func (s *Service) render(ctx context.Context, sessionID, sourceURL, maskURL, prompt string) (blob.Object, error) {
	src, err := s.images.Load(ctx, sourceURL)
	if err != nil {
		return blob.Object{}, newError(KindUpstream, err, "load source image")
	}
	var mask *imagesrc.Image
	if maskURL != "" {
		mask, err = s.images.Load(ctx, maskURL)
		if err != nil {
			return blob.Object{}, newError(KindValidation, err, "load mask image")
		}
	}

	out, err := s.generator.Edit(ctx, imagegen.Request{Prompt: prompt, Image: src, Mask: mask})
	if err != nil {
		return blob.Object{}, newError(KindUpstream, err, "image generation failed")
	}
	if out == nil || len(out.Data) == 0 {
		return blob.Object{}, newError(KindUpstream, nil, "image generation returned no image")
	}
	contentType := out.MIMEType
	if contentType == "" {
		contentType = imagesrc.DetectMIME(out.Data)
	}

	obj, err := s.blobs.Put(ctx, out.Data, sessionFolder(sessionID), contentType)
	if err != nil {
		return blob.Object{}, newError(KindUpstream, err, "store generated image")
	}
	return obj, nil
}

// discardBlob removes an upload whose session update did not land.
func (s *Service) discardBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to delete orphaned generated image")
	}
}

// recordChat appends the optional user message and the assistant reply.
// Failures are logged; the generation has already been committed.
func (s *Service) recordChat(ctx context.Context, historyID, userMessage, reply string, params Parameters) {
	if historyID == "" {
		return
	}
	if strings.TrimSpace(userMessage) != "" {
		if _, err := s.chat.AddUserMessage(ctx, historyID, userMessage); err != nil {
			log.Warn().Err(err).Str("historyId", historyID).Msg("Failed to append user message")
		}
	}
	if _, err := s.chat.AddAssistantMessage(ctx, historyID, reply, params.ToMap()); err != nil {
		log.Warn().Err(err).Str("historyId", historyID).Msg("Failed to append assistant message")
	}
}

// refinements summarizes a refinement for the chat history's accumulated map.
func refinements(prev, next Parameters, userMessage string) map[string]any {
	m := next.ToMap()
	delete(m, "role")
	if changes := ParameterChanges(prev, next); len(changes) > 0 {
		m["last_changes"] = strings.Join(changes, "; ")
	}
	if msg := strings.TrimSpace(userMessage); msg != "" {
		m["last_request"] = msg
	}
	return m
}
