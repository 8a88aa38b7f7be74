package staging

import (
	"fmt"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/vista-staging/internal/events"
	"github.com/fpang/vista-staging/internal/ids"
)

// errUnchanged aborts a mutation that has nothing to write.
var errUnchanged = errors.New("staging: nothing to change")

// SaveResult reports the outcome of Save. Changed is false when the current
// panorama had no pending draft.
type SaveResult struct {
	SessionID  string        `json:"session_id"`
	ImageIndex int           `json:"image_index"`
	ImageURL   string        `json:"saved_image_url"`
	SavedAt    time.Time     `json:"saved_at"`
	Changed    bool          `json:"changed"`
	Version    *ImageVersion `json:"version,omitempty"`
}

// Save commits the draft of the current panorama.
func (s *Service) Save(ctx context.Context, sessionID string) (res *SaveResult, err error) {
	start := time.Now()
	defer func() { recordOp("save", start, err) }()

	if strings.TrimSpace(sessionID) == "" {
		return nil, newError(KindValidation, nil, "session_id is required")
	}

	var snapshot Session
	var saved *ImageVersion
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *Session) error {
		saved = nil
		if cur.CurrentImageURL == "" {
			return newError(KindNoWorkingImage, nil, "session %s has no working image to save", sessionID)
		}
		idx := cur.CurrentImageIndex
		if _, ok := cur.WorkingImage(idx); !ok {
			snapshot = *cur
			return errUnchanged
		}

		now := s.now().UTC()
		if cur.inRange(idx) {
			cur.PanoramicImages[idx] = cur.CurrentImageURL
		}
		cur.clearWorkingImage(idx)
		if n := len(cur.GenerationHistory); n > 0 {
			cur.GenerationHistory[n-1].Saved = true
			cur.GenerationHistory[n-1].SavedAt = &now
		}
		if cur.CompletedAt == nil {
			cur.CompletedAt = &now
		}
		cur.UpdatedAt = now

		if s.opts.VersioningEnabled {
			v := ImageVersion{
				VersionID:     ids.Version(),
				VersionNumber: nextVersionNumber(cur.SavedVersions),
				ImageIndex:    idx,
				ImageURL:      cur.CurrentImageURL,
				ImageKey:      cur.CurrentImageKey,
				Prompt:        cur.CurrentPrompt,
				Parameters:    cur.CurrentParameters,
				SavedAt:       now,
			}
			cur.SavedVersions = append(cur.SavedVersions, v)
			if over := len(cur.SavedVersions) - s.opts.MaxVersions; over > 0 {
				cur.SavedVersions = append([]ImageVersion(nil), cur.SavedVersions[over:]...)
			}
			saved = &v
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		log.Debug().Str("sessionId", sessionID).Int("imageIndex", snapshot.CurrentImageIndex).Msg("Nothing to save")
		return &SaveResult{
			SessionID:  snapshot.SessionID,
			ImageIndex: snapshot.CurrentImageIndex,
			ImageURL:   snapshot.CurrentImageURL,
			SavedAt:    snapshot.UpdatedAt,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	idx := updated.CurrentImageIndex
	log.Info().
		Str("sessionId", updated.SessionID).
		Int("imageIndex", idx).
		Str("imageUrl", updated.CurrentImageURL).
		Bool("versioned", saved != nil).
		Msg("Staged image saved")
	s.publish(ctx, events.Event{
		Type:       events.TypeImageSaved,
		SessionID:  updated.SessionID,
		PropertyID: updated.PropertyID,
		ImageIndex: &idx,
		ImageURL:   updated.CurrentImageURL,
	})

	return &SaveResult{
		SessionID:  updated.SessionID,
		ImageIndex: idx,
		ImageURL:   updated.CurrentImageURL,
		SavedAt:    updated.UpdatedAt,
		Changed:    true,
		Version:    saved,
	}, nil
}

func nextVersionNumber(versions []ImageVersion) int {
	n := 0
	for _, v := range versions {
		n = max(n, v.VersionNumber)
	}
	return n + 1
}

// RevertResult reports which saved version is current again.
type RevertResult struct {
	SessionID     string    `json:"session_id"`
	VersionID     string    `json:"version_id"`
	VersionNumber int       `json:"version_number"`
	ImageIndex    int       `json:"image_index"`
	ImageURL      string    `json:"image_url"`
	RevertedAt    time.Time `json:"reverted_at"`
}

// Revert restores a saved version onto its panorama and drops that
// panorama's pending draft. It requires versioning.
func (s *Service) Revert(ctx context.Context, sessionID, versionID string) (res *RevertResult, err error) {
	start := time.Now()
	defer func() { recordOp("revert", start, err) }()

	if !s.opts.VersioningEnabled {
		return nil, newError(KindUnsupported, nil, "revert not supported - versioning is disabled")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, newError(KindValidation, nil, "session_id is required")
	}
	if strings.TrimSpace(versionID) == "" {
		return nil, newError(KindValidation, nil, "version_id is required")
	}

	var target ImageVersion
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *Session) error {
		found := false
		for _, v := range cur.SavedVersions {
			if v.VersionID == versionID {
				target, found = v, true
				break
			}
		}
		if !found {
			return newError(KindNotFound, nil, "version %s not found in session %s", versionID, sessionID)
		}
		idx := target.ImageIndex
		if !cur.inRange(idx) {
			return newError(KindConflict, nil, "panorama %d no longer exists", idx)
		}

		now := s.now().UTC()
		cur.PanoramicImages[idx] = target.ImageURL
		cur.clearWorkingImage(idx)
		cur.CurrentImageIndex = idx
		cur.CurrentImageURL = target.ImageURL
		cur.CurrentImageKey = target.ImageKey
		cur.CurrentParameters = target.Parameters
		cur.CurrentPrompt = target.Prompt
		cur.GenerationHistory = append(cur.GenerationHistory, GenerationEntry{
			Timestamp:  now,
			ImageIndex: idx,
			ImageKey:   target.ImageKey,
			ImageURL:   target.ImageURL,
			Prompt:     target.Prompt,
			Parameters: target.Parameters,
			Type:       EntryRevert,
			Saved:      true,
			SavedAt:    &now,
		})
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", updated.SessionID).
		Str("versionId", versionID).
		Int("imageIndex", target.ImageIndex).
		Msg("Session reverted to saved version")
	if updated.ChatHistoryID != "" {
		note := fmt.Sprintf("Reverted panorama %d to saved version %d", target.ImageIndex, target.VersionNumber)
		if _, err := s.chat.AddSystemMessage(ctx, updated.ChatHistoryID, note); err != nil {
			log.Warn().Err(err).Str("sessionId", updated.SessionID).Msg("Failed to record revert in chat history")
		}
	}

	return &RevertResult{
		SessionID:     updated.SessionID,
		VersionID:     target.VersionID,
		VersionNumber: target.VersionNumber,
		ImageIndex:    target.ImageIndex,
		ImageURL:      target.ImageURL,
		RevertedAt:    updated.UpdatedAt,
	}, nil
}

// VersionHistory lists the saved versions, oldest first. CurrentVersion is
// the highest version number, or zero when nothing has been saved.
func (s *Service) VersionHistory(ctx context.Context, sessionID string) (*VersionHistory, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	versions := append([]ImageVersion{}, sess.SavedVersions...)
	return &VersionHistory{
		SessionID:         sess.SessionID,
		TotalVersions:     len(versions),
		CurrentVersion:    nextVersionNumber(versions) - 1,
		HasUnsavedChanges: sess.HasUnsavedChanges(),
		Versions:          versions,
	}, nil
}
