package staging

import (
	"strconv"
	"time"
)

// Collection is the document collection holding sessions.
const Collection = "virtual_staging_sessions"

const (
	StatusActive = "active"
)

// Generation entry types.
const (
	EntryGeneration = "generation"
	EntryRefinement = "refinement"
	EntryRevert     = "revert"
)

// GenerationEntry records one produced image. Entries are only appended;
// Save flips Saved on the latest one.
type GenerationEntry struct {
	Timestamp  time.Time  `json:"timestamp" dynamodbav:"timestamp"`
	ImageIndex int        `json:"image_index" dynamodbav:"image_index"`
	ImageKey   string     `json:"image_key,omitempty" dynamodbav:"image_key,omitempty"`
	ImageURL   string     `json:"image_url" dynamodbav:"image_url"`
	Prompt     string     `json:"prompt" dynamodbav:"prompt"`
	Parameters Parameters `json:"parameters" dynamodbav:"parameters"`
	Type       string     `json:"type" dynamodbav:"type"`
	Saved      bool       `json:"saved" dynamodbav:"saved"`
	SavedAt    *time.Time `json:"saved_at,omitempty" dynamodbav:"saved_at,omitempty"`
}

// ImageVersion is a saved image kept for revert when versioning is enabled.
type ImageVersion struct {
	VersionID     string     `json:"version_id" dynamodbav:"version_id"`
	VersionNumber int        `json:"version_number" dynamodbav:"version_number"`
	ImageIndex    int        `json:"image_index" dynamodbav:"image_index"`
	ImageURL      string     `json:"image_url" dynamodbav:"image_url"`
	ImageKey      string     `json:"image_key,omitempty" dynamodbav:"image_key,omitempty"`
	Prompt        string     `json:"prompt,omitempty" dynamodbav:"prompt,omitempty"`
	Parameters    Parameters `json:"parameters" dynamodbav:"parameters"`
	SavedAt       time.Time  `json:"saved_at" dynamodbav:"saved_at"`
}

// Session is a staging workflow over a property's panoramas.
//
// WorkingImages maps a panorama index (decimal string) to its unsaved
// draft URL. There is at most one draft per index. PanoramicImages[i] is
// overwritten as soon as a draft is produced.
type Session struct {
	SessionID         string            `json:"session_id" dynamodbav:"session_id"`
	PropertyID        string            `json:"property_id" dynamodbav:"property_id"`
	UserID            string            `json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`
	Status            string            `json:"status" dynamodbav:"status"`
	PanoramicImages   []string          `json:"panoramic_images" dynamodbav:"panoramic_images"`
	CurrentImageIndex int               `json:"current_image_index" dynamodbav:"current_image_index"`
	WorkingImages     map[string]string `json:"current_image_urls" dynamodbav:"current_image_urls"`
	OriginalImageURL  string            `json:"original_image_url" dynamodbav:"original_image_url"`
	OriginalImageKey  string            `json:"original_image_key,omitempty" dynamodbav:"original_image_key,omitempty"`
	CurrentImageURL   string            `json:"current_image_url,omitempty" dynamodbav:"current_image_url,omitempty"`
	CurrentImageKey   string            `json:"current_image_key,omitempty" dynamodbav:"current_image_key,omitempty"`
	CurrentParameters Parameters        `json:"current_parameters" dynamodbav:"current_parameters"`
	CurrentPrompt     string            `json:"current_prompt,omitempty" dynamodbav:"current_prompt,omitempty"`
	GenerationHistory []GenerationEntry `json:"generation_history" dynamodbav:"generation_history"`
	SavedVersions     []ImageVersion    `json:"saved_versions,omitempty" dynamodbav:"saved_versions,omitempty"`
	ChatHistoryID     string            `json:"chat_history_id" dynamodbav:"chat_history_id"`
	CreatedAt         time.Time         `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" dynamodbav:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty" dynamodbav:"completed_at,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty" dynamodbav:"error_message,omitempty"`
	Version           int64             `json:"version" dynamodbav:"version"`
}

func indexKey(i int) string { return strconv.Itoa(i) }

// WorkingImage returns the unsaved draft URL for panorama i.
func (s *Session) WorkingImage(i int) (string, bool) {
	u, ok := s.WorkingImages[indexKey(i)]
	return u, ok
}

func (s *Session) setWorkingImage(i int, url string) {
	if s.WorkingImages == nil {
		s.WorkingImages = map[string]string{}
	}
	s.WorkingImages[indexKey(i)] = url
}

func (s *Session) clearWorkingImage(i int) bool {
	if _, ok := s.WorkingImages[indexKey(i)]; !ok {
		return false
	}
	delete(s.WorkingImages, indexKey(i))
	return true
}

// HasUnsavedChanges reports whether any panorama has a pending draft.
func (s *Session) HasUnsavedChanges() bool {
	return len(s.WorkingImages) > 0
}

func (s *Session) inRange(i int) bool {
	return i >= 0 && i < len(s.PanoramicImages)
}

// SourceImage is the image a generation on panorama i starts from: its
// draft if one exists, else the panorama itself.
func (s *Session) SourceImage(i int) string {
	if u, ok := s.WorkingImage(i); ok && u != "" {
		return u
	}
	return s.PanoramicImages[i]
}

// LatestImage is the image refinement starts from.
func (s *Session) LatestImage() string {
	if s.CurrentImageURL != "" {
		return s.CurrentImageURL
	}
	return s.OriginalImageURL
}

// PanoramaView is one panorama as shown to clients.
type PanoramaView struct {
	ID                string `json:"id,omitempty"`
	URL               string `json:"url"`
	Filename          string `json:"filename,omitempty"`
	ImageType         string `json:"image_type,omitempty"`
	HasUnsavedChanges bool   `json:"has_unsaved_changes"`
}

// View is the client-facing session, with property panoramas resolved.
type View struct {
	SessionID         string         `json:"session_id"`
	PropertyID        string         `json:"property_id"`
	Status            string         `json:"status"`
	ChatHistoryID     string         `json:"chat_history_id"`
	OriginalImageURL  string         `json:"original_image_url"`
	CurrentImageURL   string         `json:"current_image_url,omitempty"`
	CurrentImageIndex int            `json:"current_image_index"`
	PanoramicImages   []PanoramaView `json:"panoramic_images"`
	StagingParameters Parameters     `json:"staging_parameters"`
	HasUnsavedChanges bool           `json:"has_unsaved_changes"`
	TotalGenerations  int            `json:"total_generations"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
}

// VersionHistory lists saved versions of a session.
type VersionHistory struct {
	SessionID         string         `json:"session_id"`
	TotalVersions     int            `json:"total_versions"`
	CurrentVersion    int            `json:"current_version"`
	HasUnsavedChanges bool           `json:"has_unsaved_changes"`
	Versions          []ImageVersion `json:"versions"`
}
