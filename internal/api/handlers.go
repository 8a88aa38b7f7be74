package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fpang/vista-staging/internal/staging"
)

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

// --- Sessions ---

type createSessionRequest struct {
	PropertyID string             `json:"property_id"`
	UserID     string             `json:"user_id,omitempty"`
	Parameters staging.Parameters `json:"staging_parameters"`
	// PanoramicImages overrides the property's panoramas when set.
	PanoramicImages []string `json:"panoramic_images,omitempty"`
}

// POST /session
func (h *handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		sess *staging.Session
		err  error
	)
	if len(req.PanoramicImages) > 0 {
		sess, err = h.svc.CreateSession(r.Context(), staging.CreateInput{
			PropertyID:   req.PropertyID,
			UserID:       req.UserID,
			PanoramaURLs: req.PanoramicImages,
			Parameters:   req.Parameters,
		})
	} else {
		sess, err = h.svc.CreateForProperty(r.Context(), req.PropertyID, req.UserID, req.Parameters)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	view, err := h.svc.View(r.Context(), sess.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// GET /session/{id}
func (h *handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.svc.View(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// DELETE /session/{id}
func (h *handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message":    "Session deleted successfully",
		"session_id": id,
	})
}

// GET /session/{id}/chat-history[?context=recent|full&last_n=N]
//
// Without a context parameter the stored transcript is returned. With one,
// the conversation is rendered the way it is quoted to the model.
func (h *handler) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if mode := r.URL.Query().Get("context"); mode != "" {
		h.writeChatContext(w, r, id, mode)
		return
	}
	hist, err := h.svc.ChatHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hist)
}

func (h *handler) writeChatContext(w http.ResponseWriter, r *http.Request, id, mode string) {
	if mode != "recent" && mode != "full" {
		httpError(w, http.StatusBadRequest, "context must be recent or full")
		return
	}
	lastN := 0
	if raw := r.URL.Query().Get("last_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpError(w, http.StatusBadRequest, "last_n must be a positive integer")
			return
		}
		lastN = n
	}
	text, err := h.svc.ChatContext(r.Context(), id, mode == "full", lastN)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"mode":       mode,
		"context":    text,
	})
}

func (h *handler) handleChatSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	sum, err := h.svc.ChatSummary(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// GET /property/{id}/sessions
func (h *handler) handlePropertySessions(w http.ResponseWriter, r *http.Request) {
	propertyID := strings.TrimSpace(r.PathValue("id"))
	list, err := h.svc.ListByProperty(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*staging.Session{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"property_id": propertyID,
		"sessions":    list,
		"count":       len(list),
	})
}

// GET /user/{id}/sessions
func (h *handler) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("id"))
	list, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"sessions": list,
		"count":    len(list),
	})
}

// --- Generation ---

type generateRequest struct {
	SessionID    string             `json:"session_id"`
	ImageIndex   int                `json:"image_index"`
	Parameters   staging.Parameters `json:"staging_parameters"`
	CustomPrompt string             `json:"custom_prompt,omitempty"`
	MaskURL      string             `json:"mask_image_url,omitempty"`
	UserMessage  string             `json:"user_message,omitempty"`
}

type refineRequest struct {
	SessionID   string             `json:"session_id"`
	Parameters  staging.Parameters `json:"staging_parameters"`
	UserMessage string             `json:"user_message,omitempty"`
	MaskURL     string             `json:"mask_image_url,omitempty"`
}

type generateResponse struct {
	*staging.GenerateResult
	HasUnsavedChanges bool `json:"has_unsaved_changes"`
}

// POST /generate
func (h *handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Generate(r.Context(), staging.GenerateInput{
		SessionID:    req.SessionID,
		ImageIndex:   req.ImageIndex,
		Parameters:   req.Parameters,
		CustomPrompt: req.CustomPrompt,
		MaskURL:      req.MaskURL,
		UserMessage:  req.UserMessage,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, generateResponse{GenerateResult: res, HasUnsavedChanges: res.Session.HasUnsavedChanges()})
}

// POST /refine
func (h *handler) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Refine(r.Context(), staging.RefineInput{
		SessionID:   req.SessionID,
		Parameters:  req.Parameters,
		UserMessage: req.UserMessage,
		MaskURL:     req.MaskURL,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, generateResponse{GenerateResult: res, HasUnsavedChanges: res.Session.HasUnsavedChanges()})
}

// --- Versions ---

type saveRequest struct {
	SessionID string `json:"session_id"`
}

type revertRequest struct {
	SessionID string `json:"session_id"`
	VersionID string `json:"version_id"`
}

// POST /save-change
func (h *handler) handleSaveChange(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Save(r.Context(), req.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// POST /revert-change
func (h *handler) handleRevertChange(w http.ResponseWriter, r *http.Request) {
	var req revertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Revert(r.Context(), req.SessionID, req.VersionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /version-history/{id}
func (h *handler) handleVersionHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	hist, err := h.svc.VersionHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hist)
}

// --- Catalogs ---

func (h *handler) handleStyles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"styles": staging.Styles()})
}

func (h *handler) handleFurnitureThemes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"furniture_themes": staging.FurnitureThemes()})
}

func (h *handler) handleColorPalettes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"color_palettes": staging.ColorPalettes()})
}
