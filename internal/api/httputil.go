package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/vista-staging/internal/ids"
	"github.com/fpang/vista-staging/internal/staging"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// httpError sends {"error": clientMsg}. internalDetails are logged, never
// sent.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// statusFor maps a staging error kind to an HTTP status.
func statusFor(kind staging.Kind) int {
	switch kind {
	case staging.KindNotFound:
		return http.StatusNotFound
	case staging.KindValidation, staging.KindNoWorkingImage, staging.KindUnsupported:
		return http.StatusBadRequest
	case staging.KindBusy, staging.KindConflict:
		return http.StatusConflict
	case staging.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError responds with the status for err. Internal errors get a
// generic message; the cause is only logged.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := staging.KindOf(err)
	status := statusFor(kind)

	var se *staging.Error
	if kind == staging.KindInternal || !errors.As(err, &se) {
		httpError(w, status, "internal server error", err.Error())
		return
	}
	if kind == staging.KindUpstream {
		log.Warn().Err(err).Msg("Upstream failure")
	}
	respondJSON(w, status, map[string]string{
		"error": se.Message,
		"code":  kind.String(),
	})
}

// decodeJSON reads a single JSON object of at most maxBodyBytes into dst,
// rejecting unknown fields. It writes the error response itself and
// reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httpError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			httpError(w, http.StatusBadRequest, "request body is required")
		default:
			httpError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return false
	}
	if dec.More() {
		httpError(w, http.StatusBadRequest, "invalid request body: unexpected data after JSON object")
		return false
	}
	return true
}

// sessionIDParam returns the {id} path value if it is a well-formed
// session id, writing a 400 otherwise.
func sessionIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !ids.ValidSession(id) {
		httpError(w, http.StatusBadRequest, "invalid session_id")
		return "", false
	}
	return id, true
}
