// Package api serves the staging service over HTTP.
//
// Endpoints (all under /api/virtual-staging):
//
//	GET    /health                      health check
//	POST   /session                     create a session for a property
//	GET    /session/{id}                session with resolved panoramas
//	DELETE /session/{id}                delete session, chat history and blobs
//	GET    /session/{id}/chat-history   chat transcript (?context=recent|full renders it)
//	GET    /session/{id}/chat-summary   chat counters
//	POST   /generate                    render a draft for one panorama
//	POST   /refine                      refine the latest image
//	POST   /save-change                 commit the current draft
//	POST   /revert-change               restore a saved version
//	GET    /version-history/{id}        saved versions
//	GET    /property/{id}/sessions      sessions of a property
//	GET    /user/{id}/sessions          sessions started by a user
//	GET    /styles                      style catalog
//	GET    /furniture-themes            furniture catalog
//	GET    /color-palettes              colour presets
package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/fpang/vista-staging/internal/staging"
)

// Prefix is the path every route is mounted under.
const Prefix = "/api/virtual-staging"

const serviceName = "vista-staging"

// Options configure the HTTP layer.
type Options struct {
	// AllowedOrigins lists browser origins granted CORS access. "*" allows any.
	AllowedOrigins []string
}

type handler struct {
	svc *staging.Service
}

// New returns the routed, middleware-wrapped HTTP handler.
func New(svc *staging.Service, opts Options) http.Handler {
	h := &handler{svc: svc}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+Prefix+"/health", h.handleHealth)
	mux.HandleFunc("POST "+Prefix+"/session", h.handleCreateSession)
	mux.HandleFunc("GET "+Prefix+"/session/{id}", h.handleGetSession)
	mux.HandleFunc("DELETE "+Prefix+"/session/{id}", h.handleDeleteSession)
	mux.HandleFunc("GET "+Prefix+"/session/{id}/chat-history", h.handleChatHistory)
	mux.HandleFunc("GET "+Prefix+"/session/{id}/chat-summary", h.handleChatSummary)
	mux.HandleFunc("POST "+Prefix+"/generate", h.handleGenerate)
	mux.HandleFunc("POST "+Prefix+"/refine", h.handleRefine)
	mux.HandleFunc("POST "+Prefix+"/save-change", h.handleSaveChange)
	mux.HandleFunc("POST "+Prefix+"/revert-change", h.handleRevertChange)
	mux.HandleFunc("GET "+Prefix+"/version-history/{id}", h.handleVersionHistory)
	mux.HandleFunc("GET "+Prefix+"/property/{id}/sessions", h.handlePropertySessions)
	mux.HandleFunc("GET "+Prefix+"/user/{id}/sessions", h.handleUserSessions)
	mux.HandleFunc("GET "+Prefix+"/styles", h.handleStyles)
	mux.HandleFunc("GET "+Prefix+"/furniture-themes", h.handleFurnitureThemes)
	mux.HandleFunc("GET "+Prefix+"/color-palettes", h.handleColorPalettes)
	mux.HandleFunc(Prefix+"/", func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not found")
	})

	return gzhttp.GzipHandler(withLogging(withCORS(opts.AllowedOrigins, withMetrics(mux))))
}
