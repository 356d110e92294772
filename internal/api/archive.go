//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/worldlog/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxListLimit bounds the limit query parameter.
const maxListLimit = 200

// ArchiveHandler serves read-only access to ended sessions.
type ArchiveHandler struct {
	archive store.Archive
}

// NewArchiveHandler creates a handler over archive.
func NewArchiveHandler(archive store.Archive) *ArchiveHandler {
	return &ArchiveHandler{archive: archive}
}

// RegisterRoutes registers archive routes.
func (h *ArchiveHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/archive", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{sessionID}", h.Get)
	})
}

// List handles GET /api/archive.
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	sessions, err := h.archive.ListSessions(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list archived sessions", "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// Get handles GET /api/archive/{sessionID}.
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	session, err := h.archive.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("Failed to load archived session", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, session)
}
