// Package api provides HTTP handlers for the WorldLog API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/ashureev/worldlog/internal/relay"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize caps the JSON body accepted by POST routes (1MB).
const maxRequestBodySize = 1 << 20

// missingFileFormat is the reply to an end request with nothing to delete.
const missingFileFormat = "%s 파일이 존재하지 않습니다."

// Handler serves the game endpoints.
type Handler struct {
	relay       *relay.Service
	historyName string
}

// NewHandler creates a new Handler. historyPath only names the log file in replies.
func NewHandler(svc *relay.Service, historyPath string) *Handler {
	return &Handler{
		relay:       svc,
		historyName: filepath.Base(historyPath),
	}
}

// JSON writes a JSON response with the given status code.
// Non-ASCII text is written as-is.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers the game routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/gpt", h.HandleCompletion)
	r.Post("/end-trpg", h.HandleEnd)
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Response string `json:"response"`
}

// HandleCompletion handles POST /gpt.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.relay.Complete(r.Context(), req.Prompt)
	if errors.Is(err, relay.ErrMissingPrompt) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("Completion failed", "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Ended {
		slog.Info("Session ended by prompt")
	}
	JSON(w, http.StatusOK, completionResponse{Response: res.Response})
}

// HandleEnd handles POST /end-trpg.
func (h *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	existed, err := h.relay.End(r.Context())
	if err != nil {
		slog.Error("Failed to end session", "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !existed {
		JSON(w, http.StatusOK, completionResponse{Response: fmt.Sprintf(missingFileFormat, h.historyName)})
		return
	}
	slog.Info("Session ended")
	JSON(w, http.StatusOK, completionResponse{Response: relay.FarewellMessage})
}
