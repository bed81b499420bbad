package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prgf87/socket-io-chat/internal/fanout"
	"github.com/prgf87/socket-io-chat/internal/session"
	"github.com/prgf87/socket-io-chat/internal/store"
)

// maxContentLength caps a single chat message's payload.
const maxContentLength = 4096

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	log      store.MessageLog
	fan      fanout.Fanout
	registry *session.Registry
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(log store.MessageLog, fan fanout.Fanout, registry *session.Registry, logger zerolog.Logger) *Handler {
	return &Handler{log: log, fan: fan, registry: registry, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
