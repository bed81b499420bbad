package handlers

import (
	"net/http"
	"strconv"

	"github.com/prgf87/socket-io-chat/internal/models"
	"github.com/prgf87/socket-io-chat/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryResponse represents a page of the message log.
type HistoryResponse struct {
	Messages []broadcastPayload `json:"messages"`
	HasMore  bool               `json:"has_more"`
}

// History handles GET /messages: a paged read of the log for catch-up
// polling clients, ascending from the given id.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	after := int64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			h.Error(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	// Read one past the page to learn whether more rows follow.
	page := make([]broadcastPayload, 0, limit)
	hasMore := false
	err := h.log.ReadRange(r.Context(), after, func(msg models.Message) error {
		if len(page) == limit {
			hasMore = true
			return store.ErrStopRange
		}
		page = append(page, broadcastPayload{Content: msg.Content, ID: msg.ID})
		return nil
	})
	if err != nil {
		h.logger.Error().Err(err).Int64("after", after).Msg("history read failed")
		h.Error(w, http.StatusInternalServerError, "failed to read messages")
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{Messages: page, HasMore: hasMore})
}
