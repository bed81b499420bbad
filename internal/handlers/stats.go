package handlers

import (
	"net/http"
)

// StatsResponse represents the stats endpoint response. Session counts
// are per-worker; the message count comes from the shared log.
type StatsResponse struct {
	TotalMessages     int64 `json:"total_messages"`
	ConnectedSessions int   `json:"connected_sessions"`
	RetainedSessions  int   `json:"retained_sessions"`
}

// Stats returns instance statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	total, err := h.log.Count(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	live, retained := h.registry.Counts()

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalMessages:     total,
		ConnectedSessions: live,
		RetainedSessions:  retained,
	})
}
