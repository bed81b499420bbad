package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/prgf87/socket-io-chat/internal/session"
)

// SubmitRequest represents a message submission. ClientOffset is the
// client-generated idempotency key; the client must reuse it when
// retrying after a timeout. Session names the submitter's event stream so
// the broadcast skips it.
type SubmitRequest struct {
	Content      string `json:"content"`
	ClientOffset string `json:"client_offset"`
	Session      string `json:"session,omitempty"`
}

// SubmitResponse acknowledges a durably accepted message.
type SubmitResponse struct {
	ID        int64 `json:"id"`
	Duplicate bool  `json:"duplicate,omitempty"`
}

// Submit handles POST /messages. 201 means a fresh row was committed and
// broadcast; 200 means the offset was already committed (acknowledged,
// not re-broadcast); 503 means nothing was committed and the client
// should retry with the identical client_offset.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxContentLength {
		h.Error(w, http.StatusBadRequest, "content too long")
		return
	}
	if req.ClientOffset == "" {
		h.Error(w, http.StatusBadRequest, "client_offset is required")
		return
	}

	sess := h.registry.Get(req.Session)
	conn := session.NewConnectionHandler(sess, h.log, h.fan, h.registry, h.logger)

	res, err := conn.Submit(r.Context(), req.Content, req.ClientOffset)
	if err != nil {
		h.logger.Error().Err(err).Str("client_offset", req.ClientOffset).Msg("append failed")
		h.Error(w, http.StatusServiceUnavailable, "storage unavailable, retry with the same client_offset")
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	h.JSON(w, status, SubmitResponse{ID: res.ID, Duplicate: res.Duplicate})
}
