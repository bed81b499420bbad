package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prgf87/socket-io-chat/internal/models"
	"github.com/prgf87/socket-io-chat/internal/session"
)

// helloPayload is the handshake event opening every stream. The client
// stores the session id and presents it on reconnect.
type helloPayload struct {
	Session   string `json:"session"`
	Recovered bool   `json:"recovered"`
}

// broadcastPayload is the server→client form of a chat message.
type broadcastPayload struct {
	Content string `json:"content"`
	ID      int64  `json:"id"`
}

// sseEmitter writes wire events as server-sent events. Only the
// connection's Run goroutine touches it.
type sseEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (e *sseEmitter) emitEvent(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// Emit sends one chat message down the stream.
func (e *sseEmitter) Emit(msg models.Message) error {
	return e.emitEvent("chat message", broadcastPayload{Content: msg.Content, ID: msg.ID})
}

// Events handles GET /events: the per-session event stream. The client
// presents its session id (for fast recovery) and its server offset (for
// the log-scan fallback); the server answers with a hello event and then
// the message stream, backfill first, live broadcasts after.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	offset := int64(0)
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			h.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	sess := h.registry.Connect(r.URL.Query().Get("session"), offset)

	h.logger.Info().
		Str("session", sess.ID).
		Bool("recovered", sess.Recovered()).
		Int64("offset", offset).
		Msg("user connected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	em := &sseEmitter{w: w, flusher: flusher}
	if err := em.emitEvent("hello", helloPayload{Session: sess.ID, Recovered: sess.Recovered()}); err != nil {
		h.registry.Disconnect(sess)
		return
	}

	conn := session.NewConnectionHandler(sess, h.log, h.fan, h.registry, h.logger)
	if err := conn.Run(r.Context(), em); err != nil {
		h.logger.Debug().Err(err).Str("session", sess.ID).Msg("stream closed with error")
	}

	h.logger.Info().Str("session", sess.ID).Msg("user disconnected")
}
