package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/prgf87/socket-io-chat/internal/fanout"
	"github.com/prgf87/socket-io-chat/internal/metrics"
	"github.com/prgf87/socket-io-chat/internal/models"
	"github.com/prgf87/socket-io-chat/internal/store"
)

// Emitter sends wire events to the connected client. The transport layer
// supplies the implementation; the core never sees framing.
type Emitter interface {
	Emit(msg models.Message) error
}

// SubmitResult is the acknowledgment for a durably accepted submission.
// Duplicate is set when the client offset had already been committed; the
// id is the one assigned at the original accept.
type SubmitResult struct {
	ID        int64
	Duplicate bool
}

// ConnectionHandler orchestrates one session's submit, recovery, and
// broadcast delivery against the shared log and fanout channel. sess may
// be nil for detached submissions (a client posting without an open event
// stream), in which case no author exclusion applies.
type ConnectionHandler struct {
	sess   *Session
	log    store.MessageLog
	fan    fanout.Fanout
	reg    *Registry
	logger zerolog.Logger
}

// NewConnectionHandler wires a session to the shared services.
func NewConnectionHandler(sess *Session, log store.MessageLog, fan fanout.Fanout, reg *Registry, logger zerolog.Logger) *ConnectionHandler {
	return &ConnectionHandler{sess: sess, log: log, fan: fan, reg: reg, logger: logger}
}

// Session returns the handler's session, nil for detached handlers.
func (h *ConnectionHandler) Session() *Session {
	return h.sess
}

// Submit appends a message to the log and, when the append committed a
// fresh row, publishes it to the fanout channel. A duplicate offset is
// acknowledged without publishing so each logical message broadcasts at
// most once. A returned error means nothing was committed; the client
// retries with the identical offset.
func (h *ConnectionHandler) Submit(ctx context.Context, content, clientOffset string) (SubmitResult, error) {
	// Persistence, once started, runs to completion even if the
	// submitting request goes away mid-append.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	id, outcome, err := h.log.Append(ctx, content, clientOffset)
	metrics.AppendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AppendFailures.Inc()
		return SubmitResult{}, err
	}

	if outcome == store.AlreadyExists {
		metrics.DuplicateSubmissions.Inc()
		h.logger.Debug().
			Int64("id", id).
			Str("client_offset", clientOffset).
			Msg("duplicate submission collapsed")
		return SubmitResult{ID: id, Duplicate: true}, nil
	}

	metrics.MessagesAccepted.Inc()

	msg := models.Message{ID: id, Content: content, Origin: h.origin()}
	if err := h.fan.Publish(ctx, msg); err != nil {
		// The message is durable; a lost broadcast is recoverable by
		// every client via the log scan.
		metrics.BroadcastFailures.Inc()
		h.logger.Error().Err(err).Int64("id", id).Msg("broadcast publish failed")
	} else {
		metrics.BroadcastsPublished.Inc()
	}

	return SubmitResult{ID: id}, nil
}

func (h *ConnectionHandler) origin() string {
	if h.sess == nil {
		return ""
	}
	return h.sess.ID
}

// Run drives the session from handshake completion to disconnect:
// recovery replay first, then the live delivery loop. It returns when ctx
// is cancelled (client went away) or the emitter fails, and always leaves
// the session disconnected.
func (h *ConnectionHandler) Run(ctx context.Context, em Emitter) error {
	defer h.Disconnect()

	if err := h.recover(ctx, em); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-h.sess.Out():
			if err := h.emit(em, msg); err != nil {
				return err
			}
		}
	}
}

// emit writes one message to the wire and advances the delivered offset.
func (h *ConnectionHandler) emit(em Emitter, msg models.Message) error {
	if err := em.Emit(msg); err != nil {
		return err
	}
	h.sess.MarkDelivered(msg.ID)
	h.logger.Debug().
		Str("session", h.sess.ID).
		Int64("id", msg.ID).
		Msg("message emitted")
	return nil
}

// Disconnect releases the session's resources. Idempotent.
func (h *ConnectionHandler) Disconnect() {
	if h.sess == nil {
		return
	}
	h.reg.Disconnect(h.sess)
}
