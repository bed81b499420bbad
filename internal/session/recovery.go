package session

import (
	"context"

	"github.com/prgf87/socket-io-chat/internal/metrics"
	"github.com/prgf87/socket-io-chat/internal/models"
)

// maxScanPasses bounds the rescan loop when broadcasts keep overflowing
// the recovery buffer faster than the scan drains the backlog.
const maxScanPasses = 3

// recover replays the messages the client missed. The path is selected
// once per connection attempt: fast when the registry restored a retained
// buffer, slow via a log scan otherwise.
func (h *ConnectionHandler) recover(ctx context.Context, em Emitter) error {
	if h.sess.Recovered() {
		return h.fastRecover(ctx, em)
	}
	return h.slowRecover(ctx, em)
}

// fastRecover replays the retained in-memory buffer without reading the
// log, unless a broadcast burst overflows the buffer mid-replay; the
// delivered offset bounds that loss, so a scan pass closes the gap.
func (h *ConnectionHandler) fastRecover(ctx context.Context, em Emitter) error {
	replayed := 0
	for _, msg := range h.sess.drainPending() {
		if err := h.emit(em, msg); err != nil {
			return err
		}
		replayed++
	}

	if h.sess.activate() {
		return h.slowRecover(ctx, em)
	}

	metrics.Recoveries.WithLabelValues("fast").Inc()
	metrics.RecoveryReplayed.Add(float64(replayed))
	h.logger.Debug().
		Str("session", h.sess.ID).
		Int("replayed", replayed).
		Msg("fast recovery complete")
	return nil
}

// slowRecover scans the log from the client's offset. The session is
// already subscribed to broadcasts and buffers them while the scan runs;
// activate flushes the buffer, dropping every id the scan already
// replayed. A scan failure is logged and recovery stops: the session
// stays connected with the portion of history that made it out.
func (h *ConnectionHandler) slowRecover(ctx context.Context, em Emitter) error {
	h.sess.beginRecovery()

	replayed := 0
	for pass := 0; pass < maxScanPasses; pass++ {
		var emitErr error
		err := h.log.ReadRange(ctx, h.sess.ServerOffset(), func(msg models.Message) error {
			if emitErr = h.emit(em, msg); emitErr != nil {
				return emitErr
			}
			replayed++
			return nil
		})
		if emitErr != nil {
			// The wire failed, not the scan; surface it so Run tears
			// the connection down.
			return emitErr
		}
		if err != nil {
			metrics.RecoveryFailures.Inc()
			h.logger.Error().Err(err).
				Str("session", h.sess.ID).
				Int64("offset", h.sess.ServerOffset()).
				Msg("recovery scan failed, session continues partially recovered")
			break
		}
		if !h.sess.activate() {
			break
		}
		// Buffer overflowed mid-scan; scan again from where delivery
		// stopped.
	}
	// After a failed or exhausted loop the session may still be
	// recovering; flush what the buffer holds and go live. A first call
	// that reports overflow has discarded the stale buffer, so the
	// second always activates.
	if h.sess.State() == StateRecovering {
		if h.sess.activate() {
			h.sess.activate()
		}
	}

	metrics.Recoveries.WithLabelValues("slow").Inc()
	metrics.RecoveryReplayed.Add(float64(replayed))
	h.logger.Debug().
		Str("session", h.sess.ID).
		Int("replayed", replayed).
		Msg("slow recovery complete")
	return nil
}
