// Package fanout carries accepted messages from the worker that persisted
// them to every worker's live sessions. Delivery is best-effort: a publish
// or dispatch failure is logged by the caller and never propagated to the
// submitting client, whose message is already durable in the log.
package fanout

import (
	"context"

	"github.com/prgf87/socket-io-chat/internal/models"
)

// Handler receives every message published by any worker, this one included.
// Author exclusion happens in the session layer via Message.Origin.
type Handler func(msg models.Message)

// Fanout is the shared broadcast channel between worker processes.
type Fanout interface {
	// Publish sends msg to every subscriber across all workers.
	// Fire-and-forget: an error means the broadcast may be lost, not
	// that the message is.
	Publish(ctx context.Context, msg models.Message) error

	// Subscribe registers a per-process handler invoked for every
	// published message.
	Subscribe(h Handler)

	Ping(ctx context.Context) error
	Close() error
}
