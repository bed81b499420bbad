package store

import (
	"context"
	"errors"

	"github.com/prgf87/socket-io-chat/internal/models"
)

// AppendOutcome classifies the result of a successful Append call.
type AppendOutcome int

const (
	// Inserted means a new row was committed and a fresh id assigned.
	Inserted AppendOutcome = iota
	// AlreadyExists means a row with this client offset was committed
	// earlier; the existing id is returned and no new row was created.
	AlreadyExists
)

// ErrEmptyClientOffset is returned when Append is called without an
// idempotency key. Accepting such a row would make retries unsafe.
var ErrEmptyClientOffset = errors.New("client offset is required")

// ErrStopRange stops a ReadRange iteration early without error, in the
// manner of fs.SkipAll.
var ErrStopRange = errors.New("stop range iteration")

// MessageLog defines the durable, uniquely-keyed, ordered message store.
// Both SQLiteLog and PostgresLog implement this interface. The log's
// uniqueness constraint on client_offset is the only cross-process
// coordination primitive in the system.
type MessageLog interface {
	// Append commits a message. Insertion and uniqueness enforcement are
	// a single atomic storage operation: a constraint hit on the client
	// offset resolves to (existing id, AlreadyExists, nil). Any returned
	// error means no row was committed and the caller may retry with the
	// identical offset.
	Append(ctx context.Context, content, clientOffset string) (int64, AppendOutcome, error)

	// ReadRange streams every message with id > afterID to fn in
	// ascending id order. fn returning ErrStopRange ends the iteration
	// cleanly; any other error aborts it and is returned.
	ReadRange(ctx context.Context, afterID int64, fn func(models.Message) error) error

	// Count returns the number of stored messages.
	Count(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close()
}
