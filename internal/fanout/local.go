package fanout

import (
	"context"
	"errors"
	"sync"

	"github.com/prgf87/socket-io-chat/internal/models"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("fanout is closed")

// LocalFanout dispatches within a single process. Used when Redis is not
// configured (single-worker deployments) and in tests.
type LocalFanout struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewLocalFanout creates an in-process fanout.
func NewLocalFanout() *LocalFanout {
	return &LocalFanout{}
}

// Publish dispatches msg to every registered handler synchronously.
func (f *LocalFanout) Publish(_ context.Context, msg models.Message) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrClosed
	}
	for _, h := range f.handlers {
		h(msg)
	}
	return nil
}

// Subscribe registers a handler for all published messages.
func (f *LocalFanout) Subscribe(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

// Ping reports whether the fanout is usable.
func (f *LocalFanout) Ping(context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	return nil
}

// Close stops dispatch. Idempotent.
func (f *LocalFanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handlers = nil
	return nil
}
