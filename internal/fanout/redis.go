package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prgf87/socket-io-chat/internal/models"
)

// broadcastChannel is the Pub/Sub channel shared by every worker process.
const broadcastChannel = "chat:messages"

// RedisFanout is the cross-process Fanout, built on Redis Pub/Sub. Every
// worker publishes accepted messages here and runs one subscriber
// goroutine dispatching incoming messages to its local sessions.
type RedisFanout struct {
	client *redis.Client
	sub    *redis.PubSub
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers []Handler

	done chan struct{}
}

// NewRedisFanout connects to Redis and starts the subscriber loop.
func NewRedisFanout(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisFanout, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	f := &RedisFanout{
		client: client,
		sub:    client.Subscribe(context.Background(), broadcastChannel),
		logger: logger,
		done:   make(chan struct{}),
	}

	// Force the subscription onto the wire before any Publish can race it.
	if _, err := f.sub.Receive(ctx); err != nil {
		client.Close()
		return nil, err
	}

	go f.dispatchLoop()

	return f, nil
}

// Client exposes the underlying Redis client for collaborators that share
// the connection, such as the submit rate limiter.
func (f *RedisFanout) Client() *redis.Client {
	return f.client
}

// Publish broadcasts msg to every worker's subscriber.
func (f *RedisFanout) Publish(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, broadcastChannel, data).Err()
}

// Subscribe registers a handler for all published messages.
func (f *RedisFanout) Subscribe(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

// dispatchLoop decodes incoming payloads and invokes the handlers.
// Undecodable payloads are logged and skipped.
func (f *RedisFanout) dispatchLoop() {
	ch := f.sub.Channel()
	for {
		select {
		case <-f.done:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}

			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				f.logger.Error().Err(err).Msg("broadcast payload decode failed")
				continue
			}

			f.mu.RLock()
			handlers := f.handlers
			f.mu.RUnlock()

			for _, h := range handlers {
				h(msg)
			}
		}
	}
}

// Ping checks the Redis connection.
func (f *RedisFanout) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close stops the subscriber loop and closes the connection.
func (f *RedisFanout) Close() error {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	f.sub.Close()
	return f.client.Close()
}
