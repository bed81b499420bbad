// Package chat provides a Go client for the chat delivery protocol:
// idempotent submission with retries, and an event stream listener that
// survives reconnects without losing messages.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one chat message received from the stream.
type Event struct {
	Content string `json:"content"`
	ID      int64  `json:"id"`
}

// Client is a chat API client. It owns the two pieces of state that make
// gap-free reconnection work: the session id (for the server's fast
// recovery path) and the highest received message id (for the log-scan
// fallback).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Submission retry policy.
	MaxAttempts int
	RetryDelay  time.Duration

	mu           sync.Mutex
	sessionID    string
	serverOffset int64
	recovered    bool
}

// NewClient creates a new chat client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:     baseURL,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		MaxAttempts: 5,
		RetryDelay:  500 * time.Millisecond,
	}
}

// SessionID returns the session assigned by the server, empty before the
// first hello event.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ServerOffset returns the highest message id received so far.
func (c *Client) ServerOffset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverOffset
}

// Recovered reports whether the last connect was restored from the
// server's in-memory buffer.
func (c *Client) Recovered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recovered
}

type submitRequest struct {
	Content      string `json:"content"`
	ClientOffset string `json:"client_offset"`
	Session      string `json:"session,omitempty"`
}

type submitResponse struct {
	ID        int64 `json:"id"`
	Duplicate bool  `json:"duplicate,omitempty"`
}

// Send submits content and returns its assigned id. The client offset is
// generated once and reused across retries, so a timed-out attempt that
// actually committed is collapsed by the server instead of duplicated.
func (c *Client) Send(ctx context.Context, content string) (int64, error) {
	clientOffset := uuid.New().String()

	var lastErr error
	delay := c.RetryDelay
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		id, retryable, err := c.post(ctx, content, clientOffset)
		if err == nil {
			return id, nil
		}
		if !retryable {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("send failed after %d attempts: %w", c.MaxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, content, clientOffset string) (id int64, retryable bool, err error) {
	body, err := json.Marshal(submitRequest{
		Content:      content,
		ClientOffset: clientOffset,
		Session:      c.SessionID(),
	})
	if err != nil {
		return 0, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Timeout or connection failure: the append may have landed,
		// retrying with the same offset is safe.
		return 0, true, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var sr submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return 0, false, err
		}
		return sr.ID, false, nil
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return 0, true, fmt.Errorf("server busy: %s", resp.Status)
	default:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, false, fmt.Errorf("submit rejected: %s: %s", resp.Status, data)
	}
}

// Listen connects the event stream and invokes fn for every received
// message, reconnecting with the stored session and offset until ctx is
// cancelled. Messages replayed after a reconnect look no different from
// live ones.
func (c *Client) Listen(ctx context.Context, fn func(Event)) error {
	for {
		err := c.stream(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && err != io.EOF {
			// Keep reconnecting; the offset protects against loss.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

type helloEvent struct {
	Session   string `json:"session"`
	Recovered bool   `json:"recovered"`
}

func (c *Client) stream(ctx context.Context, fn func(Event)) error {
	q := url.Values{}
	if s := c.SessionID(); s != "" {
		q.Set("session", s)
	}
	q.Set("offset", strconv.FormatInt(c.ServerOffset(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/events?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streaming request: no client-side timeout.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream rejected: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			eventName = ""
		case len(line) > 7 && line[:7] == "event: ":
			eventName = line[7:]
		case len(line) > 6 && line[:6] == "data: ":
			c.handleEvent(eventName, []byte(line[6:]), fn)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (c *Client) handleEvent(name string, data []byte, fn func(Event)) {
	switch name {
	case "hello":
		var hello helloEvent
		if json.Unmarshal(data, &hello) == nil {
			c.mu.Lock()
			c.sessionID = hello.Session
			c.recovered = hello.Recovered
			c.mu.Unlock()
		}
	case "chat message":
		var ev Event
		if json.Unmarshal(data, &ev) == nil {
			c.mu.Lock()
			if ev.ID > c.serverOffset {
				c.serverOffset = ev.ID
			}
			c.mu.Unlock()
			fn(ev)
		}
	}
}
