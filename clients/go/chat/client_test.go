package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStreamParsesEvents(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			t.Errorf("offset = %q, want 0", r.URL.Query().Get("offset"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: hello\ndata: {\"session\":\"s1\",\"recovered\":false}\n\n")
		fmt.Fprint(w, "event: chat message\ndata: {\"content\":\"hello\",\"id\":1}\n\n")
		fmt.Fprint(w, "event: chat message\ndata: {\"content\":\"hi\",\"id\":2}\n\n")
	}))
	defer ts.Close()

	c := NewClient(ts.URL)

	var got []Event
	err := c.stream(context.Background(), func(ev Event) { got = append(got, ev) })
	if err != io.EOF {
		t.Fatalf("stream error %v, want EOF", err)
	}

	if c.SessionID() != "s1" {
		t.Fatalf("session %q, want s1", c.SessionID())
	}
	if c.Recovered() {
		t.Fatal("recovered should be false")
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("events %+v", got)
	}
	if c.ServerOffset() != 2 {
		t.Fatalf("server offset %d, want 2", c.ServerOffset())
	}
}

func TestStreamReconnectPresentsState(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session") != "s1" {
			t.Errorf("session = %q, want s1", r.URL.Query().Get("session"))
		}
		if r.URL.Query().Get("offset") != "7" {
			t.Errorf("offset = %q, want 7", r.URL.Query().Get("offset"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: hello\ndata: {\"session\":\"s1\",\"recovered\":true}\n\n")
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.sessionID = "s1"
	c.serverOffset = 7

	if err := c.stream(context.Background(), func(Event) {}); err != io.EOF {
		t.Fatalf("stream error %v, want EOF", err)
	}
	if !c.Recovered() {
		t.Fatal("recovered should be true")
	}
}

func TestSendRetriesWithSameOffset(t *testing.T) {
	var calls int32
	var offsets []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		offsets = append(offsets, req.ClientOffset)

		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(submitResponse{ID: 42})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.RetryDelay = time.Millisecond

	id, err := c.Send(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Fatalf("id %d, want 42", id)
	}
	if len(offsets) != 2 || offsets[0] != offsets[1] {
		t.Fatalf("retry must reuse the client offset, got %v", offsets)
	}
	if offsets[0] == "" {
		t.Fatal("client offset must not be empty")
	}
}

func TestSendRejectedNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"content is required"}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.RetryDelay = time.Millisecond

	if _, err := c.Send(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("rejection retried %d times", n)
	}
}
