// Package session holds the per-connection state machines and the
// registry that fans broadcasts out to them. A session's durable position
// in the message stream lives with the client (its server offset); the
// server keeps only live delivery state plus a bounded retention buffer
// for fast reconnection recovery.
package session

import (
	"sync"
	"time"

	"github.com/prgf87/socket-io-chat/internal/metrics"
	"github.com/prgf87/socket-io-chat/internal/models"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateRecovering
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRecovering:
		return "recovering"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one connected client's live state. It is created at connect,
// retained for the recovery window after disconnect, and then destroyed.
type Session struct {
	ID string

	mu           sync.Mutex
	state        State
	serverOffset int64 // highest message id delivered to this client
	recovered    bool
	overflow     bool // pending buffer overflowed; its contents are incomplete
	pending      []models.Message
	out          chan models.Message
	expiresAt    time.Time // retention deadline, valid while disconnected
}

func newSession(id string, serverOffset int64, queueCap int) *Session {
	return &Session{
		ID:           id,
		state:        StateConnecting,
		serverOffset: serverOffset,
		out:          make(chan models.Message, queueCap),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recovered reports whether fast in-memory recovery succeeded for this
// connection attempt.
func (s *Session) Recovered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovered
}

// ServerOffset returns the highest message id delivered so far.
func (s *Session) ServerOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverOffset
}

// Out is the live delivery queue, consumed by the connection's single
// emitter goroutine.
func (s *Session) Out() <-chan models.Message {
	return s.out
}

// MarkDelivered records that the client has received id.
func (s *Session) MarkDelivered(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.serverOffset {
		s.serverOffset = id
	}
}

// open completes the handshake. recovered is true when the registry
// restored a retained buffer for this session.
func (s *Session) open(recovered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateOpen
	s.recovered = recovered
}

// beginRecovery enters the slow-path scan. Broadcasts delivered while
// recovering are buffered and flushed by activate.
func (s *Session) beginRecovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateRecovering
}

// Deliver routes a broadcast message according to the session's state.
// Ids at or below the delivered offset are dropped as duplicates. Called
// from the fanout dispatch goroutine; never blocks.
func (s *Session) Deliver(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID <= s.serverOffset {
		return
	}

	switch s.state {
	case StateActive:
		select {
		case s.out <- msg:
			metrics.BroadcastsDelivered.Inc()
		default:
			metrics.BroadcastsDropped.Inc()
		}
	default:
		// Connecting, Open, Recovering, or retained after disconnect:
		// buffer until the connection is (re-)activated.
		if len(s.pending) >= cap(s.out) {
			s.overflow = true
			return
		}
		s.pending = append(s.pending, msg)
	}
}

// drainPending removes and returns the buffered messages with id above
// the delivered offset. Used for fast-path replay.
func (s *Session) drainPending() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]models.Message, 0, len(s.pending))
	for _, m := range s.pending {
		if m.ID > s.serverOffset {
			msgs = append(msgs, m)
		}
	}
	s.pending = nil
	return msgs
}

// activate flips the session to Active, flushing buffered messages onto
// the live queue. If the buffer overflowed while recovering, its contents
// are incomplete: the buffer is discarded and the caller must run another
// scan pass; activate reports this and the session stays in its current
// state.
func (s *Session) activate() (rescan bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overflow {
		s.overflow = false
		s.pending = nil
		return true
	}

	for _, m := range s.pending {
		if m.ID <= s.serverOffset {
			continue
		}
		select {
		case s.out <- m:
			metrics.BroadcastsDelivered.Inc()
		default:
			metrics.BroadcastsDropped.Inc()
		}
	}
	s.pending = nil
	s.state = StateActive
	return false
}

// disconnect begins the retention window. Messages still queued for the
// wire move back to the pending buffer so a fast-path reconnect replays
// them. Idempotent.
func (s *Session) disconnect(window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return false
	}
	s.state = StateDisconnected
	s.expiresAt = time.Now().Add(window)

	for {
		select {
		case m := <-s.out:
			if len(s.pending) >= cap(s.out) {
				s.overflow = true
				return true
			}
			s.pending = append(s.pending, m)
		default:
			return true
		}
	}
}

// resume attempts fast-path restoration for a reconnect presenting
// clientOffset. It succeeds when the retention window has not expired,
// the buffer never overflowed, and the client is not behind the point the
// buffer starts at; in every other case the buffer cannot vouch for a
// gap-free replay and the caller falls back to a fresh session.
func (s *Session) resume(clientOffset int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected || s.overflow || time.Now().After(s.expiresAt) {
		return false
	}
	if clientOffset < s.serverOffset {
		return false
	}
	s.state = StateOpen
	s.recovered = true
	s.serverOffset = clientOffset
	return true
}

// expired reports whether the retention deadline has passed.
func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDisconnected && now.After(s.expiresAt)
}
