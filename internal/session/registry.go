package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/prgf87/socket-io-chat/internal/metrics"
	"github.com/prgf87/socket-io-chat/internal/models"
)

// sweepInterval is how often expired retained sessions are reaped.
const sweepInterval = 30 * time.Second

// Registry owns this worker's sessions: the live ones receiving
// broadcasts and the recently disconnected ones retained for fast
// recovery. Its HandleBroadcast method is the worker's fanout subscriber.
type Registry struct {
	logger   zerolog.Logger
	window   time.Duration
	queueCap int

	mu       sync.Mutex
	live     map[string]*Session
	retained map[string]*Session

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry retaining disconnected sessions for
// window, with per-session delivery queues of queueCap messages.
func NewRegistry(window time.Duration, queueCap int, logger zerolog.Logger) *Registry {
	r := &Registry{
		logger:   logger,
		window:   window,
		queueCap: queueCap,
		live:     make(map[string]*Session),
		retained: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Connect admits a session. When sessionID names a retained session whose
// buffer can still vouch for a gap-free replay, that session is restored
// with recovered=true; otherwise a fresh session is created under a new
// id and the caller recovers via the log scan.
func (r *Registry) Connect(sessionID string, clientOffset int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != "" {
		if s, ok := r.retained[sessionID]; ok {
			delete(r.retained, sessionID)
			metrics.SessionsRetained.Dec()
			if s.resume(clientOffset) {
				r.live[s.ID] = s
				metrics.SessionsConnected.Inc()
				return s
			}
			// Buffer expired or incomplete; fall through to a fresh
			// session and the slow path.
		}
	}

	s := newSession(ulid.Make().String(), clientOffset, r.queueCap)
	s.open(false)
	r.live[s.ID] = s
	metrics.SessionsConnected.Inc()
	return s
}

// Disconnect releases a session's live slot and retains its buffer for
// the recovery window. Idempotent.
func (r *Registry) Disconnect(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.disconnect(r.window) {
		return
	}
	delete(r.live, s.ID)
	metrics.SessionsConnected.Dec()
	r.retained[s.ID] = s
	metrics.SessionsRetained.Inc()
}

// HandleBroadcast delivers a published message to every session on this
// worker except its author. Retained sessions buffer it for fast-path
// replay.
func (r *Registry) HandleBroadcast(msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.live {
		if s.ID == msg.Origin {
			continue
		}
		s.Deliver(msg)
	}
	for _, s := range r.retained {
		if s.ID == msg.Origin {
			continue
		}
		s.Deliver(msg)
	}
}

// Get returns the session with the given id, live or retained, or nil.
// Submissions resolve their author through it, so the author exclusion
// holds while the author's event stream is down and its session sits in
// the retention window.
func (r *Registry) Get(id string) *Session {
	if id == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.live[id]; ok {
		return s
	}
	return r.retained[id]
}

// Counts returns the number of live and retained sessions.
func (r *Registry) Counts() (live, retained int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live), len(r.retained)
}

// Close stops the sweeper. Sessions already connected keep working.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.retained {
		if s.expired(now) {
			delete(r.retained, id)
			metrics.SessionsRetained.Dec()
			r.logger.Debug().Str("session", id).Msg("retention window expired")
		}
	}
}
