// Package session implements the MCP session manager from spec.md §4.4:
// allocation and tracking of sessions, routing of per-session events, and
// support for both stateful and stateless modes. Grounded on
// pkg/session.MemoryStore's sort/limit pattern and pkg/mcp/client/client.go's
// correlator/queue conventions, adapted to the MCP session shape in
// spec.md §3.
package session

import (
	"context"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	mcp "github.com/mutablelogic/go-mcp"
	peer "github.com/mutablelogic/go-mcp/pkg/mcp/peer"
	otelspan "github.com/mutablelogic/go-mcp/pkg/otelspan"
	attribute "go.opentelemetry.io/otel/attribute"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// Event is a buffered server-to-client notification, tagged with a
// monotonically increasing id for SSE replay (spec.md §3 invariants).
type Event struct {
	ID      uint64
	Payload []byte // encoded JSON-RPC notification frame
}

// Session holds everything spec.md §3 requires: a write-side (via Peer),
// pending outbound correlators (owned by Peer itself), a bounded replay
// buffer of undelivered events, and a termination flag.
type Session struct {
	ID   string
	Peer *peer.Peer

	mu         sync.Mutex
	buf        []Event
	nextEvent  uint64
	bufCap     int
	terminated bool
	lastActive time.Time

	// streamSignal is closed when the active GET SSE stream is superseded
	// by a later GET (spec.md §4.5: "a second GET replaces the first").
	streamSignal chan struct{}

	// wake is closed (and immediately replaced) whenever the event buffer
	// changes state: a new event is pushed, or capacity frees up via Ack.
	// A live GET stream selects on the channel returned by Wake to notice
	// events pushed after it started replaying (spec.md §4.5
	// "STREAMING --event produced--> STREAMING"); a blocked PushEvent
	// selects on it to notice freed capacity (spec.md §4.4 backpressure).
	wake chan struct{}
}

////////////////////////////////////////////////////////////////////////////
// MANAGER

// Manager allocates and tracks sessions for a stateful streamable-HTTP
// server. The stateless code path allocates no session and does not use it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	bufCap   int
	idleTTL  time.Duration
}

type Opt func(*Manager)

// WithEventBufferCapacity bounds the undelivered-event ring buffer per
// session (spec.md §9 "Session event buffer... Buffer size is a trade-off
// ... expose as config"). 0 means unbounded (default), matching spec.md
// §4.4's "bounded by a configurable capacity (default unbounded but with
// backpressure on slow consumers: blocks the producer)".
func WithEventBufferCapacity(n int) Opt { return func(m *Manager) { m.bufCap = n } }

// WithIdleTTL sets the duration of inactivity after which a session is
// eligible for Sweep to expire it (spec.md §4.4 "Idle sessions expire
// after a configurable TTL").
func WithIdleTTL(d time.Duration) Opt { return func(m *Manager) { m.idleTTL = d } }

func NewManager(opts ...Opt) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		idleTTL:  30 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create allocates a new stateful session with a cryptographically random
// opaque id (spec.md §4.4: "the first initialize response includes an
// Mcp-Session-Id header (opaque, cryptographically random)").
func (m *Manager) Create(ctx context.Context, sink peer.Sink) *Session {
	_, endSpan := otelspan.Start(ctx, "session.Manager.Create")
	defer endSpan(nil)

	id := uuid.New().String()
	s := &Session{
		ID:         id,
		bufCap:     m.bufCap,
		lastActive: time.Now(),
	}
	s.Peer = peer.New(peer.RoleServer, sink, peer.WithSessionID(id))

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get looks up a session by id. The bool is false for an unknown or
// terminated session — the caller should respond 404 (spec.md §4.4,
// §4.5 "Invalid/missing session id in stateful mode → 404").
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.isTerminated() {
		return nil, false
	}
	return s, true
}

// Delete explicitly terminates and removes a session (DELETE, spec.md §4.5).
func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	_, endSpan := otelspan.Start(ctx, "session.Manager.Delete", attribute.String("session.id", id))
	defer func() { endSpan(err) }()

	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return mcp.ErrNotFound.Withf("session %q", id)
	}
	return s.terminate(ctx)
}

// Sweep removes sessions idle longer than the configured TTL. Callers
// (typically a background ticker in the HTTP server) invoke this
// periodically; it is not run automatically by the manager itself.
func (m *Manager) Sweep(ctx context.Context) int {
	_, endSpan := otelspan.Start(ctx, "session.Manager.Sweep")
	defer endSpan(nil)

	m.mu.Lock()
	var expired []*Session
	now := time.Now()
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActive)
		s.mu.Unlock()
		if idle > m.idleTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		_ = s.terminate(ctx)
	}
	return len(expired)
}

// Count returns the number of tracked (non-terminated) sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

////////////////////////////////////////////////////////////////////////////
// SESSION

// Touch refreshes the idle-expiry clock; call on every inbound request for
// this session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// PushEvent buffers a server-initiated notification and assigns it the
// next monotonically increasing event id (spec.md §3: "Event ids ... are
// strictly monotonically increasing per session"). When the buffer is at
// capacity, it blocks the caller until a consumer acknowledges delivered
// events via Ack and frees room, or ctx is done (spec.md §4.4: "bounded by
// a configurable capacity (default unbounded but with backpressure on slow
// consumers: blocks the producer)").
func (s *Session) PushEvent(ctx context.Context, payload []byte) (Event, error) {
	s.mu.Lock()
	for s.bufCap > 0 && len(s.buf) >= s.bufCap {
		wake := s.wakeLocked()
		s.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
		s.mu.Lock()
	}
	s.nextEvent++
	e := Event{ID: s.nextEvent, Payload: payload}
	s.buf = append(s.buf, e)
	s.signalLocked()
	s.mu.Unlock()
	return e, nil
}

// Replay returns buffered events with id strictly greater than lastSeen
// (spec.md §3: "replay from a Last-Event-ID returns only events with
// strictly greater id").
func (s *Session) Replay(lastSeen uint64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.buf))
	for _, e := range s.buf {
		if e.ID > lastSeen {
			out = append(out, e)
		}
	}
	return out
}

// Ack drops buffered events with id <= upTo, freeing capacity for any
// PushEvent blocked on backpressure. Callers that have durably delivered
// events live (the active GET stream) call this after flushing them so the
// replay buffer only has to cover events not yet seen by a consumer.
func (s *Session) Ack(upTo uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.buf[:0]
	for _, e := range s.buf {
		if e.ID > upTo {
			kept = append(kept, e)
		}
	}
	s.buf = kept
	s.signalLocked()
}

// Wake returns a channel that is closed the next time the event buffer
// changes (push or ack). Callers must re-call Wake after each wakeup to
// obtain the next one.
func (s *Session) Wake() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wakeLocked()
}

// wakeLocked lazily creates s.wake. Caller holds s.mu.
func (s *Session) wakeLocked() chan struct{} {
	if s.wake == nil {
		s.wake = make(chan struct{})
	}
	return s.wake
}

// signalLocked wakes any blocked PushEvent callers or watching GET streams.
// Caller holds s.mu.
func (s *Session) signalLocked() {
	if s.wake != nil {
		close(s.wake)
		s.wake = nil
	}
}

// AcquireStream claims the single-active-GET-stream slot for this session,
// closing out any previous holder (spec.md §4.5: "At most one such stream
// per session; a second GET replaces the first"). It returns the channel
// the caller should select on to detect being superseded by a later GET,
// and a release func to call when the stream ends normally.
func (s *Session) AcquireStream() (superseded <-chan struct{}, release func()) {
	s.mu.Lock()
	if s.streamSignal != nil {
		close(s.streamSignal) // boot the previous holder
	}
	mine := make(chan struct{})
	s.streamSignal = mine
	s.mu.Unlock()

	return mine, func() {
		s.mu.Lock()
		if s.streamSignal == mine {
			s.streamSignal = nil
		}
		s.mu.Unlock()
	}
}

func (s *Session) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

func (s *Session) terminate(ctx context.Context) error {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return nil
	}
	s.terminated = true
	s.mu.Unlock()
	return s.Peer.Close(ctx)
}
