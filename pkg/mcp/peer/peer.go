// Package peer implements the symmetric JSON-RPC duplex described in
// spec.md §4.2: it multiplexes outbound requests, inbound requests and
// notifications, tracks request/response correlation, and supports
// cancellation and progress. The same engine serves both a client-role and
// a server-role peer (spec.md §9 "role symmetry without inheritance") —
// role only changes which method table handles inbound dispatch.
package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	mcp "github.com/mutablelogic/go-mcp"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// Role tags which side of the connection a Peer plays. It selects nothing
// in this package directly (the method table is supplied by the caller via
// Handler registration); New records it on the Peer and String() names
// it, but nothing in this package reads it back.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Sink is the write side of the transport a Peer is bound to. Transports
// (streamable HTTP client/server, stdio, or an in-memory pair in tests)
// implement this to hand outbound frames to the wire.
type Sink interface {
	Send(ctx context.Context, env *schema.Envelope) error
}

// Handler processes an inbound request and returns its result (marshalled
// to JSON) or an error. Handler authors never handcraft error frames — any
// error returned here is translated by the engine per spec.md §7.
type Handler func(ctx context.Context, rc *RequestContext, params json.RawMessage) (any, error)

// NotificationHandler processes an inbound notification; there is no reply.
type NotificationHandler func(ctx context.Context, method string, params json.RawMessage)

// Peer is the duplex engine bound to one session's transport.
type Peer struct {
	role Role
	sink Sink

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[string]*correlator
	closed  bool

	progressMu sync.Mutex
	progress   map[string]chan *schema.ProgressParams

	handlerMu     sync.RWMutex
	handlers      map[string]Handler
	notifications map[string]NotificationHandler

	inbound map[string]context.CancelCauseFunc

	sessionID string
	logger    *log.Logger
}

type correlator struct {
	result chan correlatorResult
	done   bool
}

type correlatorResult struct {
	raw json.RawMessage
	err error
}

////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

type Opt func(*Peer)

// WithSessionID attaches a session id surfaced on every RequestContext
// built by this peer for inbound handler dispatch.
func WithSessionID(id string) Opt { return func(p *Peer) { p.sessionID = id } }

// WithLogger overrides the default stderr logger used for drop/warn paths
// spec.md §4.2 requires (unmatched responses, malformed frames).
func WithLogger(l *log.Logger) Opt { return func(p *Peer) { p.logger = l } }

func New(role Role, sink Sink, opts ...Opt) *Peer {
	p := &Peer{
		role:          role,
		sink:          sink,
		pending:       make(map[string]*correlator),
		progress:      make(map[string]chan *schema.ProgressParams),
		handlers:      make(map[string]Handler),
		notifications: make(map[string]NotificationHandler),
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

////////////////////////////////////////////////////////////////////////////
// HANDLER REGISTRATION

// HandleFunc registers the handler invoked for inbound requests with the
// given method name. Re-registering a method replaces the previous handler.
func (p *Peer) HandleFunc(method string, h Handler) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.handlers[method] = h
}

// HandleNotification registers the handler invoked for inbound
// notifications with the given method name.
func (p *Peer) HandleNotification(method string, h NotificationHandler) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.notifications[method] = h
}

////////////////////////////////////////////////////////////////////////////
// OUTBOUND

// SendRequest assigns the next id, installs a correlator, writes the frame,
// and suspends until a response arrives, the context is cancelled, or the
// peer is closed. Concurrent calls are safe (spec.md §4.2).
func (p *Peer) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return p.sendRequest(ctx, method, params, "")
}

// SendRequestWithProgress is SendRequest but additionally installs a
// progress token in `_meta` and returns a channel fed from NotifyProgress
// calls the other side makes referencing that token (spec.md §4.2). The
// channel is closed once the request completes.
func (p *Peer) SendRequestWithProgress(ctx context.Context, method string, params any) (json.RawMessage, <-chan *schema.ProgressParams, error) {
	token := fmt.Sprintf("p%d", p.nextID.Add(1))
	ch := make(chan *schema.ProgressParams, 16)
	p.progressMu.Lock()
	p.progress[token] = ch
	p.progressMu.Unlock()
	defer func() {
		p.progressMu.Lock()
		delete(p.progress, token)
		p.progressMu.Unlock()
		close(ch)
	}()

	raw, err := p.sendRequest(ctx, method, params, token)
	return raw, ch, err
}

func (p *Peer) sendRequest(ctx context.Context, method string, params any, progressToken string) (json.RawMessage, error) {
	id := schema.NewIntID(p.nextID.Add(1))

	payload, err := marshalParams(params, progressToken)
	if err != nil {
		return nil, mcp.ErrInvalidParams.Withf("marshal request params: %v", err)
	}

	cr := &correlator{result: make(chan correlatorResult, 1)}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, mcp.ErrTransportClosed.With("peer is closed")
	}
	p.pending[id.String()] = cr
	p.mu.Unlock()

	env := schema.NewRequest(id, method, payload)
	if err := p.sink.Send(ctx, env); err != nil {
		p.removeCorrelator(id.String())
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case res := <-cr.result:
		return res.raw, res.err
	case <-ctx.Done():
		p.removeCorrelator(id.String())
		return nil, mcp.ErrCancelled.Withf("request %s: %v", id.String(), ctx.Err())
	}
}

// SendNotification is fire-and-forget: no correlator is installed.
func (p *Peer) SendNotification(ctx context.Context, method string, params any) error {
	payload, err := marshalParams(params, "")
	if err != nil {
		return mcp.ErrInvalidParams.Withf("marshal notification params: %v", err)
	}
	return p.sink.Send(ctx, schema.NewNotification(method, payload))
}

// NotifyProgress emits a best-effort progress notification referencing
// token. Loss is non-fatal (spec.md §4.2); the caller need not retry.
func (p *Peer) NotifyProgress(ctx context.Context, token string, progress, total float64, message string) error {
	return p.SendNotification(ctx, schema.NotificationProgress, &schema.ProgressParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// Cancel removes the correlator for id (if any), sends a
// notifications/cancelled frame, and resolves the caller's pending
// SendRequest with a cancellation error. Idempotent.
func (p *Peer) Cancel(ctx context.Context, id string, reason string) {
	cr := p.removeCorrelator(id)
	if cr != nil {
		select {
		case cr.result <- correlatorResult{err: mcp.ErrCancelled.Withf("request %s cancelled: %s", id, reason)}:
		default:
		}
	}
	_ = p.SendNotification(ctx, schema.NotificationCancelled, &schema.CancelledParams{
		RequestID: schema.NewStringID(id),
		Reason:    reason,
	})
}

// Close marks the peer terminated, fails all pending correlators with a
// transport-closed error, and flushes a termination notification.
func (p *Peer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pending := p.pending
	p.pending = make(map[string]*correlator)
	p.mu.Unlock()

	for _, cr := range pending {
		select {
		case cr.result <- correlatorResult{err: mcp.ErrTransportClosed.With("peer closed")}:
		default:
		}
	}
	return p.SendNotification(ctx, "notifications/transport_closed", nil)
}

func (p *Peer) removeCorrelator(id string) *correlator {
	p.mu.Lock()
	defer p.mu.Unlock()
	cr, ok := p.pending[id]
	if !ok {
		return nil
	}
	delete(p.pending, id)
	return cr
}

func marshalParams(params any, progressToken string) (json.RawMessage, error) {
	if params == nil && progressToken == "" {
		return nil, nil
	}
	// Merge progressToken into a _meta field alongside the caller's params.
	var base map[string]any
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &base); err != nil {
			// params wasn't an object (e.g. an array); progress tokens only
			// attach to object-shaped params, so just pass it through.
			if progressToken == "" {
				return json.RawMessage(data), nil
			}
			return nil, fmt.Errorf("cannot attach progressToken to non-object params")
		}
	}
	if progressToken != "" {
		if base == nil {
			base = make(map[string]any)
		}
		base["_meta"] = map[string]any{"progressToken": progressToken}
	}
	if base == nil {
		return nil, nil
	}
	return json.Marshal(base)
}
