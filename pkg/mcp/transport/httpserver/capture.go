package httpserver

import (
	"context"
	"log"

	peer "github.com/mutablelogic/go-mcp/pkg/mcp/peer"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
	session "github.com/mutablelogic/go-mcp/pkg/mcp/session"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// captureContextKey tags the context passed into peer.HandleInbound for a
// single POST, so the session's Sink can route that request's own response
// and any notifications produced while handling it back into this POST's
// HTTP response instead of the session's long-lived event buffer. It relies
// on context.WithCancelCause (used internally by dispatchRequest) preserving
// parent values, so the capture is reachable from deep inside a handler via
// RequestContext.NotifyProgress as well as from the final reply.
type captureContextKey struct{}

// capture buffers the frames produced while one POST's request is in
// flight: its own eventual response, plus any notifications the handler
// emits along the way (progress updates, logging messages).
type capture struct {
	requestID     string
	response      chan []byte
	notifications chan []byte
}

func newCapture(requestID string) *capture {
	return &capture{
		requestID:     requestID,
		response:      make(chan []byte, 1),
		notifications: make(chan []byte, 64),
	}
}

////////////////////////////////////////////////////////////////////////////
// SINKS

// sessionSink is the peer.Sink bound to one stateful session. Frames sent
// under a context that carries a POST's capture are routed to that capture
// (and dropped if its channel is full); frames sent without one
// (server-initiated requests/notifications outside any POST) are durably
// buffered for delivery over the session's long-lived GET stream.
type sessionSink struct {
	session *session.Session
}

func (s *sessionSink) Send(ctx context.Context, env *schema.Envelope) error {
	data, err := schema.Encode(env)
	if err != nil {
		return err
	}
	if c, ok := ctx.Value(captureContextKey{}).(*capture); ok {
		if isMatchingResponse(env, c.requestID) {
			select {
			case c.response <- data:
			default:
			}
			return nil
		}
		select {
		case c.notifications <- data:
		default:
			log.Printf("mcp/httpserver: dropping notification, capture buffer full (session %s)", s.session.ID)
		}
		return nil
	}
	_, err = s.session.PushEvent(ctx, data)
	return err
}

// statelessSink is the peer.Sink bound to the single shared stateless peer.
// Stateless mode has no session to fall back on (spec.md §4.4: no
// server-initiated events outside of a POST's own response), so anything
// without a capture is simply dropped with a log entry.
type statelessSink struct {
	server *Server
}

func (s *statelessSink) Send(ctx context.Context, env *schema.Envelope) error {
	data, err := schema.Encode(env)
	if err != nil {
		return err
	}
	c, ok := ctx.Value(captureContextKey{}).(*capture)
	if !ok {
		log.Printf("mcp/httpserver: dropping unsolicited frame in stateless mode (method=%q)", env.Method)
		return nil
	}
	if isMatchingResponse(env, c.requestID) {
		select {
		case c.response <- data:
		default:
		}
		return nil
	}
	select {
	case c.notifications <- data:
	default:
		log.Printf("mcp/httpserver: dropping notification, capture buffer full")
	}
	return nil
}

func isMatchingResponse(env *schema.Envelope, requestID string) bool {
	switch env.Kind() {
	case schema.KindResponse, schema.KindErrorResponse:
		return env.ID != nil && env.ID.String() == requestID
	default:
		return false
	}
}

var (
	_ peer.Sink = (*sessionSink)(nil)
	_ peer.Sink = (*statelessSink)(nil)
)
