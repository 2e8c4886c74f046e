// Package httpserver implements the MCP streamable-HTTP server transport
// from spec.md §4.5: a single endpoint that supports POST-as-request,
// GET-as-SSE, and DELETE-as-terminate, under both stateful and stateless
// session modes. Grounded on the dual-mode dispatch in
// AreumTech-Chubby.fyi/apps/mcp-server-go/internal/mcp/server.go (GET vs
// POST routing, session map) and go-server/pkg/httpresponse for the JSON
// error/response helpers used throughout this codebase's HTTP layer.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"

	handler "github.com/mutablelogic/go-mcp/pkg/mcp/handler"
	peer "github.com/mutablelogic/go-mcp/pkg/mcp/peer"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
	session "github.com/mutablelogic/go-mcp/pkg/mcp/session"
)

////////////////////////////////////////////////////////////////////////////
// CONSTANTS

const (
	HeaderSessionID  = "Mcp-Session-Id"
	HeaderLastEvent  = "Last-Event-ID"
	HeaderWWWAuth    = "WWW-Authenticate"
	mimeJSON         = "application/json"
	mimeSSE          = "text/event-stream"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// Server is the streamable-HTTP binding of an MCP server role: it owns the
// session manager (stateful mode) or a single shared peer (stateless
// mode), and wires the configured capability implementation onto every
// peer it creates.
type Server struct {
	impl         any // satisfies some subset of handler's server capability interfaces
	stateful     bool
	jsonResponse bool // stateless-mode config: JSON vs SSE for single-frame responses
	keepAlive    time.Duration

	sessions *session.Manager

	// statelessPeer is the single shared peer used when stateful==false.
	statelessPeer *peer.Peer

	// authorize, if set, gates every request (spec.md §4.5 "Failure
	// modes"; §4.7/§8 scenario 6). nil means no enforcement, matching
	// today's examples where bearer-token checking is left to a fronting
	// proxy.
	authorize Authorizer
}

type Opt func(*Server)

func WithStateful(enabled bool) Opt             { return func(s *Server) { s.stateful = enabled } }
func WithJSONResponse(v bool) Opt               { return func(s *Server) { s.jsonResponse = v } }
func WithKeepAlive(d time.Duration) Opt         { return func(s *Server) { s.keepAlive = d } }
func WithSessionManager(m *session.Manager) Opt { return func(s *Server) { s.sessions = m } }
func WithAuthorizer(a Authorizer) Opt           { return func(s *Server) { s.authorize = a } }

func New(impl any, opts ...Opt) *Server {
	s := &Server{
		impl:      impl,
		stateful:  true,
		keepAlive: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = session.NewManager()
	}
	if !s.stateful {
		s.statelessPeer = peer.New(peer.RoleServer, &statelessSink{server: s})
		handler.RegisterServer(s.statelessPeer, s.impl)
	}
	return s
}

////////////////////////////////////////////////////////////////////////////
// HTTP ENTRYPOINT

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.authorize != nil && !s.enforceAuth(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
	}
}

// enforceAuth applies the configured Authorizer, writing a 401 or 403 with
// a WWW-Authenticate challenge and reporting false if the request was
// rejected. A 403's challenge names the missing scope so the client can
// re-authorize for it (spec.md §4.7 scope step-up, §8 scenario 6).
func (s *Server) enforceAuth(w http.ResponseWriter, r *http.Request) bool {
	result := s.authorize(r)
	switch {
	case result.Unauthorized:
		w.Header().Set(HeaderWWWAuth, `Bearer realm="mcp"`)
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusUnauthorized), "missing or invalid credentials")
		return false
	case result.MissingScope != "":
		w.Header().Set(HeaderWWWAuth, fmt.Sprintf(`Bearer error="insufficient_scope", scope=%q`, result.MissingScope))
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusForbidden), "insufficient scope")
		return false
	default:
		return true
	}
}

////////////////////////////////////////////////////////////////////////////
// POST

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = httpresponse.Error(w, httpresponse.ErrBadRequest.With(err))
		return
	}
	env, err := schema.Decode(body)
	if err != nil {
		// Parse error: a -32700 response if an id was recovered, else drop
		// with 400 (spec.md §4.1, §7).
		if env != nil && env.ID != nil {
			s.writeSingle(w, r, schema.NewErrorResponse(env.ID, schema.NewError(schema.ErrorCodeParseError, err.Error())))
			return
		}
		_ = httpresponse.Error(w, httpresponse.ErrBadRequest.With(err))
		return
	}

	sess, ok, statusOnMissing := s.resolveSession(r, env)
	if !ok {
		_ = httpresponse.Error(w, httpresponse.Err(statusOnMissing), "unknown or missing session")
		return
	}

	switch env.Kind() {
	case schema.KindNotification, schema.KindResponse, schema.KindErrorResponse:
		// 202 Accepted, empty body (spec.md §4.5).
		if sess != nil {
			sess.Touch()
			sess.Peer.HandleInbound(r.Context(), env)
		} else {
			s.statelessPeer.HandleInbound(r.Context(), env)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	case schema.KindRequest:
		s.handleRequestFrame(w, r, sess, env)
		return
	default:
		_ = httpresponse.Error(w, httpresponse.ErrBadRequest, "malformed JSON-RPC frame")
		return
	}
}

// resolveSession implements the stateful/stateless session-id contract
// (spec.md §4.4). For stateful mode, `initialize` allocates a session when
// no header is present; any other method requires a valid header.
func (s *Server) resolveSession(r *http.Request, env *schema.Envelope) (sess *session.Session, ok bool, status int) {
	if !s.stateful {
		return nil, true, 0
	}

	id := r.Header.Get(HeaderSessionID)
	if id == "" {
		if env.Kind() == schema.KindRequest && env.Method == schema.MethodInitialize {
			return nil, true, 0 // allocated lazily in handleRequestFrame
		}
		return nil, false, http.StatusNotFound
	}

	sess, found := s.sessions.Get(id)
	if !found {
		return nil, false, http.StatusNotFound
	}
	return sess, true, 0
}

func (s *Server) handleRequestFrame(w http.ResponseWriter, r *http.Request, sess *session.Session, env *schema.Envelope) {
	var isNewSession bool
	if s.stateful && sess == nil {
		// The session is created and registered with the manager before
		// the handler runs; its id reaches the client only through this
		// response's header. A concurrent POST that already names this id
		// finds the session and is not rejected.
		sess = s.sessions.Create(r.Context(), nil) // sink installed below, once capture exists
		isNewSession = true
	}

	c := newCapture(env.ID.String())

	var p *peer.Peer
	if sess != nil {
		sess.Touch()
		if isNewSession {
			sess.Peer = peer.New(peer.RoleServer, &sessionSink{session: sess}, peer.WithSessionID(sess.ID))
			handler.RegisterServer(sess.Peer, s.impl)
		}
		p = sess.Peer
	} else {
		p = s.statelessPeer
	}

	ctx := context.WithValue(r.Context(), captureContextKey{}, c)
	p.HandleInbound(ctx, env)

	if isNewSession {
		w.Header().Set(HeaderSessionID, sess.ID)
	}

	s.streamCaptureToResponse(w, r, c)
}

////////////////////////////////////////////////////////////////////////////
// RESPONSE STREAMING

// streamCaptureToResponse waits for the captured response (and any
// notifications produced while handling it), then writes either a single
// JSON body or an SSE stream per spec.md §4.5 and §8's scenarios 1-3.
func (s *Server) streamCaptureToResponse(w http.ResponseWriter, r *http.Request, c *capture) {
	useSSE := s.stateful // stateful mode always uses SSE; json_response is ignored (§8).
	if !s.stateful {
		useSSE = !s.jsonResponse
	}

	if !useSSE {
		select {
		case resp := <-c.response:
			w.Header().Set("Content-Type", mimeJSON)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(resp)
		case <-r.Context().Done():
		}
		return
	}

	w.Header().Set("Content-Type", mimeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	var eventID uint64
	for {
		select {
		case note := <-c.notifications:
			eventID++
			writeSSEFrame(w, eventID, note)
			if flusher != nil {
				flusher.Flush()
			}
		case resp := <-c.response:
			// Notifications already captured go out before the response.
			for drained := false; !drained; {
				select {
				case note := <-c.notifications:
					eventID++
					writeSSEFrame(w, eventID, note)
				default:
					drained = true
				}
			}
			eventID++
			writeSSEFrame(w, eventID, resp)
			if flusher != nil {
				flusher.Flush()
			}
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, id uint64, data []byte) {
	_, _ = w.Write([]byte("id: " + strconv.FormatUint(id, 10) + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}

// writeSingle writes a single best-effort JSON or SSE frame outside of the
// normal capture lifecycle (used for early parse-error responses).
func (s *Server) writeSingle(w http.ResponseWriter, r *http.Request, env *schema.Envelope) {
	data, _ := schema.Encode(env)
	if strings.Contains(r.Header.Get("Accept"), mimeSSE) {
		w.Header().Set("Content-Type", mimeSSE)
		w.WriteHeader(http.StatusOK)
		writeSSEFrame(w, 1, data)
		return
	}
	w.Header().Set("Content-Type", mimeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

////////////////////////////////////////////////////////////////////////////
// GET (long-lived SSE stream)

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.stateful {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusNotFound), "GET stream not supported in stateless mode")
		return
	}
	id := r.Header.Get(HeaderSessionID)
	sess, ok := s.sessions.Get(id)
	if !ok {
		_ = httpresponse.Error(w, httpresponse.ErrNotFound, "unknown or missing session")
		return
	}

	var lastSeen uint64
	if v := r.Header.Get(HeaderLastEvent); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			lastSeen = n
		}
	}

	superseded, release := sess.AcquireStream()
	defer release()

	w.Header().Set("Content-Type", mimeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	// wake must be obtained before the initial Replay so a PushEvent that
	// lands between the two can't be missed (spec.md §4.5
	// "STREAMING --event produced--> STREAMING"): if it raced in before
	// Replay, it's in this Replay's result; if after, it closes the
	// channel captured here.
	wake := sess.Wake()
	for _, e := range sess.Replay(lastSeen) {
		writeSSEFrame(w, e.ID, e.Payload)
		lastSeen = e.ID
	}
	if flusher != nil {
		flusher.Flush()
	}
	sess.Ack(lastSeen)

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-superseded:
			return
		case <-r.Context().Done():
			return
		case <-wake:
			wake = sess.Wake()
			for _, e := range sess.Replay(lastSeen) {
				writeSSEFrame(w, e.ID, e.Payload)
				lastSeen = e.ID
			}
			if flusher != nil {
				flusher.Flush()
			}
			sess.Ack(lastSeen)
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

////////////////////////////////////////////////////////////////////////////
// DELETE

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.stateful {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusNotFound), "sessions not supported in stateless mode")
		return
	}
	id := r.Header.Get(HeaderSessionID)
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		_ = httpresponse.Error(w, httpresponse.ErrNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
