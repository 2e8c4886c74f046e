package peer

import (
	"context"
	"encoding/json"

	mcp "github.com/mutablelogic/go-mcp"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// RequestContext is handed to every inbound request Handler. It bears a
// back-reference to the peer (so a handler can itself call the other
// side), the session id, the caller's progress token (if any), and a
// cancellation signal propagated from the caller's notifications/cancelled.
type RequestContext struct {
	context.Context

	Peer          *Peer
	SessionID     string
	ProgressToken string
}

// NotifyProgress emits a progress notification referencing this request's
// progress token. It is a no-op if the caller did not supply one.
func (rc *RequestContext) NotifyProgress(progress, total float64, message string) error {
	if rc.ProgressToken == "" {
		return nil
	}
	return rc.Peer.NotifyProgress(rc, rc.ProgressToken, progress, total, message)
}

////////////////////////////////////////////////////////////////////////////
// INBOUND DISPATCH

// HandleInbound routes a single decoded frame per spec.md §4.2:
//   - Response/Error   → complete the matching correlator; unknown id is
//     dropped with a log entry, never crashes the engine.
//   - Request          → invoke the registered handler on a task; reply
//     with the same id; translate handler errors via the §7 taxonomy.
//   - Notification     → invoke the notification handler; no reply.
//
// The caller (a transport) is expected to call this once per inbound
// frame, typically from its own read loop goroutine; HandleInbound itself
// spawns a goroutine per inbound request so slow handlers don't block
// subsequent inbound frames (spec.md §4.5 "Concurrent POSTs ... responses
// are ordered by the handler's completion, not by request arrival").
func (p *Peer) HandleInbound(ctx context.Context, env *schema.Envelope) {
	switch env.Kind() {
	case schema.KindResponse:
		p.completeCorrelator(env.ID.String(), correlatorResult{raw: env.Result})
	case schema.KindErrorResponse:
		p.completeCorrelator(env.ID.String(), correlatorResult{err: env.Error})
	case schema.KindNotification:
		p.dispatchNotification(ctx, env)
	case schema.KindRequest:
		go p.dispatchRequest(ctx, env)
	default:
		p.logger.Printf("mcp/peer: dropping malformed frame (method=%q id=%v)", env.Method, env.ID)
	}
}

func (p *Peer) completeCorrelator(id string, res correlatorResult) {
	cr := p.removeCorrelator(id)
	if cr == nil {
		// Spec invariant: unmatched responses are dropped with a warning
		// and never crash the engine (spec.md §3 invariants).
		p.logger.Printf("mcp/peer: dropping response for unknown id %q", id)
		return
	}
	select {
	case cr.result <- res:
	default:
	}
}

func (p *Peer) dispatchNotification(ctx context.Context, env *schema.Envelope) {
	if env.Method == schema.NotificationCancelled {
		var params schema.CancelledParams
		if env.Params != nil {
			_ = json.Unmarshal(env.Params, &params)
		}
		if params.RequestID != nil {
			p.cancelInboundRequest(params.RequestID.String())
		}
	}

	if env.Method == schema.NotificationProgress {
		// Route to the SendRequestWithProgress channel for this token;
		// unknown tokens are dropped.
		var params schema.ProgressParams
		if env.Params != nil && json.Unmarshal(env.Params, &params) == nil {
			p.progressMu.Lock()
			if ch, ok := p.progress[params.ProgressToken]; ok {
				select {
				case ch <- &params:
				default:
				}
			}
			p.progressMu.Unlock()
		}
	}

	p.handlerMu.RLock()
	h, ok := p.notifications[env.Method]
	p.handlerMu.RUnlock()
	if !ok {
		// "notifications (method not found) are silently dropped" (§4.1).
		return
	}
	h(ctx, env.Method, env.Params)
}

func (p *Peer) dispatchRequest(ctx context.Context, env *schema.Envelope) {
	p.handlerMu.RLock()
	h, ok := p.handlers[env.Method]
	p.handlerMu.RUnlock()

	if !ok {
		p.replyError(ctx, env.ID, schema.NewError(schema.ErrorCodeMethodNotFound, mcp.ErrMethodNotFound.Error()))
		return
	}

	meta := extractMeta(env.Params)
	rctx, cancel := context.WithCancelCause(ctx)
	rc := &RequestContext{
		Context:       rctx,
		Peer:          p,
		SessionID:     p.sessionID,
		ProgressToken: meta.ProgressToken,
	}
	p.registerInboundRequest(env.ID.String(), cancel)
	defer p.unregisterInboundRequest(env.ID.String())

	result, err := p.safeInvoke(rc, h, env.Params)
	if rctx.Err() != nil {
		// Cancellation propagation: a late response after the caller
		// abandoned the request must not be sent (spec.md §4.2).
		return
	}
	if err != nil {
		p.replyError(ctx, env.ID, toWireError(err))
		return
	}

	raw, merr := json.Marshal(result)
	if merr != nil {
		p.replyError(ctx, env.ID, schema.NewError(schema.ErrorCodeInternalError, mcp.ErrInternal.Withf("marshal result: %v", merr).Error()))
		return
	}
	if err := p.sink.Send(ctx, schema.NewResponse(env.ID, raw)); err != nil {
		p.logger.Printf("mcp/peer: failed to send response for %s: %v", env.ID.String(), err)
	}
}

// safeInvoke recovers a handler panic and maps it to Internal per spec.md
// §4.2 "Handler panic/internal error: send -32603".
func (p *Peer) safeInvoke(rc *RequestContext, h Handler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = mcp.ErrInternal.Withf("handler panic: %v", r)
		}
	}()
	return h(rc, rc, params)
}

func (p *Peer) replyError(ctx context.Context, id *schema.ID, e *schema.Error) {
	if err := p.sink.Send(ctx, schema.NewErrorResponse(id, e)); err != nil {
		p.logger.Printf("mcp/peer: failed to send error response for %v: %v", id, err)
	}
}

func extractMeta(params json.RawMessage) schema.Meta {
	if params == nil {
		return schema.Meta{}
	}
	var wrapper struct {
		Meta *schema.Meta `json:"_meta"`
	}
	if err := json.Unmarshal(params, &wrapper); err != nil || wrapper.Meta == nil {
		return schema.Meta{}
	}
	return *wrapper.Meta
}

// toWireError maps a handler error to a JSON-RPC error object using the
// taxonomy in spec.md §7. Plain errors default to the internal-error code.
func toWireError(err error) *schema.Error {
	switch {
	case errIs(err, mcp.ErrInvalidParams):
		return schema.NewError(schema.ErrorCodeInvalidParams, err.Error())
	case errIs(err, mcp.ErrMethodNotFound):
		return schema.NewError(schema.ErrorCodeMethodNotFound, err.Error())
	case errIs(err, mcp.ErrInternal):
		return schema.NewError(schema.ErrorCodeInternalError, err.Error())
	case errIs(err, mcp.ErrNotFound), errIs(err, mcp.ErrDomain):
		return schema.NewError(schema.ErrorCodeResourceNotFound, err.Error())
	default:
		return schema.NewError(schema.ErrorCodeInternalError, err.Error())
	}
}
