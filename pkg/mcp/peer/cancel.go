package peer

import (
	"context"
	"errors"

	mcp "github.com/mutablelogic/go-mcp"
)

////////////////////////////////////////////////////////////////////////////
// INBOUND REQUEST CANCELLATION
//
// Tracks in-flight inbound requests by id so a notifications/cancelled
// frame referencing that id can abandon the handler's RequestContext
// (spec.md §4.2 "Cancellation propagation").

func (p *Peer) inboundRegistry() map[string]context.CancelCauseFunc {
	if p.inbound == nil {
		p.inbound = make(map[string]context.CancelCauseFunc)
	}
	return p.inbound
}

func (p *Peer) registerInboundRequest(id string, cancel context.CancelCauseFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inboundRegistry()[id] = cancel
}

func (p *Peer) unregisterInboundRequest(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inboundRegistry(), id)
}

func (p *Peer) cancelInboundRequest(id string) {
	p.mu.Lock()
	cancel, ok := p.inboundRegistry()[id]
	if ok {
		delete(p.inbound, id)
	}
	p.mu.Unlock()
	if ok {
		cancel(mcp.ErrCancelled.With("cancelled by peer"))
	}
}

func errIs(err error, target error) bool {
	return errors.Is(err, target)
}
