// Package handler implements the role-parameterized capability surface
// from spec.md §4.3: narrow, independently-implementable interfaces for
// each server- and client-side method, wired onto a peer.Peer's method
// table. A method whose capability interface the implementation does not
// satisfy is left unregistered, which peer.Peer already resolves to
// "method not found" (spec.md §4.3 "Unimplemented methods default to
// method not found").
package handler

import (
	"context"
	"encoding/json"

	mcp "github.com/mutablelogic/go-mcp"
	peer "github.com/mutablelogic/go-mcp/pkg/mcp/peer"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
)

////////////////////////////////////////////////////////////////////////////
// SERVER-SIDE CAPABILITY INTERFACES

type Initializer interface {
	Initialize(ctx context.Context, rc *peer.RequestContext, params *schema.InitializeParams) (*schema.InitializeResult, error)
}

type Pinger interface {
	Ping(ctx context.Context, rc *peer.RequestContext) error
}

type ToolLister interface {
	ListTools(ctx context.Context, rc *peer.RequestContext, params *schema.ListToolsParams) (*schema.ListToolsResult, error)
}

type ToolCaller interface {
	CallTool(ctx context.Context, rc *peer.RequestContext, params *schema.CallToolParams) (*schema.CallToolResult, error)
}

type ResourceLister interface {
	ListResources(ctx context.Context, rc *peer.RequestContext, params *schema.ListResourcesParams) (*schema.ListResourcesResult, error)
}

type ResourceReader interface {
	ReadResource(ctx context.Context, rc *peer.RequestContext, params *schema.ReadResourceParams) (*schema.ReadResourceResult, error)
}

type ResourceTemplateLister interface {
	ListResourceTemplates(ctx context.Context, rc *peer.RequestContext) (*schema.ListResourceTemplatesResult, error)
}

type ResourceSubscriber interface {
	Subscribe(ctx context.Context, rc *peer.RequestContext, params *schema.SubscribeParams) error
	Unsubscribe(ctx context.Context, rc *peer.RequestContext, params *schema.SubscribeParams) error
}

type PromptLister interface {
	ListPrompts(ctx context.Context, rc *peer.RequestContext, params *schema.ListPromptsParams) (*schema.ListPromptsResult, error)
}

type PromptGetter interface {
	GetPrompt(ctx context.Context, rc *peer.RequestContext, params *schema.GetPromptParams) (*schema.GetPromptResult, error)
}

type Completer interface {
	Complete(ctx context.Context, rc *peer.RequestContext, params *schema.CompleteParams) (*schema.CompleteResult, error)
}

type LoggingLevelSetter interface {
	SetLoggingLevel(ctx context.Context, rc *peer.RequestContext, params *schema.SetLoggingLevelParams) error
}

////////////////////////////////////////////////////////////////////////////
// CLIENT-SIDE CAPABILITY INTERFACES

type MessageCreator interface {
	CreateMessage(ctx context.Context, rc *peer.RequestContext, params *schema.CreateMessageParams) (*schema.CreateMessageResult, error)
}

type ElicitationCreator interface {
	CreateElicitation(ctx context.Context, rc *peer.RequestContext, params *schema.CreateElicitationParams) (*schema.CreateElicitationResult, error)
}

////////////////////////////////////////////////////////////////////////////
// REGISTRATION

// RegisterServer wires every server-side capability impl satisfies onto p's
// method table. impl may satisfy any subset of the interfaces above.
func RegisterServer(p *peer.Peer, impl any) {
	if v, ok := impl.(Initializer); ok {
		p.HandleFunc(schema.MethodInitialize, decodeThen(v.Initialize))
	}
	if v, ok := impl.(Pinger); ok {
		p.HandleFunc(schema.MethodPing, func(ctx context.Context, rc *peer.RequestContext, _ json.RawMessage) (any, error) {
			return struct{}{}, v.Ping(ctx, rc)
		})
	}
	if v, ok := impl.(ToolLister); ok {
		p.HandleFunc(schema.MethodListTools, decodeThen(v.ListTools))
	}
	if v, ok := impl.(ToolCaller); ok {
		p.HandleFunc(schema.MethodCallTool, decodeThen(v.CallTool))
	}
	if v, ok := impl.(ResourceLister); ok {
		p.HandleFunc(schema.MethodListResources, decodeThen(v.ListResources))
	}
	if v, ok := impl.(ResourceReader); ok {
		p.HandleFunc(schema.MethodReadResource, decodeThen(v.ReadResource))
	}
	if v, ok := impl.(ResourceTemplateLister); ok {
		p.HandleFunc(schema.MethodListResourceTemplates, func(ctx context.Context, rc *peer.RequestContext, _ json.RawMessage) (any, error) {
			return v.ListResourceTemplates(ctx, rc)
		})
	}
	if v, ok := impl.(ResourceSubscriber); ok {
		p.HandleFunc(schema.MethodSubscribe, func(ctx context.Context, rc *peer.RequestContext, raw json.RawMessage) (any, error) {
			var params schema.SubscribeParams
			if err := unmarshalParams(raw, &params); err != nil {
				return nil, err
			}
			return struct{}{}, v.Subscribe(ctx, rc, &params)
		})
		p.HandleFunc(schema.MethodUnsubscribe, func(ctx context.Context, rc *peer.RequestContext, raw json.RawMessage) (any, error) {
			var params schema.SubscribeParams
			if err := unmarshalParams(raw, &params); err != nil {
				return nil, err
			}
			return struct{}{}, v.Unsubscribe(ctx, rc, &params)
		})
	}
	if v, ok := impl.(PromptLister); ok {
		p.HandleFunc(schema.MethodListPrompts, decodeThen(v.ListPrompts))
	}
	if v, ok := impl.(PromptGetter); ok {
		p.HandleFunc(schema.MethodGetPrompt, decodeThen(v.GetPrompt))
	}
	if v, ok := impl.(Completer); ok {
		p.HandleFunc(schema.MethodComplete, decodeThen(v.Complete))
	}
	if v, ok := impl.(LoggingLevelSetter); ok {
		p.HandleFunc(schema.MethodSetLoggingLevel, func(ctx context.Context, rc *peer.RequestContext, raw json.RawMessage) (any, error) {
			var params schema.SetLoggingLevelParams
			if err := unmarshalParams(raw, &params); err != nil {
				return nil, err
			}
			return struct{}{}, v.SetLoggingLevel(ctx, rc, &params)
		})
	}
	p.HandleNotification(schema.NotificationInitialized, func(ctx context.Context, method string, params json.RawMessage) {})
}

// RegisterClient wires every client-side capability impl satisfies onto p's
// method table (sampling/createMessage, elicitation/create).
func RegisterClient(p *peer.Peer, impl any) {
	if v, ok := impl.(MessageCreator); ok {
		p.HandleFunc(schema.MethodCreateMessage, decodeThen(v.CreateMessage))
	}
	if v, ok := impl.(ElicitationCreator); ok {
		p.HandleFunc(schema.MethodCreateElicitation, decodeThen(v.CreateElicitation))
	}
}

////////////////////////////////////////////////////////////////////////////
// HELPERS

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return mcp.ErrInvalidParams.Withf("unmarshal params: %v", err)
	}
	return nil
}

// decodeThen adapts a (ctx, rc, *P) (*R, error) capability method into a
// peer.Handler by unmarshalling params into a fresh *P.
func decodeThen[P any, R any](fn func(context.Context, *peer.RequestContext, *P) (*R, error)) peer.Handler {
	return func(ctx context.Context, rc *peer.RequestContext, raw json.RawMessage) (any, error) {
		params := new(P)
		if err := unmarshalParams(raw, params); err != nil {
			return nil, err
		}
		return fn(ctx, rc, params)
	}
}
