// Package oauth implements the OAuth 2.1 client state machine spec.md §4.7
// requires of an MCP client talking to a protected server: discovery of the
// authorization server via RFC 8414/RFC 9728 metadata, the interactive
// (PKCE), device, and client-credentials grants, optional RFC 7591 dynamic
// client registration, and refresh. Grounded on pkg/httpclient/oauth.go and
// pkg/httpclient/client.go, re-pointed at this module's pkg/schema types
// and the shared go-client HTTP wrapper.
package oauth

import (
	goclient "github.com/mutablelogic/go-client"
	singleflight "golang.org/x/sync/singleflight"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Client performs OAuth discovery, registration, and token exchange against
// an authorization server. It embeds the shared HTTP client wrapper so
// discovery/registration requests reuse its timeout/trace/tracing options.
type Client struct {
	*goclient.Client

	// discover collapses concurrent DiscoverServerMetadata/
	// DiscoverProtectedResource calls for the same endpoint into one
	// in-flight request: a scope step-up and a token refresh can both
	// trigger rediscovery around the same moment (spec.md §4.7), and there
	// is no reason to walk the well-known candidate list twice for the
	// same server.
	discover singleflight.Group
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates an OAuth client. Discovery and registration always override
// the client's endpoint with goclient.OptReqEndpoint, so callers typically
// pass no goclient.OptEndpoint at all and rely on per-call overrides.
func New(opts ...goclient.ClientOpt) (*Client, error) {
	hc, err := goclient.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{Client: hc}, nil
}
