// Package client implements the MCP streamable-HTTP client transport from
// spec.md §4.6: it binds a *peer.Peer (role client) to a remote server's
// single endpoint, POSTing outbound requests and notifications and feeding
// every frame the server replies with — whether a single JSON body or an
// SSE stream — back into the peer for correlation and dispatch. Grounded on
// pkg/mcp/client/client.go: the go-client wrapper, the Unmarshaler-based
// response capture, and the exponential-backoff listener loop are all
// carried over, re-pointed at the new peer/schema packages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	goclient "github.com/mutablelogic/go-client"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	oauth2 "golang.org/x/oauth2"

	peer "github.com/mutablelogic/go-mcp/pkg/mcp/peer"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
	oauth "github.com/mutablelogic/go-mcp/pkg/oauth"
	credschema "github.com/mutablelogic/go-mcp/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// MCP Streamable HTTP requires both JSON and SSE in Accept header.
	mcpAccept       = "application/json, text/event-stream"
	mimeJSONReq     = "application/json"
	HeaderSessionID = "Mcp-Session-Id"
	HeaderWWWAuth   = "WWW-Authenticate"

	// maxScopeStepUps bounds the 403 insufficient_scope retry loop (spec.md
	// §8 scenario 6: "bounded at 3 attempts").
	maxScopeStepUps = 3
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// NotifyFunc receives every inbound notification, whether delivered inline
// on a POST's SSE response or out-of-band on the long-lived GET stream.
type NotifyFunc func(method string, params json.RawMessage)

// Client is an MCP client peer bound to a remote server's streamable-HTTP
// endpoint.
type Client struct {
	*goclient.Client
	peer *peer.Peer

	url        string
	clientInfo schema.ClientInfo

	mu         sync.Mutex
	sessionID  string
	serverInfo *schema.InitializeResult
	tools      map[string]*schema.Tool
	token      goclient.Token
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	notifyMu sync.Mutex
	notifyFn NotifyFunc

	// OAuth recovery (spec.md §4.7, §8 scenario 6): set via SetOAuth. Left
	// nil, a 401/403 is simply returned to the caller uninterpreted.
	oauthClient  *oauth.Client
	oauthSession *oauth.Session
	oauthConfig  *oauth2.Config
	oauthOpts    []oauth.LoginOpt
}

var _ peer.Sink = (*Client)(nil)

////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a client bound to the given server endpoint. It does not yet
// perform the initialize handshake; call Initialize before any other call.
func New(url string, info schema.ClientInfo, opts ...goclient.ClientOpt) (*Client, error) {
	c := &Client{url: url, clientInfo: info}

	defaults := []goclient.ClientOpt{
		goclient.OptEndpoint(url),
		goclient.OptUserAgent(info.Name + "/" + info.Version),
	}
	hc, err := goclient.New(append(defaults, opts...)...)
	if err != nil {
		return nil, err
	}
	c.Client = hc
	c.peer = peer.New(peer.RoleClient, c)
	return c, nil
}

// SetToken stores the bearer token used by the long-lived GET listener,
// which issues raw requests outside the wrapped goclient.Client.
func (c *Client) SetToken(token goclient.Token) { c.token = token }

// SetOAuth wires automatic 401 refresh and 403 scope step-up handling into
// this client (spec.md §4.7, exercised end-to-end by §8 scenario 6). oc
// performs the token operations, sess tracks the explicit OAuth state
// across them, cfg supplies the client registration reused for
// re-authorization, and opts (typically the same OptInteractive/OptDevice
// used for the original Login) are replayed if a scope step-up requires a
// fresh user-facing authorization round-trip.
func (c *Client) SetOAuth(oc *oauth.Client, sess *oauth.Session, cfg *oauth2.Config, opts ...oauth.LoginOpt) {
	c.mu.Lock()
	c.oauthClient = oc
	c.oauthSession = sess
	c.oauthConfig = cfg
	c.oauthOpts = opts
	c.mu.Unlock()
}

// ServerInfo returns the result of the initialize handshake, or nil before
// Initialize has completed.
func (c *Client) ServerInfo() *schema.InitializeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Initialize performs the MCP initialize handshake (spec.md §4.6) and sends
// the notifications/initialized follow-up notification.
func (c *Client) Initialize(ctx context.Context) (*schema.InitializeResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodInitialize, &schema.InitializeParams{
		ProtocolVersion: schema.ProtocolVersion,
		ClientInfo:      c.clientInfo,
	})
	if err != nil {
		return nil, err
	}
	var result schema.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.serverInfo = &result
	c.mu.Unlock()

	if err := c.peer.SendNotification(ctx, schema.NotificationInitialized, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// OnNotification registers fn to receive every inbound notification and, if
// not already running, starts the long-lived GET listener for out-of-band
// server-initiated events (spec.md §4.6).
func (c *Client) OnNotification(fn NotifyFunc) {
	c.notifyMu.Lock()
	c.notifyFn = fn
	c.notifyMu.Unlock()

	for _, method := range []string{
		schema.NotificationProgress,
		schema.NotificationMessage,
		schema.NotificationToolsListChanged,
		schema.NotificationResourcesListChanged,
		schema.NotificationResourcesUpdated,
		schema.NotificationPromptsListChanged,
	} {
		c.peer.HandleNotification(method, func(ctx context.Context, method string, params json.RawMessage) {
			c.notifyMu.Lock()
			fn := c.notifyFn
			c.notifyMu.Unlock()
			if fn != nil {
				fn(method, params)
			}
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil && fn != nil {
		c.startListener()
	}
}

// Close cancels the long-lived listener and, if a session was allocated,
// sends DELETE to terminate it server-side (spec.md §4.5).
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	sessionID := c.sessionID
	c.mu.Unlock()
	c.wg.Wait()

	_ = c.peer.Close(context.Background())

	if sessionID == "" {
		return nil
	}
	return c.DoWithContext(
		context.Background(),
		goclient.MethodDelete,
		nil,
		goclient.OptReqHeader(HeaderSessionID, sessionID),
	)
}

////////////////////////////////////////////////////////////////////////////
// PEER.SINK

// Send implements peer.Sink: every outbound frame — request, response (to a
// server-initiated call), or notification — is POSTed to the server
// endpoint. The server may answer with a single JSON body or an SSE stream
// of one-or-more frames; each decoded frame is handed to the peer for
// correlation/dispatch (spec.md §4.5, §4.6). A 401 or 403 response is
// intercepted and recovered per spec.md §4.7 before the caller ever sees
// an error, provided SetOAuth configured a recovery path.
func (c *Client) Send(ctx context.Context, env *schema.Envelope) error {
	return c.sendWithAuthRecovery(ctx, env, false, false, 0)
}

// sendWithAuthRecovery POSTs env via the raw HTTP client (rather than
// goclient.DoWithContext) so the full response — status code and
// WWW-Authenticate header included — is available to interpret spec.md
// §4.7's two recoverable failure modes: a single refresh attempt on 401,
// escalating to full re-authorization, and a scope step-up on 403 bounded
// at maxScopeStepUps attempts (spec.md §8 scenario 6). refreshed and
// reauthorized track which recovery has already been tried for the current
// 401 so the retry terminates instead of looping against a server that
// keeps rejecting the token.
func (c *Client) sendWithAuthRecovery(ctx context.Context, env *schema.Envelope, refreshed, reauthorized bool, scopeStepUps int) error {
	resp, err := c.doRawPost(ctx, env)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		switch {
		case !refreshed:
			if err := c.refreshAuth(ctx); err != nil {
				return fmt.Errorf("mcp/client: token refresh failed: %w", err)
			}
			return c.sendWithAuthRecovery(ctx, env, true, reauthorized, scopeStepUps)
		case !reauthorized:
			if err := c.reauthorize(ctx, nil); err != nil {
				return fmt.Errorf("mcp/client: re-authorization failed: %w", err)
			}
			return c.sendWithAuthRecovery(ctx, env, refreshed, true, scopeStepUps)
		default:
			if c.oauthSession != nil {
				c.oauthSession.Fail()
			}
			return fmt.Errorf("mcp/client: authorization failed after refresh and re-authorization: %w", httpresponse.Err(http.StatusUnauthorized))
		}

	case http.StatusForbidden:
		scopes := parseInsufficientScope(resp.Header.Get(HeaderWWWAuth))
		if len(scopes) == 0 || c.oauthClient == nil {
			return httpresponse.Err(http.StatusForbidden)
		}
		if scopeStepUps >= maxScopeStepUps {
			if c.oauthSession != nil {
				c.oauthSession.Fail()
			}
			return fmt.Errorf("mcp/client: scope step-up exhausted after %d attempts: %w", scopeStepUps, httpresponse.Err(http.StatusForbidden))
		}
		if err := c.reauthorize(ctx, scopes); err != nil {
			return fmt.Errorf("mcp/client: scope step-up failed: %w", err)
		}
		return c.sendWithAuthRecovery(ctx, env, refreshed, reauthorized, scopeStepUps+1)
	}

	return c.decodeRawResponse(ctx, resp)
}

// doRawPost issues the POST directly against the wrapped http.Client,
// bypassing goclient.DoWithContext so the caller can inspect the full
// *http.Response (status and headers) instead of only the opaque error
// DoWithContext produces for non-2xx responses — needed to read
// WWW-Authenticate on a 401/403 (spec.md §4.7).
func (c *Client) doRawPost(ctx context.Context, env *schema.Envelope) (*http.Response, error) {
	data, err := schema.Encode(env)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeJSONReq)
	req.Header.Set("Accept", mcpAccept)

	c.mu.Lock()
	sessionID := c.sessionID
	token := c.token
	c.mu.Unlock()
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	if token.Scheme != "" && token.Value != "" {
		req.Header.Set("Authorization", token.String())
	}

	return c.Client.Client.Do(req)
}

// decodeRawResponse dispatches a successful (2xx) response body to the same
// JSON/SSE decoding rpcResponse already implements for the goclient-mediated
// path, so both entry points share one frame-decoding implementation.
func (c *Client) decodeRawResponse(ctx context.Context, resp *http.Response) error {
	r := &rpcResponse{client: c, ctx: ctx}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mimetype, _, err := mime.ParseMediaType(ct); err == nil && mimetype == goclient.ContentTypeTextStream {
			if id := resp.Header.Get(HeaderSessionID); id != "" {
				c.mu.Lock()
				c.sessionID = id
				c.mu.Unlock()
			}
			return goclient.NewTextStream().Decode(resp.Body, r.eventCallback())
		}
	}
	return r.Unmarshal(resp.Header, resp.Body)
}

// refreshAuth performs the single-refresh-attempt half of spec.md §4.7's
// 401 handling.
func (c *Client) refreshAuth(ctx context.Context) error {
	if c.oauthClient == nil || c.oauthSession == nil {
		return fmt.Errorf("no OAuth client configured (call SetOAuth)")
	}
	creds := c.oauthSession.Credentials()
	if creds == nil {
		return fmt.Errorf("session has no credentials to refresh")
	}
	newCreds, err := c.oauthClient.RefreshToken(ctx, c.oauthSession, creds, true)
	if err != nil {
		return err
	}
	c.applyCredentials(newCreds)
	return nil
}

// reauthorize drives spec.md §4.7's REAUTHORIZING state: a full re-entry
// into the originally selected login flow, with extraScopes folded into the
// request when present (the 403 scope step-up path).
func (c *Client) reauthorize(ctx context.Context, extraScopes []string) error {
	if c.oauthClient == nil || c.oauthSession == nil || c.oauthConfig == nil {
		return fmt.Errorf("no OAuth client configured (call SetOAuth)")
	}
	newCreds, err := c.oauthClient.Reauthorize(ctx, c.oauthSession, c.oauthConfig, extraScopes, c.oauthOpts...)
	if err != nil {
		return err
	}
	c.applyCredentials(newCreds)
	return nil
}

func (c *Client) applyCredentials(creds *credschema.OAuthCredentials) {
	c.mu.Lock()
	c.token = goclient.Token{Scheme: goclient.Bearer, Value: creds.AccessToken}
	c.mu.Unlock()
}

// parseInsufficientScope extracts the scope values from a 403 response's
// WWW-Authenticate challenge, e.g.
// `Bearer error="insufficient_scope", scope="tools:write admin"` (spec.md
// §4.7 scope step-up, §8 scenario 6). Returns nil if the header doesn't
// name an insufficient_scope error or carries no scope parameter.
func parseInsufficientScope(header string) []string {
	if header == "" || !strings.Contains(header, "insufficient_scope") {
		return nil
	}
	const key = "scope="
	idx := strings.Index(header, key)
	if idx < 0 {
		return nil
	}
	rest := header[idx+len(key):]
	rest = strings.TrimPrefix(rest, `"`)
	if end := strings.IndexByte(rest, '"'); end >= 0 {
		rest = rest[:end]
	} else if end := strings.IndexByte(rest, ','); end >= 0 {
		rest = rest[:end]
	}
	return strings.Fields(rest)
}

////////////////////////////////////////////////////////////////////////////
// RESPONSE UNMARSHALING

// rpcResponse captures the Mcp-Session-Id header and feeds every decoded
// frame from the HTTP response body into the client's peer.
type rpcResponse struct {
	client *Client
	ctx    context.Context
}

var _ goclient.Unmarshaler = (*rpcResponse)(nil)

func (r *rpcResponse) Unmarshal(header http.Header, body io.Reader) error {
	if id := header.Get(HeaderSessionID); id != "" {
		r.client.mu.Lock()
		r.client.sessionID = id
		r.client.mu.Unlock()
	}

	if ct := header.Get("Content-Type"); ct != "" {
		if mimetype, _, err := mime.ParseMediaType(ct); err == nil && mimetype == goclient.ContentTypeTextStream {
			// Handled frame-by-frame in eventCallback.
			return nil
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil // e.g. 202 Accepted for a notification/response POST
	}
	env, err := schema.Decode(data)
	if err != nil {
		return err
	}
	r.client.peer.HandleInbound(r.ctx, env)
	return nil
}

func (r *rpcResponse) eventCallback() goclient.TextStreamCallback {
	return func(event goclient.TextStreamEvent) error {
		if event.Event != "message" && event.Event != "" {
			return nil
		}
		var raw json.RawMessage
		if err := event.Json(&raw); err != nil {
			return nil // skip malformed events, keep streaming
		}
		env, err := schema.Decode(raw)
		if err != nil {
			return nil
		}
		r.client.peer.HandleInbound(r.ctx, env)
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////
// LONG-LIVED LISTENER

// startListener launches the background GET SSE reader. Must be called with
// c.mu held.
func (c *Client) startListener() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.listen(ctx)
}

// listen holds open the long-lived GET stream (spec.md §4.5, §4.6),
// reconnecting with capped exponential backoff whenever the connection
// drops, replaying from the last seen event id.
func (c *Client) listen(ctx context.Context) {
	defer c.wg.Done()

	const (
		minBackoff = 1 * time.Second
		maxBackoff = 30 * time.Second
	)
	backoff := minBackoff
	var lastEventID string

	for {
		if ctx.Err() != nil {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			log.Printf("mcp/client: listener: %v", err)
			return
		}
		req.Header.Set("Accept", goclient.ContentTypeTextStream)
		if c.token.Scheme != "" && c.token.Value != "" {
			req.Header.Set("Authorization", c.token.String())
		}
		if lastEventID != "" {
			req.Header.Set("Last-Event-ID", lastEventID)
		}
		c.mu.Lock()
		if c.sessionID != "" {
			req.Header.Set(HeaderSessionID, c.sessionID)
		}
		c.mu.Unlock()

		resp, err := c.Client.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("mcp/client: listener error: %v (reconnecting in %v)", err, backoff)
		} else {
			if resp.StatusCode == http.StatusMethodNotAllowed {
				resp.Body.Close()
				return // server declared it doesn't support the GET stream
			}
			if resp.StatusCode == http.StatusOK {
				_ = goclient.NewTextStream().Decode(resp.Body, func(event goclient.TextStreamEvent) error {
					if ctx.Err() != nil {
						return io.EOF
					}
					if event.ID != "" {
						lastEventID = event.ID
					}
					if event.Event != "message" && event.Event != "" {
						return nil
					}
					var raw json.RawMessage
					if err := event.Json(&raw); err != nil {
						return nil
					}
					if env, err := schema.Decode(raw); err == nil {
						c.peer.HandleInbound(ctx, env)
					}
					return nil
				})
				backoff = minBackoff
			}
			resp.Body.Close()
		}

		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
