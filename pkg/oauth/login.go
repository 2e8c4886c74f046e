package oauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goclient "github.com/mutablelogic/go-client"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	oauth2 "golang.org/x/oauth2"
	clientcredentials "golang.org/x/oauth2/clientcredentials"

	jwtassertion "github.com/mutablelogic/go-mcp/pkg/jwtassertion"
	schema "github.com/mutablelogic/go-mcp/pkg/schema"
)

const clientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

///////////////////////////////////////////////////////////////////////////////
// TYPES

// AuthURLCallback is called with the authorization URL for interactive
// login. The callback should present this URL to the user (open a browser,
// print it, etc).
type AuthURLCallback func(authURL string)

// DeviceAuthCallback is called with the device authorization details. The
// callback should present the verification URI and user code to the user.
type DeviceAuthCallback func(verificationURI, userCode string)

// LoginOpt selects and configures the grant Login performs.
type LoginOpt func(*loginOpts)

type loginOpts struct {
	listener       net.Listener
	authCallback   AuthURLCallback
	deviceCallback DeviceAuthCallback
	clientName     string
	clientCreds    bool
	assertionKey   *ecdsa.PrivateKey
}

// OptInteractive selects the Authorization Code flow with PKCE (spec.md
// §4.7). The listener serves the local OAuth callback; callback receives
// the URL to present to the user.
func OptInteractive(listener net.Listener, callback AuthURLCallback) LoginOpt {
	return func(o *loginOpts) {
		o.listener = listener
		o.authCallback = callback
	}
}

// OptDevice selects the Device Authorization flow (RFC 8628).
func OptDevice(callback DeviceAuthCallback) LoginOpt {
	return func(o *loginOpts) { o.deviceCallback = callback }
}

// OptClientCredentials selects the Client Credentials flow (RFC 6749 §4.4),
// for machine-to-machine callers with a pre-registered confidential client.
func OptClientCredentials() LoginOpt {
	return func(o *loginOpts) { o.clientCreds = true }
}

// OptClientName enables RFC 7591 dynamic client registration with this
// client display name when cfg.ClientID is empty.
func OptClientName(name string) LoginOpt {
	return func(o *loginOpts) { o.clientName = name }
}

// OptPrivateKeyJWT authenticates the Client Credentials flow with a signed
// JWT assertion (RFC 7523) instead of a client secret, per spec.md §4.7's
// private_key_jwt token-endpoint-auth method. Use with OptClientCredentials;
// cfg.ClientSecret is ignored when this option is set.
func OptPrivateKeyJWT(key *ecdsa.PrivateKey) LoginOpt {
	return func(o *loginOpts) { o.assertionKey = key }
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// NewCallbackListener opens a TCP listener for the local OAuth redirect
// callback and returns its redirect URI. addr defaults to a random port on
// loopback; only loopback addresses are accepted.
func NewCallbackListener(addr string) (net.Listener, string, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, "", fmt.Errorf("invalid callback address %q: %w", addr, err)
	}
	if !isLoopback(host) {
		return nil, "", fmt.Errorf("callback address must be loopback (localhost/127.0.0.1/::1), got %q", host)
	}
	if port == "" {
		return nil, "", fmt.Errorf("callback address %q missing port", addr)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	return listener, fmt.Sprintf("http://%s/callback", listener.Addr().String()), nil
}

// Login performs the OAuth 2.1 login flow selected by opts. It discovers
// server metadata from cfg.Endpoint.AuthURL, replaces cfg.Endpoint with the
// discovered endpoints, optionally dynamically registers a client (RFC
// 7591) when cfg.ClientID is empty, and returns durable credentials. sess
// is advanced through the explicit state machine spec.md §9 calls for
// (NEW -> DISCOVERED -> REGISTERED -> AUTHORIZING -> EXCHANGING ->
// AUTHENTICATED, or -> FAILED on error); pass nil to run the flow without
// tracking state.
func (c *Client) Login(ctx context.Context, sess *Session, cfg *oauth2.Config, opts ...LoginOpt) (*schema.OAuthCredentials, error) {
	if sess == nil {
		sess = NewSession()
	}

	var o loginOpts
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := cfg.Endpoint.AuthURL
	if endpoint == "" {
		sess.Fail()
		return nil, fmt.Errorf("cfg.Endpoint.AuthURL must be set to the server URL")
	}

	metadata, err := c.DiscoverServerMetadata(ctx, endpoint)
	if err != nil {
		sess.Fail()
		return nil, err
	}
	cfg.Endpoint = metadata.Endpoint()
	sess.setState(StateDiscovered)

	var token *oauth2.Token
	switch {
	case o.listener != nil && o.authCallback != nil:
		cfg.RedirectURL = fmt.Sprintf("http://%s/callback", o.listener.Addr().String())
		if cfg.ClientID == "" {
			if err := c.autoRegister(ctx, metadata, cfg, o.clientName,
				[]string{cfg.RedirectURL},
				[]string{"authorization_code", "refresh_token"},
				[]string{"code"},
				"none",
			); err != nil {
				sess.Fail()
				return nil, err
			}
			sess.setState(StateRegistered)
		}
		sess.setState(StateAuthorizing)
		token, err = c.interactiveFlow(ctx, cfg, metadata, o.listener, o.authCallback, sess)

	case o.deviceCallback != nil:
		if !metadata.SupportsDeviceFlow() {
			sess.Fail()
			return nil, fmt.Errorf("%s does not support device authorization flow", endpoint)
		}
		if cfg.ClientID == "" {
			if err := c.autoRegister(ctx, metadata, cfg, o.clientName,
				nil,
				[]string{"urn:ietf:params:oauth:grant-type:device_code", "refresh_token"},
				nil,
				"none",
			); err != nil {
				sess.Fail()
				return nil, err
			}
			sess.setState(StateRegistered)
		}
		sess.setState(StateAuthorizing)
		token, err = c.deviceFlow(ctx, cfg, o.deviceCallback, sess)

	case o.clientCreds:
		if cfg.ClientID == "" {
			sess.Fail()
			return nil, fmt.Errorf("client-id is required for client credentials flow")
		}
		if cfg.ClientSecret == "" && o.assertionKey == nil {
			sess.Fail()
			return nil, fmt.Errorf("client secret or a private key (OptPrivateKeyJWT) is required for client credentials flow")
		}
		if !metadata.SupportsGrantType("client_credentials") {
			sess.Fail()
			return nil, fmt.Errorf("%s does not support client_credentials grant", endpoint)
		}
		sess.setState(StateAuthorizing)
		token, err = c.clientCredentialsFlow(ctx, cfg, metadata, o.assertionKey, sess)

	default:
		sess.Fail()
		return nil, fmt.Errorf("no login flow specified: use OptInteractive, OptDevice, or OptClientCredentials")
	}
	if err != nil {
		sess.Fail()
		return nil, err
	}

	creds := &schema.OAuthCredentials{
		Token:    token,
		ClientID: cfg.ClientID,
		Endpoint: endpoint,
		TokenURL: metadata.TokenEndpoint,
	}
	sess.setAuthenticated(creds)
	return creds, nil
}

// Reauthorize re-enters the authorization flow for a session that already
// reached StateAuthenticated, after the server demanded scope beyond what
// was originally granted (spec.md §4.7's
// AUTHENTICATED --401/403 insufficient_scope--> REAUTHORIZING --> AUTHORIZING
// transition, exercised end-to-end by §8 scenario 6). It folds extraScopes
// into cfg.Scopes and reruns Login against the same client registration.
func (c *Client) Reauthorize(ctx context.Context, sess *Session, cfg *oauth2.Config, extraScopes []string, opts ...LoginOpt) (*schema.OAuthCredentials, error) {
	if sess == nil {
		sess = NewSession()
	}
	sess.setState(StateReauthorizing)
	cfg.Scopes = mergeScopes(cfg.Scopes, extraScopes)
	return c.Login(ctx, sess, cfg, opts...)
}

// RefreshToken exchanges a refresh token for a new access token. If force
// is false and the current token is still valid with a 30-second buffer, it
// is returned unchanged. sess, if non-nil, is marked StateFailed on a
// refresh error so a caller implementing spec.md §4.7's 401 handling ("a
// single refresh attempt is made; further 401 triggers re-authorization or
// terminal failure") can tell a refresh failure apart from having never
// authenticated at all.
func (c *Client) RefreshToken(ctx context.Context, sess *Session, creds *schema.OAuthCredentials, force bool) (*schema.OAuthCredentials, error) {
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("token does not contain a refresh token")
	}
	if creds.TokenURL == "" {
		return nil, fmt.Errorf("credentials missing token URL")
	}
	if !force && !creds.Expiry.IsZero() && time.Until(creds.Expiry) > 30*time.Second {
		return creds, nil
	}

	cfg := &oauth2.Config{
		ClientID: creds.ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: creds.TokenURL},
	}
	tok := *creds.Token
	tok.Expiry = time.Now().Add(-time.Minute)

	newToken, err := cfg.TokenSource(c.oauthContext(ctx), &tok).Token()
	if err != nil {
		if sess != nil {
			sess.Fail()
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	refreshed := &schema.OAuthCredentials{Token: newToken, ClientID: creds.ClientID, Endpoint: creds.Endpoint, TokenURL: creds.TokenURL}
	if sess != nil {
		sess.setAuthenticated(refreshed)
	}
	return refreshed, nil
}

///////////////////////////////////////////////////////////////////////////////
// FLOWS

func (c *Client) interactiveFlow(ctx context.Context, cfg *oauth2.Config, metadata *schema.OAuthMetadata, listener net.Listener, callback AuthURLCallback, sess *Session) (*oauth2.Token, error) {
	verifier := oauth2.GenerateVerifier()
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	var challengeOpts []oauth2.AuthCodeOption
	switch {
	case metadata.SupportsS256():
		challengeOpts = []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	case metadata.SupportsPKCE():
		challengeOpts = []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("code_challenge", verifier),
			oauth2.SetAuthURLParam("code_challenge_method", "plain"),
		}
	default:
		// OAuth 2.1 mandates PKCE; use S256 even if the server's metadata
		// omitted code_challenge_methods_supported.
		challengeOpts = []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	}

	authURL := cfg.AuthCodeURL(state, challengeOpts...)
	callback(authURL)

	code, err := c.waitForAuthCallback(ctx, listener, state)
	if err != nil {
		return nil, err
	}

	sess.setState(StateExchanging)
	token, err := cfg.Exchange(c.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return token, nil
}

func (c *Client) deviceFlow(ctx context.Context, cfg *oauth2.Config, callback DeviceAuthCallback, sess *Session) (*oauth2.Token, error) {
	deviceResp, err := cfg.DeviceAuth(c.oauthContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	callback(deviceResp.VerificationURI, deviceResp.UserCode)

	sess.setState(StateExchanging)
	token, err := cfg.DeviceAccessToken(c.oauthContext(ctx), deviceResp)
	if err != nil {
		return nil, fmt.Errorf("device token exchange failed: %w", err)
	}
	return token, nil
}

func (c *Client) clientCredentialsFlow(ctx context.Context, cfg *oauth2.Config, metadata *schema.OAuthMetadata, assertionKey *ecdsa.PrivateKey, sess *Session) (*oauth2.Token, error) {
	ccCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     metadata.TokenEndpoint,
		Scopes:       cfg.Scopes,
	}

	if assertionKey != nil {
		assertion, err := jwtassertion.New(assertionKey, cfg.ClientID, metadata.TokenEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to build client assertion: %w", err)
		}
		ccCfg.ClientSecret = ""
		ccCfg.AuthStyle = oauth2.AuthStyleInParams
		ccCfg.EndpointParams = url.Values{
			"client_assertion_type": {clientAssertionTypeJWTBearer},
			"client_assertion":      {assertion},
		}
	}

	sess.setState(StateExchanging)
	token, err := ccCfg.Token(c.oauthContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("client credentials exchange failed: %w", err)
	}
	return token, nil
}

///////////////////////////////////////////////////////////////////////////////
// DYNAMIC CLIENT REGISTRATION

func (c *Client) autoRegister(ctx context.Context, metadata *schema.OAuthMetadata, cfg *oauth2.Config, clientName string, redirectURIs, grantTypes, responseTypes []string, authMethod string) error {
	if clientName == "" {
		return fmt.Errorf("either client-id or client-name must be provided")
	}
	clientInfo, err := c.registerClient(ctx, metadata, clientName, redirectURIs, cfg.Scopes, grantTypes, responseTypes, authMethod)
	if err != nil {
		return fmt.Errorf("dynamic client registration failed (you may need to register manually and provide a client id): %w", err)
	}
	cfg.ClientID = clientInfo.ClientID
	cfg.ClientSecret = clientInfo.ClientSecret
	return nil
}

func (c *Client) registerClient(ctx context.Context, metadata *schema.OAuthMetadata, clientName string, redirectURIs, scopes, grantTypes, responseTypes []string, authMethod string) (*schema.OAuthClientInfo, error) {
	if !metadata.SupportsRegistration() {
		return nil, fmt.Errorf("%s does not support dynamic client registration", metadata.Issuer)
	}

	regReq := &schema.OAuthClientRegistration{
		ClientName:              clientName,
		RedirectURIs:            redirectURIs,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		TokenEndpointAuthMethod: authMethod,
		Scope:                   strings.Join(scopes, " "),
	}
	payload, err := goclient.NewJSONRequest(regReq)
	if err != nil {
		return nil, err
	}

	var clientInfo schema.OAuthClientInfo
	if err := c.DoWithContext(ctx, payload, &clientInfo, goclient.OptReqEndpoint(metadata.RegistrationEndpoint)); err != nil {
		return nil, err
	}
	return &clientInfo, nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE HELPERS

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.Client.Client)
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type authResult struct {
	code string
	err  error
}

// waitForAuthCallback serves the local OAuth redirect callback until it
// receives a code (or error), then shuts the server down.
func (c *Client) waitForAuthCallback(ctx context.Context, listener net.Listener, expectedState string) (string, error) {
	resultCh := make(chan authResult, 1)
	var once sync.Once
	sendResult := func(r authResult) {
		once.Do(func() { resultCh <- r })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != expectedState {
			sendResult(authResult{err: fmt.Errorf("state mismatch")})
			_ = httpresponse.Error(w, httpresponse.ErrBadRequest.With("state mismatch"))
			return
		}
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			desc := r.URL.Query().Get("error_description")
			sendResult(authResult{err: fmt.Errorf("authorization error: %s: %s", errParam, desc)})
			_ = httpresponse.Error(w, httpresponse.ErrBadRequest.With(desc))
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			sendResult(authResult{err: fmt.Errorf("no authorization code received")})
			_ = httpresponse.Error(w, httpresponse.ErrBadRequest.With("no authorization code received"))
			return
		}
		sendResult(authResult{code: code})
		_ = httpresponse.JSON(w, http.StatusOK, 0, map[string]string{
			"status":  "ok",
			"message": "Authorization code received. You can close this window.",
		})
	})

	server := &http.Server{Handler: mux}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendResult(authResult{err: fmt.Errorf("callback server failed: %w", err)})
		}
	}()

	var result authResult
	select {
	case <-ctx.Done():
		result = authResult{err: ctx.Err()}
	case result = <-resultCh:
	}

	_ = server.Shutdown(context.Background())
	wg.Wait()

	if result.err != nil {
		return "", result.err
	}
	return result.code, nil
}
