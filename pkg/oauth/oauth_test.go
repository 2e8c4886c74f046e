package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	oauth2 "golang.org/x/oauth2"

	oauth "github.com/mutablelogic/go-mcp/pkg/oauth"
	schema "github.com/mutablelogic/go-mcp/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// MOCK OAUTH SERVER

type mockOAuthServer struct {
	*httptest.Server
	metadata         *schema.OAuthMetadata
	registeredClient *schema.OAuthClientInfo
	deviceCode       string
	deviceAuthorized bool
}

func newMockOAuthServer(t *testing.T) *mockOAuthServer {
	t.Helper()

	mock := &mockOAuthServer{
		deviceCode:       "test-device-code",
		deviceAuthorized: false,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.metadata)
	})

	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		redirectURI := r.URL.Query().Get("redirect_uri")
		state := r.URL.Query().Get("state")
		if redirectURI == "" || state == "" {
			http.Error(w, "missing redirect_uri or state", http.StatusBadRequest)
			return
		}
		u, _ := parseURL(redirectURI)
		q := u.Query()
		q.Set("code", "test-auth-code")
		q.Set("state", state)
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		grantType := r.FormValue("grant_type")
		w.Header().Set("Content-Type", "application/json")

		switch grantType {
		case "authorization_code":
			code := r.FormValue("code")
			if code != "test-auth-code" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "test-access-token",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "test-refresh-token",
			})

		case "urn:ietf:params:oauth:grant-type:device_code":
			deviceCode := r.FormValue("device_code")
			if deviceCode != mock.deviceCode {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			if !mock.deviceAuthorized {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "test-device-access-token",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "test-device-refresh-token",
			})

		case "client_credentials":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "test-client-credentials-token",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})

		case "refresh_token":
			refreshToken := r.FormValue("refresh_token")
			if refreshToken == "" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "test-refreshed-access-token",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "test-new-refresh-token",
			})

		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
		}
	})

	mux.HandleFunc("/device/code", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"device_code":               mock.deviceCode,
			"user_code":                 "ABCD-1234",
			"verification_uri":          mock.Server.URL + "/device",
			"verification_uri_complete": mock.Server.URL + "/device?user_code=ABCD-1234",
			"expires_in":                600,
			"interval":                  1,
		})
	})

	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req schema.OAuthClientRegistration
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mock.registeredClient = &schema.OAuthClientInfo{
			ClientID:                "registered-client-id",
			ClientName:              req.ClientName,
			RedirectURIs:            req.RedirectURIs,
			GrantTypes:              req.GrantTypes,
			ResponseTypes:           req.ResponseTypes,
			TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(mock.registeredClient)
	})

	mock.Server = httptest.NewServer(mux)

	mock.metadata = &schema.OAuthMetadata{
		Issuer:                      mock.Server.URL,
		AuthorizationEndpoint:       mock.Server.URL + "/authorize",
		TokenEndpoint:               mock.Server.URL + "/token",
		DeviceAuthorizationEndpoint: mock.Server.URL + "/device/code",
		RegistrationEndpoint:        mock.Server.URL + "/register",
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
			"client_credentials",
			"urn:ietf:params:oauth:grant-type:device_code",
		},
		ResponseTypesSupported:        []string{"code"},
		CodeChallengeMethodsSupported: []string{"S256", "plain"},
	}

	return mock
}

func (m *mockOAuthServer) AuthorizeDevice() {
	m.deviceAuthorized = true
}

func (m *mockOAuthServer) RegisteredClient() *schema.OAuthClientInfo {
	return m.registeredClient
}

func newClient(t *testing.T) *oauth.Client {
	t.Helper()
	c, err := oauth.New()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

///////////////////////////////////////////////////////////////////////////////
// LOGIN TESTS

func TestInteractiveLogin(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)

	listener, _, err := oauth.NewCallbackListener("")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	var authURL string
	go func() {
		time.Sleep(100 * time.Millisecond)
		resp, err := http.Get(authURL)
		if err != nil {
			t.Logf("simulated browser request failed: %v", err)
			return
		}
		resp.Body.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := &oauth2.Config{
		ClientID: "test-client",
		Scopes:   []string{"openid"},
		Endpoint: oauth2.Endpoint{AuthURL: mock.Server.URL},
	}
	creds, err := c.Login(ctx, nil, cfg, oauth.OptInteractive(listener, func(url string) {
		authURL = url
	}))
	if err != nil {
		t.Fatal(err)
	}

	if creds.AccessToken != "test-access-token" {
		t.Errorf("unexpected access token: %s", creds.AccessToken)
	}
	if creds.RefreshToken != "test-refresh-token" {
		t.Errorf("unexpected refresh token: %s", creds.RefreshToken)
	}
	if creds.ClientID != "test-client" {
		t.Errorf("unexpected client ID: %s", creds.ClientID)
	}
	if creds.Endpoint != mock.Server.URL {
		t.Errorf("unexpected endpoint: %s", creds.Endpoint)
	}
}

func TestInteractiveLoginAutoRegister(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)

	listener, _, err := oauth.NewCallbackListener("")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	var authURL string
	go func() {
		time.Sleep(100 * time.Millisecond)
		resp, err := http.Get(authURL)
		if err != nil {
			t.Logf("simulated browser request failed: %v", err)
			return
		}
		resp.Body.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := &oauth2.Config{
		Scopes:   []string{"openid"},
		Endpoint: oauth2.Endpoint{AuthURL: mock.Server.URL},
	}
	creds, err := c.Login(ctx, nil, cfg, oauth.OptClientName("test-app"), oauth.OptInteractive(listener, func(url string) {
		authURL = url
	}))
	if err != nil {
		t.Fatal(err)
	}

	if creds.ClientID != "registered-client-id" {
		t.Errorf("expected registered client ID, got: %s", creds.ClientID)
	}
	if creds.AccessToken != "test-access-token" {
		t.Errorf("unexpected access token: %s", creds.AccessToken)
	}
	if mock.RegisteredClient() == nil {
		t.Fatal("expected client to be registered")
	}
	if mock.RegisteredClient().ClientName != "test-app" {
		t.Errorf("unexpected registered client name: %s", mock.RegisteredClient().ClientName)
	}
}

func TestClientCredentialsLogin(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)

	cfg := &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Scopes:       []string{"api"},
		Endpoint:     oauth2.Endpoint{AuthURL: mock.Server.URL},
	}
	creds, err := c.Login(context.Background(), nil, cfg, oauth.OptClientCredentials())
	if err != nil {
		t.Fatal(err)
	}

	if creds.AccessToken != "test-client-credentials-token" {
		t.Errorf("unexpected access token: %s", creds.AccessToken)
	}
}

// TestSessionTracksStateThroughLogin exercises the explicit OAuth state
// machine from spec.md §9: a Session threaded through Login should end in
// StateAuthenticated with the same credentials Login returned, having never
// passed through StateFailed.
func TestSessionTracksStateThroughLogin(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)
	sess := oauth.NewSession()

	if sess.State() != oauth.StateNew {
		t.Fatalf("expected StateNew before Login, got %s", sess.State())
	}

	cfg := &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Scopes:       []string{"api"},
		Endpoint:     oauth2.Endpoint{AuthURL: mock.Server.URL},
	}
	creds, err := c.Login(context.Background(), sess, cfg, oauth.OptClientCredentials())
	if err != nil {
		t.Fatal(err)
	}

	if sess.State() != oauth.StateAuthenticated {
		t.Fatalf("expected StateAuthenticated after Login, got %s", sess.State())
	}
	if sess.Credentials() == nil || sess.Credentials().AccessToken != creds.AccessToken {
		t.Fatalf("session credentials do not match Login's return value")
	}
}

// TestSessionFailsOnLoginError exercises the any-state -> FAILED transition
// (spec.md §9) when the token exchange itself fails.
func TestSessionFailsOnLoginError(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)
	sess := oauth.NewSession()

	cfg := &oauth2.Config{
		ClientID: "test-client",
		Scopes:   []string{"openid"},
		Endpoint: oauth2.Endpoint{AuthURL: mock.Server.URL},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// Device authorization is never granted within the deadline, so the
	// polling loop must give up with an error.
	if _, err := c.Login(ctx, sess, cfg, oauth.OptDevice(func(string, string) {})); err == nil {
		t.Fatal("expected device login to fail before authorization")
	}

	if sess.State() != oauth.StateFailed {
		t.Fatalf("expected StateFailed after a failed Login, got %s", sess.State())
	}
}

// TestReauthorizeStepsUpScope exercises spec.md §4.7's scope step-up leg:
// AUTHENTICATED -> REAUTHORIZING -> AUTHORIZING -> ... -> AUTHENTICATED,
// with the demanded scope folded into the next authorization request.
func TestReauthorizeStepsUpScope(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)
	sess := oauth.NewSession()

	cfg := &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Scopes:       []string{"api"},
		Endpoint:     oauth2.Endpoint{AuthURL: mock.Server.URL},
	}
	if _, err := c.Login(context.Background(), sess, cfg, oauth.OptClientCredentials()); err != nil {
		t.Fatal(err)
	}

	creds, err := c.Reauthorize(context.Background(), sess, cfg, []string{"foo.admin"}, oauth.OptClientCredentials())
	if err != nil {
		t.Fatal(err)
	}

	if sess.State() != oauth.StateAuthenticated {
		t.Fatalf("expected StateAuthenticated after Reauthorize, got %s", sess.State())
	}
	if creds.AccessToken != "test-client-credentials-token" {
		t.Errorf("unexpected access token after reauthorize: %s", creds.AccessToken)
	}

	foundBase, foundNew := false, false
	for _, s := range cfg.Scopes {
		if s == "api" {
			foundBase = true
		}
		if s == "foo.admin" {
			foundNew = true
		}
	}
	if !foundBase || !foundNew {
		t.Fatalf("expected cfg.Scopes to carry both original and stepped-up scopes, got %v", cfg.Scopes)
	}
}

func TestDeviceLogin(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)

	go func() {
		time.Sleep(200 * time.Millisecond)
		mock.AuthorizeDevice()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var verificationURI, userCode string
	cfg := &oauth2.Config{
		ClientID: "test-client",
		Scopes:   []string{"openid"},
		Endpoint: oauth2.Endpoint{AuthURL: mock.Server.URL},
	}
	creds, err := c.Login(ctx, nil, cfg, oauth.OptDevice(func(uri, code string) {
		verificationURI = uri
		userCode = code
	}))
	if err != nil {
		t.Fatal(err)
	}

	if verificationURI == "" {
		t.Error("expected verification URI")
	}
	if userCode != "ABCD-1234" {
		t.Errorf("unexpected user code: %s", userCode)
	}
	if creds.AccessToken != "test-device-access-token" {
		t.Errorf("unexpected access token: %s", creds.AccessToken)
	}
}

func TestNewCallbackListener(t *testing.T) {
	listener, redirectURI, err := oauth.NewCallbackListener("")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	validPrefix := strings.HasPrefix(redirectURI, "http://localhost:") || strings.HasPrefix(redirectURI, "http://127.0.0.1:")
	if !validPrefix || !strings.HasSuffix(redirectURI, "/callback") {
		t.Errorf("unexpected redirect URI format: %s", redirectURI)
	}
}

func TestNewCallbackListenerNonLoopback(t *testing.T) {
	_, _, err := oauth.NewCallbackListener("0.0.0.0:8080")
	if err == nil {
		t.Fatal("expected error for non-loopback address")
	}
	if !strings.Contains(err.Error(), "loopback") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestNewCallbackListenerMissingPort(t *testing.T) {
	_, _, err := oauth.NewCallbackListener("localhost")
	if err == nil {
		t.Fatal("expected error for missing port")
	}
}

///////////////////////////////////////////////////////////////////////////////
// REFRESH TESTS

func TestRefreshToken(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)

	oldCreds := &schema.OAuthCredentials{
		Token: &oauth2.Token{
			AccessToken:  "expired-access-token",
			RefreshToken: "test-refresh-token",
			Expiry:       time.Now().Add(-time.Hour),
		},
		ClientID: "test-client",
		Endpoint: mock.Server.URL,
		TokenURL: mock.Server.URL + "/token",
	}

	newCreds, err := c.RefreshToken(context.Background(), nil, oldCreds, true)
	if err != nil {
		t.Fatal(err)
	}

	if newCreds.AccessToken != "test-refreshed-access-token" {
		t.Errorf("unexpected access token: %s", newCreds.AccessToken)
	}
	if newCreds.RefreshToken != "test-new-refresh-token" {
		t.Errorf("unexpected refresh token: %s", newCreds.RefreshToken)
	}
	if newCreds.ClientID != "test-client" {
		t.Errorf("unexpected client ID: %s", newCreds.ClientID)
	}
}

func TestRefreshTokenNoRefreshToken(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)

	oldCreds := &schema.OAuthCredentials{
		Token:    &oauth2.Token{AccessToken: "some-access-token"},
		ClientID: "test-client",
		Endpoint: mock.Server.URL,
		TokenURL: mock.Server.URL + "/token",
	}

	_, err := c.RefreshToken(context.Background(), nil, oldCreds, true)
	if err == nil {
		t.Fatal("expected error for token without refresh token")
	}
	if !strings.Contains(err.Error(), "does not contain a refresh token") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRefreshTokenNotExpired(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)

	oldCreds := &schema.OAuthCredentials{
		Token: &oauth2.Token{
			AccessToken:  "still-valid-access-token",
			RefreshToken: "test-refresh-token",
			Expiry:       time.Now().Add(time.Hour),
		},
		ClientID: "test-client",
		Endpoint: mock.Server.URL,
		TokenURL: mock.Server.URL + "/token",
	}

	result, err := c.RefreshToken(context.Background(), nil, oldCreds, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.AccessToken != "still-valid-access-token" {
		t.Errorf("expected original token, got: %s", result.AccessToken)
	}

	result, err = c.RefreshToken(context.Background(), nil, oldCreds, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.AccessToken != "test-refreshed-access-token" {
		t.Errorf("expected refreshed token, got: %s", result.AccessToken)
	}
}

///////////////////////////////////////////////////////////////////////////////
// DISCOVERY TESTS

func TestDiscoveryRootOAuth(t *testing.T) {
	mock := newMockOAuthServer(t)
	defer mock.Server.Close()

	c := newClient(t)
	cfg := &oauth2.Config{ClientID: "test-client", ClientSecret: "test-secret", Endpoint: oauth2.Endpoint{AuthURL: mock.Server.URL}}
	creds, err := c.Login(context.Background(), nil, cfg, oauth.OptClientCredentials())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "test-client-credentials-token" {
		t.Errorf("unexpected access token: %s", creds.AccessToken)
	}
}

func TestDiscoveryFallbackOIDC(t *testing.T) {
	metadata := &schema.OAuthMetadata{}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metadata)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "oidc-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	metadata.Issuer = server.URL
	metadata.TokenEndpoint = server.URL + "/token"
	metadata.GrantTypesSupported = []string{"client_credentials"}

	c := newClient(t)
	cfg := &oauth2.Config{ClientID: "test-client", ClientSecret: "test-secret", Endpoint: oauth2.Endpoint{AuthURL: server.URL}}
	creds, err := c.Login(context.Background(), nil, cfg, oauth.OptClientCredentials())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "oidc-token" {
		t.Errorf("unexpected access token: %s", creds.AccessToken)
	}
}

func TestDiscoveryPathRelative(t *testing.T) {
	metadata := &schema.OAuthMetadata{}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/realms/master/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metadata)
	})
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "keycloak-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	metadata.Issuer = server.URL + "/realms/master"
	metadata.TokenEndpoint = server.URL + "/realms/master/protocol/openid-connect/token"
	metadata.GrantTypesSupported = []string{"client_credentials"}

	c := newClient(t)
	cfg := &oauth2.Config{ClientID: "test-client", ClientSecret: "test-secret", Endpoint: oauth2.Endpoint{AuthURL: server.URL + "/realms/master"}}
	creds, err := c.Login(context.Background(), nil, cfg, oauth.OptClientCredentials())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "keycloak-token" {
		t.Errorf("unexpected access token: %s", creds.AccessToken)
	}
}

func TestDiscoveryNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c := newClient(t)
	cfg := &oauth2.Config{ClientID: "test-client", ClientSecret: "test-secret", Endpoint: oauth2.Endpoint{AuthURL: server.URL}}
	_, err := c.Login(context.Background(), nil, cfg, oauth.OptClientCredentials())
	if err == nil {
		t.Fatal("expected error for server without OAuth support")
	}
	if !strings.Contains(err.Error(), "does not support OAuth discovery") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestDiscoveryServerError(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newClient(t)
	cfg := &oauth2.Config{ClientID: "test-client", ClientSecret: "test-secret", Endpoint: oauth2.Endpoint{AuthURL: server.URL}}
	_, err := c.Login(context.Background(), nil, cfg, oauth.OptClientCredentials())
	if err == nil {
		t.Fatal("expected error for server returning 500")
	}
	if !strings.Contains(err.Error(), "OAuth discovery failed") {
		t.Errorf("unexpected error message: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("expected 1 request (early return on 500), got %d", requestCount)
	}
}

///////////////////////////////////////////////////////////////////////////////
// HELPERS

func parseURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}
