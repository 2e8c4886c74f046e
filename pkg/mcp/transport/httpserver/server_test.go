package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	peer "github.com/mutablelogic/go-mcp/pkg/mcp/peer"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
	httpserver "github.com/mutablelogic/go-mcp/pkg/mcp/transport/httpserver"
)

type stubImpl struct{}

func (stubImpl) Initialize(ctx context.Context, rc *peer.RequestContext, params *schema.InitializeParams) (*schema.InitializeResult, error) {
	return &schema.InitializeResult{
		ProtocolVersion: schema.ProtocolVersion,
		ServerInfo:      schema.ServerInfo{Name: "test-server", Version: "0.0.0"},
	}, nil
}

func (stubImpl) Ping(ctx context.Context, rc *peer.RequestContext) error { return nil }

// progressToolImpl exercises spec.md §8 scenario 4: a tool call that emits
// notifications/progress frames ahead of its CallToolResult.
type progressToolImpl struct{ stubImpl }

func (progressToolImpl) CallTool(ctx context.Context, rc *peer.RequestContext, params *schema.CallToolParams) (*schema.CallToolResult, error) {
	for _, p := range []float64{0, 50, 100} {
		if err := rc.NotifyProgress(p, 100, ""); err != nil {
			return nil, err
		}
	}
	return schema.NewCallToolResult(schema.NewTextContent("Progress test completed")), nil
}

func initializeBody() []byte {
	data, _ := json.Marshal(&schema.Envelope{
		Version: schema.RPCVersion,
		ID:      schema.NewIntID(1),
		Method:  schema.MethodInitialize,
	})
	return data
}

// TestStatelessJSONResponse exercises spec.md §8 scenario 1: stateless mode
// with json_response=true returns a single application/json body.
func TestStatelessJSONResponse(t *testing.T) {
	srv := httpserver.New(stubImpl{}, httpserver.WithStateful(false), httpserver.WithJSONResponse(true))

	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}

	var env schema.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Kind() != schema.KindResponse {
		t.Fatalf("expected a response frame, got kind %d (error=%v)", env.Kind(), env.Error)
	}
}

// TestStatelessSSEResponse exercises scenario 2: stateless mode with
// json_response=false still returns text/event-stream for a single frame.
func TestStatelessSSEResponse(t *testing.T) {
	srv := httpserver.New(stubImpl{}, httpserver.WithStateful(false), httpserver.WithJSONResponse(false))

	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"result"`) {
		t.Fatalf("expected an SSE frame carrying the result, got: %s", w.Body.String())
	}
}

// TestStatefulIgnoresJSONResponse exercises scenario 3: stateful mode always
// uses SSE, even when json_response=true and the handler produced no events
// (spec.md §8 boundary behavior: "json_response is silently ignored").
func TestStatefulIgnoresJSONResponse(t *testing.T) {
	srv := httpserver.New(stubImpl{}, httpserver.WithStateful(true), httpserver.WithJSONResponse(true))

	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream (stateful always SSE), got %q", ct)
	}
	if id := w.Header().Get(httpserver.HeaderSessionID); id == "" {
		t.Fatal("expected a session id to be issued on initialize")
	}
}

// TestStatefulUnknownSessionIs404 exercises the invalid/missing session id
// boundary behavior (spec.md §4.5).
func TestStatefulUnknownSessionIs404(t *testing.T) {
	srv := httpserver.New(stubImpl{}, httpserver.WithStateful(true))

	data, _ := json.Marshal(&schema.Envelope{
		Version: schema.RPCVersion,
		ID:      schema.NewIntID(2),
		Method:  schema.MethodListTools,
	})
	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(data)))
	r.Header.Set(httpserver.HeaderSessionID, "unknown-session")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// TestToolCallEmitsProgressBeforeResult exercises spec.md §8 scenario 4: a
// tools/call carrying a progressToken gets three notifications/progress
// frames (0, 50, 100) ahead of the CallToolResult, all within the same
// POST's SSE response.
func TestToolCallEmitsProgressBeforeResult(t *testing.T) {
	srv := httpserver.New(progressToolImpl{}, httpserver.WithStateful(true))

	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	sessionID := w.Header().Get(httpserver.HeaderSessionID)
	if sessionID == "" {
		t.Fatal("expected a session id")
	}

	params, _ := json.Marshal(&schema.CallToolParams{
		Name: "test_tool_with_progress",
		Meta: &schema.Meta{ProgressToken: "t1"},
	})
	data, _ := json.Marshal(&schema.Envelope{
		Version: schema.RPCVersion,
		ID:      schema.NewIntID(2),
		Method:  schema.MethodCallTool,
		Params:  params,
	})
	cr := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(data)))
	cr.Header.Set(httpserver.HeaderSessionID, sessionID)
	cw := httptest.NewRecorder()
	srv.ServeHTTP(cw, cr)

	if cw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", cw.Code, cw.Body.String())
	}

	var progressValues []float64
	var sawResult bool
	for _, line := range strings.Split(cw.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var env schema.Envelope
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
			t.Fatalf("decode SSE frame: %v", err)
		}
		switch env.Method {
		case schema.NotificationProgress:
			var p schema.ProgressParams
			if err := json.Unmarshal(env.Params, &p); err != nil {
				t.Fatalf("decode progress params: %v", err)
			}
			if p.ProgressToken != "t1" {
				t.Fatalf("expected progress token t1, got %q", p.ProgressToken)
			}
			progressValues = append(progressValues, p.Progress)
		case "":
			if env.Kind() == schema.KindResponse {
				var result schema.CallToolResult
				if err := json.Unmarshal(env.Result, &result); err != nil {
					t.Fatalf("decode call tool result: %v", err)
				}
				if len(result.Content) != 1 || result.Content[0].Text != "Progress test completed" {
					t.Fatalf("unexpected result: %+v", result)
				}
				sawResult = true
			}
		}
	}

	if want := []float64{0, 50, 100}; len(progressValues) != len(want) {
		t.Fatalf("expected progress values %v, got %v", want, progressValues)
	} else {
		for i, v := range want {
			if progressValues[i] != v {
				t.Fatalf("expected progress values %v, got %v", want, progressValues)
			}
		}
	}
	if !sawResult {
		t.Fatal("expected a CallToolResult frame after the progress notifications")
	}
}

// TestAuthorizerEnforcesMissingAndInsufficientScope exercises spec.md §8
// scenario 6's server side: a request with no bearer token is rejected with
// 401 and a generic challenge; one with a token that lacks the required
// scope is rejected with 403 and a challenge naming that scope; one with a
// token that carries it succeeds.
func TestAuthorizerEnforcesMissingAndInsufficientScope(t *testing.T) {
	authz := httpserver.StaticTokenAuthorizer(map[string][]string{
		"narrow-token": {"tools:call"},
		"admin-token":  {"tools:call", "foo.admin"},
	}, "foo.admin")
	srv := httpserver.New(stubImpl{}, httpserver.WithStateful(false), httpserver.WithJSONResponse(true), httpserver.WithAuthorizer(authz))

	t.Run("missing credential", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if w.Header().Get(httpserver.HeaderWWWAuth) == "" {
			t.Fatal("expected a WWW-Authenticate challenge on 401")
		}
	})

	t.Run("insufficient scope", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
		r.Header.Set("Authorization", "Bearer narrow-token")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, r)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
		challenge := w.Header().Get(httpserver.HeaderWWWAuth)
		if !strings.Contains(challenge, "insufficient_scope") || !strings.Contains(challenge, "foo.admin") {
			t.Fatalf("expected a challenge naming the missing scope, got %q", challenge)
		}
	})

	t.Run("sufficient scope", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
		r.Header.Set("Authorization", "Bearer admin-token")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	})
}

// TestDeleteTerminatesSession exercises the DELETE method.
func TestDeleteTerminatesSession(t *testing.T) {
	srv := httpserver.New(stubImpl{}, httpserver.WithStateful(true))

	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(string(initializeBody())))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	sessionID := w.Header().Get(httpserver.HeaderSessionID)
	if sessionID == "" {
		t.Fatal("expected a session id")
	}

	dr := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	dr.Header.Set(httpserver.HeaderSessionID, sessionID)
	dw := httptest.NewRecorder()
	srv.ServeHTTP(dw, dr)
	if dw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", dw.Code)
	}

	dw2 := httptest.NewRecorder()
	srv.ServeHTTP(dw2, dr)
	if dw2.Code != http.StatusNotFound {
		t.Fatalf("expected second DELETE to 404, got %d", dw2.Code)
	}
}
