package httpserver

import (
	"net/http"
	"strings"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// AuthResult is what an Authorizer reports about one inbound request
// (spec.md §4.5 "Failure modes": 401 for missing/invalid credentials, 403
// for a valid credential lacking a required scope).
type AuthResult struct {
	// Unauthorized, if true, produces a 401 with a generic WWW-Authenticate
	// challenge: the request carries no usable credential at all.
	Unauthorized bool

	// MissingScope, if non-empty, produces a 403 whose WWW-Authenticate
	// challenge names this scope, driving the client's scope step-up
	// (spec.md §4.7, §8 scenario 6).
	MissingScope string
}

// Authorizer inspects an inbound request's credentials. A nil Authorizer
// (the default) performs no enforcement, matching spec.md's framing of
// authorization as a deployment concern the transport makes possible
// without mandating a particular scheme.
type Authorizer func(r *http.Request) AuthResult

////////////////////////////////////////////////////////////////////////////
// STATIC BEARER+SCOPE AUTHORIZER

// StaticTokenAuthorizer builds an Authorizer backed by a fixed token ->
// granted-scopes table, useful for tests and simple deployments that issue
// their own opaque bearer tokens rather than delegating to a full
// authorization server. requiredScope, if non-empty, must be present in a
// token's granted scopes or the request is reported as missing that scope.
func StaticTokenAuthorizer(tokens map[string][]string, requiredScope string) Authorizer {
	return func(r *http.Request) AuthResult {
		token, ok := bearerToken(r)
		if !ok {
			return AuthResult{Unauthorized: true}
		}
		scopes, ok := tokens[token]
		if !ok {
			return AuthResult{Unauthorized: true}
		}
		if requiredScope != "" && !hasScope(scopes, requiredScope) {
			return AuthResult{MissingScope: requiredScope}
		}
		return AuthResult{}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
