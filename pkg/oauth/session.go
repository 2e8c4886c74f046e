package oauth

import (
	"sync"

	schema "github.com/mutablelogic/go-mcp/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Session tracks one client's progress through the OAuth state machine from
// spec.md §4.7/§9: NEW -> DISCOVERED -> REGISTERED -> AUTHORIZING ->
// EXCHANGING -> AUTHENTICATED, with AUTHENTICATED -> REAUTHORIZING ->
// AUTHORIZING on a scope step-up, and any state -> FAILED on a terminal
// error. Login and Reauthorize advance it; a caller inspects State to decide
// whether credentials are usable without re-deriving that fact from which
// struct fields happen to be populated.
type Session struct {
	mu    sync.Mutex
	state State
	creds *schema.OAuthCredentials
}

// NewSession creates a Session in StateNew.
func NewSession() *Session {
	return &Session{state: StateNew}
}

// NewSessionFromCredentials creates a Session already in StateAuthenticated,
// carrying creds. Used when a caller restores a previously persisted
// credential (e.g. from a credential store) rather than performing a fresh
// Login, so RefreshToken/Reauthorize have a starting point to act on.
func NewSessionFromCredentials(creds *schema.OAuthCredentials) *Session {
	return &Session{state: StateAuthenticated, creds: creds}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Credentials returns the most recently stored credentials, or nil if the
// session has never completed a successful exchange.
func (s *Session) Credentials() *schema.OAuthCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Fail transitions the session to StateFailed. Callers that exhaust a
// bounded retry (spec.md §8 scenario 6: scope step-up capped at 3 attempts)
// use this to record the terminal outcome explicitly rather than leaving
// the session's last state ambiguous.
func (s *Session) Fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setAuthenticated(creds *schema.OAuthCredentials) {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.creds = creds
	s.mu.Unlock()
}

///////////////////////////////////////////////////////////////////////////////
// HELPERS

// mergeScopes returns base with any of extra not already present appended,
// used by Reauthorize to fold a server's demanded scope (spec.md §4.7 scope
// step-up) into the next authorization request.
func mergeScopes(base, extra []string) []string {
	have := make(map[string]bool, len(base))
	for _, s := range base {
		have[s] = true
	}
	out := append([]string(nil), base...)
	for _, s := range extra {
		if s == "" || have[s] {
			continue
		}
		have[s] = true
		out = append(out, s)
	}
	return out
}
