// Package mcp holds the error taxonomy shared by every go-mcp subpackage.
package mcp

import (
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Err enumerates the error kinds from the taxonomy: the kinds that map to
// reserved JSON-RPC codes first (Code() translates each to its wire code),
// then the MCP-domain and local kinds.
const (
	ErrSuccess Err = iota
	ErrWireParse         // -32700 malformed JSON / envelope violation
	ErrInvalidRequest    // -32600 structurally valid frame, semantically wrong
	ErrMethodNotFound    // -32601
	ErrInvalidParams     // -32602 handler rejected inputs
	ErrInternal          // -32603 handler panic / unhandled failure
	ErrDomain            // typed domain failure (e.g. resource not found)
	ErrNotFound          // tool/credential lookups; shares ErrDomain's wire code
	ErrBadParameter      // alias used by non-wire collaborators
	ErrConflict          // duplicate registration, session id collision
	ErrTransportClosed   // local: surfaced to pending requesters, never sent on the wire
	ErrCancelled         // local: surfaced to the caller, a notification is sent
	ErrAuthRequired      // transport-level 401
	ErrInsufficientScope // transport-level 403
)

// RPCCode are the JSON-RPC 2.0 reserved error codes plus the MCP default
// domain-error codes. Code() maps WireParse/InvalidRequest/MethodNotFound/
// InvalidParams/Internal to the reserved codes and Domain/NotFound to
// RPCCodeResourceNotFound.
const (
	RPCCodeParseError     = -32700
	RPCCodeInvalidRequest = -32600
	RPCCodeMethodNotFound = -32601
	RPCCodeInvalidParams  = -32602
	RPCCodeInternalError  = -32603
	RPCCodeDomainError    = -32000 // start of the MCP application range
	RPCCodeResourceNotFound = -32002
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Err is a sentinel error kind. Code() returns a fixed wire code for
// ErrWireParse through ErrDomain and for ErrNotFound, and 0 for every
// other kind.
type Err int

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (e Err) Error() string {
	switch e {
	case ErrSuccess:
		return "success"
	case ErrWireParse:
		return "parse error"
	case ErrInvalidRequest:
		return "invalid request"
	case ErrMethodNotFound:
		return "method not found"
	case ErrInvalidParams:
		return "invalid params"
	case ErrInternal:
		return "internal error"
	case ErrDomain:
		return "domain error"
	case ErrNotFound:
		return "not found"
	case ErrBadParameter:
		return "bad parameter"
	case ErrConflict:
		return "conflict"
	case ErrTransportClosed:
		return "transport closed"
	case ErrCancelled:
		return "cancelled"
	case ErrAuthRequired:
		return "authentication required"
	case ErrInsufficientScope:
		return "insufficient scope"
	}
	return fmt.Sprintf("error code %d", int(e))
}

func (e Err) With(args ...interface{}) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprint(args...))
}

func (e Err) Withf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprintf(format, args...))
}

// Code returns the JSON-RPC wire code for error kinds that may legally cross
// the wire. TransportClosed and Cancelled are local-only (§7) and return 0.
func (e Err) Code() int {
	switch e {
	case ErrWireParse:
		return RPCCodeParseError
	case ErrInvalidRequest:
		return RPCCodeInvalidRequest
	case ErrMethodNotFound:
		return RPCCodeMethodNotFound
	case ErrInvalidParams:
		return RPCCodeInvalidParams
	case ErrInternal:
		return RPCCodeInternalError
	case ErrDomain, ErrNotFound:
		return RPCCodeResourceNotFound
	}
	return 0
}
