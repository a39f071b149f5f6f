package session

import (
	"errors"
	"fmt"
)

// ErrReadTimeout is returned by a Transport when a read deadline expires.
// The coordinator maps it to a negotiation or idle timeout failure.
var ErrReadTimeout = errors.New("read deadline exceeded")

// ProtocolError is a terminal violation of the wire contract: malformed or
// out-of-order control messages, audio before negotiation, duplicate start,
// or a chunk sequence gap. The session is terminated, never retried.
// Code is a low-cardinality token for metrics; Reason is for the client.
type ProtocolError struct {
	Code   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

func protocolErrorf(code, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// TimeoutError reports a session torn down for inactivity: no start message
// within the negotiation grace period, or no audio within the idle period.
type TimeoutError struct {
	Phase string
}

func (e *TimeoutError) Error() string {
	return e.Phase + " timeout"
}
