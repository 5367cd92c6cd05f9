package transport

import (
	"errors"
	"fmt"
)

// Link-level sentinel errors. Every link fault returned by a Transport wraps ErrCommunication.
var (
	// ErrCommunication indicates a link-level failure: timeout, closed connection or socket/port fault.
	ErrCommunication = errors.New("transport: communication error")

	// ErrLoginFailure indicates that the login handshake completed but the credentials were rejected.
	ErrLoginFailure = errors.New("transport: login failure")

	// ErrNotConnected indicates an I/O attempt on a transport that is not connected.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrTimeout indicates that no complete reply arrived within the configured timeout.
	ErrTimeout = errors.New("transport: timeout")

	// ErrConnectionClosed indicates that the peer closed the link (a zero-byte read).
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrNoLoginPrompt indicates that the login prompt never appeared during the handshake.
	ErrNoLoginPrompt = errors.New("no login prompt")

	// ErrInvalidReply indicates that a reply could not be converted to the requested type.
	ErrInvalidReply = errors.New("transport: invalid reply")

	// ErrUnknownKind indicates a parameter string or connect call naming an unsupported transport kind.
	ErrUnknownKind = errors.New("transport: unknown transport kind")

	// ErrInvalidParameters indicates a malformed connection parameter string or value.
	ErrInvalidParameters = errors.New("transport: invalid parameters")
)

func commError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCommunication, op, err)
}

// QueryError reports a failed query: either the link failed or the reply could not be parsed.
//
// It carries the command text and, when one was received, the raw reply.
type QueryError struct {
	Command string
	Reply   string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Reply != "" {
		return fmt.Sprintf("query %q failed (reply %q): %v", e.Command, e.Reply, e.Err)
	}

	return fmt.Sprintf("query %q failed: %v", e.Command, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// SetError reports a failed write of a value to the instrument.
type SetError struct {
	Command string
	Err     error
}

func (e *SetError) Error() string {
	return fmt.Sprintf("set %q failed: %v", e.Command, e.Err)
}

func (e *SetError) Unwrap() error { return e.Err }
