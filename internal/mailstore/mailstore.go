package mailstore

import (
	"context"
	"fmt"
)

// Session is one authenticated connection to a mail store with the
// monitored mailbox selected. A Session is owned by a single caller and
// must not be shared across goroutines.
type Session interface {
	// UIDs returns the identifiers of all messages currently in the
	// mailbox, in ascending order.
	UIDs() ([]uint32, error)

	// Fetch returns the raw RFC 5322 bytes of the message with the
	// given identifier.
	Fetch(uid uint32) ([]byte, error)

	// Noop issues a protocol no-op to detect silently-dropped
	// connections.
	Noop() error

	// Close logs out and releases the connection. Logout failures are
	// best-effort: the session handle is unusable afterward either way.
	Close() error
}

// Store opens sessions to a remote mail store.
type Store interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectError wraps any failure to establish a session: DNS, TLS
// negotiation, authentication rejection, or mailbox selection.
type ConnectError struct {
	Op  string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
