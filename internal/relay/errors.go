package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by Push when the target is not open.
	ErrSessionClosed = errors.New("session is not open")
	// ErrOutboxFull is returned by Push when the target has too many
	// undelivered envelopes.
	ErrOutboxFull = errors.New("session outbox is full")
	// ErrInvalidIdentity marks a rejected selfId or peerId.
	ErrInvalidIdentity = errors.New("invalid connection identity")
)

// IdentityError describes why a connection identity was rejected.
type IdentityError struct {
	Param  string // "selfId" or "peerId"
	Value  string
	Reason string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Param, e.Value, e.Reason)
}

func (e *IdentityError) Unwrap() error { return ErrInvalidIdentity }
