package listener

import (
	"errors"
	"fmt"
)

var (
	// ErrPeerClosed means the client closed before sending a token.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrMalformedToken means no NUL terminator was found in the received bytes.
	ErrMalformedToken = errors.New("malformed token: missing terminator")
	// ErrTokenTooLong means a token reached the maximum token length.
	ErrTokenTooLong = errors.New("token too long")
)

// BindError is returned when the listening socket cannot be opened.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// AcceptError is a failed accept. The accept loop logs it and keeps going.
type AcceptError struct {
	Err error
}

func (e *AcceptError) Error() string { return fmt.Sprintf("accept: %v", e.Err) }

func (e *AcceptError) Unwrap() error { return e.Err }

// RecvError is a failed read on an accepted connection. It ends Serve.
type RecvError struct {
	Remote string
	Err    error
}

func (e *RecvError) Error() string {
	return fmt.Sprintf("recv from %s: %v", e.Remote, e.Err)
}

func (e *RecvError) Unwrap() error { return e.Err }

// ListenerFailure is the terminal result of Serve. The owner decides what to
// do with it (exit, restart, ignore).
type ListenerFailure struct {
	Err error
}

func (e *ListenerFailure) Error() string {
	return fmt.Sprintf("listener failure: %v", e.Err)
}

func (e *ListenerFailure) Unwrap() error { return e.Err }
