package session

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPoisoned is returned by a session that failed before.
// The failure that poisoned it is wrapped along.
var ErrPoisoned = errors.New("session is poisoned")

// ConnectionError reports a failure to establish the secure stream,
// either at the dial or at the handshake.
type ConnectionError struct {
	Addr  string
	Stage string // "dial" or "handshake"
	cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: %s %s: %s", e.Stage, e.Addr, e.cause)
}

func (e *ConnectionError) Cause() error  { return e.cause }
func (e *ConnectionError) Unwrap() error { return e.cause }

// IoError reports a failed read or write on an established stream.
// The session is poisoned when it is raised.
type IoError struct {
	Op    string // "read" or "write"
	cause error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("session: %s: %s", e.Op, e.cause)
}

func (e *IoError) Cause() error  { return e.cause }
func (e *IoError) Unwrap() error { return e.cause }

type poisonedError struct {
	cause error
}

func (e *poisonedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPoisoned, e.cause)
}

func (e *poisonedError) Unwrap() []error { return []error{ErrPoisoned, e.cause} }
