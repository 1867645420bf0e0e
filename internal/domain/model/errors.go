package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by the producer when the broker link is down.
	ErrNotConnected = errors.New("not connected")

	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("not found")
)

// ConnectivityError marks a broker or transport that could not be reached.
// It is recovered by reconnecting and never terminates the process.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ValidationError marks a malformed event. The message carrying it is
// left unacknowledged and is not retried in-process.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q %s", e.Field, e.Reason)
}

// PersistenceError marks a failed store write. The message carrying it is
// left unacknowledged so the broker redelivers it.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProtocolError marks a malformed streaming frame. It is logged and the
// connection is kept.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
