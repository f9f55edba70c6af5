// Package errkind categorizes the errors a base client can return so that
// callers can branch on "what kind of thing went wrong" without string
// matching. Modelled on the tagged {OK, Value} | {OK=false, Message} return
// values of the system this client talks to: nothing here is an exception
// at a public boundary, it's always a categorized error value.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the category of a base-client failure.
type Kind int

const (
	// OK is the zero value: no error.
	OK = Kind(iota)
	// InitFailed means a step of the client's initialization pipeline failed.
	// It sticks to the client and is replayed by every later public operation.
	InitFailed
	// URLNotFound means discovery produced no candidate URL for the service.
	URLNotFound
	// URLMalformed means a discovered URL could not be split into a 4-tuple.
	URLMalformed
	// InvalidProxy means proxy-chain flattening failed.
	InvalidProxy
	// InsaneTransport means the protocol's sanity check failed at construction.
	InsaneTransport
	// ConnectFailed means the connect retry budget was exhausted.
	ConnectFailed
	// SendFailed means a transport-level send failed during action proposal
	// or delegation.
	SendFailed
	// ReceiveFailed means a transport-level receive failed during action
	// proposal or delegation.
	ReceiveFailed
	// DelegationFailed means the protocol's delegation helper, or the
	// server, rejected a delegation attempt.
	DelegationFailed
	// ThreadAffinityViolation means an operation was observed from a task
	// other than the one that first used the client. Per spec, this is
	// warn-only and is never returned as an error today; the kind exists so
	// a future caller can upgrade the guard to a hard failure without
	// inventing a new category.
	ThreadAffinityViolation
	// Unknown is any error not produced by this package.
	Unknown
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case InitFailed:
		return "InitFailed"
	case URLNotFound:
		return "URLNotFound"
	case URLMalformed:
		return "URLMalformed"
	case InvalidProxy:
		return "InvalidProxy"
	case InsaneTransport:
		return "InsaneTransport"
	case ConnectFailed:
		return "ConnectFailed"
	case SendFailed:
		return "SendFailed"
	case ReceiveFailed:
		return "ReceiveFailed"
	case DelegationFailed:
		return "DelegationFailed"
	case ThreadAffinityViolation:
		return "ThreadAffinityViolation"
	default:
		return "Unknown"
	}
}

type categorized struct {
	error
	kind Kind
}

// New wraps err (or, if err is nil, returns nil) with the given kind.
func (k Kind) New(err error) error {
	if err == nil {
		return nil
	}
	return &categorized{error: err, kind: k}
}

// Newf builds a categorized error from a format string, the way
// fmt.Errorf does, so %w still works for wrapping an inner cause.
func (k Kind) Newf(format string, a ...interface{}) error {
	return &categorized{error: fmt.Errorf(format, a...), kind: k}
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (ce *categorized) Unwrap() error {
	return ce.error
}

// GetKind returns err's Kind, OK for a nil error, and Unknown for any error
// not produced by this package.
func GetKind(err error) Kind {
	if err == nil {
		return OK
	}
	for {
		if ce, ok := err.(*categorized); ok {
			return ce.kind
		}
		var next error
		if next = errors.Unwrap(err); next == nil {
			return Unknown
		}
		err = next
	}
}

// Is reports whether err is categorized as kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
