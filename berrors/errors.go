// Package berrors provides the BRSKI-PRM error taxonomy. It extends the
// coarse ErrorType/BoulderError split this repository has always used
// (see the original errors package) with the kinds spec.md §7 requires
// for a signed-artifact pipeline.
package berrors

import (
	"errors"
	"fmt"
)

// ErrorType provides a coarse category for Errors, used to pick an HTTP
// status code (web.SendError). The orchestrator does not retry on any
// type.
type ErrorType int

const (
	// Internal indicates an unexpected inconsistency that must never
	// surface to users except as a logged bug.
	Internal ErrorType = iota
	// Malformed indicates artifact bytes that do not parse, a required
	// field that is missing, or a structural invariant violation.
	Malformed
	// SignatureInvalid indicates an envelope that parses but whose
	// signature does not verify.
	SignatureInvalid
	// PolicyViolation indicates a verified artifact that violates a
	// cross-field rule (e.g. serial mismatch between cert and body).
	PolicyViolation
	// Transport indicates a network failure, timeout, or non-2xx HTTP
	// status received from a peer.
	Transport
	// UnsupportedMediaType indicates the request Content-Type did not
	// match what the endpoint accepts.
	UnsupportedMediaType
	// NotAcceptable indicates the request Accept header could not be
	// satisfied.
	NotAcceptable
	// CryptoUnavailable indicates the requested algorithm is not
	// provided by the platform.
	CryptoUnavailable
	// Cancelled indicates the session was cancelled by its caller.
	Cancelled
)

func (et ErrorType) String() string {
	switch et {
	case Malformed:
		return "Malformed"
	case SignatureInvalid:
		return "SignatureInvalid"
	case PolicyViolation:
		return "PolicyViolation"
	case Transport:
		return "Transport"
	case UnsupportedMediaType:
		return "UnsupportedMediaType"
	case NotAcceptable:
		return "NotAcceptable"
	case CryptoUnavailable:
		return "CryptoUnavailable"
	case Cancelled:
		return "Cancelled"
	default:
		return "Internal"
	}
}

// Error represents a BRSKI-PRM error: a coarse Type plus a detail
// message safe to show to the other party (never includes which
// signature failed, per spec.md §7 "do not leak which signature
// failed").
type Error struct {
	Type   ErrorType
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

// New creates an Error of the given type.
func New(et ErrorType, msg string, args ...interface{}) error {
	return &Error{Type: et, Detail: fmt.Sprintf(msg, args...)}
}

// Is reports whether err is an *Error of type et.
func Is(err error, et ErrorType) bool {
	var berr *Error
	if !errors.As(err, &berr) {
		return false
	}
	return berr.Type == et
}

// As unwraps err looking for a *Error, delegating to the standard
// library's errors.As so wrapped errors are still recognized.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

func MalformedError(msg string, args ...interface{}) error {
	return New(Malformed, msg, args...)
}

func SignatureInvalidError(msg string, args ...interface{}) error {
	return New(SignatureInvalid, msg, args...)
}

func PolicyViolationError(msg string, args ...interface{}) error {
	return New(PolicyViolation, msg, args...)
}

func TransportError(msg string, args ...interface{}) error {
	return New(Transport, msg, args...)
}

func UnsupportedMediaTypeError(msg string, args ...interface{}) error {
	return New(UnsupportedMediaType, msg, args...)
}

func NotAcceptableError(msg string, args ...interface{}) error {
	return New(NotAcceptable, msg, args...)
}

func CryptoUnavailableError(msg string, args ...interface{}) error {
	return New(CryptoUnavailable, msg, args...)
}

func CancelledError(msg string, args ...interface{}) error {
	return New(Cancelled, msg, args...)
}

func InternalError(msg string, args ...interface{}) error {
	return New(Internal, msg, args...)
}
