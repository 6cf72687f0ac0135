// Package errs defines the error taxonomy shared by every ratchetcore
// component, so a host binding can switch on a stable Kind regardless of
// which layer produced the failure.
package errs

import "fmt"

// Kind names one of the failure modes ratchetcore exposes to callers.
// Kinds are part of the public contract; do not reorder or reuse values.
type Kind int

const (
	// Unknown is never returned; it catches a zero-value Kind used by mistake.
	Unknown Kind = iota

	// InitializationFailed means keygen or signing failed during construction. Fatal.
	InitializationFailed

	// BadBundle means malformed bytes, wrong lengths, or an unknown field encoding.
	BadBundle

	// BadSignature means a signed prekey signature did not verify.
	BadSignature

	// SuiteMismatch means a peer or envelope suite_id differs from the session/core.
	SuiteMismatch

	// SessionNotFound means the handle or contact_id is unknown.
	SessionNotFound

	// TooManySkipped means admitting a message would exceed MaxSkippedKeys.
	TooManySkipped

	// DecryptionFailed means AEAD authentication failed; no further detail is exposed.
	DecryptionFailed

	// InvalidKeyData means a key had the wrong length, or a DH produced a degenerate result.
	InvalidKeyData
)

func (k Kind) String() string {
	switch k {
	case InitializationFailed:
		return "InitializationFailed"
	case BadBundle:
		return "BadBundle"
	case BadSignature:
		return "BadSignature"
	case SuiteMismatch:
		return "SuiteMismatch"
	case SessionNotFound:
		return "SessionNotFound"
	case TooManySkipped:
		return "TooManySkipped"
	case DecryptionFailed:
		return "DecryptionFailed"
	case InvalidKeyData:
		return "InvalidKeyData"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with context and an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// use errors.Is(err, errs.New(errs.DecryptionFailed, "")) as a kind check,
// or more idiomatically errs.Has(err, errs.DecryptionFailed).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Has reports whether err is, or wraps, an *Error of the given kind.
func Has(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf returns the Kind of err if it is, or wraps, an *Error, and ok=true;
// otherwise it returns (Unknown, false).
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return Unknown, false
		}
		err = u.Unwrap()
	}
	return Unknown, false
}
