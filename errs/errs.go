// Package errs defines the closed set of error kinds shared by every
// core component, so a caller can errors.Is/As regardless of which
// subsystem raised the failure.
package errs

import "fmt"

// Kind identifies which of the documented failure modes occurred.
type Kind int

const (
	// MalformedBencode is returned by the bencode decoder when the
	// input is not a well-formed bencoding.
	MalformedBencode Kind = iota
	// MalformedTorrent is returned by the metainfo parser when a
	// required key is missing or has the wrong bencode variant.
	MalformedTorrent
	// UnsupportedScheme is returned when a tracker URL uses a scheme
	// other than http, https, udp, udp4 or udp6.
	UnsupportedScheme
	// TrackerTimeout is returned when a tracker request exceeds its
	// deadline without a response. The HTTP and UDP subdrivers also
	// report other transport errors that persist through their
	// retries under this kind.
	TrackerTimeout
	// TrackerProtocolError is returned when a tracker's response does
	// not follow the wire format it is supposed to.
	TrackerProtocolError
	// TrackerRejected is returned when a tracker explicitly reports a
	// failure reason.
	TrackerRejected
	// PeerUnreachable is returned when a TCP connection to a peer
	// cannot be established.
	PeerUnreachable
	// HandshakeMismatch is returned when a peer's handshake carries a
	// different info-hash than expected.
	HandshakeMismatch
	// PeerProtocolError is returned for wire-level violations that
	// are fatal to the session (as opposed to malformed individual
	// messages, which are skipped rather than erroring).
	PeerProtocolError
	// IoError wraps an underlying filesystem or socket error that
	// does not otherwise fit one of the kinds above.
	IoError
)

func (k Kind) String() string {
	switch k {
	case MalformedBencode:
		return "MalformedBencode"
	case MalformedTorrent:
		return "MalformedTorrent"
	case UnsupportedScheme:
		return "UnsupportedScheme"
	case TrackerTimeout:
		return "TrackerTimeout"
	case TrackerProtocolError:
		return "TrackerProtocolError"
	case TrackerRejected:
		return "TrackerRejected"
	case PeerUnreachable:
		return "PeerUnreachable"
	case HandshakeMismatch:
		return "HandshakeMismatch"
	case PeerProtocolError:
		return "PeerProtocolError"
	case IoError:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type returned by every core package.
// It carries the Kind so that errors.Is(err, errs.Of(kind)) style
// checks work, and wraps an optional underlying cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// New builds an Error of the given kind, optionally wrapping cause.
func New(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

func (e *Error) Error() string {
	if e.Reason == "" && e.Err == nil {
		return e.Kind.String()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, &Error{Kind: HandshakeMismatch}) works without
// requiring Reason/Err to match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Of builds a sentinel of a given kind for use with errors.Is.
func Of(kind Kind) *Error {
	return &Error{Kind: kind}
}
