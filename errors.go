package framed

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrReset is returned (wrapped in an *Error of KindReset) when the peer
// closes the stream while a partially delivered message is still buffered.
// Use errors.Is(err, ErrReset) to distinguish it from an orderly close,
// which Receive reports as (false, nil) rather than as an error.
var ErrReset = errors.New("connection reset by peer")

// Kind classifies a connection failure.
type Kind int

const (
	// KindIO indicates a transport-level read, write or flush failure.
	KindIO Kind = iota
	// KindEncoding indicates a value that could not be serialized.
	KindEncoding
	// KindDecoding indicates buffered bytes that can never decode into a
	// value, no matter how many more bytes arrive.
	KindDecoding
	// KindReset indicates the peer closed the stream mid-message.
	KindReset
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindEncoding:
		return "encoding"
	case KindDecoding:
		return "decoding"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Error is the failure type returned by Send and Receive. Every kind is
// fatal to the connection: after any *Error the receive buffer can no
// longer be trusted to sit at a message boundary and the caller must
// discard the connection. This package never retries or reconnects.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Op is the operation that failed, "send" or "receive".
	Op string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("framed: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause, making the error compatible with
// errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}
