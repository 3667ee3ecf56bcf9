package framed

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// ErrIncomplete is returned by Codec.Decode when the buffer holds a valid
// but incomplete prefix of an encoded value. It is the one recoverable
// decode outcome: Receive responds to it by reading more bytes from the
// stream and trying again. Any other decode error is treated as malformed
// data and fails the connection.
var ErrIncomplete = errors.New("incomplete value")

// Codec is the interface for the self-delimiting binary encoding used on
// the wire. The encoding must determine its own length when decoding, so
// that no separate length prefix is needed.
//
// Decode must distinguish three outcomes:
//   - the buffer starts with a complete value: decode it into v and
//     return the number of bytes it occupied;
//   - the buffer is a valid prefix of a value that is not all there yet:
//     return ErrIncomplete;
//   - the buffer can never decode no matter what arrives later: return
//     any other error.
//
// Collapsing the last two outcomes would make Receive read forever on
// garbage input, so a substitute codec must preserve the distinction.
type Codec interface {
	// Encode serializes v into a self-delimiting byte sequence.
	Encode(v any) ([]byte, error)
	// Decode attempts to decode one complete value from the front of buf
	// into v, which must be a non-nil pointer. It returns the number of
	// bytes consumed; bytes past the consumed prefix belong to the next
	// value and are left alone.
	Decode(buf []byte, v any) (int, error)
}

// CBORCodec is the default codec. CBOR is self-delimiting and the decoder
// checks well-formedness before filling in v, so a truncated buffer is
// reported as incomplete without partially writing the target.
type CBORCodec struct{}

// Encode serializes v to canonical CBOR bytes.
func (CBORCodec) Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// Decode decodes the first complete CBOR data item in buf into v.
func (CBORCodec) Decode(buf []byte, v any) (int, error) {
	rest, err := cbor.UnmarshalFirst(buf, v)
	if err != nil {
		// The decoder reports truncated input as an unexpected EOF and
		// an empty buffer as EOF; both mean "keep reading".
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, ErrIncomplete
		}
		return 0, err
	}
	return len(buf) - len(rest), nil
}
