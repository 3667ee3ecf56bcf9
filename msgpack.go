package framed

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes values as MessagePack. Like CBOR it is
// self-delimiting, so it satisfies the Codec contract without a length
// prefix. Pick it with CustomCodecOption when the peer speaks msgpack.
type MsgpackCodec struct{}

// Encode serializes v to MessagePack bytes.
func (MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode decodes the first complete MessagePack value in buf into v.
// The consumed count is derived from the reader position; bytes.Reader
// implements io.ByteScanner, so the decoder reads exactly one value and
// never buffers ahead.
func (MsgpackCodec) Decode(buf []byte, v any) (int, error) {
	reader := bytes.NewReader(buf)
	if err := msgpack.NewDecoder(reader).Decode(v); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, ErrIncomplete
		}
		return 0, err
	}
	return len(buf) - reader.Len(), nil
}
