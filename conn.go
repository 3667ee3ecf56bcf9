// Package framed exchanges discrete typed values over a reliable ordered
// byte stream such as a TCP connection. Values are serialized with a
// self-delimiting binary codec (CBOR by default), so neither peer needs
// delimiter or length-prefix logic: the receiver accumulates bytes in a
// growable buffer and optimistically decodes from its front, asking the
// stream for more bytes only when the codec reports that the buffered
// prefix is incomplete.
package framed

import (
	"bufio"
	"io"
	"net"

	"github.com/pkg/errors"
)

// defaultBufferCapacity is the initial size of the receive buffer (4KB).
// It is a hint, not a cap; the buffer grows as needed.
const defaultBufferCapacity = 4 * 1024

// Conn is a framed connection over a duplex byte stream. It exclusively
// owns the stream and a single receive buffer, and performs no internal
// locking: at most one Send and one Receive may be in flight at a time.
// One goroutine sending while another receives is the supported
// concurrent pattern, since the two paths touch disjoint state;
// concurrent calls in the same direction are undefined.
type Conn struct {
	rawConn net.Conn
	writer  *bufio.Writer

	// buf accumulates bytes read from the stream that have not yet been
	// consumed into a decoded value. It is only ever appended at the
	// tail by fill and drained from the front on a successful decode.
	buf []byte

	opts   options
	logger Logger
}

// Dial connects to a TCP address and returns a framed connection over it.
// The dial timeout is configurable with DialTimeoutOption.
func Dial(addr string, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	rawConn, err := net.DialTimeout("tcp", addr, opts.dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	opts.logger.Info("connection established", "addr", rawConn.RemoteAddr())
	return newConnWithOptions(rawConn, opts), nil
}

// NewConn wraps an already-established duplex stream. Establishing or
// accepting the raw connection is the caller's responsibility; NewConn
// only takes ownership of an open one. The write side is buffered so a
// single Send issues a minimal number of underlying writes, and Send
// flushes explicitly so no message lingers in the write buffer.
func NewConn(conn net.Conn, opt ...Option) *Conn {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return newConnWithOptions(conn, opts)
}

func newConnWithOptions(conn net.Conn, opts options) *Conn {
	return &Conn{
		rawConn: conn,
		writer:  bufio.NewWriterSize(conn, opts.bufferCapacity),
		buf:     make([]byte, 0, opts.bufferCapacity),
		opts:    opts,
		logger:  opts.logger,
	}
}

// Send encodes value with the connection's codec and writes the whole
// byte sequence to the stream, flushing before returning. It returns nil
// only once every byte has been handed to the stream.
//
// A failed Send leaves the connection in an indeterminate state; no retry
// is performed here, the caller decides whether to reconnect.
func (c *Conn) Send(value any) error {
	data, err := c.opts.codec.Encode(value)
	if err != nil {
		return &Error{Kind: KindEncoding, Op: "send", Err: err}
	}

	if _, err = c.writer.Write(data); err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		return &Error{Kind: KindIO, Op: "send", Err: err}
	}
	if err = c.writer.Flush(); err != nil {
		c.logger.Debug("flush error", "addr", c.Addr(), "error", err)
		return &Error{Kind: KindIO, Op: "send", Err: err}
	}

	return nil
}

// Receive reads the next value from the connection into value, which must
// be a non-nil pointer. It blocks until a complete value has arrived, the
// peer closes the stream, or an error occurs.
//
// The return value distinguishes three outcomes:
//   - (true, nil): a value was decoded into the target;
//   - (false, nil): orderly close, the peer ended the stream with no
//     undelivered partial message; no more values will arrive;
//   - (false, err): the connection failed; err is an *Error whose Kind
//     reports whether the transport failed, the buffered bytes were
//     malformed, or the peer reset mid-message.
func (c *Conn) Receive(value any) (bool, error) {
	for {
		if len(c.buf) > 0 {
			consumed, err := c.opts.codec.Decode(c.buf, value)
			switch {
			case err == nil:
				// Drain exactly the consumed prefix. Bytes past it belong
				// to the next message: the peer may have pipelined several
				// messages into one read, so clearing the whole buffer
				// here would silently drop them.
				c.buf = c.buf[:copy(c.buf, c.buf[consumed:])]
				return true, nil
			case !errors.Is(err, ErrIncomplete):
				c.logger.Debug("malformed message", "addr", c.Addr(), "buffered", len(c.buf), "error", err)
				return false, &Error{Kind: KindDecoding, Op: "receive", Err: err}
			}
		}

		if err := c.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				if len(c.buf) == 0 {
					return false, nil
				}
				c.logger.Debug("peer closed mid-message", "addr", c.Addr(), "buffered", len(c.buf))
				return false, &Error{Kind: KindReset, Op: "receive", Err: ErrReset}
			}
			return false, &Error{Kind: KindIO, Op: "receive", Err: err}
		}
	}
}

// fill issues one read from the stream and appends whatever arrives at
// the buffer tail, growing the buffer when it is full. If bytes arrived
// alongside an error, the error is deferred until the next fill so the
// bytes get a decode attempt first.
func (c *Conn) fill() error {
	if len(c.buf) == cap(c.buf) {
		grown := make([]byte, len(c.buf), 2*cap(c.buf))
		copy(grown, c.buf)
		c.buf = grown
	}

	n, err := c.rawConn.Read(c.buf[len(c.buf):cap(c.buf)])
	c.buf = c.buf[:len(c.buf)+n]
	if n > 0 {
		return nil
	}
	return err
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// Close closes the underlying stream. Any blocked Send or Receive on the
// connection will return with an error.
func (c *Conn) Close() error {
	return c.rawConn.Close()
}
