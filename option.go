package framed

import (
	"time"
)

// defaultDialTimeout bounds how long Dial waits for the TCP handshake.
const defaultDialTimeout = 10 * time.Second

// options holds the configuration for a connection.
type options struct {
	codec  Codec
	logger Logger

	bufferCapacity int           // initial receive buffer capacity
	dialTimeout    time.Duration // TCP connect timeout for Dial
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the wire codec.
// The default is CBORCodec; any codec honoring the Codec contract
// (in particular the incomplete/malformed distinction) can be used.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferCapacityOption returns an Option that sets the initial capacity
// of the receive buffer. It is a sizing hint, not a limit: the buffer
// grows past it when a message needs more room.
func BufferCapacityOption(capacity int) Option {
	return func(o *options) {
		o.bufferCapacity = capacity
	}
}

// DialTimeoutOption returns an Option that sets the TCP connect timeout
// used by Dial. It has no effect on connections wrapped with NewConn.
func DialTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// checkOptions fills in default values for unset connection options.
func checkOptions(opts *options) {
	if opts.codec == nil {
		opts.codec = CBORCodec{}
	}

	if opts.bufferCapacity <= 0 {
		opts.bufferCapacity = defaultBufferCapacity
	}

	if opts.dialTimeout <= 0 {
		opts.dialTimeout = defaultDialTimeout
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}
