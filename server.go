package framed

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Handler is the interface for serving accepted framed connections.
type Handler interface {
	// Handle is called once per accepted connection, on its own
	// goroutine. The connection is closed when Handle returns.
	Handle(conn *Conn) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(conn *Conn) error

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *Conn) error {
	return f(conn)
}

// Server accepts TCP connections and wraps each one as a framed *Conn.
// It is a convenience around the core: the framing layer itself only
// consumes already-open streams, so applications with their own accept
// loop can skip the Server and call NewConn directly.
type Server struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration
	connOpts        []Option

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerConnOptions sets the connection options (codec, buffer capacity,
// logger) applied to every accepted connection.
func ServerConnOptions(opt ...Option) ServerOption {
	return func(s *Server) {
		s.connOpts = opt
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context passed to Serve is canceled, the server waits up to
// this duration before closing the listener, giving in-flight handlers
// time to finish their conversations. Default is 0 (immediate shutdown);
// Close bypasses any remaining timeout.
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// Listen binds a TCP listener on addr and returns a server for it.
func Listen(addr string, opts ...ServerOption) (*Server, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", addr)
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		listener:    listener,
		logger:      defaultLogger(),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Accept waits for the next incoming connection and returns it wrapped
// as a framed *Conn with the server's connection options.
func (s *Server) Accept() (*Conn, error) {
	rawConn, err := s.listener.AcceptTCP()
	if err != nil {
		return nil, errors.Wrap(err, "accept")
	}

	_ = rawConn.SetNoDelay(true)
	return NewConn(rawConn, s.connOpts...), nil
}

// Serve accepts connections and dispatches each to the handler on its
// own goroutine until the context is canceled or an unrecoverable accept
// error occurs. Handler goroutines are tracked; once the accept loop
// stops, Serve waits for all of them to return and reports the first
// handler error, if any.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	// Unblock Accept when the context is canceled, after an optional
	// grace period that Close can cut short.
	go func() {
		<-ctx.Done()

		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = s.listener.SetDeadline(time.Now())
	}()

	var handlers errgroup.Group
	for {
		conn, err := s.Accept()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				if handlerErr := handlers.Wait(); handlerErr != nil {
					return handlerErr
				}
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			_ = handlers.Wait()
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.Addr())
		handlers.Go(func() error {
			defer conn.Close()

			if err := handler.Handle(conn); err != nil {
				s.logger.Info("connection closed with error", "addr", conn.Addr(), "error", err)
				return err
			}
			s.logger.Info("connection closed", "addr", conn.Addr())
			return nil
		})
	}
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close bypasses the remaining
// timeout. Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
		// Channel already has a signal or no one is listening
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
