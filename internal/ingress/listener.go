// Package ingress owns the accept loops. Listeners are pure producers:
// they accept a socket, apply connection rate limits, and hand the stream
// to the dispatcher without reading a single protocol byte themselves.
package ingress

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chatd/internal/monitoring"
)

// Handler receives accepted connections. The dispatcher owns the
// connection from this point, including closing it.
type Handler func(conn io.ReadWriteCloser)

// TCPListener accepts raw protocol connections.
type TCPListener struct {
	addr    string
	handler Handler
	limiter *RateLimiter
	logger  zerolog.Logger

	listener net.Listener
}

// NewTCPListener creates a listener for addr. limiter may be nil to accept
// unconditionally.
func NewTCPListener(addr string, handler Handler, limiter *RateLimiter, logger zerolog.Logger) *TCPListener {
	return &TCPListener{
		addr:    addr,
		handler: handler,
		limiter: limiter,
		logger:  logger.With().Str("component", "tcp_ingress").Logger(),
	}
}

// Run accepts until ctx is done. Blocks; run on its own goroutine.
func (l *TCPListener) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.listener = listener
	l.logger.Info().Str("addr", l.addr).Msg("Listening for protocol connections")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn().Err(err).Msg("Accept failed")
			continue
		}
		if !l.allow(conn) {
			continue
		}
		l.handler(conn)
	}
}

func (l *TCPListener) allow(conn net.Conn) bool {
	if l.limiter == nil {
		return true
	}
	ip := remoteIP(conn)
	if l.limiter.Allow(ip) {
		return true
	}
	monitoring.RecordConnectionRejected("rate_limited")
	conn.Close()
	return false
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
