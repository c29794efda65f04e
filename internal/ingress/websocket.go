package ingress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred-codev/chatd/internal/monitoring"
)

// WSListener accepts WebSocket connections carrying the same binary
// protocol as the TCP listener: one binary client message holds the whole
// request, one binary server message carries the whole response.
type WSListener struct {
	addr    string
	handler Handler
	limiter *RateLimiter
	logger  zerolog.Logger
}

// NewWSListener creates a WebSocket listener for addr.
func NewWSListener(addr string, handler Handler, limiter *RateLimiter, logger zerolog.Logger) *WSListener {
	return &WSListener{
		addr:    addr,
		handler: handler,
		limiter: limiter,
		logger:  logger.With().Str("component", "ws_ingress").Logger(),
	}
}

// Run accepts until ctx is done. Blocks; run on its own goroutine.
func (l *WSListener) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.logger.Info().Str("addr", l.addr).Msg("Listening for WebSocket connections")

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
		if l.limiter != nil && !l.limiter.Allow(remoteIP(conn)) {
			monitoring.RecordConnectionRejected("rate_limited")
			conn.Close()
			continue
		}
		go l.upgrade(conn)
	}
}

// upgrade completes the WebSocket handshake off the accept loop, then hands
// the wrapped stream to the dispatcher.
func (l *WSListener) upgrade(conn net.Conn) {
	if _, err := ws.Upgrade(conn); err != nil {
		monitoring.RecordConnectionRejected("handshake_failed")
		l.logger.Warn().Err(err).Msg("WebSocket handshake failed")
		conn.Close()
		return
	}
	l.handler(newWSConn(conn))
}

// wsConn adapts a WebSocket connection to the byte-stream contract the
// dispatcher expects. The request frame is read lazily on first Read;
// writes buffer until Close, which sends the response as a single binary
// message before closing the socket.
type wsConn struct {
	conn net.Conn

	request  *bytes.Reader
	response bytes.Buffer
	closed   bool
}

func newWSConn(conn net.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(p []byte) (int, error) {
	if c.request == nil {
		data, err := wsutil.ReadClientBinary(c.conn)
		if err != nil {
			return 0, err
		}
		c.request = bytes.NewReader(data)
	}
	return c.request.Read(p)
}

func (c *wsConn) Write(p []byte) (int, error) {
	return c.response.Write(p)
}

func (c *wsConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.response.Len() > 0 {
		if err := wsutil.WriteServerBinary(c.conn, c.response.Bytes()); err != nil {
			c.conn.Close()
			return err
		}
	}
	return c.conn.Close()
}

var _ io.ReadWriteCloser = (*wsConn)(nil)
