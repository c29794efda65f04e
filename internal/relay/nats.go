package relay

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/wire"
)

const (
	// Relay request/reply subjects, under a configurable prefix.
	readSubject  = "read"
	writeSubject = "write"

	requestTimeout = 5 * time.Second
)

// NATSRelay talks to a relay service over NATS request/reply. Payloads use
// the same binary codec as the client protocol.
//
// Read request:  serverID UUID, secret BYTES, since UUID, max INTEGER
// Read reply:    COLLECTION(Bundle)
// Write request: serverID UUID, secret BYTES, user/conversation/message Components
// Write reply:   BOOLEAN ok
type NATSRelay struct {
	conn    *nats.Conn
	prefix  string
	logger  zerolog.Logger
	ownConn bool
}

// NATSConfig configures the relay client.
type NATSConfig struct {
	URL           string // NATS server URL, e.g. nats://localhost:4222
	SubjectPrefix string // subject prefix, default "chat.relay"
	Logger        zerolog.Logger
}

// DialNATS connects to the relay bus. Reconnects retry forever with a
// capped wait, so a relay outage never takes the chat server down.
func DialNATS(cfg NATSConfig) (*NATSRelay, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "chat.relay"
	}
	logger := cfg.Logger.With().Str("component", "relay").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("Relay bus disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("Relay bus reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay: connect %s: %w", cfg.URL, err)
	}

	logger.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("Connected to relay bus")
	return &NATSRelay{conn: conn, prefix: cfg.SubjectPrefix, logger: logger, ownConn: true}, nil
}

// Read implements Relay.
func (r *NATSRelay) Read(ctx context.Context, serverID ident.Uuid, secret []byte, since ident.Uuid, max int) ([]Bundle, error) {
	var req bytes.Buffer
	if err := ident.Write(&req, serverID); err != nil {
		return nil, err
	}
	if err := wire.WriteBytes(&req, secret); err != nil {
		return nil, err
	}
	if err := ident.Write(&req, since); err != nil {
		return nil, err
	}
	if err := wire.WriteInt32(&req, int32(max)); err != nil {
		return nil, err
	}

	msg, err := r.request(ctx, r.prefix+"."+readSubject, req.Bytes())
	if err != nil {
		return nil, fmt.Errorf("relay: read: %w", err)
	}

	bundles, err := wire.ReadCollection(bytes.NewReader(msg.Data), ReadBundle)
	if err != nil {
		return nil, fmt.Errorf("relay: read reply: %w", err)
	}
	return bundles, nil
}

// Write implements Relay.
func (r *NATSRelay) Write(ctx context.Context, serverID ident.Uuid, secret []byte, user, conversation, message Component) error {
	var req bytes.Buffer
	if err := ident.Write(&req, serverID); err != nil {
		return err
	}
	if err := wire.WriteBytes(&req, secret); err != nil {
		return err
	}
	for _, c := range []Component{user, conversation, message} {
		if err := WriteComponent(&req, c); err != nil {
			return err
		}
	}

	msg, err := r.request(ctx, r.prefix+"."+writeSubject, req.Bytes())
	if err != nil {
		return fmt.Errorf("relay: write: %w", err)
	}
	ok, err := wire.ReadBool(bytes.NewReader(msg.Data))
	if err != nil {
		return fmt.Errorf("relay: write reply: %w", err)
	}
	if !ok {
		return fmt.Errorf("relay: write rejected by relay")
	}
	return nil
}

func (r *NATSRelay) request(ctx context.Context, subject string, data []byte) (*nats.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return r.conn.RequestWithContext(ctx, subject, data)
}

// Close drains the connection.
func (r *NATSRelay) Close() {
	if r.ownConn && r.conn != nil {
		r.conn.Close()
	}
}
