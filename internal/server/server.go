// Package server wires the chat core together: it dispatches protocol
// requests from accepted connections onto the timeline, owns the
// controller/view pair, and runs the relay pump. Every state transition in
// the process funnels through the single timeline worker started here.
package server

import (
	"bufio"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chatd/internal/chat"
	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/journal"
	"github.com/adred-codev/chatd/internal/monitoring"
	"github.com/adred-codev/chatd/internal/relay"
	"github.com/adred-codev/chatd/internal/timeline"
	"github.com/adred-codev/chatd/internal/wire"
)

// Version is the fixed build identity reported by SERVER_INFO.
var Version = ident.Uuid{Generator: 1, Sequence: 0}

// Config holds the core server configuration.
type Config struct {
	// ServerID is this server's uuid generator component. Must be unique
	// across federated peers and stable across restarts.
	ServerID uint32

	// Secret authenticates this server to the relay. Opaque; only passed
	// through.
	Secret []byte

	// JournalPath is the transaction log location.
	JournalPath string

	// RelayRefresh is the pull interval; RelayPageSize the max bundles per
	// pull.
	RelayRefresh  time.Duration
	RelayPageSize int
}

const (
	defaultRelayRefresh  = 5000 * time.Millisecond
	defaultRelayPageSize = 32
)

type handlerFunc func(r *bufio.Reader, w *bufio.Writer) error

// Server is the chat core. All of its state is confined to the timeline
// worker; the only concurrency-safe entrypoint is HandleConnection (and
// Shutdown), which merely enqueue work.
type Server struct {
	cfg    Config
	logger zerolog.Logger

	timeline   *timeline.Timeline
	model      *chat.Model
	view       *chat.View
	controller *chat.Controller
	journal    *journal.Writer
	handlers   map[int32]handlerFunc

	relay    relay.Relay
	serverID ident.Uuid
	lastSeen ident.Uuid

	// fatal reports an unrecoverable fault (journal divergence). Replaced
	// in tests; defaults to logger.Fatal, which exits the process.
	fatal func(error)
}

// New builds a server, replaying any existing transaction log into the
// fresh model before the first connection can be handled. rel may be nil
// to run without federation.
func New(cfg Config, rel relay.Relay, logger zerolog.Logger) (*Server, error) {
	if cfg.RelayRefresh <= 0 {
		cfg.RelayRefresh = defaultRelayRefresh
	}
	if cfg.RelayPageSize <= 0 {
		cfg.RelayPageSize = defaultRelayPageSize
	}

	log, err := journal.OpenWriter(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	model := chat.NewModel()
	gen := ident.NewGenerator(cfg.ServerID)
	controller := chat.NewController(gen, model, countingAppender{log}, nil)
	view := chat.NewView(model, Version)

	s := &Server{
		cfg:        cfg,
		logger:     logger.With().Str("component", "server").Logger(),
		timeline:   timeline.New(logger),
		model:      model,
		view:       view,
		controller: controller,
		journal:    log,
		relay:      rel,
		serverID:   ident.Uuid{Generator: cfg.ServerID, Sequence: 0},
	}
	s.fatal = func(err error) {
		s.logger.Fatal().Err(err).Msg("Unrecoverable server fault")
	}
	s.handlers = s.buildHandlers()

	if err := journal.ReplayFile(cfg.JournalPath, controller.Replayer(), s.logger); err != nil {
		log.Close()
		return nil, err
	}
	return s, nil
}

// Start launches the timeline worker and, when federation is configured,
// the relay pump.
func (s *Server) Start() {
	go s.timeline.Run()
	if s.relay != nil {
		s.timeline.ScheduleNow(s.pumpRelay)
	}
	s.logger.Info().
		Uint32("server_id", s.cfg.ServerID).
		Bool("federated", s.relay != nil).
		Msg("Server started")
}

// Shutdown stops the timeline after the task in flight finishes and closes
// the journal. In-flight tasks run to completion; there is no cancellation.
func (s *Server) Shutdown() {
	s.timeline.Stop()
	if err := s.journal.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing transaction log")
	}
	s.logger.Info().Msg("Server stopped")
}

// View exposes the read side for in-process callers (tests, ops handlers).
// Reads race with timeline mutations unless called from a timeline task.
func (s *Server) View() *chat.View {
	return s.view
}

// HandleConnection accepts one connection from an ingress listener and
// enqueues its request/response exchange on the timeline. Safe to call
// from any goroutine.
func (s *Server) HandleConnection(conn io.ReadWriteCloser) {
	monitoring.RecordConnection()
	s.timeline.ScheduleNow(func() {
		s.serveConn(conn)
	})
}

// serveConn runs one request/response exchange. The connection is closed
// regardless of outcome, and no error escapes to the timeline worker.
func (s *Server) serveConn(conn io.ReadWriteCloser) {
	defer conn.Close()
	start := time.Now()

	br := bufio.NewReader(conn)
	opcode, err := wire.ReadInt32(br)
	if err != nil {
		monitoring.RecordRequest("NONE", "wire_error")
		s.logger.Warn().Err(err).Msg("Failed to read request opcode")
		return
	}

	name := OpcodeName(opcode)
	handler, ok := s.handlers[opcode]
	if !ok {
		// Reserved reply for opcodes this build does not understand.
		bw := bufio.NewWriter(conn)
		if err := wire.WriteInt32(bw, NoMessage); err == nil {
			bw.Flush()
		}
		monitoring.RecordRequest(name, "unknown_opcode")
		s.logger.Warn().Int32("opcode", opcode).Msg("Rejected unknown opcode")
		return
	}

	bw := bufio.NewWriter(conn)
	err = handler(br, bw)
	if err == nil {
		err = bw.Flush()
	}
	monitoring.ObserveRequestDuration(time.Since(start).Seconds())
	monitoring.SetTimelineDepth(s.timeline.Len())

	switch {
	case err == nil:
		monitoring.RecordRequest(name, "ok")
		s.logger.Debug().Str("opcode", name).Msg("Request served")
	case errors.Is(err, journal.ErrWrite):
		// The model has diverged from durable state; nothing sane to do.
		monitoring.RecordRequest(name, "journal_error")
		s.fatal(err)
	case errors.Is(err, wire.ErrFormat):
		monitoring.RecordRequest(name, "wire_error")
		s.logger.Warn().Str("opcode", name).Err(err).Msg("Malformed request")
	default:
		monitoring.RecordRequest(name, "io_error")
		s.logger.Warn().Str("opcode", name).Err(err).Msg("Connection error")
	}
}

// countingAppender wraps the journal writer with the append counter.
type countingAppender struct {
	w *journal.Writer
}

func (a countingAppender) Append(fields ...string) error {
	if err := a.w.Append(fields...); err != nil {
		return err
	}
	monitoring.RecordJournalAppend()
	return nil
}
