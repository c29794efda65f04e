package server

import (
	"context"

	"github.com/adred-codev/chatd/internal/chat"
	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/monitoring"
	"github.com/adred-codev/chatd/internal/relay"
)

// pumpRelay is the recurring federation task: pull a page of bundles since
// the cursor, materialize anything missing, advance the cursor per bundle,
// then reschedule. Failures are transient by policy; the pump just logs
// and tries again next tick.
func (s *Server) pumpRelay() {
	defer s.timeline.ScheduleIn(s.cfg.RelayRefresh, s.pumpRelay)

	s.logger.Debug().Stringer("last_seen", s.lastSeen).Msg("Reading update from relay")

	bundles, err := s.relay.Read(context.Background(), s.serverID, s.cfg.Secret, s.lastSeen, s.cfg.RelayPageSize)
	if err != nil {
		monitoring.RecordRelayFailure("read")
		s.logger.Warn().Err(err).Msg("Failed to read update from relay")
		return
	}

	for _, bundle := range bundles {
		s.applyBundle(bundle)
		s.lastSeen = bundle.ID
	}
}

// applyBundle materializes a bundle's user, conversation, and message in
// that order, skipping components the model already has. Applying the same
// bundle twice is therefore a no-op.
func (s *Server) applyBundle(bundle relay.Bundle) {
	user := s.view.FindUser(bundle.User.ID)
	if user == nil {
		var err error
		user, err = s.controller.AddUser(bundle.User.ID, bundle.User.Text, chat.Time(bundle.User.TimeMs))
		if err != nil {
			s.logger.Warn().Err(err).Stringer("bundle", bundle.ID).Msg("Skipping relay user")
			return
		}
	}

	conversation := s.view.FindConversation(bundle.Conversation.ID)
	if conversation == nil {
		// The relay does not say who created the conversation; the first
		// user seen with a message in it owns this server's copy.
		var err error
		conversation, err = s.controller.AddConversation(
			bundle.Conversation.ID, bundle.Conversation.Text, user.ID, chat.Time(bundle.Conversation.TimeMs))
		if err != nil {
			s.logger.Warn().Err(err).Stringer("bundle", bundle.ID).Msg("Skipping relay conversation")
			return
		}
	}

	if s.view.FindMessage(bundle.Message.ID) == nil {
		_, err := s.controller.AddMessage(
			bundle.Message.ID, user.ID, conversation.ID, bundle.Message.Text, chat.Time(bundle.Message.TimeMs))
		if err != nil {
			s.logger.Warn().Err(err).Stringer("bundle", bundle.ID).Msg("Skipping relay message")
			return
		}
	}
	monitoring.RecordRelayBundle()
}

// scheduleRelayWrite enqueues a best-effort push of a locally authored
// message. The message stays in the local model whether or not the relay
// accepts it.
func (s *Server) scheduleRelayWrite(authorID, conversationID, messageID ident.Uuid) {
	s.timeline.ScheduleNow(func() {
		author := s.view.FindUser(authorID)
		conversation := s.view.FindConversation(conversationID)
		message := s.view.FindMessage(messageID)
		if author == nil || conversation == nil || message == nil {
			s.logger.Warn().Stringer("message", messageID).Msg("Relay write skipped, entity vanished")
			return
		}

		err := s.relay.Write(context.Background(), s.serverID, s.cfg.Secret,
			relay.Component{ID: author.ID, Text: author.Name, TimeMs: author.Creation.Ms()},
			relay.Component{ID: conversation.ID, Text: conversation.Title, TimeMs: conversation.Creation.Ms()},
			relay.Component{ID: message.ID, Text: message.Content, TimeMs: message.Creation.Ms()},
		)
		if err != nil {
			monitoring.RecordRelayFailure("write")
			s.logger.Warn().Err(err).Stringer("message", messageID).Msg("Failed to write message to relay")
			return
		}
		monitoring.RecordRelayWrite()
	})
}
