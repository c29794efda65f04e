package server

import (
	"bufio"
	"errors"
	"io"

	"github.com/adred-codev/chatd/internal/chat"
	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/wire"
)

// buildHandlers assembles the fixed opcode→handler table. Each handler
// reads its request body, performs the controller/view call, and writes the
// response opcode followed by the response body. Domain-level "absent"
// surfaces as a NULLABLE empty payload, never as an error.
func (s *Server) buildHandlers() map[int32]handlerFunc {
	return map[int32]handlerFunc{
		NewMessageRequest:                 s.handleNewMessage,
		NewUserRequest:                    s.handleNewUser,
		NewConversationRequest:            s.handleNewConversation,
		GetUsersRequest:                   s.handleGetUsers,
		GetAllConversationsRequest:        s.handleGetAllConversations,
		GetConversationsByIDRequest:       s.handleGetConversationsByID,
		GetMessagesByIDRequest:            s.handleGetMessagesByID,
		ServerInfoRequest:                 s.handleServerInfo,
		GetConversationInterestsRequest:   s.handleGetConversationInterests,
		NewConversationInterestRequest:    s.handleNewConversationInterest,
		RemoveConversationInterestRequest: s.handleRemoveConversationInterest,
		GetUserInterestsRequest:           s.handleGetUserInterests,
		NewUserInterestRequest:            s.handleNewUserInterest,
		RemoveUserInterestRequest:         s.handleRemoveUserInterest,
		NewUpdatedConversationRequest:     s.handleNewUpdatedConversation,
		GetUpdatedConversationsRequest:    s.handleGetUpdatedConversations,
		UpdateUserLastStatusUpdateRequest: s.handleUpdateUserLastStatusUpdate,
		GetUserLastStatusUpdateRequest:    s.handleGetUserLastStatusUpdate,
		GetUserMessageCountRequest:        s.handleGetUserMessageCount,
		UpdateUserMessageCountRequest:     s.handleUpdateUserMessageCount,
		ToggleMemberBitRequest:            s.handleToggleMemberBit,
		ToggleOwnerBitRequest:             s.handleToggleOwnerBit,
		ToggleCreatorBitRequest:           s.handleToggleCreatorBit,
		ToggleRemovedBitRequest:           s.handleToggleRemovedBit,
		GetUserAccessControlRequest:       s.handleGetUserAccessControl,
	}
}

func (s *Server) handleNewMessage(r *bufio.Reader, w *bufio.Writer) error {
	author, err := ident.Read(r)
	if err != nil {
		return err
	}
	conversation, err := ident.Read(r)
	if err != nil {
		return err
	}
	content, err := wire.ReadString(r)
	if err != nil {
		return err
	}

	msg, err := s.controller.NewMessage(author, conversation, content)
	if err != nil && !errors.Is(err, chat.ErrUnknownEntity) {
		return err
	}

	if err := wire.WriteInt32(w, NewMessageResponse); err != nil {
		return err
	}
	if err := wire.WriteNullable(w, msg, chat.WriteMessage); err != nil {
		return err
	}

	if msg != nil && s.relay != nil {
		s.scheduleRelayWrite(msg.Author, msg.Conversation, msg.ID)
	}
	return nil
}

func (s *Server) handleNewUser(r *bufio.Reader, w *bufio.Writer) error {
	name, err := wire.ReadString(r)
	if err != nil {
		return err
	}

	user, err := s.controller.NewUser(name)
	if err != nil {
		return err
	}

	if err := wire.WriteInt32(w, NewUserResponse); err != nil {
		return err
	}
	return wire.WriteNullable(w, user, chat.WriteUser)
}

func (s *Server) handleNewConversation(r *bufio.Reader, w *bufio.Writer) error {
	title, err := wire.ReadString(r)
	if err != nil {
		return err
	}
	owner, err := ident.Read(r)
	if err != nil {
		return err
	}

	conv, err := s.controller.NewConversation(title, owner)
	if err != nil && !errors.Is(err, chat.ErrUnknownEntity) {
		return err
	}

	if err := wire.WriteInt32(w, NewConversationResponse); err != nil {
		return err
	}
	return wire.WriteNullable(w, conv, chat.WriteConversationHeader)
}

func (s *Server) handleGetUsers(_ *bufio.Reader, w *bufio.Writer) error {
	if err := wire.WriteInt32(w, GetUsersResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, s.view.Users(), chat.WriteUser)
}

func (s *Server) handleGetAllConversations(_ *bufio.Reader, w *bufio.Writer) error {
	if err := wire.WriteInt32(w, GetAllConversationsResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, s.view.Conversations(), chat.WriteConversationHeader)
}

func (s *Server) handleGetConversationsByID(r *bufio.Reader, w *bufio.Writer) error {
	ids, err := wire.ReadCollection(r, ident.Read)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetConversationsByIDResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, s.view.ConversationPayloads(ids), chat.WriteConversationPayload)
}

func (s *Server) handleGetMessagesByID(r *bufio.Reader, w *bufio.Writer) error {
	ids, err := wire.ReadCollection(r, ident.Read)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetMessagesByIDResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, s.view.Messages(ids), chat.WriteMessage)
}

func (s *Server) handleServerInfo(_ *bufio.Reader, w *bufio.Writer) error {
	if err := wire.WriteInt32(w, ServerInfoResponse); err != nil {
		return err
	}
	return ident.Write(w, s.view.Info().Version)
}

func (s *Server) handleGetConversationInterests(r *bufio.Reader, w *bufio.Writer) error {
	user, err := ident.Read(r)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetConversationInterestsResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, s.view.ConversationInterests(user), ident.Write)
}

func (s *Server) handleNewConversationInterest(r *bufio.Reader, w *bufio.Writer) error {
	user, conversation, err := readUuidPair(r)
	if err != nil {
		return err
	}
	interests, err := s.controller.NewConversationInterest(user, conversation)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, NewConversationInterestResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, interests, ident.Write)
}

func (s *Server) handleRemoveConversationInterest(r *bufio.Reader, w *bufio.Writer) error {
	user, conversation, err := readUuidPair(r)
	if err != nil {
		return err
	}
	interests, err := s.controller.RemoveConversationInterest(user, conversation)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, RemoveConversationInterestResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, interests, ident.Write)
}

func (s *Server) handleGetUserInterests(r *bufio.Reader, w *bufio.Writer) error {
	user, err := ident.Read(r)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetUserInterestsResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, s.view.UserInterests(user), ident.Write)
}

func (s *Server) handleNewUserInterest(r *bufio.Reader, w *bufio.Writer) error {
	user, followed, err := readUuidPair(r)
	if err != nil {
		return err
	}
	interests, err := s.controller.NewUserInterest(user, followed)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, NewUserInterestResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, interests, ident.Write)
}

func (s *Server) handleRemoveUserInterest(r *bufio.Reader, w *bufio.Writer) error {
	user, followed, err := readUuidPair(r)
	if err != nil {
		return err
	}
	interests, err := s.controller.RemoveUserInterest(user, followed)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, RemoveUserInterestResponse); err != nil {
		return err
	}
	return wire.WriteCollection(w, interests, ident.Write)
}

func (s *Server) handleNewUpdatedConversation(r *bufio.Reader, w *bufio.Writer) error {
	user, conversation, err := readUuidPair(r)
	if err != nil {
		return err
	}
	t, err := chat.ReadTime(r)
	if err != nil {
		return err
	}
	updated := s.controller.NewUpdatedConversation(user, conversation, t)
	if err := wire.WriteInt32(w, NewUpdatedConversationResponse); err != nil {
		return err
	}
	return writeTimeMap(w, updated)
}

func (s *Server) handleGetUpdatedConversations(r *bufio.Reader, w *bufio.Writer) error {
	user, err := ident.Read(r)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetUpdatedConversationsResponse); err != nil {
		return err
	}
	return writeTimeMap(w, s.view.UpdatedConversations(user))
}

func (s *Server) handleUpdateUserLastStatusUpdate(r *bufio.Reader, w *bufio.Writer) error {
	user, err := ident.Read(r)
	if err != nil {
		return err
	}
	t, err := chat.ReadTime(r)
	if err != nil {
		return err
	}
	prev := s.controller.UpdateLastStatusUpdate(user, t)
	if err := wire.WriteInt32(w, UpdateUserLastStatusUpdateResponse); err != nil {
		return err
	}
	return chat.WriteTime(w, prev)
}

func (s *Server) handleGetUserLastStatusUpdate(r *bufio.Reader, w *bufio.Writer) error {
	user, err := ident.Read(r)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetUserLastStatusUpdateResponse); err != nil {
		return err
	}
	return chat.WriteTime(w, s.view.LastStatusUpdate(user))
}

func (s *Server) handleGetUserMessageCount(r *bufio.Reader, w *bufio.Writer) error {
	user, conversation, err := readUuidPair(r)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetUserMessageCountResponse); err != nil {
		return err
	}
	return wire.WriteInt32(w, s.view.UnseenMessagesCount(user, conversation))
}

func (s *Server) handleUpdateUserMessageCount(r *bufio.Reader, w *bufio.Writer) error {
	user, conversation, err := readUuidPair(r)
	if err != nil {
		return err
	}
	count, err := wire.ReadInt32(r)
	if err != nil {
		return err
	}
	// The count is client-cooperative: the supplied value replaces the
	// stored one rather than incrementing it.
	newCount := s.controller.UpdateUnseenMessagesCount(user, conversation, count)
	if err := wire.WriteInt32(w, UpdateUserMessageCountResponse); err != nil {
		return err
	}
	return wire.WriteInt32(w, newCount)
}

func (s *Server) handleToggleMemberBit(r *bufio.Reader, w *bufio.Writer) error {
	return s.handleAccessToggle(r, w, ToggleMemberBitResponse, s.controller.ToggleMemberBit)
}

func (s *Server) handleToggleOwnerBit(r *bufio.Reader, w *bufio.Writer) error {
	return s.handleAccessToggle(r, w, ToggleOwnerBitResponse, s.controller.ToggleOwnerBit)
}

func (s *Server) handleToggleCreatorBit(r *bufio.Reader, w *bufio.Writer) error {
	return s.handleAccessToggle(r, w, ToggleCreatorBitResponse, s.controller.ToggleCreatorBit)
}

func (s *Server) handleAccessToggle(r *bufio.Reader, w *bufio.Writer, response int32,
	toggle func(ident.Uuid, ident.Uuid, bool) (int32, error)) error {

	conversation, user, err := readUuidPair(r)
	if err != nil {
		return err
	}
	flag, err := wire.ReadBool(r)
	if err != nil {
		return err
	}
	bits, err := toggle(conversation, user, flag)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, response); err != nil {
		return err
	}
	return wire.WriteInt32(w, bits)
}

func (s *Server) handleToggleRemovedBit(r *bufio.Reader, w *bufio.Writer) error {
	conversation, user, err := readUuidPair(r)
	if err != nil {
		return err
	}
	bits, err := s.controller.ToggleRemovedBit(conversation, user)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, ToggleRemovedBitResponse); err != nil {
		return err
	}
	return wire.WriteInt32(w, bits)
}

func (s *Server) handleGetUserAccessControl(r *bufio.Reader, w *bufio.Writer) error {
	conversation, user, err := readUuidPair(r)
	if err != nil {
		return err
	}
	if err := wire.WriteInt32(w, GetUserAccessControlResponse); err != nil {
		return err
	}
	return wire.WriteInt32(w, s.view.UserAccessControl(conversation, user))
}

func readUuidPair(r io.Reader) (ident.Uuid, ident.Uuid, error) {
	first, err := ident.Read(r)
	if err != nil {
		return ident.Null, ident.Null, err
	}
	second, err := ident.Read(r)
	if err != nil {
		return ident.Null, ident.Null, err
	}
	return first, second, nil
}

// writeTimeMap encodes a MAP(UUID, TIME) in the entries' stable order.
func writeTimeMap(w io.Writer, entries []chat.Entry) error {
	pairs := make([]wire.MapEntry[ident.Uuid, chat.Time], len(entries))
	for i, e := range entries {
		pairs[i] = wire.MapEntry[ident.Uuid, chat.Time]{Key: e.ID, Value: e.Time}
	}
	return wire.WriteMap(w, pairs, ident.Write, chat.WriteTime)
}
