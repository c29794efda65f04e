package server

// Protocol opcodes. These numeric tags are shared with deployed clients and
// must never be renumbered. Every request opcode is immediately followed by
// its response opcode.
const (
	NoMessage int32 = iota

	NewMessageRequest
	NewMessageResponse
	NewUserRequest
	NewUserResponse
	NewConversationRequest
	NewConversationResponse
	GetUsersRequest
	GetUsersResponse
	GetAllConversationsRequest
	GetAllConversationsResponse
	GetConversationsByIDRequest
	GetConversationsByIDResponse
	GetMessagesByIDRequest
	GetMessagesByIDResponse
	ServerInfoRequest
	ServerInfoResponse
	GetConversationInterestsRequest
	GetConversationInterestsResponse
	NewConversationInterestRequest
	NewConversationInterestResponse
	RemoveConversationInterestRequest
	RemoveConversationInterestResponse
	GetUserInterestsRequest
	GetUserInterestsResponse
	NewUserInterestRequest
	NewUserInterestResponse
	RemoveUserInterestRequest
	RemoveUserInterestResponse
	NewUpdatedConversationRequest
	NewUpdatedConversationResponse
	GetUpdatedConversationsRequest
	GetUpdatedConversationsResponse
	UpdateUserLastStatusUpdateRequest
	UpdateUserLastStatusUpdateResponse
	GetUserLastStatusUpdateRequest
	GetUserLastStatusUpdateResponse
	GetUserMessageCountRequest
	GetUserMessageCountResponse
	UpdateUserMessageCountRequest
	UpdateUserMessageCountResponse
	ToggleMemberBitRequest
	ToggleMemberBitResponse
	ToggleOwnerBitRequest
	ToggleOwnerBitResponse
	ToggleCreatorBitRequest
	ToggleCreatorBitResponse
	ToggleRemovedBitRequest
	ToggleRemovedBitResponse
	GetUserAccessControlRequest
	GetUserAccessControlResponse
)

// opcodeNames labels request opcodes for logs and metrics.
var opcodeNames = map[int32]string{
	NewMessageRequest:                 "NEW_MESSAGE",
	NewUserRequest:                    "NEW_USER",
	NewConversationRequest:            "NEW_CONVERSATION",
	GetUsersRequest:                   "GET_USERS",
	GetAllConversationsRequest:        "GET_ALL_CONVERSATIONS",
	GetConversationsByIDRequest:       "GET_CONVERSATIONS_BY_ID",
	GetMessagesByIDRequest:            "GET_MESSAGES_BY_ID",
	ServerInfoRequest:                 "SERVER_INFO",
	GetConversationInterestsRequest:   "GET_CONVERSATION_INTERESTS",
	NewConversationInterestRequest:    "NEW_CONVERSATION_INTEREST",
	RemoveConversationInterestRequest: "REMOVE_CONVERSATION_INTEREST",
	GetUserInterestsRequest:           "GET_USER_INTERESTS",
	NewUserInterestRequest:            "NEW_USER_INTEREST",
	RemoveUserInterestRequest:         "REMOVE_USER_INTEREST",
	NewUpdatedConversationRequest:     "NEW_UPDATED_CONVERSATION",
	GetUpdatedConversationsRequest:    "GET_UPDATED_CONVERSATIONS",
	UpdateUserLastStatusUpdateRequest: "UPDATE_USER_LAST_STATUS_UPDATE",
	GetUserLastStatusUpdateRequest:    "GET_USER_LAST_STATUS_UPDATE",
	GetUserMessageCountRequest:        "GET_USER_MESSAGE_COUNT",
	UpdateUserMessageCountRequest:     "UPDATE_USER_MESSAGE_COUNT",
	ToggleMemberBitRequest:            "TOGGLE_MEMBER_BIT",
	ToggleOwnerBitRequest:             "TOGGLE_OWNER_BIT",
	ToggleCreatorBitRequest:           "TOGGLE_CREATOR_BIT",
	ToggleRemovedBitRequest:           "TOGGLE_REMOVED_BIT",
	GetUserAccessControlRequest:       "GET_USER_ACCESS_CONTROL",
}

// OpcodeName returns the log/metric label for a request opcode.
func OpcodeName(op int32) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}
