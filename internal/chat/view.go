package chat

import "github.com/adred-codev/chatd/internal/ident"

// View exposes read-only projections over the Model. All methods are pure
// reads; they observe a consistent snapshot because they run between
// mutations on the timeline.
type View struct {
	model *Model
	info  ServerInfo
}

// NewView creates a view over model reporting the given build identity.
func NewView(model *Model, version ident.Uuid) *View {
	return &View{model: model, info: ServerInfo{Version: version}}
}

// Users enumerates all users in creation order.
func (v *View) Users() []User {
	out := make([]User, 0, len(v.model.userOrder))
	for _, id := range v.model.userOrder {
		out = append(out, *v.model.users[id])
	}
	return out
}

// Conversations enumerates all conversation headers in creation order.
func (v *View) Conversations() []ConversationHeader {
	out := make([]ConversationHeader, 0, len(v.model.convOrder))
	for _, id := range v.model.convOrder {
		out = append(out, *v.model.conversations[id])
	}
	return out
}

// ConversationPayloads returns payloads for the given ids in request order.
// Missing ids are omitted silently.
func (v *View) ConversationPayloads(ids []ident.Uuid) []ConversationPayload {
	out := make([]ConversationPayload, 0, len(ids))
	for _, id := range ids {
		if p, ok := v.model.payloads[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Messages returns messages for the given ids in request order. Missing ids
// are omitted silently.
func (v *View) Messages(ids []ident.Uuid) []Message {
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := v.model.messages[id]; ok {
			out = append(out, *m)
		}
	}
	return out
}

// FindUser looks up one user; nil if missing.
func (v *View) FindUser(id ident.Uuid) *User {
	return v.model.users[id]
}

// FindConversation looks up one conversation header; nil if missing.
func (v *View) FindConversation(id ident.Uuid) *ConversationHeader {
	return v.model.conversations[id]
}

// FindMessage looks up one message; nil if missing.
func (v *View) FindMessage(id ident.Uuid) *Message {
	return v.model.messages[id]
}

// ConversationInterests returns the user's conversations of interest, empty
// if the user is unknown.
func (v *View) ConversationInterests(user ident.Uuid) []ident.Uuid {
	if s := v.model.convInterests[user]; s != nil {
		return s.items()
	}
	return []ident.Uuid{}
}

// UserInterests returns the user's users of interest, empty if the user is
// unknown.
func (v *View) UserInterests(user ident.Uuid) []ident.Uuid {
	if s := v.model.userInterests[user]; s != nil {
		return s.items()
	}
	return []ident.Uuid{}
}

// LastStatusUpdate returns the last recorded status-update time for user,
// or Time(0) if never recorded.
func (v *View) LastStatusUpdate(user ident.Uuid) Time {
	return v.model.lastStatusUpdate[user]
}

// UnseenMessagesCount returns the stored unseen count, 0 if absent.
func (v *View) UnseenMessagesCount(user, conversation ident.Uuid) int32 {
	return v.model.unseenCounts[accessKey{Conversation: conversation, User: user}]
}

// UpdatedConversations derives the conversations with activity since the
// user's last status update: every conversation in the user's
// conversation-interest set plus every conversation owned by a user in
// their user-interest set, mapped to the creation time of its most recent
// message when that time is strictly after the last status update.
// Conversations with no such message are omitted.
func (v *View) UpdatedConversations(user ident.Uuid) []Entry {
	since := v.model.lastStatusUpdate[user]
	seen := make(map[ident.Uuid]struct{})
	out := []Entry{}

	consider := func(conv ident.Uuid) {
		if _, dup := seen[conv]; dup {
			return
		}
		seen[conv] = struct{}{}
		payload, ok := v.model.payloads[conv]
		if !ok || payload.Last.IsNull() {
			return
		}
		// The list tail stands in for "most recent by creation". That holds
		// for locally authored messages, whose times are assigned in append
		// order; relay-applied messages carry remote times that may land out
		// of order, and an older-stamped tail can hide an earlier qualifying
		// message.
		last := v.model.messages[payload.Last]
		if last.Creation > since {
			out = append(out, Entry{ID: conv, Time: last.Creation})
		}
	}

	if s := v.model.convInterests[user]; s != nil {
		for _, conv := range s.items() {
			consider(conv)
		}
	}
	if s := v.model.userInterests[user]; s != nil {
		for _, followed := range s.items() {
			for _, conv := range v.model.convOrder {
				if v.model.conversations[conv].Owner == followed {
					consider(conv)
				}
			}
		}
	}
	return out
}

// UserAccessControl returns the access bitfield for (conversation, user),
// 0 if absent.
func (v *View) UserAccessControl(conversation, user ident.Uuid) int32 {
	return v.model.access[accessKey{Conversation: conversation, User: user}]
}

// Info returns the fixed server build identity.
func (v *View) Info() ServerInfo {
	return v.info
}
