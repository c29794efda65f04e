package chat

import "github.com/adred-codev/chatd/internal/ident"

// accessKey indexes per-(conversation, user) state.
type accessKey struct {
	Conversation ident.Uuid
	User         ident.Uuid
}

// uuidSet is an insertion-ordered set of uuids. Enumeration order is the
// order ids were first added, which keeps wire collections stable between
// mutations (and byte-identical across a journal replay).
type uuidSet struct {
	order []ident.Uuid
	index map[ident.Uuid]struct{}
}

func newUuidSet() *uuidSet {
	return &uuidSet{index: make(map[ident.Uuid]struct{})}
}

// add inserts id; adding a present id is a no-op.
func (s *uuidSet) add(id ident.Uuid) {
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
}

// remove deletes id; removing an absent id is a no-op.
func (s *uuidSet) remove(id ident.Uuid) {
	if _, ok := s.index[id]; !ok {
		return
	}
	delete(s.index, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *uuidSet) has(id ident.Uuid) bool {
	_, ok := s.index[id]
	return ok
}

// items returns a copy of the set in insertion order.
func (s *uuidSet) items() []ident.Uuid {
	out := make([]ident.Uuid, len(s.order))
	copy(out, s.order)
	return out
}

// timeByUuid is an insertion-ordered uuid→time map, used for the
// updated-conversations projection so MAP responses have a stable order.
type timeByUuid struct {
	order []ident.Uuid
	times map[ident.Uuid]Time
}

func newTimeByUuid() *timeByUuid {
	return &timeByUuid{times: make(map[ident.Uuid]Time)}
}

func (m *timeByUuid) put(id ident.Uuid, t Time) {
	if _, ok := m.times[id]; !ok {
		m.order = append(m.order, id)
	}
	m.times[id] = t
}

// Entry is one uuid→time pair in insertion order.
type Entry struct {
	ID   ident.Uuid
	Time Time
}

func (m *timeByUuid) entries() []Entry {
	out := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, Entry{ID: id, Time: m.times[id]})
	}
	return out
}

// Model is the indexed arena holding all chat state. It is written only by
// the Controller and read through the View; both run on the timeline, so
// the indices carry no locks. Entities are never destroyed.
type Model struct {
	users         map[ident.Uuid]*User
	userOrder     []ident.Uuid
	conversations map[ident.Uuid]*ConversationHeader
	convOrder     []ident.Uuid
	payloads      map[ident.Uuid]*ConversationPayload
	messages      map[ident.Uuid]*Message

	convInterests map[ident.Uuid]*uuidSet
	userInterests map[ident.Uuid]*uuidSet
	access        map[accessKey]int32

	lastStatusUpdate map[ident.Uuid]Time
	unseenCounts     map[accessKey]int32
	updatedConvs     map[ident.Uuid]*timeByUuid
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		users:            make(map[ident.Uuid]*User),
		conversations:    make(map[ident.Uuid]*ConversationHeader),
		payloads:         make(map[ident.Uuid]*ConversationPayload),
		messages:         make(map[ident.Uuid]*Message),
		convInterests:    make(map[ident.Uuid]*uuidSet),
		userInterests:    make(map[ident.Uuid]*uuidSet),
		access:           make(map[accessKey]int32),
		lastStatusUpdate: make(map[ident.Uuid]Time),
		unseenCounts:     make(map[accessKey]int32),
		updatedConvs:     make(map[ident.Uuid]*timeByUuid),
	}
}

// known reports whether any entity kind already uses id. Uuids are globally
// unique within a server, across users, conversations, and messages.
func (m *Model) known(id ident.Uuid) bool {
	if _, ok := m.users[id]; ok {
		return true
	}
	if _, ok := m.conversations[id]; ok {
		return true
	}
	_, ok := m.messages[id]
	return ok
}

func (m *Model) addUser(u *User) {
	m.users[u.ID] = u
	m.userOrder = append(m.userOrder, u.ID)
}

func (m *Model) addConversation(c *ConversationHeader) {
	m.conversations[c.ID] = c
	m.payloads[c.ID] = &ConversationPayload{ID: c.ID}
	m.convOrder = append(m.convOrder, c.ID)
}

// addMessage appends msg to its conversation's linked list, updating the
// previous tail's Next link and the payload ends.
func (m *Model) addMessage(msg *Message) {
	payload := m.payloads[msg.Conversation]
	msg.Prev = payload.Last
	msg.Next = ident.Null
	if !payload.Last.IsNull() {
		m.messages[payload.Last].Next = msg.ID
	}
	if payload.First.IsNull() {
		payload.First = msg.ID
	}
	payload.Last = msg.ID
	m.messages[msg.ID] = msg
}

// convInterestsOf returns the user's conversation-interest set, creating it
// on first touch.
func (m *Model) convInterestsOf(user ident.Uuid) *uuidSet {
	s := m.convInterests[user]
	if s == nil {
		s = newUuidSet()
		m.convInterests[user] = s
	}
	return s
}

// userInterestsOf returns the user's user-interest set, creating it on
// first touch.
func (m *Model) userInterestsOf(user ident.Uuid) *uuidSet {
	s := m.userInterests[user]
	if s == nil {
		s = newUuidSet()
		m.userInterests[user] = s
	}
	return s
}

// updatedConvsOf returns the user's updated-conversations map, creating it
// on first touch.
func (m *Model) updatedConvsOf(user ident.Uuid) *timeByUuid {
	u := m.updatedConvs[user]
	if u == nil {
		u = newTimeByUuid()
		m.updatedConvs[user] = u
	}
	return u
}
