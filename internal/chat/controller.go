package chat

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/journal"
)

// ErrUnknownEntity marks a create operation referencing an unknown user or
// conversation. Handlers surface it as a NULLABLE absent response.
var ErrUnknownEntity = errors.New("chat: unknown entity")

// ErrDuplicate marks a replayed or relayed entity whose uuid already
// exists. The live API never generates it.
var ErrDuplicate = errors.New("chat: duplicate uuid")

// Appender is the journal sink the controller writes through. Satisfied by
// *journal.Writer; tests substitute an in-memory recorder.
type Appender interface {
	Append(fields ...string) error
}

// Controller owns every mutation of the Model. Each mutating operation is
// atomic with respect to other mutations because all of them run on the
// timeline, and each journaled operation appends exactly one record before
// returning. Status, unseen-count, and updated-conversation operations are
// client-cooperative state and are not journaled.
type Controller struct {
	gen     *ident.Generator
	model   *Model
	journal Appender
	now     func() Time
}

// NewController creates a controller minting ids from gen and journaling
// through log. now is injectable for tests; nil means wall clock.
func NewController(gen *ident.Generator, model *Model, log Appender, now func() Time) *Controller {
	if now == nil {
		now = Now
	}
	return &Controller{gen: gen, model: model, journal: log, now: now}
}

// NewUser creates a user with a fresh uuid and the current time.
func (c *Controller) NewUser(name string) (*User, error) {
	user := &User{ID: c.gen.Next(), Name: name, Creation: c.now()}
	if err := c.journal.Append(journal.OpAddUser, user.ID.String(), user.Name,
		strconv.FormatInt(user.Creation.Ms(), 10)); err != nil {
		return nil, err
	}
	c.model.addUser(user)
	return user, nil
}

// AddUser is the replay entrypoint: it records the supplied uuid and time
// verbatim, advances the id generator past the uuid, and does not journal.
func (c *Controller) AddUser(id ident.Uuid, name string, creation Time) (*User, error) {
	if c.model.known(id) {
		return nil, fmt.Errorf("%w: user %v", ErrDuplicate, id)
	}
	c.gen.Observe(id)
	user := &User{ID: id, Name: name, Creation: creation}
	c.model.addUser(user)
	return user, nil
}

// NewConversation creates a conversation owned by owner and grants the
// owner the creator, owner, and member bits, journaling one record per
// toggle after the conversation record itself.
func (c *Controller) NewConversation(title string, owner ident.Uuid) (*ConversationHeader, error) {
	if _, ok := c.model.users[owner]; !ok {
		return nil, fmt.Errorf("%w: owner %v", ErrUnknownEntity, owner)
	}
	conv := &ConversationHeader{ID: c.gen.Next(), Owner: owner, Title: title, Creation: c.now()}
	if err := c.journal.Append(journal.OpAddConversation, conv.ID.String(), owner.String(),
		conv.Title, strconv.FormatInt(conv.Creation.Ms(), 10)); err != nil {
		return nil, err
	}
	c.model.addConversation(conv)

	if _, err := c.ToggleCreatorBit(conv.ID, owner, true); err != nil {
		return nil, err
	}
	if _, err := c.ToggleOwnerBit(conv.ID, owner, true); err != nil {
		return nil, err
	}
	if _, err := c.ToggleMemberBit(conv.ID, owner, true); err != nil {
		return nil, err
	}
	return conv, nil
}

// AddConversation is the replay entrypoint for conversations. No access
// bits are granted here; their toggles carry their own journal records.
func (c *Controller) AddConversation(id ident.Uuid, title string, owner ident.Uuid, creation Time) (*ConversationHeader, error) {
	if c.model.known(id) {
		return nil, fmt.Errorf("%w: conversation %v", ErrDuplicate, id)
	}
	c.gen.Observe(id)
	conv := &ConversationHeader{ID: id, Owner: owner, Title: title, Creation: creation}
	c.model.addConversation(conv)
	return conv, nil
}

// NewMessage appends a message to the conversation's linked list.
func (c *Controller) NewMessage(author, conversation ident.Uuid, content string) (*Message, error) {
	if _, ok := c.model.users[author]; !ok {
		return nil, fmt.Errorf("%w: author %v", ErrUnknownEntity, author)
	}
	if _, ok := c.model.conversations[conversation]; !ok {
		return nil, fmt.Errorf("%w: conversation %v", ErrUnknownEntity, conversation)
	}
	msg := &Message{
		ID:           c.gen.Next(),
		Author:       author,
		Conversation: conversation,
		Content:      content,
		Creation:     c.now(),
	}
	if err := c.journal.Append(journal.OpAddMessage, msg.ID.String(), author.String(),
		conversation.String(), msg.Content, strconv.FormatInt(msg.Creation.Ms(), 10)); err != nil {
		return nil, err
	}
	c.model.addMessage(msg)
	return msg, nil
}

// AddMessage is the replay entrypoint for messages.
func (c *Controller) AddMessage(id, author, conversation ident.Uuid, content string, creation Time) (*Message, error) {
	if c.model.known(id) {
		return nil, fmt.Errorf("%w: message %v", ErrDuplicate, id)
	}
	if _, ok := c.model.conversations[conversation]; !ok {
		return nil, fmt.Errorf("%w: conversation %v", ErrUnknownEntity, conversation)
	}
	c.gen.Observe(id)
	msg := &Message{
		ID:           id,
		Author:       author,
		Conversation: conversation,
		Content:      content,
		Creation:     creation,
	}
	c.model.addMessage(msg)
	return msg, nil
}

// NewUserInterest adds followed to user's users of interest. Idempotent;
// always returns the full current set.
func (c *Controller) NewUserInterest(user, followed ident.Uuid) ([]ident.Uuid, error) {
	if err := c.journal.Append(journal.OpAddInterestUser, user.String(), followed.String()); err != nil {
		return nil, err
	}
	set := c.model.userInterestsOf(user)
	set.add(followed)
	return set.items(), nil
}

// RemoveUserInterest removes followed from user's users of interest.
func (c *Controller) RemoveUserInterest(user, followed ident.Uuid) ([]ident.Uuid, error) {
	if err := c.journal.Append(journal.OpRemoveInterestUser, user.String(), followed.String()); err != nil {
		return nil, err
	}
	set := c.model.userInterestsOf(user)
	set.remove(followed)
	return set.items(), nil
}

// NewConversationInterest adds conversation to user's conversations of
// interest.
func (c *Controller) NewConversationInterest(user, conversation ident.Uuid) ([]ident.Uuid, error) {
	if err := c.journal.Append(journal.OpAddInterestConvo, user.String(), conversation.String()); err != nil {
		return nil, err
	}
	set := c.model.convInterestsOf(user)
	set.add(conversation)
	return set.items(), nil
}

// RemoveConversationInterest removes conversation from user's
// conversations of interest.
func (c *Controller) RemoveConversationInterest(user, conversation ident.Uuid) ([]ident.Uuid, error) {
	if err := c.journal.Append(journal.OpRemoveInterestConv, user.String(), conversation.String()); err != nil {
		return nil, err
	}
	set := c.model.convInterestsOf(user)
	set.remove(conversation)
	return set.items(), nil
}

// ToggleMemberBit sets or clears the member bit and returns the new
// bitfield.
func (c *Controller) ToggleMemberBit(conversation, user ident.Uuid, flag bool) (int32, error) {
	record := journal.OpAddConvoMember
	if !flag {
		record = journal.OpRemoveConvoMember
	}
	if err := c.journal.Append(record, conversation.String(), user.String()); err != nil {
		return 0, err
	}
	return c.setAccessBit(conversation, user, AccessMember, flag), nil
}

// ToggleOwnerBit sets or clears the owner bit and returns the new bitfield.
func (c *Controller) ToggleOwnerBit(conversation, user ident.Uuid, flag bool) (int32, error) {
	record := journal.OpAddConvoOwner
	if !flag {
		record = journal.OpRemoveConvoOwner
	}
	if err := c.journal.Append(record, conversation.String(), user.String()); err != nil {
		return 0, err
	}
	return c.setAccessBit(conversation, user, AccessOwner, flag), nil
}

// ToggleCreatorBit sets or clears the creator bit and returns the new
// bitfield.
func (c *Controller) ToggleCreatorBit(conversation, user ident.Uuid, flag bool) (int32, error) {
	record := journal.OpAddConvoCreator
	if !flag {
		record = journal.OpRemoveConvoCreator
	}
	if err := c.journal.Append(record, conversation.String(), user.String()); err != nil {
		return 0, err
	}
	return c.setAccessBit(conversation, user, AccessCreator, flag), nil
}

// ToggleRemovedBit flips the sticky removed bit and returns the new
// bitfield.
func (c *Controller) ToggleRemovedBit(conversation, user ident.Uuid) (int32, error) {
	if err := c.journal.Append(journal.OpRemoveConvoToggle, conversation.String(), user.String()); err != nil {
		return 0, err
	}
	return c.flipRemovedBit(conversation, user), nil
}

// UpdateLastStatusUpdate records the user's status-update time and returns
// the previous value. Not journaled.
func (c *Controller) UpdateLastStatusUpdate(user ident.Uuid, t Time) Time {
	prev := c.model.lastStatusUpdate[user]
	c.model.lastStatusUpdate[user] = t
	return prev
}

// UpdateUnseenMessagesCount stores the client-supplied absolute count and
// returns it. Not journaled.
func (c *Controller) UpdateUnseenMessagesCount(user, conversation ident.Uuid, count int32) int32 {
	c.model.unseenCounts[accessKey{Conversation: conversation, User: user}] = count
	return count
}

// NewUpdatedConversation records t as the last-seen time for conversation
// in the user's updated-conversations map and returns the resulting map.
// Not journaled.
func (c *Controller) NewUpdatedConversation(user, conversation ident.Uuid, t Time) []Entry {
	m := c.model.updatedConvsOf(user)
	m.put(conversation, t)
	return m.entries()
}

func (c *Controller) setAccessBit(conversation, user ident.Uuid, bit int32, flag bool) int32 {
	key := accessKey{Conversation: conversation, User: user}
	bits := c.model.access[key]
	if flag {
		bits |= bit
	} else {
		bits &^= bit
	}
	c.model.access[key] = bits
	return bits
}

func (c *Controller) flipRemovedBit(conversation, user ident.Uuid) int32 {
	key := accessKey{Conversation: conversation, User: user}
	bits := c.model.access[key] ^ AccessRemoved
	c.model.access[key] = bits
	return bits
}

// Replayer adapts the controller to the journal's Applier interface: the
// same mutations without journaling.
func (c *Controller) Replayer() journal.Applier {
	return replayApplier{c}
}

type replayApplier struct {
	c *Controller
}

func (a replayApplier) AddUser(id ident.Uuid, name string, ms int64) error {
	_, err := a.c.AddUser(id, name, Time(ms))
	return err
}

func (a replayApplier) AddConversation(id, owner ident.Uuid, title string, ms int64) error {
	_, err := a.c.AddConversation(id, title, owner, Time(ms))
	return err
}

func (a replayApplier) AddMessage(id, author, conversation ident.Uuid, content string, ms int64) error {
	_, err := a.c.AddMessage(id, author, conversation, content, Time(ms))
	return err
}

func (a replayApplier) AddUserInterest(user, followed ident.Uuid) {
	a.c.model.userInterestsOf(user).add(followed)
}

func (a replayApplier) RemoveUserInterest(user, followed ident.Uuid) {
	a.c.model.userInterestsOf(user).remove(followed)
}

func (a replayApplier) AddConversationInterest(user, conversation ident.Uuid) {
	a.c.model.convInterestsOf(user).add(conversation)
}

func (a replayApplier) RemoveConversationInterest(user, conversation ident.Uuid) {
	a.c.model.convInterestsOf(user).remove(conversation)
}

func (a replayApplier) SetCreatorBit(conversation, user ident.Uuid, flag bool) {
	a.c.setAccessBit(conversation, user, AccessCreator, flag)
}

func (a replayApplier) SetOwnerBit(conversation, user ident.Uuid, flag bool) {
	a.c.setAccessBit(conversation, user, AccessOwner, flag)
}

func (a replayApplier) SetMemberBit(conversation, user ident.Uuid, flag bool) {
	a.c.setAccessBit(conversation, user, AccessMember, flag)
}

func (a replayApplier) FlipRemovedBit(conversation, user ident.Uuid) {
	a.c.flipRemovedBit(conversation, user)
}
