package chat_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/chatd/internal/chat"
	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/journal"
)

// memJournal is an in-memory Appender. It keeps the encoded lines so tests
// can replay them, and can be told to fail.
type memJournal struct {
	lines []string
	err   error
}

func (j *memJournal) Append(fields ...string) error {
	if j.err != nil {
		return j.err
	}
	j.lines = append(j.lines, journal.EncodeRecord(fields...))
	return nil
}

func newFixture() (*chat.Controller, *chat.View, *memJournal) {
	log := &memJournal{}
	model := chat.NewModel()
	gen := ident.NewGenerator(1)
	clock := chat.Time(0)
	now := func() chat.Time {
		clock += 100
		return clock
	}
	controller := chat.NewController(gen, model, log, now)
	view := chat.NewView(model, ident.Uuid{Generator: 1, Sequence: 0})
	return controller, view, log
}

func TestNewUserMintsSequentialIDs(t *testing.T) {
	controller, view, log := newFixture()

	alice, err := controller.NewUser("alice")
	require.NoError(t, err)
	bob, err := controller.NewUser("bob")
	require.NoError(t, err)

	assert.Equal(t, ident.Uuid{Generator: 1, Sequence: 1}, alice.ID)
	assert.Equal(t, ident.Uuid{Generator: 1, Sequence: 2}, bob.ID)

	users := view.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Name)
	assert.Equal(t, "bob", users[1].Name)

	require.Len(t, log.lines, 2)
	assert.Equal(t, "ADD-USER [1.1] alice 100", log.lines[0])
}

func TestNewConversationGrantsOwnerAllBits(t *testing.T) {
	controller, view, log := newFixture()

	alice, err := controller.NewUser("alice")
	require.NoError(t, err)
	conv, err := controller.NewConversation("general", alice.ID)
	require.NoError(t, err)

	bits := view.UserAccessControl(conv.ID, alice.ID)
	assert.Equal(t, chat.AccessMember|chat.AccessOwner|chat.AccessCreator, bits)

	// One record for the conversation, one per granted bit.
	require.Len(t, log.lines, 5)
	assert.True(t, strings.HasPrefix(log.lines[1], "ADD-CONVERSATION "))
	assert.True(t, strings.HasPrefix(log.lines[2], "ADD-CONVO-CREATOR "))
	assert.True(t, strings.HasPrefix(log.lines[3], "ADD-CONVO-OWNER "))
	assert.True(t, strings.HasPrefix(log.lines[4], "ADD-CONVO-MEMBER "))
}

func TestNewConversationUnknownOwner(t *testing.T) {
	controller, _, log := newFixture()

	_, err := controller.NewConversation("general", ident.Uuid{Generator: 9, Sequence: 9})
	assert.ErrorIs(t, err, chat.ErrUnknownEntity)
	assert.Empty(t, log.lines)
}

func TestNewMessageLinksList(t *testing.T) {
	controller, view, _ := newFixture()

	alice, _ := controller.NewUser("alice")
	conv, _ := controller.NewConversation("general", alice.ID)

	first, err := controller.NewMessage(alice.ID, conv.ID, "one")
	require.NoError(t, err)
	second, err := controller.NewMessage(alice.ID, conv.ID, "two")
	require.NoError(t, err)
	third, err := controller.NewMessage(alice.ID, conv.ID, "three")
	require.NoError(t, err)

	payloads := view.ConversationPayloads([]ident.Uuid{conv.ID})
	require.Len(t, payloads, 1)
	assert.Equal(t, first.ID, payloads[0].First)
	assert.Equal(t, third.ID, payloads[0].Last)

	msgs := view.Messages([]ident.Uuid{first.ID, second.ID, third.ID})
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Prev.IsNull())
	assert.Equal(t, second.ID, msgs[0].Next)
	assert.Equal(t, first.ID, msgs[1].Prev)
	assert.Equal(t, third.ID, msgs[1].Next)
	assert.Equal(t, second.ID, msgs[2].Prev)
	assert.True(t, msgs[2].Next.IsNull())
}

func TestNewMessageUnknownEntities(t *testing.T) {
	controller, _, _ := newFixture()
	alice, _ := controller.NewUser("alice")

	_, err := controller.NewMessage(ident.Uuid{Generator: 9, Sequence: 9}, ident.Null, "hi")
	assert.ErrorIs(t, err, chat.ErrUnknownEntity)

	_, err = controller.NewMessage(alice.ID, ident.Uuid{Generator: 9, Sequence: 9}, "hi")
	assert.ErrorIs(t, err, chat.ErrUnknownEntity)
}

func TestJournalFailureLeavesModelUntouched(t *testing.T) {
	controller, view, log := newFixture()
	log.err = errors.New("disk full")

	_, err := controller.NewUser("alice")
	assert.Error(t, err)
	assert.Empty(t, view.Users())
}

func TestInterestSetsAreIdempotent(t *testing.T) {
	controller, view, _ := newFixture()
	alice, _ := controller.NewUser("alice")
	bob, _ := controller.NewUser("bob")

	set, err := controller.NewUserInterest(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []ident.Uuid{bob.ID}, set)

	// Adding again changes nothing.
	set, err = controller.NewUserInterest(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []ident.Uuid{bob.ID}, set)

	set, err = controller.RemoveUserInterest(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, set)

	// Removing an absent member is a no-op.
	set, err = controller.RemoveUserInterest(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, set)

	assert.Empty(t, view.UserInterests(alice.ID))
}

func TestToggleRemovedBitFlips(t *testing.T) {
	controller, view, _ := newFixture()
	alice, _ := controller.NewUser("alice")
	conv, _ := controller.NewConversation("general", alice.ID)

	granted := chat.AccessMember | chat.AccessOwner | chat.AccessCreator

	bits, err := controller.ToggleRemovedBit(conv.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, granted|chat.AccessRemoved, bits)

	bits, err = controller.ToggleRemovedBit(conv.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, granted, bits)
	assert.Equal(t, granted, view.UserAccessControl(conv.ID, alice.ID))
}

func TestToggleBitsClearAndSet(t *testing.T) {
	controller, view, _ := newFixture()
	alice, _ := controller.NewUser("alice")
	bob, _ := controller.NewUser("bob")
	conv, _ := controller.NewConversation("general", alice.ID)

	bits, err := controller.ToggleMemberBit(conv.ID, bob.ID, true)
	require.NoError(t, err)
	assert.Equal(t, chat.AccessMember, bits)

	// Setting an already set bit is idempotent.
	bits, err = controller.ToggleMemberBit(conv.ID, bob.ID, true)
	require.NoError(t, err)
	assert.Equal(t, chat.AccessMember, bits)

	bits, err = controller.ToggleMemberBit(conv.ID, bob.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int32(0), bits)
	assert.Equal(t, int32(0), view.UserAccessControl(conv.ID, bob.ID))
}

func TestStatusStateIsNotJournaled(t *testing.T) {
	controller, view, log := newFixture()
	alice, _ := controller.NewUser("alice")
	before := len(log.lines)

	prev := controller.UpdateLastStatusUpdate(alice.ID, chat.Time(5000))
	assert.Equal(t, chat.Time(0), prev)
	assert.Equal(t, chat.Time(5000), view.LastStatusUpdate(alice.ID))

	count := controller.UpdateUnseenMessagesCount(alice.ID, ident.Uuid{Generator: 1, Sequence: 9}, 7)
	assert.Equal(t, int32(7), count)

	controller.NewUpdatedConversation(alice.ID, ident.Uuid{Generator: 1, Sequence: 9}, chat.Time(1))
	assert.Len(t, log.lines, before)
}

func TestUpdatedConversationsProjection(t *testing.T) {
	controller, view, _ := newFixture()
	alice, _ := controller.NewUser("alice")
	bob, _ := controller.NewUser("bob")

	followed, _ := controller.NewConversation("bob's room", bob.ID)
	interesting, _ := controller.NewConversation("news", alice.ID)
	quiet, _ := controller.NewConversation("quiet", bob.ID)

	_, err := controller.NewConversationInterest(alice.ID, interesting.ID)
	require.NoError(t, err)
	_, err = controller.NewUserInterest(alice.ID, bob.ID)
	require.NoError(t, err)

	msgFollowed, _ := controller.NewMessage(bob.ID, followed.ID, "from bob")
	msgInteresting, _ := controller.NewMessage(alice.ID, interesting.ID, "news flash")

	updated := view.UpdatedConversations(alice.ID)
	require.Len(t, updated, 2)
	assert.Equal(t, interesting.ID, updated[0].ID)
	assert.Equal(t, msgInteresting.Creation, updated[0].Time)
	assert.Equal(t, followed.ID, updated[1].ID)
	assert.Equal(t, msgFollowed.Creation, updated[1].Time)

	// quiet has no messages and is nobody's interest.
	for _, e := range updated {
		assert.NotEqual(t, quiet.ID, e.ID)
	}

	// Once the status-update watermark passes the activity, nothing shows.
	controller.UpdateLastStatusUpdate(alice.ID, msgInteresting.Creation)
	assert.Empty(t, view.UpdatedConversations(alice.ID))
}

func TestUpdatedConversationsDedup(t *testing.T) {
	controller, view, _ := newFixture()
	alice, _ := controller.NewUser("alice")
	bob, _ := controller.NewUser("bob")
	conv, _ := controller.NewConversation("room", bob.ID)

	// Reachable both as a direct interest and through following bob.
	_, err := controller.NewConversationInterest(alice.ID, conv.ID)
	require.NoError(t, err)
	_, err = controller.NewUserInterest(alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = controller.NewMessage(bob.ID, conv.ID, "hello")
	require.NoError(t, err)

	assert.Len(t, view.UpdatedConversations(alice.ID), 1)
}

func TestReplayPreservesControlCharacters(t *testing.T) {
	controller, _, log := newFixture()
	alice, err := controller.NewUser("ali\rce")
	require.NoError(t, err)
	conv, err := controller.NewConversation("line\nbreak room", alice.ID)
	require.NoError(t, err)
	msg, err := controller.NewMessage(alice.ID, conv.ID, "hi\nthere")
	require.NoError(t, err)

	restoredModel := chat.NewModel()
	replayed := chat.NewController(ident.NewGenerator(1), restoredModel, &memJournal{}, nil)
	require.NoError(t, journal.Replay(
		strings.NewReader(strings.Join(log.lines, "\n")+"\n"),
		replayed.Replayer(), zerolog.Nop()))

	restoredView := chat.NewView(restoredModel, ident.Uuid{Generator: 1, Sequence: 0})
	users := restoredView.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "ali\rce", users[0].Name)

	convs := restoredView.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "line\nbreak room", convs[0].Title)

	msgs := restoredView.Messages([]ident.Uuid{msg.ID})
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi\nthere", msgs[0].Content)
}

func TestReplayEntrypointsRejectDuplicates(t *testing.T) {
	controller, _, _ := newFixture()

	id := ident.Uuid{Generator: 2, Sequence: 1}
	_, err := controller.AddUser(id, "alice", chat.Time(1000))
	require.NoError(t, err)
	_, err = controller.AddUser(id, "alice again", chat.Time(2000))
	assert.ErrorIs(t, err, chat.ErrDuplicate)

	_, err = controller.AddConversation(id, "room", id, chat.Time(3000))
	assert.ErrorIs(t, err, chat.ErrDuplicate)
}

func TestReplayRebuildsIdenticalState(t *testing.T) {
	controller, view, log := newFixture()
	alice, _ := controller.NewUser("alice smith")
	conv, _ := controller.NewConversation("general chat", alice.ID)
	msg, _ := controller.NewMessage(alice.ID, conv.ID, "it's 'quoted'")
	_, err := controller.NewConversationInterest(alice.ID, conv.ID)
	require.NoError(t, err)
	_, err = controller.ToggleRemovedBit(conv.ID, alice.ID)
	require.NoError(t, err)

	// Feed the recorded lines through the replay path into a fresh model.
	restoredModel := chat.NewModel()
	replayed := chat.NewController(ident.NewGenerator(1), restoredModel, &memJournal{}, nil)
	require.NoError(t, journal.Replay(
		strings.NewReader(strings.Join(log.lines, "\n")+"\n"),
		replayed.Replayer(), zerolog.Nop()))

	restoredView := chat.NewView(restoredModel, ident.Uuid{Generator: 1, Sequence: 0})
	assert.Equal(t, view.Users(), restoredView.Users())
	assert.Equal(t, view.Conversations(), restoredView.Conversations())
	assert.Equal(t, view.Messages([]ident.Uuid{msg.ID}), restoredView.Messages([]ident.Uuid{msg.ID}))
	assert.Equal(t, view.ConversationInterests(alice.ID), restoredView.ConversationInterests(alice.ID))
	assert.Equal(t, view.UserAccessControl(conv.ID, alice.ID), restoredView.UserAccessControl(conv.ID, alice.ID))

	// Ids minted after replay must not collide with restored ones.
	next, err := replayed.NewUser("carol")
	require.NoError(t, err)
	assert.Greater(t, next.ID.Sequence, msg.ID.Sequence)
}
