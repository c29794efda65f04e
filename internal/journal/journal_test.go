package journal_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/journal"
)

func TestQuote(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"[1.42]", "[1.42]"},
		{"", "''"},
		{"two words", "'two words'"},
		{"tab\there", "'tab\there'"},
		{`it's`, `'it\'s'`},
		{`back\slash`, `'back\\slash'`},
		{"hi\nthere", `'hi\nthere'`},
		{"ali\rce", `'ali\rce'`},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, journal.Quote(c.in), "input %q", c.in)
	}
}

func TestEncodeRecord(t *testing.T) {
	line := journal.EncodeRecord(journal.OpAddUser, "[1.1]", "alice smith", "1700000000000")
	assert.Equal(t, "ADD-USER [1.1] 'alice smith' 1700000000000", line)
}

func TestTokenizer(t *testing.T) {
	tok := journal.NewTokenizer("ADD-USER [1.1] 'alice smith' 1700000000000")

	for _, want := range []string{"ADD-USER", "[1.1]", "alice smith", "1700000000000"} {
		got, err := tok.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := tok.Next()
	assert.ErrorIs(t, err, journal.ErrNoToken)
	assert.False(t, tok.Remaining())
}

func TestTokenizerEscapes(t *testing.T) {
	quoted := journal.Quote(`it's a 'test' with \ inside`)
	tok := journal.NewTokenizer(quoted)
	got, err := tok.Next()
	require.NoError(t, err)
	assert.Equal(t, `it's a 'test' with \ inside`, got)
}

func TestTokenizerEmptyToken(t *testing.T) {
	tok := journal.NewTokenizer("a '' b")
	for _, want := range []string{"a", "", "b"} {
		got, err := tok.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTokenizerDecodesControlEscapes(t *testing.T) {
	for _, token := range []string{
		"hi\nthere",
		"ali\rce",
		"\n",
		"mixed\n'quote'\r\\slash",
	} {
		quoted := journal.Quote(token)
		assert.NotContains(t, quoted, "\n", "input %q", token)
		assert.NotContains(t, quoted, "\r", "input %q", token)

		got, err := journal.NewTokenizer(quoted).Next()
		require.NoError(t, err)
		assert.Equal(t, token, got, "input %q", token)
	}
}

func TestTokenizerErrors(t *testing.T) {
	_, err := journal.NewTokenizer("'unterminated").Next()
	assert.Error(t, err)

	_, err = journal.NewTokenizer(`dangling\`).Next()
	assert.Error(t, err)
}

// recordingApplier captures replayed records as readable strings.
type recordingApplier struct {
	ops []string
}

func (a *recordingApplier) note(parts ...string) {
	a.ops = append(a.ops, strings.Join(parts, " "))
}

func (a *recordingApplier) AddUser(id ident.Uuid, name string, ms int64) error {
	a.note("user", id.String(), name)
	return nil
}

func (a *recordingApplier) AddConversation(id, owner ident.Uuid, title string, ms int64) error {
	a.note("conversation", id.String(), owner.String(), title)
	return nil
}

func (a *recordingApplier) AddMessage(id, author, conversation ident.Uuid, content string, ms int64) error {
	a.note("message", id.String(), author.String(), conversation.String(), content)
	return nil
}

func (a *recordingApplier) AddUserInterest(user, followed ident.Uuid) {
	a.note("user-interest+", user.String(), followed.String())
}

func (a *recordingApplier) RemoveUserInterest(user, followed ident.Uuid) {
	a.note("user-interest-", user.String(), followed.String())
}

func (a *recordingApplier) AddConversationInterest(user, conversation ident.Uuid) {
	a.note("conv-interest+", user.String(), conversation.String())
}

func (a *recordingApplier) RemoveConversationInterest(user, conversation ident.Uuid) {
	a.note("conv-interest-", user.String(), conversation.String())
}

func (a *recordingApplier) SetCreatorBit(conversation, user ident.Uuid, flag bool) {
	a.note("creator", conversation.String(), user.String())
}

func (a *recordingApplier) SetOwnerBit(conversation, user ident.Uuid, flag bool) {
	a.note("owner", conversation.String(), user.String())
}

func (a *recordingApplier) SetMemberBit(conversation, user ident.Uuid, flag bool) {
	a.note("member", conversation.String(), user.String())
}

func (a *recordingApplier) FlipRemovedBit(conversation, user ident.Uuid) {
	a.note("removed", conversation.String(), user.String())
}

func TestWriterReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transaction_log.txt")

	w, err := journal.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(journal.OpAddUser, "[1.1]", "alice smith", "1000"))
	require.NoError(t, w.Append(journal.OpAddConversation, "[1.2]", "[1.1]", "general", "2000"))
	require.NoError(t, w.Append(journal.OpAddConvoCreator, "[1.2]", "[1.1]"))
	require.NoError(t, w.Append(journal.OpAddMessage, "[1.3]", "[1.1]", "[1.2]", "hi 'there'", "3000"))
	require.NoError(t, w.Close())

	applier := &recordingApplier{}
	require.NoError(t, journal.ReplayFile(path, applier, zerolog.Nop()))

	assert.Equal(t, []string{
		"user [1.1] alice smith",
		"conversation [1.2] [1.1] general",
		"creator [1.2] [1.1]",
		"message [1.3] [1.1] [1.2] hi 'there'",
	}, applier.ops)
}

func TestReplaySkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transaction_log.txt")
	content := strings.Join([]string{
		"ADD-USER [1.1] alice 1000",
		"GARBAGE not a record",
		"ADD-USER [1.1]", // too few fields
		"",
		"ADD-USER [1.2] bob 2000",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	applier := &recordingApplier{}
	require.NoError(t, journal.ReplayFile(path, applier, zerolog.Nop()))

	assert.Equal(t, []string{
		"user [1.1] alice",
		"user [1.2] bob",
	}, applier.ops)
}

func TestNewlineContentStaysOneRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transaction_log.txt")

	w, err := journal.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(journal.OpAddUser, "[1.1]", "ali\rce", "1000"))
	require.NoError(t, w.Append(journal.OpAddMessage, "[1.3]", "[1.1]", "[1.2]", "hi\nthere", "3000"))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), 2)

	applier := &recordingApplier{}
	require.NoError(t, journal.ReplayFile(path, applier, zerolog.Nop()))
	assert.Equal(t, []string{
		"user [1.1] ali\rce",
		"message [1.3] [1.1] [1.2] hi\nthere",
	}, applier.ops)
}

func TestReplayMissingFileIsEmpty(t *testing.T) {
	applier := &recordingApplier{}
	path := filepath.Join(t.TempDir(), "does_not_exist.txt")
	require.NoError(t, journal.ReplayFile(path, applier, zerolog.Nop()))
	assert.Empty(t, applier.ops)
}

func TestAppendCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "log.txt")
	w, err := journal.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(journal.OpAddUser, "[1.1]", "alice", "1000"))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ADD-USER [1.1] alice 1000\n", string(data))
}
