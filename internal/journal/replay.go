package journal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/adred-codev/chatd/internal/ident"
	"github.com/rs/zerolog"
)

// Applier receives replayed records. The implementation must record the
// supplied uuids and times verbatim and must not journal, or replay would
// duplicate the log it is reading. Times are raw milliseconds.
type Applier interface {
	AddUser(id ident.Uuid, name string, creationMs int64) error
	AddConversation(id, owner ident.Uuid, title string, creationMs int64) error
	AddMessage(id, author, conversation ident.Uuid, content string, creationMs int64) error
	AddUserInterest(user, followed ident.Uuid)
	RemoveUserInterest(user, followed ident.Uuid)
	AddConversationInterest(user, conversation ident.Uuid)
	RemoveConversationInterest(user, conversation ident.Uuid)
	SetCreatorBit(conversation, user ident.Uuid, flag bool)
	SetOwnerBit(conversation, user ident.Uuid, flag bool)
	SetMemberBit(conversation, user ident.Uuid, flag bool)
	FlipRemovedBit(conversation, user ident.Uuid)
}

// ReplayFile replays the log at path into applier. A missing file is not an
// error: a fresh server simply has nothing to restore.
func ReplayFile(path string, applier Applier, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("No transaction log found, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()
	return Replay(f, applier, logger)
}

// Replay reads the log line by line and dispatches each record to applier.
// Lines that do not parse are logged and skipped; replay never aborts the
// server. Empty lines and trailing whitespace are tolerated.
func Replay(r io.Reader, applier Applier, logger zerolog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	lineNo := 0
	restored := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := replayLine(line, applier); err != nil {
			skipped++
			logger.Warn().
				Int("line", lineNo).
				Err(err).
				Msg("Skipping unparseable transaction log record")
			continue
		}
		restored++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("journal: read for replay: %w", err)
	}

	logger.Info().
		Int("restored", restored).
		Int("skipped", skipped).
		Msg("Restored server state from transaction log")
	return nil
}

func replayLine(line string, applier Applier) error {
	tok := NewTokenizer(line)
	op, err := tok.Next()
	if err != nil {
		return err
	}

	switch op {
	case OpAddUser:
		id, err := nextUuid(tok)
		if err != nil {
			return err
		}
		name, err := tok.Next()
		if err != nil {
			return err
		}
		ms, err := nextMs(tok)
		if err != nil {
			return err
		}
		return applier.AddUser(id, name, ms)

	case OpAddConversation:
		id, err := nextUuid(tok)
		if err != nil {
			return err
		}
		owner, err := nextUuid(tok)
		if err != nil {
			return err
		}
		title, err := tok.Next()
		if err != nil {
			return err
		}
		ms, err := nextMs(tok)
		if err != nil {
			return err
		}
		return applier.AddConversation(id, owner, title, ms)

	case OpAddMessage:
		id, err := nextUuid(tok)
		if err != nil {
			return err
		}
		author, err := nextUuid(tok)
		if err != nil {
			return err
		}
		conversation, err := nextUuid(tok)
		if err != nil {
			return err
		}
		content, err := tok.Next()
		if err != nil {
			return err
		}
		ms, err := nextMs(tok)
		if err != nil {
			return err
		}
		return applier.AddMessage(id, author, conversation, content, ms)

	case OpAddInterestUser, OpRemoveInterestUser, OpAddInterestConvo, OpRemoveInterestConv:
		user, err := nextUuid(tok)
		if err != nil {
			return err
		}
		target, err := nextUuid(tok)
		if err != nil {
			return err
		}
		switch op {
		case OpAddInterestUser:
			applier.AddUserInterest(user, target)
		case OpRemoveInterestUser:
			applier.RemoveUserInterest(user, target)
		case OpAddInterestConvo:
			applier.AddConversationInterest(user, target)
		case OpRemoveInterestConv:
			applier.RemoveConversationInterest(user, target)
		}
		return nil

	case OpAddConvoCreator, OpRemoveConvoCreator, OpAddConvoOwner, OpRemoveConvoOwner,
		OpAddConvoMember, OpRemoveConvoMember, OpRemoveConvoToggle:
		conversation, err := nextUuid(tok)
		if err != nil {
			return err
		}
		user, err := nextUuid(tok)
		if err != nil {
			return err
		}
		switch op {
		case OpAddConvoCreator:
			applier.SetCreatorBit(conversation, user, true)
		case OpRemoveConvoCreator:
			applier.SetCreatorBit(conversation, user, false)
		case OpAddConvoOwner:
			applier.SetOwnerBit(conversation, user, true)
		case OpRemoveConvoOwner:
			applier.SetOwnerBit(conversation, user, false)
		case OpAddConvoMember:
			applier.SetMemberBit(conversation, user, true)
		case OpRemoveConvoMember:
			applier.SetMemberBit(conversation, user, false)
		case OpRemoveConvoToggle:
			applier.FlipRemovedBit(conversation, user)
		}
		return nil

	default:
		return fmt.Errorf("journal: unknown record type %q", op)
	}
}

func nextUuid(tok *Tokenizer) (ident.Uuid, error) {
	s, err := tok.Next()
	if err != nil {
		return ident.Null, err
	}
	return ident.Parse(s)
}

func nextMs(tok *Tokenizer) (int64, error) {
	s, err := tok.Next()
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: bad timestamp %q: %w", s, err)
	}
	return ms, nil
}
