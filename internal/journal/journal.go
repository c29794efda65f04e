// Package journal persists every model mutation as one UTF-8 text line in
// an append-only transaction log, and replays that log into an empty model
// on startup. The log is the single source of durable truth: a write
// failure is fatal to the server because the in-memory model has already
// diverged from disk.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrWrite marks a failed append. The in-memory model has already applied
// or is about to apply the mutation, so the server must treat this as
// fatal: durable state can no longer be trusted.
var ErrWrite = errors.New("journal: write failed")

// Record opcodes. The grammar is append-only; never renumber or reuse.
const (
	OpAddUser            = "ADD-USER"
	OpAddConversation    = "ADD-CONVERSATION"
	OpAddMessage         = "ADD-MESSAGE"
	OpAddInterestUser    = "ADD-INTEREST-USER"
	OpRemoveInterestUser = "REMOVE-INTEREST-USER"
	OpAddInterestConvo   = "ADD-INTEREST-CONVERSATION"
	OpRemoveInterestConv = "REMOVE-INTEREST-CONVERSATION"
	OpAddConvoCreator    = "ADD-CONVO-CREATOR"
	OpRemoveConvoCreator = "REMOVE-CONVO-CREATOR"
	OpAddConvoOwner      = "ADD-CONVO-OWNER"
	OpRemoveConvoOwner   = "REMOVE-CONVO-OWNER"
	OpAddConvoMember     = "ADD-CONVO-MEMBER"
	OpRemoveConvoMember  = "REMOVE-CONVO-MEMBER"
	OpRemoveConvoToggle  = "REMOVE-CONVO-TOGGLE"
)

// Quote renders one token for the log. Tokens containing whitespace, a
// single quote, a backslash, or any control character (and empty tokens)
// are single-quoted with backslash escapes; everything else is written
// bare. Newline and carriage return become the \n and \r sequences, since
// a record must stay on one line. The tokenizer accepts both forms
// uniformly.
func Quote(token string) string {
	if token != "" && !needsQuoting(token) {
		return token
	}
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(token); i++ {
		switch token[i] {
		case '\'', '\\':
			b.WriteByte('\\')
			b.WriteByte(token[i])
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(token[i])
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func needsQuoting(token string) bool {
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c == ' ' || c == '\'' || c == '\\' || c < 0x20 {
			return true
		}
	}
	return false
}

// EncodeRecord joins fields into one log line, quoting as needed.
func EncodeRecord(fields ...string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = Quote(f)
	}
	return strings.Join(quoted, " ")
}

// Writer appends records to the transaction log. It is owned exclusively by
// the timeline worker; no internal locking.
type Writer struct {
	file *os.File
}

// OpenWriter opens (creating if needed) the log file in append mode,
// creating parent directories on first run.
func OpenWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create data dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open log: %w", err)
	}
	return &Writer{file: f}, nil
}

// Append writes one record and syncs it to disk before returning, so the
// record order on disk equals the mutation order and a crash loses at most
// the mutation in flight.
func (w *Writer) Append(fields ...string) error {
	line := EncodeRecord(fields...) + "\n"
	if _, err := w.file.WriteString(line); err != nil {
		return fmt.Errorf("%w: append: %v", ErrWrite, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrWrite, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}
