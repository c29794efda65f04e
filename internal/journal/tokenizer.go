package journal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoToken is returned by Next when the line is exhausted.
var ErrNoToken = errors.New("journal: no more tokens")

// Tokenizer splits one log line into whitespace-separated tokens. A token
// may be single-quoted to carry whitespace; backslash escapes the next
// character in both quoted and unquoted tokens.
type Tokenizer struct {
	line string
	pos  int
}

// NewTokenizer tokenizes the given line.
func NewTokenizer(line string) *Tokenizer {
	return &Tokenizer{line: line}
}

// Next returns the next token, or ErrNoToken when the line is exhausted.
func (t *Tokenizer) Next() (string, error) {
	for t.pos < len(t.line) && isSpace(t.line[t.pos]) {
		t.pos++
	}
	if t.pos >= len(t.line) {
		return "", ErrNoToken
	}

	var b strings.Builder
	quoted := t.line[t.pos] == '\''
	if quoted {
		t.pos++
	}
	for t.pos < len(t.line) {
		c := t.line[t.pos]
		switch {
		case c == '\\':
			if t.pos+1 >= len(t.line) {
				return "", fmt.Errorf("journal: dangling escape at column %d", t.pos)
			}
			// \n and \r decode to the control characters the writer cannot
			// put on a one-line record; anything else is the literal byte.
			switch next := t.line[t.pos+1]; next {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(next)
			}
			t.pos += 2
		case quoted && c == '\'':
			t.pos++
			return b.String(), nil
		case !quoted && isSpace(c):
			return b.String(), nil
		default:
			b.WriteByte(c)
			t.pos++
		}
	}
	if quoted {
		return "", errors.New("journal: unterminated quoted token")
	}
	return b.String(), nil
}

// Remaining reports whether any non-whitespace input is left. Trailing
// whitespace never counts as a token.
func (t *Tokenizer) Remaining() bool {
	for i := t.pos; i < len(t.line); i++ {
		if !isSpace(t.line[i]) {
			return true
		}
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}
