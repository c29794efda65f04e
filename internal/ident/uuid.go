// Package ident provides server-scoped entity identifiers. A Uuid is a
// (generator, sequence) pair of 32-bit unsigned integers; every id minted by
// one server shares that server's generator component, and sequences are
// handed out monotonically so ids never repeat within a process lifetime or
// across a journal replay.
package ident

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/adred-codev/chatd/internal/wire"
)

// Uuid identifies one entity (user, conversation, or message). Equality is
// componentwise; the zero value is the NULL sentinel.
type Uuid struct {
	Generator uint32
	Sequence  uint32
}

// Null is the (0,0) sentinel used for absent references, e.g. the prev link
// of the first message in a conversation.
var Null = Uuid{}

// IsNull reports whether u is the NULL sentinel.
func (u Uuid) IsNull() bool {
	return u == Null
}

// String renders the only textual form accepted by the journal: both
// components base 10 inside brackets, e.g. "[1.42]".
func (u Uuid) String() string {
	return fmt.Sprintf("[%d.%d]", u.Generator, u.Sequence)
}

// Parse reads the textual form produced by String.
func Parse(s string) (Uuid, error) {
	if len(s) < 5 || s[0] != '[' || s[len(s)-1] != ']' {
		return Null, fmt.Errorf("ident: malformed uuid %q", s)
	}
	gen, seq, ok := strings.Cut(s[1:len(s)-1], ".")
	if !ok {
		return Null, fmt.Errorf("ident: malformed uuid %q", s)
	}
	g, err := strconv.ParseUint(gen, 10, 32)
	if err != nil {
		return Null, fmt.Errorf("ident: malformed uuid %q: %w", s, err)
	}
	q, err := strconv.ParseUint(seq, 10, 32)
	if err != nil {
		return Null, fmt.Errorf("ident: malformed uuid %q: %w", s, err)
	}
	return Uuid{Generator: uint32(g), Sequence: uint32(q)}, nil
}

// Write encodes the uuid as two wire INTEGERs (generator, sequence).
func Write(w io.Writer, u Uuid) error {
	if err := wire.WriteInt32(w, int32(u.Generator)); err != nil {
		return err
	}
	return wire.WriteInt32(w, int32(u.Sequence))
}

// Read decodes a uuid from two wire INTEGERs.
func Read(r io.Reader) (Uuid, error) {
	g, err := wire.ReadInt32(r)
	if err != nil {
		return Null, err
	}
	q, err := wire.ReadInt32(r)
	if err != nil {
		return Null, err
	}
	return Uuid{Generator: uint32(g), Sequence: uint32(q)}, nil
}
