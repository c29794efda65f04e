// Package chat holds the authoritative in-memory chat state: the entity
// types, the single-writer Model, the read-only View, and the Controller
// that owns every mutation. All access runs on the server timeline, so no
// locks are taken anywhere in this package.
package chat

import (
	"io"
	"time"

	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/wire"
)

// Time is a millisecond instant. It travels on the wire as a LONG and in
// the journal as base-10 milliseconds.
type Time int64

// Now returns the current instant.
func Now() Time {
	return Time(time.Now().UnixMilli())
}

// Ms returns the raw millisecond value.
func (t Time) Ms() int64 {
	return int64(t)
}

// WriteTime encodes a TIME value.
func WriteTime(w io.Writer, t Time) error {
	return wire.WriteInt64(w, int64(t))
}

// ReadTime decodes a TIME value.
func ReadTime(r io.Reader) (Time, error) {
	v, err := wire.ReadInt64(r)
	return Time(v), err
}

// Access control bits per (conversation, user) pair. Creating a
// conversation grants the owner Creator, Owner, and Member; Removed is a
// sticky flag flipped by ToggleRemovedBit.
const (
	AccessMember  int32 = 1 << 0
	AccessOwner   int32 = 1 << 1
	AccessCreator int32 = 1 << 2
	AccessRemoved int32 = 1 << 3
)

// User is created exactly once and never mutated.
type User struct {
	ID       ident.Uuid
	Name     string
	Creation Time
}

// WriteUser encodes a User as (id, name, creation).
func WriteUser(w io.Writer, u User) error {
	if err := ident.Write(w, u.ID); err != nil {
		return err
	}
	if err := wire.WriteString(w, u.Name); err != nil {
		return err
	}
	return WriteTime(w, u.Creation)
}

// ReadUser decodes a User.
func ReadUser(r io.Reader) (User, error) {
	var u User
	var err error
	if u.ID, err = ident.Read(r); err != nil {
		return u, err
	}
	if u.Name, err = wire.ReadString(r); err != nil {
		return u, err
	}
	u.Creation, err = ReadTime(r)
	return u, err
}

// ConversationHeader is the immutable part of a conversation.
type ConversationHeader struct {
	ID       ident.Uuid
	Owner    ident.Uuid
	Title    string
	Creation Time
}

// WriteConversationHeader encodes a header as (id, owner, title, creation).
func WriteConversationHeader(w io.Writer, c ConversationHeader) error {
	if err := ident.Write(w, c.ID); err != nil {
		return err
	}
	if err := ident.Write(w, c.Owner); err != nil {
		return err
	}
	if err := wire.WriteString(w, c.Title); err != nil {
		return err
	}
	return WriteTime(w, c.Creation)
}

// ReadConversationHeader decodes a header.
func ReadConversationHeader(r io.Reader) (ConversationHeader, error) {
	var c ConversationHeader
	var err error
	if c.ID, err = ident.Read(r); err != nil {
		return c, err
	}
	if c.Owner, err = ident.Read(r); err != nil {
		return c, err
	}
	if c.Title, err = wire.ReadString(r); err != nil {
		return c, err
	}
	c.Creation, err = ReadTime(r)
	return c, err
}

// ConversationPayload is the mutable part of a conversation: the ends of
// its message list. First is NULL iff the conversation has never received
// a message.
type ConversationPayload struct {
	ID    ident.Uuid
	First ident.Uuid
	Last  ident.Uuid
}

// WriteConversationPayload encodes a payload as (id, first, last).
func WriteConversationPayload(w io.Writer, p ConversationPayload) error {
	if err := ident.Write(w, p.ID); err != nil {
		return err
	}
	if err := ident.Write(w, p.First); err != nil {
		return err
	}
	return ident.Write(w, p.Last)
}

// ReadConversationPayload decodes a payload.
func ReadConversationPayload(r io.Reader) (ConversationPayload, error) {
	var p ConversationPayload
	var err error
	if p.ID, err = ident.Read(r); err != nil {
		return p, err
	}
	if p.First, err = ident.Read(r); err != nil {
		return p, err
	}
	p.Last, err = ident.Read(r)
	return p, err
}

// Message is one entry in a conversation's doubly linked list. Prev and
// Next are id links, not pointers; NULL marks the list ends.
type Message struct {
	ID           ident.Uuid
	Author       ident.Uuid
	Conversation ident.Uuid
	Content      string
	Creation     Time
	Prev         ident.Uuid
	Next         ident.Uuid
}

// WriteMessage encodes a message as
// (id, author, conversation, content, creation, prev, next).
func WriteMessage(w io.Writer, m Message) error {
	if err := ident.Write(w, m.ID); err != nil {
		return err
	}
	if err := ident.Write(w, m.Author); err != nil {
		return err
	}
	if err := ident.Write(w, m.Conversation); err != nil {
		return err
	}
	if err := wire.WriteString(w, m.Content); err != nil {
		return err
	}
	if err := WriteTime(w, m.Creation); err != nil {
		return err
	}
	if err := ident.Write(w, m.Prev); err != nil {
		return err
	}
	return ident.Write(w, m.Next)
}

// ReadMessage decodes a message.
func ReadMessage(r io.Reader) (Message, error) {
	var m Message
	var err error
	if m.ID, err = ident.Read(r); err != nil {
		return m, err
	}
	if m.Author, err = ident.Read(r); err != nil {
		return m, err
	}
	if m.Conversation, err = ident.Read(r); err != nil {
		return m, err
	}
	if m.Content, err = wire.ReadString(r); err != nil {
		return m, err
	}
	if m.Creation, err = ReadTime(r); err != nil {
		return m, err
	}
	if m.Prev, err = ident.Read(r); err != nil {
		return m, err
	}
	m.Next, err = ident.Read(r)
	return m, err
}

// ServerInfo is the fixed build identity reported by SERVER_INFO.
type ServerInfo struct {
	Version ident.Uuid
}
