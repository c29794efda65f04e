// Package relay defines the federation transport the server cooperates
// with. The relay is an external service with two operations: read a page
// of bundles since a cursor, and write a locally authored
// (user, conversation, message) pack. The core depends only on the Relay
// interface; transports live alongside it.
package relay

import (
	"context"
	"io"

	"github.com/adred-codev/chatd/internal/ident"
	"github.com/adred-codev/chatd/internal/wire"
)

// Component is one leg of a bundle: the id, display text (user name,
// conversation title, or message content), and creation time in
// milliseconds of a remote entity.
type Component struct {
	ID     ident.Uuid
	Text   string
	TimeMs int64
}

// Bundle describes one remote event to materialize locally if absent.
type Bundle struct {
	ID           ident.Uuid
	User         Component
	Conversation Component
	Message      Component
}

// Relay is the external federation service.
type Relay interface {
	// Read returns up to max bundles recorded after the since cursor, in
	// relay order. The returned bundles' own ids advance the cursor.
	Read(ctx context.Context, serverID ident.Uuid, secret []byte, since ident.Uuid, max int) ([]Bundle, error)

	// Write records a locally authored message pack. Best effort: the
	// caller keeps its local state regardless of the outcome.
	Write(ctx context.Context, serverID ident.Uuid, secret []byte, user, conversation, message Component) error
}

// WriteComponent encodes a component as (uuid, text, time).
func WriteComponent(w io.Writer, c Component) error {
	if err := ident.Write(w, c.ID); err != nil {
		return err
	}
	if err := wire.WriteString(w, c.Text); err != nil {
		return err
	}
	return wire.WriteInt64(w, c.TimeMs)
}

// ReadComponent decodes a component.
func ReadComponent(r io.Reader) (Component, error) {
	var c Component
	var err error
	if c.ID, err = ident.Read(r); err != nil {
		return c, err
	}
	if c.Text, err = wire.ReadString(r); err != nil {
		return c, err
	}
	c.TimeMs, err = wire.ReadInt64(r)
	return c, err
}

// WriteBundle encodes a bundle as (id, user, conversation, message).
func WriteBundle(w io.Writer, b Bundle) error {
	if err := ident.Write(w, b.ID); err != nil {
		return err
	}
	if err := WriteComponent(w, b.User); err != nil {
		return err
	}
	if err := WriteComponent(w, b.Conversation); err != nil {
		return err
	}
	return WriteComponent(w, b.Message)
}

// ReadBundle decodes a bundle.
func ReadBundle(r io.Reader) (Bundle, error) {
	var b Bundle
	var err error
	if b.ID, err = ident.Read(r); err != nil {
		return b, err
	}
	if b.User, err = ReadComponent(r); err != nil {
		return b, err
	}
	if b.Conversation, err = ReadComponent(r); err != nil {
		return b, err
	}
	b.Message, err = ReadComponent(r)
	return b, err
}
