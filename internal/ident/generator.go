package ident

// Generator mints fresh uuids for one server. Sequences start at 1 and only
// move forward. Not safe for concurrent use; all callers run on the server
// timeline.
type Generator struct {
	id   uint32
	last uint32
}

// NewGenerator creates a generator scoped to the given server id.
func NewGenerator(serverID uint32) *Generator {
	return &Generator{id: serverID}
}

// ServerID returns the generator component stamped on every minted uuid.
func (g *Generator) ServerID() uint32 {
	return g.id
}

// Next mints a fresh uuid.
func (g *Generator) Next() Uuid {
	g.last++
	return Uuid{Generator: g.id, Sequence: g.last}
}

// Observe records an externally supplied uuid (journal replay or relay).
// When the uuid carries this server's own generator id, the counter advances
// past its sequence so future fresh ids cannot collide with it.
func (g *Generator) Observe(u Uuid) {
	if u.Generator == g.id && u.Sequence > g.last {
		g.last = u.Sequence
	}
}
