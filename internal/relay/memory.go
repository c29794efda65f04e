package relay

import (
	"context"
	"sync"

	"github.com/adred-codev/chatd/internal/ident"
)

// MemoryRelay is an in-process relay. It backs tests and standalone
// deployments that run without a relay bus; federation through it only
// reaches servers in the same process.
type MemoryRelay struct {
	mu      sync.Mutex
	bundles []Bundle
	nextSeq uint32
}

// relayGenerator is the generator component stamped on bundle ids minted by
// the in-process relay.
const relayGenerator uint32 = 0xFFFF

// NewMemoryRelay creates an empty in-process relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{}
}

// Read implements Relay. Bundles strictly after the since cursor are
// returned in write order, up to max.
func (r *MemoryRelay) Read(_ context.Context, _ ident.Uuid, _ []byte, since ident.Uuid, max int) ([]Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	if !since.IsNull() {
		for i, b := range r.bundles {
			if b.ID == since {
				start = i + 1
				break
			}
		}
	}
	end := start + max
	if end > len(r.bundles) {
		end = len(r.bundles)
	}
	out := make([]Bundle, end-start)
	copy(out, r.bundles[start:end])
	return out, nil
}

// Write implements Relay.
func (r *MemoryRelay) Write(_ context.Context, _ ident.Uuid, _ []byte, user, conversation, message Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	r.bundles = append(r.bundles, Bundle{
		ID:           ident.Uuid{Generator: relayGenerator, Sequence: r.nextSeq},
		User:         user,
		Conversation: conversation,
		Message:      message,
	})
	return nil
}
