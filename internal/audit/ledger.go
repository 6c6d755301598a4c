package audit

import "context"

// Ledger is the interface for the append-only audit chain. Appends are
// totally ordered: the implementation must serialise the tail read, the
// hash computation, and the insert against all other appends.
type Ledger interface {
	// Append chains a new entry onto the tail and returns it.
	// actorAgentID may be nil for system-originated actions.
	Append(ctx context.Context, actorAgentID *string, action string, request, result any) (*Entry, error)

	// Get returns the entry with the given id.
	Get(ctx context.Context, id int64) (*Entry, error)

	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)

	// Verify walks the whole chain in id order and checks every row
	// hash and prev-hash link. Returns nil if the chain is intact.
	Verify(ctx context.Context) error

	// Root returns the row hash of the most recent entry, or "" when
	// the chain is empty.
	Root(ctx context.Context) (string, error)
}
