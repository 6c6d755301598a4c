// Package nonce implements the single-use challenge registry for the
// authentication handshake. Bindings are held in process memory; an
// external replacement must preserve single-use semantics.
package nonce

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/inneri/gateway/pkg/agentkey"
)

// DefaultTTL is the challenge lifetime.
const DefaultTTL = 120 * time.Second

// nonceBytes gives 192 bits of entropy per challenge.
const nonceBytes = 24

type binding struct {
	nonce       string
	expiresUnix int64
}

// Registry issues and consumes per-agent challenge nonces. An agent
// holds at most one live binding; issuing replaces, and a successful
// consume removes the binding so replay fails.
type Registry struct {
	mu       sync.Mutex
	bindings map[string]binding
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides the default 120 s challenge lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		bindings: make(map[string]binding),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue creates a fresh binding for agentID, overwriting any prior one,
// and returns the nonce with its expiry.
func (r *Registry) Issue(agentID string) (string, int64, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", 0, err
	}
	n := agentkey.EncodeB64URL(buf)
	exp := r.now().Add(r.ttl).Unix()

	r.mu.Lock()
	r.bindings[agentID] = binding{nonce: n, expiresUnix: exp}
	r.mu.Unlock()

	return n, exp, nil
}

// Consume succeeds iff a binding exists for agentID, its nonce matches
// exactly, and it has not expired. On success the binding is removed;
// failures leave the registry unchanged.
func (r *Registry) Consume(agentID, nonce string, now int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[agentID]
	if !ok || b.nonce != nonce || b.expiresUnix < now {
		return false
	}
	delete(r.bindings, agentID)
	return true
}

// Sweep drops expired bindings. Called periodically; correctness does
// not depend on it because Consume checks expiry itself.
func (r *Registry) Sweep() int {
	now := r.now().Unix()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, b := range r.bindings {
		if b.expiresUnix < now {
			delete(r.bindings, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}
