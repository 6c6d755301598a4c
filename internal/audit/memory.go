package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation. It
// is primarily useful for tests and single-process deployments that do
// not require durability across restarts.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, actorAgentID *string, action string, request, result any) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var prevHash *string
	if n := len(l.entries); n > 0 {
		h := l.entries[n-1].RowHash
		prevHash = &h
	}

	rowHash, err := HashRow(actorAgentID, action, request, result, prevHash)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           int64(len(l.entries) + 1),
		Ts:           time.Now().UTC(),
		ActorAgentID: actorAgentID,
		Action:       action,
		Request:      request,
		Result:       result,
		PrevHash:     prevHash,
		RowHash:      rowHash,
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, id int64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id < 1 || id > int64(len(l.entries)) {
		return nil, fmt.Errorf("audit entry %d not found", id)
	}
	return l.entries[id-1], nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Ledger.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prevRowHash *string
	for _, e := range l.entries {
		if err := verifyEntry(e, prevRowHash); err != nil {
			return err
		}
		h := e.RowHash
		prevRowHash = &h
	}
	return nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return "", nil
	}
	return l.entries[len(l.entries)-1].RowHash, nil
}

// Entries returns a snapshot of the chain, for tests and export.
func (l *MemoryLedger) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
