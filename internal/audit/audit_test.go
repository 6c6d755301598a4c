package audit_test

import (
	"context"
	"testing"

	"github.com/inneri/gateway/internal/audit"
)

var ctx = context.Background()

func actor(id string) *string { return &id }

func TestAppend_firstEntryHasNilPrevHash(t *testing.T) {
	l := audit.NewMemoryLedger()

	e, err := l.Append(ctx, actor("a1"), "agent.register", map[string]any{"agent_id": "a1"}, map[string]any{"ok": true})
	if err != nil {
		t.Fatal(err)
	}
	if e.PrevHash != nil {
		t.Errorf("first entry prev_hash = %v, want nil", *e.PrevHash)
	}
	if e.ID != 1 {
		t.Errorf("first entry id = %d, want 1", e.ID)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	l := audit.NewMemoryLedger()

	e1, err := l.Append(ctx, actor("a1"), "agent.register", nil, map[string]any{"ok": true})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Append(ctx, actor("a1"), "agent.auth", nil, map[string]any{"ok": true})
	if err != nil {
		t.Fatal(err)
	}

	if e2.PrevHash == nil || *e2.PrevHash != e1.RowHash {
		t.Errorf("chain broken: e2.PrevHash=%v, want e1.RowHash=%q", e2.PrevHash, e1.RowHash)
	}

	n, _ := l.Len(ctx)
	if n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestVerify_valid(t *testing.T) {
	l := audit.NewMemoryLedger()
	_, _ = l.Append(ctx, actor("a1"), "agent.register", nil, map[string]any{"ok": true})
	_, _ = l.Append(ctx, actor("a1"), "secure_call.run", map[string]any{"intent": "t"}, map[string]any{"mode": "normal"})
	_, _ = l.Append(ctx, nil, "system.sweep", nil, map[string]any{"removed": 0})

	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify failed on valid chain: %v", err)
	}
}

func TestVerify_emptyChain(t *testing.T) {
	l := audit.NewMemoryLedger()
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify on empty chain: %v", err)
	}
	root, _ := l.Root(ctx)
	if root != "" {
		t.Errorf("Root on empty chain = %q", root)
	}
}

func TestVerify_detectsResultTampering(t *testing.T) {
	l := audit.NewMemoryLedger()
	_, _ = l.Append(ctx, actor("a1"), "a.one", nil, map[string]any{"v": 1})
	_, _ = l.Append(ctx, actor("a1"), "a.two", nil, map[string]any{"v": 2})
	e3, _ := l.Append(ctx, actor("a1"), "a.three", nil, map[string]any{"v": 3})
	_, _ = l.Append(ctx, actor("a1"), "a.four", nil, map[string]any{"v": 4})

	// Mutate the third entry's result after the fact.
	e3.Result = map[string]any{"v": 999}

	if err := l.Verify(ctx); err == nil {
		t.Error("Verify passed on tampered chain")
	}

	// The recomputed hash of the tampered row must no longer match,
	// and therefore entry 4's prev link points at a hash the row no
	// longer produces.
	recomputed, err := audit.HashRow(e3.ActorAgentID, e3.Action, e3.Request, e3.Result, e3.PrevHash)
	if err != nil {
		t.Fatal(err)
	}
	if recomputed == e3.RowHash {
		t.Error("tampering did not change the recomputed row hash")
	}
	e4, _ := l.Get(ctx, 4)
	if *e4.PrevHash == recomputed {
		t.Error("entry 4 prev_hash matches tampered recomputation")
	}
}

func TestRoot_returnsTail(t *testing.T) {
	l := audit.NewMemoryLedger()
	_, _ = l.Append(ctx, actor("a1"), "a.one", nil, nil)
	e2, _ := l.Append(ctx, actor("a1"), "a.two", nil, nil)

	root, err := l.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != e2.RowHash {
		t.Errorf("Root = %q, want %q", root, e2.RowHash)
	}
}

// The row hash must be recomputable from stored fields alone and be
// independent of map iteration order.
func TestHashRow_deterministic(t *testing.T) {
	req := map[string]any{"b": 2, "a": 1}
	res := map[string]any{"outputs": []any{"x", "y"}}

	h1, err := audit.HashRow(actor("a1"), "secure_call.run", req, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := audit.HashRow(actor("a1"), "secure_call.run", map[string]any{"a": 1, "b": 2}, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash depends on construction order: %s vs %s", h1, h2)
	}

	h3, _ := audit.HashRow(actor("a1"), "secure_call.run", req, res, &h1)
	if h3 == h1 {
		t.Error("prev_hash not part of the hashed record")
	}
}
