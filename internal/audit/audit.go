// Package audit implements the gateway's tamper-evident audit chain:
// an append-only log where every entry carries the SHA-256 of a
// canonical record that includes its predecessor's row hash. Any
// mutation of a stored entry breaks recomputation of its own hash and
// the prev-hash link of its successor.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and development.
//   - PostgresLedger: durable, for production use.
package audit

import (
	"fmt"
	"time"

	"github.com/inneri/gateway/pkg/canonical"
)

// Entry is a single node of the hash chain. PrevHash is nil exactly on
// the first entry.
type Entry struct {
	ID           int64     `json:"audit_id"`
	Ts           time.Time `json:"ts"`
	ActorAgentID *string   `json:"actor_agent_id"`
	Action       string    `json:"action"`
	Request      any       `json:"request"`
	Result       any       `json:"result"`
	PrevHash     *string   `json:"prev_hash"`
	RowHash      string    `json:"row_hash"`
}

// rowRecord is the exact canonical shape hashed for each entry. ID and
// Ts are deliberately excluded so a verifier only needs the stored
// content fields.
type rowRecord struct {
	ActorAgentID *string `json:"actor_agent_id"`
	Action       string  `json:"action"`
	Request      any     `json:"request"`
	Result       any     `json:"result"`
	PrevHash     *string `json:"prev_hash"`
}

// HashRow computes the row hash for the given entry fields.
func HashRow(actorAgentID *string, action string, request, result any, prevHash *string) (string, error) {
	h, err := canonical.Hash(rowRecord{
		ActorAgentID: actorAgentID,
		Action:       action,
		Request:      request,
		Result:       result,
		PrevHash:     prevHash,
	})
	if err != nil {
		return "", fmt.Errorf("hash audit row: %w", err)
	}
	return h, nil
}

// verifyEntry recomputes an entry's row hash and checks its link to the
// predecessor hash (nil for the first entry).
func verifyEntry(e *Entry, prevRowHash *string) error {
	switch {
	case prevRowHash == nil && e.PrevHash != nil:
		return fmt.Errorf("entry %d: prev_hash set on first entry", e.ID)
	case prevRowHash != nil && (e.PrevHash == nil || *e.PrevHash != *prevRowHash):
		return fmt.Errorf("entry %d: chain broken", e.ID)
	}

	want, err := HashRow(e.ActorAgentID, e.Action, e.Request, e.Result, e.PrevHash)
	if err != nil {
		return err
	}
	if e.RowHash != want {
		return fmt.Errorf("entry %d: row hash mismatch", e.ID)
	}
	return nil
}
