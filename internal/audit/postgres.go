package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent Append calls across all gateway
// instances sharing a database. The value is arbitrary but must be
// consistent everywhere.
const advisoryLockKey = int64(7_415_920_031)

// PostgresLedger persists the audit chain to the audit_log table. It
// implements the Ledger interface.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// Append implements Ledger. It acquires a transaction-scoped advisory
// lock, reads the chain tail, computes the new row hash, and inserts —
// all within one transaction, so prev_hash values form a total linear
// chain even under concurrent appends.
func (l *PostgresLedger) Append(ctx context.Context, actorAgentID *string, action string, request, result any) (*Entry, error) {
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal audit request: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal audit result: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevHash *string
	var tail string
	err = tx.QueryRow(ctx,
		"SELECT row_hash FROM audit_log ORDER BY id DESC LIMIT 1",
	).Scan(&tail)
	switch {
	case err == nil:
		prevHash = &tail
	case err == pgx.ErrNoRows:
		// First entry: prev_hash stays NULL.
	default:
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	rowHash, err := HashRow(actorAgentID, action, request, result, prevHash)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ActorAgentID: actorAgentID,
		Action:       action,
		Request:      request,
		Result:       result,
		PrevHash:     prevHash,
		RowHash:      rowHash,
	}
	if err := tx.QueryRow(ctx,
		`INSERT INTO audit_log (actor_agent_id, action, request_json, result_json, prev_hash, row_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, ts`,
		actorAgentID, action, requestJSON, resultJSON, prevHash, rowHash,
	).Scan(&entry.ID, &entry.Ts); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.Int64("audit_id", entry.ID),
		zap.String("action", action),
	)
	return entry, nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, id int64) (*Entry, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT id, ts, actor_agent_id, action, request_json, result_json, prev_hash, row_hash
		 FROM audit_log WHERE id = $1`, id,
	)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", id, err)
	}
	return entry, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements Ledger. It streams all rows ordered by id and
// validates the hash chain. O(n) in chain length.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT id, ts, actor_agent_id, action, request_json, result_json, prev_hash, row_hash
		 FROM audit_log ORDER BY id ASC`,
	)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var prevRowHash *string
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan audit row: %w", err)
		}
		if err := verifyEntry(curr, prevRowHash); err != nil {
			return err
		}
		h := curr.RowHash
		prevRowHash = &h
	}
	return rows.Err()
}

// Root implements Ledger.
func (l *PostgresLedger) Root(ctx context.Context) (string, error) {
	var hash string
	err := l.pool.QueryRow(ctx,
		"SELECT row_hash FROM audit_log ORDER BY id DESC LIMIT 1",
	).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get audit root: %w", err)
	}
	return hash, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	entry := &Entry{}
	var ts time.Time
	var requestJSON, resultJSON []byte
	if err := row.Scan(
		&entry.ID, &ts, &entry.ActorAgentID, &entry.Action,
		&requestJSON, &resultJSON, &entry.PrevHash, &entry.RowHash,
	); err != nil {
		return nil, err
	}
	entry.Ts = ts

	// Decode stored JSON so Verify recomputes the hash over the same
	// logical value Append hashed.
	if err := json.Unmarshal(requestJSON, &entry.Request); err != nil {
		return nil, fmt.Errorf("decode request_json: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
		return nil, fmt.Errorf("decode result_json: %w", err)
	}
	return entry, nil
}
