// Package repository provides PostgreSQL persistence for agents, keys,
// reputations, verifications, and the tool catalog.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inneri/gateway/internal/gateway/model"
)

// Sentinels mapped onto the wire error tokens by the handlers.
var (
	ErrAgentNotFound = errors.New(model.ErrAgentNotFound)
	ErrKeyNotFound   = errors.New(model.ErrAgentKeyNotFound)
	ErrAgentIDTaken  = errors.New(model.ErrAgentIDTaken)
)

const uniqueViolation = "23505"

// AgentRepository provides agent operations against PostgreSQL.
type AgentRepository struct {
	db *pgxpool.Pool
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts the agent, its public key, and its initial reputation
// in one transaction. A duplicate agent_id yields ErrAgentIDTaken and
// writes nothing.
func (r *AgentRepository) Create(ctx context.Context, agent *model.Agent, publicKeyPEM string) error {
	now := time.Now().UTC()
	agent.CreatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO agents (agent_id, display_name, role, verification_level, risk_tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		agent.AgentID, agent.DisplayName, agent.Role,
		agent.VerificationLevel, agent.RiskTier, agent.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAgentIDTaken
		}
		return fmt.Errorf("insert agent: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_keys (agent_id, public_key_ed25519, created_at)
		VALUES ($1, $2, $3)`,
		agent.AgentID, publicKeyPEM, now,
	)
	if err != nil {
		return fmt.Errorf("insert agent key: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reputations (agent_id, score, updated_at)
		VALUES ($1, $2, $3)`,
		agent.AgentID, model.InitialReputation, now,
	)
	if err != nil {
		return fmt.Errorf("insert reputation: %w", err)
	}

	return tx.Commit(ctx)
}

// Get retrieves an agent by id.
func (r *AgentRepository) Get(ctx context.Context, agentID string) (*model.Agent, error) {
	var a model.Agent
	err := r.db.QueryRow(ctx, `
		SELECT agent_id, display_name, role, verification_level, risk_tier, created_at
		FROM agents WHERE agent_id = $1`, agentID,
	).Scan(&a.AgentID, &a.DisplayName, &a.Role, &a.VerificationLevel, &a.RiskTier, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select agent: %w", err)
	}
	return &a, nil
}

// GetKey retrieves the agent's registered public key.
func (r *AgentRepository) GetKey(ctx context.Context, agentID string) (*model.AgentKey, error) {
	var k model.AgentKey
	err := r.db.QueryRow(ctx, `
		SELECT agent_id, public_key_ed25519, created_at
		FROM agent_keys WHERE agent_id = $1`, agentID,
	).Scan(&k.AgentID, &k.PublicKeyPEM, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select agent key: %w", err)
	}
	return &k, nil
}

// GetReputation retrieves the agent's current score.
func (r *AgentRepository) GetReputation(ctx context.Context, agentID string) (*model.Reputation, error) {
	var rep model.Reputation
	err := r.db.QueryRow(ctx, `
		SELECT agent_id, score, updated_at
		FROM reputations WHERE agent_id = $1`, agentID,
	).Scan(&rep.AgentID, &rep.Score, &rep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select reputation: %w", err)
	}
	return &rep, nil
}

// AdjustReputation applies delta to the agent's score, clamped to
// [0, 100], and returns the new value. The row is locked for the
// read-modify-write.
func (r *AgentRepository) AdjustReputation(ctx context.Context, agentID string, delta int) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin reputation tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var score int
	err = tx.QueryRow(ctx,
		`SELECT score FROM reputations WHERE agent_id = $1 FOR UPDATE`, agentID,
	).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAgentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock reputation: %w", err)
	}

	score = model.ClampScore(score + delta)
	_, err = tx.Exec(ctx,
		`UPDATE reputations SET score = $2, updated_at = $3 WHERE agent_id = $1`,
		agentID, score, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("update reputation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return score, nil
}

// InsertVerification appends a verification event and promotes the
// agent's stored verification level in the same transaction.
func (r *AgentRepository) InsertVerification(ctx context.Context, v *model.Verification, agentLevel string) error {
	report, err := json.Marshal(v.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin verification tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, `
		INSERT INTO verifications (agent_id, level, report_json, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		v.AgentID, v.Level, report, time.Now().UTC(),
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE agents SET verification_level = $2 WHERE agent_id = $1`,
		v.AgentID, agentLevel,
	)
	if err != nil {
		return fmt.Errorf("update verification level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}

	return tx.Commit(ctx)
}
