package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inneri/gateway/internal/gateway/model"
)

// ToolRepository provides tool catalog reads against PostgreSQL.
type ToolRepository struct {
	db *pgxpool.Pool
}

// NewToolRepository creates a new ToolRepository.
func NewToolRepository(db *pgxpool.Pool) *ToolRepository {
	return &ToolRepository{db: db}
}

const toolColumns = `tool_id, name, description, risk, json_schema,
	COALESCE(requires_vault_role, ''), enabled, version, created_at`

// Get retrieves a tool by id regardless of enabled state; the catalog
// decides visibility. A missing tool returns (nil, nil).
func (r *ToolRepository) Get(ctx context.Context, toolID string) (*model.Tool, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE tool_id = $1`, toolID)
	t, err := scanTool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select tool: %w", err)
	}
	return t, nil
}

// ListEnabled returns all enabled tools ordered by id.
func (r *ToolRepository) ListEnabled(ctx context.Context) ([]*model.Tool, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE enabled ORDER BY tool_id`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []*model.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// Upsert inserts or replaces a tool definition; used by the seeder.
func (r *ToolRepository) Upsert(ctx context.Context, t *model.Tool) error {
	schema, err := json.Marshal(t.JSONSchema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO tools (tool_id, name, description, risk, json_schema, requires_vault_role, enabled, version, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, now())
		ON CONFLICT (tool_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			risk = EXCLUDED.risk,
			json_schema = EXCLUDED.json_schema,
			requires_vault_role = EXCLUDED.requires_vault_role,
			enabled = EXCLUDED.enabled,
			version = tools.version + 1`,
		t.ToolID, t.Name, t.Description, t.Risk, schema,
		t.RequiresVaultRole, t.Enabled, t.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert tool: %w", err)
	}
	return nil
}

func scanTool(row pgx.Row) (*model.Tool, error) {
	var t model.Tool
	var schema []byte
	err := row.Scan(&t.ToolID, &t.Name, &t.Description, &t.Risk, &schema,
		&t.RequiresVaultRole, &t.Enabled, &t.Version, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &t.JSONSchema); err != nil {
			return nil, fmt.Errorf("decode schema for %s: %w", t.ToolID, err)
		}
	}
	return &t, nil
}
