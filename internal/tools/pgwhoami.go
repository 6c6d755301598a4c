package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"

	"github.com/inneri/gateway/internal/broker"
	"github.com/inneri/gateway/internal/gateway/model"
)

// CredentialMinter mints short-lived database credentials for a broker
// role.
type CredentialMinter interface {
	DatabaseCreds(ctx context.Context, role string) (*broker.Credentials, error)
}

// pgQuerier is the slice of pgx.Conn the executor needs; injectable so
// tests never open a real connection.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// PgWhoamiExecutor connects to the database with freshly minted
// credentials and reports the session user. The minted password is
// used only to open the connection and never appears in output or
// error messages.
type PgWhoamiExecutor struct {
	Minter CredentialMinter

	// BaseURL is the database URL whose userinfo is replaced with the
	// minted credentials, e.g. postgres://db.internal:5432/inneri.
	BaseURL string

	// connect overrides pgx.Connect in tests.
	connect func(ctx context.Context, dsn string) (pgQuerier, error)
}

func (PgWhoamiExecutor) ToolID() string { return "pg_whoami" }

func (e PgWhoamiExecutor) Execute(ctx context.Context, tool *model.Tool, _ map[string]any) (map[string]any, error) {
	if tool.RequiresVaultRole == "" {
		return nil, errors.New("pg_whoami missing requires_vault_role")
	}
	if e.Minter == nil {
		return nil, errors.New("credential broker not configured")
	}

	creds, err := e.Minter.DatabaseCreds(ctx, tool.RequiresVaultRole)
	if err != nil {
		return nil, fmt.Errorf("mint credentials for role %s: %w", tool.RequiresVaultRole, err)
	}

	dsn, err := e.credURL(creds)
	if err != nil {
		return nil, err
	}

	connect := e.connect
	if connect == nil {
		connect = func(ctx context.Context, dsn string) (pgQuerier, error) {
			return pgx.Connect(ctx, dsn)
		}
	}
	conn, err := connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect as %s: database unreachable", creds.Username)
	}
	defer conn.Close(ctx)

	var current string
	if err := conn.QueryRow(ctx, "select current_user").Scan(&current); err != nil {
		return nil, fmt.Errorf("query as %s: %w", creds.Username, err)
	}

	return map[string]any{
		"current_user":   current,
		"lease_id":       creds.LeaseID,
		"lease_duration": creds.LeaseDuration,
	}, nil
}

func (e PgWhoamiExecutor) credURL(creds *broker.Credentials) (string, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return "", errors.New("invalid database base url")
	}
	u.User = url.UserPassword(creds.Username, creds.Password)
	return u.String(), nil
}
