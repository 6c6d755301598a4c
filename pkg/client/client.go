// Package client provides the Go SDK for the Inner I gateway: agent
// registration, the challenge-response handshake, and secure calls.
package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/inneri/gateway/pkg/agentkey"
	"github.com/inneri/gateway/pkg/canonical"
)

// APIError is a non-2xx gateway reply. Token is the stable wire error
// token from the response body when one was present.
type APIError struct {
	Status int
	Token  string
	Body   string
}

func (e *APIError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("gateway: %s (HTTP %d)", e.Token, e.Status)
	}
	return fmt.Sprintf("gateway: HTTP %d", e.Status)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken seeds the client with an existing bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client talks to one gateway instance. It is safe for concurrent use
// after Authenticate.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a Client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token, if any.
func (c *Client) Token() string { return c.token }

// RegisterResult is the reply to Register.
type RegisterResult struct {
	OK       bool   `json:"ok"`
	AgentID  string `json:"agent_id"`
	RiskTier string `json:"risk_tier"`
}

// Register creates an agent with the given Ed25519 public key.
func (c *Client) Register(ctx context.Context, agentID, displayName string, pub ed25519.PublicKey) (*RegisterResult, error) {
	pubPEM, err := agentkey.MarshalPublicKeyPEM(pub)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	var out RegisterResult
	err = c.call(ctx, http.MethodPost, "/v1/agents/register", map[string]string{
		"agent_id":               agentID,
		"display_name":           displayName,
		"public_key_ed25519_pem": pubPEM,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Nonce is a server-issued challenge.
type Nonce struct {
	AgentID     string `json:"agent_id"`
	Nonce       string `json:"nonce"`
	ExpiresUnix int64  `json:"expires_unix"`
}

// RequestNonce fetches a fresh challenge for the agent.
func (c *Client) RequestNonce(ctx context.Context, agentID string) (*Nonce, error) {
	var out Nonce
	path := "/v1/agents/" + url.PathEscape(agentID) + "/nonce"
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session is the reply to Authenticate.
type Session struct {
	OK          bool   `json:"ok"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	TTLSeconds  int    `json:"ttl_seconds"`
	Agent       struct {
		AgentID           string `json:"agent_id"`
		Role              string `json:"role"`
		VerificationLevel string `json:"verification_level"`
		RiskTier          string `json:"risk_tier"`
	} `json:"agent"`
}

// Authenticate fetches a nonce, signs canonical {agent_id, nonce} with
// priv, and exchanges the proof for a bearer token. The token is
// retained on the client for subsequent calls.
func (c *Client) Authenticate(ctx context.Context, agentID string, priv ed25519.PrivateKey) (*Session, error) {
	n, err := c.RequestNonce(ctx, agentID)
	if err != nil {
		return nil, err
	}

	message, err := canonical.Marshal(map[string]string{
		"agent_id": agentID,
		"nonce":    n.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalize challenge: %w", err)
	}

	var out Session
	err = c.call(ctx, http.MethodPost, "/v1/agents/auth", map[string]string{
		"agent_id":         agentID,
		"nonce":            n.Nonce,
		"signature_b64url": agentkey.Sign(priv, message),
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

// Tool is one catalog entry from ListTools.
type Tool struct {
	ToolID      string `json:"tool_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Risk        string `json:"risk"`
	Version     int    `json:"version"`
}

// ListTools returns the enabled tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// ToolCall requests one tool invocation.
type ToolCall struct {
	ToolID string         `json:"tool_id"`
	Args   map[string]any `json:"args,omitempty"`
}

// ToolResult is the per-tool output slot of a secure call.
type ToolResult struct {
	ToolID  string         `json:"tool_id"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
	Blocked bool           `json:"blocked,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Receipt is the signed call summary.
type Receipt struct {
	TsUnix      int64          `json:"ts_unix"`
	AgentID     string         `json:"agent_id"`
	Intent      string         `json:"intent"`
	Mode        string         `json:"mode"`
	Decision    map[string]any `json:"decision"`
	OutputsHash string         `json:"outputs_hash"`
	Signature   string         `json:"signature"`
}

// AuditRef points at the audit entry for a call.
type AuditRef struct {
	AuditID  int64   `json:"audit_id"`
	RowHash  string  `json:"row_hash"`
	PrevHash *string `json:"prev_hash"`
}

// SecureCallResult is the reply to SecureCall. SchemaFailed reports
// whether the gateway answered 422 for a per-tool schema violation;
// the rest of the result is complete either way.
type SecureCallResult struct {
	Outputs      []ToolResult `json:"outputs"`
	Receipt      *Receipt     `json:"receipt"`
	Audit        *AuditRef    `json:"audit"`
	SchemaFailed bool         `json:"-"`
}

// SecureCall runs a policy-mediated tool dispatch in normal mode.
func (c *Client) SecureCall(ctx context.Context, agentID, intent string, calls []ToolCall, dataScopes []string) (*SecureCallResult, error) {
	return c.SecureCallMode(ctx, agentID, intent, calls, dataScopes, "")
}

// SecureCallMode is SecureCall with an explicit execution mode. Pass
// "sandbox" to block medium and high risk tools instead of running them;
// an empty mode means normal execution.
func (c *Client) SecureCallMode(ctx context.Context, agentID, intent string, calls []ToolCall, dataScopes []string, mode string) (*SecureCallResult, error) {
	body := map[string]any{
		"agent_id":    agentID,
		"intent":      intent,
		"tools":       calls,
		"data_scopes": dataScopes,
	}
	if mode != "" {
		body["mode"] = mode
	}

	status, raw, err := c.roundTrip(ctx, http.MethodPost, "/v1/secure_call", body)
	if err != nil {
		return nil, err
	}
	// 422 still carries the full body: per-tool schema errors are
	// isolated, not fatal.
	if status != http.StatusOK && status != http.StatusUnprocessableEntity {
		return nil, apiError(status, raw)
	}

	var out SecureCallResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode secure call reply: %w", err)
	}
	out.SchemaFailed = status == http.StatusUnprocessableEntity
	return &out, nil
}

// VerifyResult is the reply to VerifyAgent.
type VerifyResult struct {
	OK      bool           `json:"ok"`
	Report  map[string]any `json:"report"`
	Receipt map[string]any `json:"receipt"`
}

// VerifyAgent records a verification event for the agent.
func (c *Client) VerifyAgent(ctx context.Context, agentID, level, notes string) (*VerifyResult, error) {
	var out VerifyResult
	err := c.call(ctx, http.MethodPost, "/v1/verify/agent", map[string]string{
		"agent_id": agentID,
		"level":    level,
		"notes":    notes,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Reputation reads the agent's current score.
func (c *Client) Reputation(ctx context.Context, agentID string) (int, error) {
	var out struct {
		AgentID string `json:"agent_id"`
		Score   int    `json:"score"`
	}
	path := "/v1/reputation/" + url.PathEscape(agentID)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Score, nil
}

// VerifyAuditChain asks the gateway to re-walk its audit chain and
// returns the entry count and root hash.
func (c *Client) VerifyAuditChain(ctx context.Context) (int, string, error) {
	var out struct {
		OK      bool   `json:"ok"`
		Entries int    `json:"entries"`
		Root    string `json:"root"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/audit/verify", nil, &out); err != nil {
		return 0, "", err
	}
	return out.Entries, out.Root, nil
}

// call performs a round trip expecting a 2xx reply decoded into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	status, raw, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return apiError(status, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode reply for %s: %w", path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read reply: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func apiError(status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)
	return &APIError{Status: status, Token: body.Error, Body: string(raw)}
}
