package model

// RegisterRequest is the payload for POST /v1/agents/register.
type RegisterRequest struct {
	AgentID      string `json:"agent_id" binding:"required,min=3,max=64"`
	DisplayName  string `json:"display_name" binding:"required,min=1,max=128"`
	PublicKeyPEM string `json:"public_key_ed25519_pem" binding:"required,min=32"`
}

// RegisterResponse is the reply for POST /v1/agents/register.
type RegisterResponse struct {
	OK       bool   `json:"ok"`
	AgentID  string `json:"agent_id"`
	RiskTier string `json:"risk_tier"`
}

// NonceResponse is the payload for GET /v1/agents/{id}/nonce.
type NonceResponse struct {
	AgentID     string `json:"agent_id"`
	Nonce       string `json:"nonce"`
	ExpiresUnix int64  `json:"expires_unix"`
}

// AuthRequest is the payload for POST /v1/agents/auth. SignatureB64URL
// is an Ed25519 signature over canonical JSON of {agent_id, nonce}.
type AuthRequest struct {
	AgentID         string `json:"agent_id" binding:"required"`
	Nonce           string `json:"nonce" binding:"required"`
	SignatureB64URL string `json:"signature_b64url" binding:"required"`
}

// AuthResponse carries the minted bearer token.
type AuthResponse struct {
	OK          bool       `json:"ok"`
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	TTLSeconds  int        `json:"ttl_seconds"`
	Agent       AgentBrief `json:"agent"`
}

// AgentBrief is the trust-attribute subset of Agent echoed in auth replies.
type AgentBrief struct {
	AgentID           string `json:"agent_id"`
	Role              string `json:"role"`
	VerificationLevel string `json:"verification_level"`
	RiskTier          string `json:"risk_tier"`
}

// ToolCall is one requested tool invocation within a secure call.
type ToolCall struct {
	ToolID string         `json:"tool_id" binding:"required"`
	Args   map[string]any `json:"args"`
}

// SecureCallRequest is the payload for POST /v1/secure_call.
type SecureCallRequest struct {
	AgentID    string     `json:"agent_id" binding:"required"`
	Intent     string     `json:"intent" binding:"required"`
	Model      string     `json:"model,omitempty"`
	Prompt     string     `json:"prompt,omitempty"`
	Tools      []ToolCall `json:"tools"`
	DataScopes []string   `json:"data_scopes"`
}

// ToolResult is the per-tool output slot. Exactly one of Output, Error,
// or the Blocked pair is populated.
type ToolResult struct {
	ToolID  string         `json:"tool_id"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
	Blocked bool           `json:"blocked,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Receipt is the signed summary of a secure call. Signature is an
// HMAC-SHA256 over the canonical encoding of the receipt without the
// signature field.
type Receipt struct {
	TsUnix      int64  `json:"ts_unix"`
	AgentID     string `json:"agent_id"`
	Intent      string `json:"intent"`
	Mode        string `json:"mode"`
	Decision    any    `json:"decision"`
	OutputsHash string `json:"outputs_hash"`
	Signature   string `json:"signature,omitempty"`
}

// AuditRef points at the audit entry appended for a call.
type AuditRef struct {
	AuditID  int64   `json:"audit_id"`
	RowHash  string  `json:"row_hash"`
	PrevHash *string `json:"prev_hash"`
}

// SecureCallResponse is the reply for POST /v1/secure_call.
type SecureCallResponse struct {
	Outputs []ToolResult `json:"outputs"`
	Receipt *Receipt     `json:"receipt"`
	Audit   *AuditRef    `json:"audit"`
}

// VerifyAgentRequest is the payload for POST /v1/verify/agent.
type VerifyAgentRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Level   string `json:"level"`
	Notes   string `json:"notes,omitempty"`
}

// VerificationReceipt is the signed acknowledgement of a verification
// event. Signature is computed over the canonical encoding without the
// signature field.
type VerificationReceipt struct {
	AgentID   string `json:"agent_id"`
	Level     string `json:"level"`
	TsUnix    int64  `json:"ts_unix"`
	Signature string `json:"signature,omitempty"`
}

// VerifyAgentResponse is the reply for POST /v1/verify/agent.
type VerifyAgentResponse struct {
	OK      bool                 `json:"ok"`
	Report  map[string]any       `json:"report"`
	Receipt *VerificationReceipt `json:"receipt"`
}

// ReputationResponse is the reply for GET /v1/reputation/{id}.
type ReputationResponse struct {
	AgentID string `json:"agent_id"`
	Score   int    `json:"score"`
}

// ToolInfo is the public listing shape for GET /v1/tools.
type ToolInfo struct {
	ToolID      string `json:"tool_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Risk        string `json:"risk"`
	Version     int    `json:"version"`
}
