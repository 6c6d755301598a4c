// Package model defines the gateway's domain types, wire DTOs, and the
// stable error tokens of the public API.
package model

import "time"

// Agent roles.
const (
	RoleAgentRuntime = "agent_runtime"
	RoleAdmin        = "admin"
	RoleVerifier     = "verifier"
)

// Verification levels stored on the agent record.
const (
	VerificationNone  = "none"
	VerificationBasic = "basic"
	VerificationFull  = "full"
)

// Risk tiers for agents and risk ratings for tools.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// InitialReputation is the score assigned at registration.
const InitialReputation = 50

// Agent is an identity record. AgentID is immutable after creation.
type Agent struct {
	AgentID           string    `json:"agent_id"`
	DisplayName       string    `json:"display_name"`
	Role              string    `json:"role"`
	VerificationLevel string    `json:"verification_level"`
	RiskTier          string    `json:"risk_tier"`
	CreatedAt         time.Time `json:"created_at"`
}

// AgentKey is the agent's Ed25519 public key in PEM (SubjectPublicKeyInfo)
// form, 1:1 with Agent and immutable after registration.
type AgentKey struct {
	AgentID      string    `json:"agent_id"`
	PublicKeyPEM string    `json:"public_key_ed25519"`
	CreatedAt    time.Time `json:"created_at"`
}

// Tool is a catalog entry. A disabled tool is invisible to clients and
// refused by the pipeline.
type Tool struct {
	ToolID            string         `json:"tool_id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Risk              string         `json:"risk"`
	JSONSchema        map[string]any `json:"json_schema"`
	RequiresVaultRole string         `json:"requires_vault_role,omitempty"`
	Enabled           bool           `json:"enabled"`
	Version           int            `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Reputation is a per-agent score clamped to [0, 100] on every update.
type Reputation struct {
	AgentID   string    `json:"agent_id"`
	Score     int       `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Verification event levels (append-only records, distinct from the
// coarse level stored on the agent).
const (
	VerifyLevelBasic       = "basic"
	VerifyLevelTechnical   = "technical"
	VerifyLevelPerformance = "performance"
	VerifyLevelContinuous  = "continuous"
)

// ValidVerifyLevel reports whether level names a known verification event.
func ValidVerifyLevel(level string) bool {
	switch level {
	case VerifyLevelBasic, VerifyLevelTechnical, VerifyLevelPerformance, VerifyLevelContinuous:
		return true
	}
	return false
}

// Verification is one verification event with its embedded report.
type Verification struct {
	ID        int64          `json:"id"`
	AgentID   string         `json:"agent_id"`
	Level     string         `json:"level"`
	Report    map[string]any `json:"report"`
	CreatedAt time.Time      `json:"created_at"`
}

// ClampScore bounds a reputation score to [0, 100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
