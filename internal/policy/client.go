// Package policy queries the external policy decision point (PDP) for
// every secure call and applies the process-wide failure policy when
// the PDP cannot answer.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// Execution modes returned by the PDP.
const (
	ModeNormal  = "normal"
	ModeSandbox = "sandbox"
	ModeDeny    = "deny"
)

// DefaultTimeout bounds the PDP round trip.
const DefaultTimeout = 3 * time.Second

// decisionPath is the PDP document queried for every call.
const decisionPath = "/v1/data/inneri/decision"

// Decision is the PDP verdict for one secure call.
type Decision struct {
	Allow      bool     `json:"allow"`
	Mode       string   `json:"mode"`
	TTLSeconds int      `json:"ttl_seconds"`
	Reasons    []string `json:"reasons"`
}

// AgentInput is the agent slice of the PDP input document.
type AgentInput struct {
	AgentID           string `json:"agent_id"`
	VerificationLevel string `json:"verification_level"`
	RiskTier          string `json:"risk_tier"`
	Role              string `json:"role"`
}

// ToolInput identifies one requested tool and its catalog risk.
type ToolInput struct {
	ToolID string `json:"tool_id"`
	Risk   string `json:"risk"`
}

// RequestInput is the request slice of the PDP input document.
type RequestInput struct {
	Intent     string      `json:"intent"`
	Tools      []ToolInput `json:"tools"`
	DataScopes []string    `json:"data_scopes"`
}

// Input is the structured PDP input for one secure call.
type Input struct {
	Agent   AgentInput   `json:"agent"`
	Request RequestInput `json:"request"`
}

// Client is the synchronous PDP client. When the PDP is unreachable it
// synthesizes a decision per the configured failure policy: fail-closed
// (default) denies, fail-open degrades to sandbox mode.
type Client struct {
	baseURL  string
	failOpen bool
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a PDP client targeting baseURL. timeout defaults to
// DefaultTimeout when zero.
func NewClient(baseURL string, failOpen bool, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  baseURL,
		failOpen: failOpen,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Decide posts the input document to the PDP and returns its decision.
// It never returns an error: failures are folded into a synthesized
// decision carrying the failure class in Reasons.
func (c *Client) Decide(ctx context.Context, input Input) Decision {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return c.unavailable("encode")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+decisionPath, bytes.NewReader(body))
	if err != nil {
		return c.unavailable("request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.unavailable(classify(err))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return c.unavailable(fmt.Sprintf("http_%d", resp.StatusCode))
	}

	var envelope struct {
		Result *Decision `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return c.unavailable("decode")
	}

	// A reachable PDP with no matching document degrades to deny
	// regardless of the failure policy.
	if envelope.Result == nil {
		return Decision{Allow: false, Mode: ModeDeny, Reasons: []string{"opa_no_result"}}
	}
	return *envelope.Result
}

// unavailable synthesizes the decision for an unreachable PDP.
func (c *Client) unavailable(class string) Decision {
	if c.failOpen {
		c.logger.Warn("pdp unavailable, failing open to sandbox", zap.String("class", class))
		return Decision{
			Allow:      true,
			Mode:       ModeSandbox,
			TTLSeconds: 30,
			Reasons:    []string{"opa_unavailable_fail_open:" + class},
		}
	}
	c.logger.Warn("pdp unavailable, failing closed", zap.String("class", class))
	return Decision{
		Allow:   false,
		Mode:    ModeDeny,
		Reasons: []string{"opa_unavailable:" + class},
	}
}

// classify maps a transport error to a stable failure class token.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "timeout"
		}
		return "connect"
	}
}
