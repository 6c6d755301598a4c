// Package threat scores agent registration requests. The score assigns
// the agent's initial risk tier and can reject a registration outright
// before it is written to the database.
package threat

import (
	"context"

	"github.com/inneri/gateway/internal/gateway/model"
)

// Finding is a single rule match returned by the scorer.
type Finding struct {
	Rule        string  `json:"rule"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Report is the output of a registration analysis run.
type Report struct {
	// Score is the aggregate risk score (0-100).
	Score int `json:"score"`

	// RiskTier is the tier derived from Score:
	//   0-34   → low
	//   35-64  → medium
	//   65-100 → high
	RiskTier string `json:"risk_tier"`

	// Findings lists every rule that triggered.
	Findings []Finding `json:"findings"`

	// Rejected is true when Score >= 85. Rejected registrations must
	// not be persisted.
	Rejected bool `json:"rejected"`
}

// Scorer analyses a registration request for risk indicators.
type Scorer interface {
	Score(ctx context.Context, agentID, displayName, role string) (*Report, error)
}

// tierLabel maps a 0-100 score to a risk tier.
func tierLabel(score int) string {
	switch {
	case score >= 65:
		return model.RiskHigh
	case score >= 35:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
