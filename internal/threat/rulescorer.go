package threat

import (
	"context"
	"strings"
)

// ruleFunc inspects registration inputs and returns zero or more
// Findings if its rule matches.
type ruleFunc func(agentID, displayName, role string) []Finding

// RuleBasedScorer is the default Scorer implementation. It runs a fixed
// set of pattern-matching rules against the registration inputs and
// accumulates a score.
type RuleBasedScorer struct {
	rules []ruleFunc
}

// NewRuleBasedScorer returns a RuleBasedScorer loaded with the default
// rule set.
func NewRuleBasedScorer() *RuleBasedScorer {
	s := &RuleBasedScorer{}
	s.rules = []ruleFunc{
		ruleNameKeywords,
		ruleIDImpersonation,
		ruleElevatedRole,
	}
	return s
}

// Score implements Scorer.
func (s *RuleBasedScorer) Score(_ context.Context, agentID, displayName, role string) (*Report, error) {
	var findings []Finding
	for _, r := range s.rules {
		findings = append(findings, r(agentID, displayName, role)...)
	}

	total := 0
	for _, f := range findings {
		total += int(f.Confidence * 25)
	}
	if total > 100 {
		total = 100
	}

	if findings == nil {
		findings = []Finding{}
	}

	return &Report{
		Score:    total,
		RiskTier: tierLabel(total),
		Findings: findings,
		Rejected: total >= 85,
	}, nil
}

// suspiciousNameKeywords are terms in the display name that suggest the
// agent is claiming elevated system access.
var suspiciousNameKeywords = []string{
	"shell executor", "command executor", "root agent", "system agent",
	"sudo agent", "kernel agent", "backdoor", "exfiltrat", "keylog",
}

func ruleNameKeywords(_, displayName, _ string) []Finding {
	var findings []Finding
	lower := strings.ToLower(displayName)
	for _, kw := range suspiciousNameKeywords {
		if strings.Contains(lower, kw) {
			findings = append(findings, Finding{
				Rule:        "name_keyword",
				Description: "Display name contains suspicious keyword: " + kw,
				Confidence:  0.8,
			})
		}
	}
	return findings
}

// impersonationIDs are agent-id substrings that mimic platform
// components or privileged services.
var impersonationIDs = []string{
	"gateway", "vault", "opa", "broker", "postgres", "admin", "root", "system",
}

func ruleIDImpersonation(agentID, _, _ string) []Finding {
	var findings []Finding
	lower := strings.ToLower(agentID)
	for _, kw := range impersonationIDs {
		if strings.Contains(lower, kw) {
			findings = append(findings, Finding{
				Rule:        "id_impersonation",
				Description: "Agent id mimics a platform component: " + kw,
				Confidence:  0.6,
			})
			break
		}
	}
	return findings
}

// ruleElevatedRole raises the tier for self-registered privileged
// roles. Registration is open, so admin and verifier roles start at
// medium risk rather than being trusted on arrival.
func ruleElevatedRole(_, _, role string) []Finding {
	if role == "admin" || role == "verifier" {
		return []Finding{{
			Rule:        "elevated_role",
			Description: "Self-registration requested privileged role: " + role,
			Confidence:  1.5,
		}}
	}
	return nil
}
