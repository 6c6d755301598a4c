package threat

import (
	"context"
	"testing"

	"github.com/inneri/gateway/internal/gateway/model"
)

func TestScoreCleanRegistration(t *testing.T) {
	s := NewRuleBasedScorer()
	report, err := s.Score(context.Background(), "weather-bot-1", "Weather Bot", "agent_runtime")
	if err != nil {
		t.Fatal(err)
	}
	if report.Score != 0 || report.RiskTier != model.RiskLow || report.Rejected {
		t.Fatalf("clean registration scored %+v", report)
	}
	if report.Findings == nil {
		t.Fatal("findings must be non-nil for serialization")
	}
}

func TestScoreSuspiciousName(t *testing.T) {
	s := NewRuleBasedScorer()
	report, err := s.Score(context.Background(), "helper-9", "Shell Executor Agent", "agent_runtime")
	if err != nil {
		t.Fatal(err)
	}
	if report.Score == 0 {
		t.Fatal("suspicious name not flagged")
	}
	if report.Findings[0].Rule != "name_keyword" {
		t.Fatalf("rule = %q", report.Findings[0].Rule)
	}
}

func TestScoreImpersonationAndRole(t *testing.T) {
	s := NewRuleBasedScorer()
	report, err := s.Score(context.Background(), "vault-gateway-admin", "Ops", "admin")
	if err != nil {
		t.Fatal(err)
	}
	// id_impersonation fires once plus elevated_role.
	if len(report.Findings) != 2 {
		t.Fatalf("findings = %+v", report.Findings)
	}
	if report.RiskTier == model.RiskLow {
		t.Fatalf("tier = %q, want elevated", report.RiskTier)
	}
}

func TestScoreRejection(t *testing.T) {
	s := NewRuleBasedScorer()
	report, err := s.Score(context.Background(),
		"root-system-agent", "backdoor keylog shell executor root agent", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Rejected {
		t.Fatalf("expected rejection, scored %d", report.Score)
	}
	if report.RiskTier != model.RiskHigh {
		t.Fatalf("tier = %q", report.RiskTier)
	}
}

func TestTierLabel(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, model.RiskLow},
		{34, model.RiskLow},
		{35, model.RiskMedium},
		{64, model.RiskMedium},
		{65, model.RiskHigh},
		{100, model.RiskHigh},
	}
	for _, tc := range cases {
		if got := tierLabel(tc.score); got != tc.want {
			t.Errorf("tierLabel(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
