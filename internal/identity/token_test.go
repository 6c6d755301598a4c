package identity

import (
	"testing"
	"time"

	"github.com/inneri/gateway/internal/gateway/model"
)

var testAgent = model.AgentBrief{
	AgentID:           "a1",
	Role:              model.RoleAgentRuntime,
	VerificationLevel: model.VerificationNone,
	RiskTier:          model.RiskLow,
}

func TestIssueVerify_roundTrip(t *testing.T) {
	iss := NewTokenIssuer([]byte("test-signing-key"), 0)

	tok, err := iss.Issue(testAgent)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.AgentID != "a1" || claims.Subject != "a1" {
		t.Errorf("wrong subject: %+v", claims)
	}
	if claims.Role != model.RoleAgentRuntime {
		t.Errorf("role = %q", claims.Role)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) != DefaultTokenTTL {
		t.Errorf("ttl = %v", claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	}
}

func TestVerify_wrongKey(t *testing.T) {
	tok, _ := NewTokenIssuer([]byte("key-one"), 0).Issue(testAgent)

	if _, err := NewTokenIssuer([]byte("key-two"), 0).Verify(tok); err != ErrInvalid {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestVerify_expired(t *testing.T) {
	iss := NewTokenIssuer([]byte("k"), -time.Minute)
	tok, err := iss.Issue(testAgent)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Verify(tok); err != ErrExpired {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestVerify_garbage(t *testing.T) {
	iss := NewTokenIssuer([]byte("k"), 0)
	if _, err := iss.Verify("not.a.jwt"); err != ErrInvalid {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestReceiptSigner_verifiable(t *testing.T) {
	signer := NewReceiptSigner([]byte("receipt-key"))
	receipt := map[string]any{
		"ts_unix":      int64(1700000000),
		"agent_id":     "a1",
		"intent":       "t",
		"mode":         "normal",
		"outputs_hash": "abc",
	}

	sig, err := signer.Sign(receipt)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := signer.VerifySignature(receipt, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("signature did not verify")
	}

	receipt["intent"] = "changed"
	ok, _ = signer.VerifySignature(receipt, sig)
	if ok {
		t.Error("signature verified after mutation")
	}
}
