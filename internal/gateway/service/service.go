// Package service implements the gateway's business logic: the
// registration and challenge-response handshake, the policy-mediated
// secure-call pipeline, verification, and reputation reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inneri/gateway/internal/audit"
	"github.com/inneri/gateway/internal/gateway/model"
	"github.com/inneri/gateway/internal/identity"
	"github.com/inneri/gateway/internal/nonce"
	"github.com/inneri/gateway/internal/policy"
	"github.com/inneri/gateway/internal/threat"
	"github.com/inneri/gateway/internal/tools"
	"github.com/inneri/gateway/pkg/agentkey"
	"github.com/inneri/gateway/pkg/canonical"
)

// Sentinels mapped onto wire error tokens by the handlers.
var (
	ErrInvalidPublicKey         = errors.New("invalid_public_key_pem")
	ErrRegistrationRejected     = errors.New(model.ErrRegistrationRejected)
	ErrInvalidNonce             = errors.New(model.ErrInvalidOrExpiredNonce)
	ErrBadSignature             = errors.New(model.ErrBadSignature)
	ErrTokenAgentMismatch       = errors.New(model.ErrTokenAgentMismatch)
	ErrInvalidVerificationLevel = errors.New(model.ErrInvalidVerificationLevel)
)

// DeniedError carries the PDP decision alongside the denial so the
// HTTP layer can return it to the caller.
type DeniedError struct {
	Decision policy.Decision
}

func (e *DeniedError) Error() string { return model.ErrDenied }

// AgentStore is the persistence interface the service needs.
// *repository.AgentRepository satisfies it.
type AgentStore interface {
	Create(ctx context.Context, agent *model.Agent, publicKeyPEM string) error
	Get(ctx context.Context, agentID string) (*model.Agent, error)
	GetKey(ctx context.Context, agentID string) (*model.AgentKey, error)
	GetReputation(ctx context.Context, agentID string) (*model.Reputation, error)
	AdjustReputation(ctx context.Context, agentID string, delta int) (int, error)
	InsertVerification(ctx context.Context, v *model.Verification, agentLevel string) error
}

// PolicyDecider is the PDP interface. *policy.Client satisfies it.
type PolicyDecider interface {
	Decide(ctx context.Context, input policy.Input) policy.Decision
}

// Deps bundles the service's collaborators.
type Deps struct {
	Agents   AgentStore
	Catalog  *tools.Catalog
	Runtime  *tools.Runtime
	Nonces   *nonce.Registry
	Tokens   *identity.TokenIssuer
	Receipts *identity.ReceiptSigner
	Ledger   audit.Ledger
	PDP      PolicyDecider
	Scorer   threat.Scorer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service is the gateway's application core.
type Service struct {
	agents   AgentStore
	catalog  *tools.Catalog
	runtime  *tools.Runtime
	nonces   *nonce.Registry
	tokens   *identity.TokenIssuer
	receipts *identity.ReceiptSigner
	ledger   audit.Ledger
	pdp      PolicyDecider
	scorer   threat.Scorer
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Service.
func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		agents:   d.Agents,
		catalog:  d.Catalog,
		runtime:  d.Runtime,
		nonces:   d.Nonces,
		tokens:   d.Tokens,
		receipts: d.Receipts,
		ledger:   d.Ledger,
		pdp:      d.PDP,
		scorer:   d.Scorer,
		logger:   logger,
		now:      now,
	}
}

// Register creates an agent with its key and initial reputation. The
// registration is scored first; a critical score rejects it before
// anything is persisted.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.Agent, error) {
	if _, err := agentkey.ParsePublicKeyPEM(req.PublicKeyPEM); err != nil {
		return nil, ErrInvalidPublicKey
	}

	agent := &model.Agent{
		AgentID:           req.AgentID,
		DisplayName:       req.DisplayName,
		Role:              model.RoleAgentRuntime,
		VerificationLevel: model.VerificationNone,
		RiskTier:          model.RiskLow,
	}

	if s.scorer != nil {
		report, err := s.scorer.Score(ctx, req.AgentID, req.DisplayName, agent.Role)
		if err != nil {
			return nil, fmt.Errorf("score registration: %w", err)
		}
		if report.Rejected {
			s.auditAppend(ctx, &req.AgentID, "agent.register_rejected",
				map[string]any{"agent_id": req.AgentID, "display_name": req.DisplayName},
				map[string]any{"score": report.Score, "findings": report.Findings},
			)
			return nil, ErrRegistrationRejected
		}
		agent.RiskTier = report.RiskTier
	}

	if err := s.agents.Create(ctx, agent, req.PublicKeyPEM); err != nil {
		return nil, err
	}

	s.auditAppend(ctx, &req.AgentID, "agent.register",
		map[string]any{"agent_id": req.AgentID, "display_name": req.DisplayName, "public_key_ed25519_pem": req.PublicKeyPEM},
		map[string]any{"ok": true, "risk_tier": agent.RiskTier},
	)
	return agent, nil
}

// RequestNonce issues a fresh challenge for the agent, voiding any
// prior one.
func (s *Service) RequestNonce(ctx context.Context, agentID string) (*model.NonceResponse, error) {
	if _, err := s.agents.Get(ctx, agentID); err != nil {
		return nil, err
	}
	n, exp, err := s.nonces.Issue(agentID)
	if err != nil {
		return nil, fmt.Errorf("issue nonce: %w", err)
	}
	return &model.NonceResponse{AgentID: agentID, Nonce: n, ExpiresUnix: exp}, nil
}

// Authenticate consumes the agent's challenge and verifies the Ed25519
// signature over canonical {agent_id, nonce}. On success it mints a
// bearer token snapshotting the agent's trust attributes. The nonce is
// burned before signature verification, so a bad signature costs the
// challenge.
func (s *Service) Authenticate(ctx context.Context, req model.AuthRequest) (*model.AuthResponse, error) {
	agent, err := s.agents.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	key, err := s.agents.GetKey(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	if !s.nonces.Consume(req.AgentID, req.Nonce, s.now().Unix()) {
		return nil, ErrInvalidNonce
	}

	message, err := canonical.Marshal(map[string]string{
		"agent_id": req.AgentID,
		"nonce":    req.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalize challenge: %w", err)
	}
	if !agentkey.Verify(key.PublicKeyPEM, message, req.SignatureB64URL) {
		return nil, ErrBadSignature
	}

	brief := model.AgentBrief{
		AgentID:           agent.AgentID,
		Role:              agent.Role,
		VerificationLevel: agent.VerificationLevel,
		RiskTier:          agent.RiskTier,
	}
	token, err := s.tokens.Issue(brief)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.auditAppend(ctx, &req.AgentID, "agent.auth",
		map[string]any{"agent_id": req.AgentID, "nonce": req.Nonce},
		map[string]any{"ok": true},
	)

	return &model.AuthResponse{
		OK:          true,
		AccessToken: token,
		TokenType:   "Bearer",
		TTLSeconds:  int(s.tokens.TTL().Seconds()),
		Agent:       brief,
	}, nil
}

// ListTools returns the public catalog listing.
func (s *Service) ListTools(ctx context.Context) ([]model.ToolInfo, error) {
	return s.catalog.ListEnabled(ctx)
}

// VerifyAgent records a verification event and promotes the agent's
// verification level: basic stays basic, every deeper level maps to
// full. The caller may act on itself; acting on another agent requires
// the admin or verifier role.
func (s *Service) VerifyAgent(ctx context.Context, claims *identity.SessionClaims, req model.VerifyAgentRequest) (*model.VerifyAgentResponse, error) {
	agent, err := s.agents.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if claims.AgentID != req.AgentID && claims.Role != model.RoleAdmin && claims.Role != model.RoleVerifier {
		return nil, ErrTokenAgentMismatch
	}
	if !model.ValidVerifyLevel(req.Level) {
		return nil, ErrInvalidVerificationLevel
	}

	rep, err := s.agents.GetReputation(ctx, req.AgentID)
	if err != nil {
		rep = nil
	}

	report := map[string]any{
		"agent_id":                  agent.AgentID,
		"display_name":              agent.DisplayName,
		"role":                      agent.Role,
		"verification_level_before": agent.VerificationLevel,
		"risk_tier":                 agent.RiskTier,
		"notes":                     req.Notes,
	}
	checks := map[string]any{"has_reputation": rep != nil}
	if rep != nil {
		report["reputation_score"] = rep.Score
	}
	if _, err := s.agents.GetKey(ctx, req.AgentID); err == nil {
		checks["has_key"] = true
	} else {
		checks["has_key"] = false
	}
	report["checks"] = checks

	newLevel := model.VerificationFull
	if req.Level == model.VerifyLevelBasic {
		newLevel = model.VerificationBasic
	}

	v := &model.Verification{
		AgentID: req.AgentID,
		Level:   req.Level,
		Report:  report,
	}
	if err := s.agents.InsertVerification(ctx, v, newLevel); err != nil {
		return nil, err
	}

	receipt := &model.VerificationReceipt{
		AgentID: req.AgentID,
		Level:   req.Level,
		TsUnix:  s.now().Unix(),
	}
	sig, err := s.receipts.Sign(receipt)
	if err != nil {
		return nil, fmt.Errorf("sign verification receipt: %w", err)
	}
	receipt.Signature = sig

	s.auditAppend(ctx, &req.AgentID, "agent.verify",
		map[string]any{"agent_id": req.AgentID, "level": req.Level, "notes": req.Notes},
		map[string]any{"report": report, "receipt": receipt},
	)

	return &model.VerifyAgentResponse{OK: true, Report: report, Receipt: receipt}, nil
}

// Reputation returns the agent's current score.
func (s *Service) Reputation(ctx context.Context, agentID string) (*model.ReputationResponse, error) {
	if _, err := s.agents.Get(ctx, agentID); err != nil {
		return nil, err
	}
	rep, err := s.agents.GetReputation(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &model.ReputationResponse{AgentID: rep.AgentID, Score: rep.Score}, nil
}

// VerifyAuditChain re-walks the whole audit chain.
func (s *Service) VerifyAuditChain(ctx context.Context) (int, string, error) {
	if err := s.ledger.Verify(ctx); err != nil {
		return 0, "", err
	}
	n, err := s.ledger.Len(ctx)
	if err != nil {
		return 0, "", err
	}
	root, err := s.ledger.Root(ctx)
	if err != nil {
		return 0, "", err
	}
	return n, root, nil
}

// auditAppend records an entry, logging rather than failing the caller
// when the ledger write itself errors.
func (s *Service) auditAppend(ctx context.Context, actor *string, action string, request, result any) *audit.Entry {
	entry, err := s.ledger.Append(ctx, actor, action, request, result)
	if err != nil {
		s.logger.Error("audit append failed", zap.String("action", action), zap.Error(err))
		return nil
	}
	return entry
}
