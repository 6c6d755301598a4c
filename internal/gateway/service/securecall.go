package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inneri/gateway/internal/gateway/model"
	"github.com/inneri/gateway/internal/identity"
	"github.com/inneri/gateway/internal/policy"
	"github.com/inneri/gateway/internal/tools"
	"github.com/inneri/gateway/pkg/canonical"
)

// SecureCall runs the policy-mediated dispatch pipeline. schemaFailed
// reports whether any tool's arguments failed schema validation; the
// response is complete either way and the HTTP layer picks the status.
func (s *Service) SecureCall(ctx context.Context, claims *identity.SessionClaims, req model.SecureCallRequest) (resp *model.SecureCallResponse, schemaFailed bool, err error) {
	agent, err := s.agents.Get(ctx, req.AgentID)
	if err != nil {
		return nil, false, err
	}

	// An agent acts only as itself unless the token carries an
	// elevated role.
	if claims.AgentID != req.AgentID && claims.Role != model.RoleAdmin && claims.Role != model.RoleVerifier {
		return nil, false, ErrTokenAgentMismatch
	}

	// Resolve every requested tool up front; a missing or disabled
	// tool fails the whole call before any execution.
	resolved := make([]*model.Tool, len(req.Tools))
	toolInputs := make([]policy.ToolInput, len(req.Tools))
	for i, tc := range req.Tools {
		tool, err := s.catalog.Lookup(ctx, tc.ToolID)
		if err != nil {
			return nil, false, err
		}
		resolved[i] = tool
		toolInputs[i] = policy.ToolInput{ToolID: tool.ToolID, Risk: tool.Risk}
	}

	decision := s.pdp.Decide(ctx, policy.Input{
		Agent: policy.AgentInput{
			AgentID:           agent.AgentID,
			VerificationLevel: agent.VerificationLevel,
			RiskTier:          agent.RiskTier,
			Role:              agent.Role,
		},
		Request: policy.RequestInput{
			Intent:     req.Intent,
			Tools:      toolInputs,
			DataScopes: req.DataScopes,
		},
	})

	if !decision.Allow {
		// Detached from the request context: a client disconnect must
		// not suppress the denial record.
		s.auditAppend(context.WithoutCancel(ctx), &req.AgentID, "secure_call.deny",
			requestDump(req), map[string]any{"decision": decision})
		return nil, false, &DeniedError{Decision: decision}
	}

	mode := decision.Mode
	if mode == "" {
		mode = policy.ModeNormal
	}

	// The request is accepted from here on: audit writes use a context
	// that survives client cancellation so every accepted request
	// leaves exactly one terminal entry. Tool execution stays on the
	// request context and remains cancellable.
	auditCtx := context.WithoutCancel(ctx)

	outputs := make([]model.ToolResult, 0, len(req.Tools))
	for i, tc := range req.Tools {
		tool := resolved[i]

		if err := s.catalog.ValidateArgs(tool, tc.Args); err != nil {
			var ve *tools.ValidationError
			message := err.Error()
			if errors.As(err, &ve) {
				message = ve.Message
			}
			s.auditAppend(auditCtx, &req.AgentID, "tool.args_invalid",
				map[string]any{"tool_id": tool.ToolID, "args": tc.Args},
				map[string]any{"error": message})
			outputs = append(outputs, model.ToolResult{
				ToolID:  tool.ToolID,
				Error:   model.ErrArgsSchemaInvalid,
				Message: message,
			})
			schemaFailed = true
			continue
		}

		if mode == policy.ModeSandbox && tool.Risk != model.RiskLow {
			outputs = append(outputs, model.ToolResult{
				ToolID:  tool.ToolID,
				Blocked: true,
				Reason:  "sandbox_mode",
			})
			continue
		}

		out, err := s.runtime.Execute(ctx, tool, tc.Args)
		if err != nil {
			outputs = append(outputs, model.ToolResult{ToolID: tool.ToolID, Error: err.Error()})
			continue
		}
		outputs = append(outputs, model.ToolResult{ToolID: tool.ToolID, Output: out})
	}

	if mode == policy.ModeNormal {
		if _, err := s.agents.AdjustReputation(ctx, req.AgentID, 1); err != nil {
			s.logger.Warn("reputation update failed",
				zap.String("agent_id", req.AgentID), zap.Error(err))
		}
	}

	outputsHash, err := canonical.Hash(outputs)
	if err != nil {
		return nil, false, fmt.Errorf("hash outputs: %w", err)
	}
	receipt := &model.Receipt{
		TsUnix:      s.now().Unix(),
		AgentID:     req.AgentID,
		Intent:      req.Intent,
		Mode:        mode,
		Decision:    decision,
		OutputsHash: outputsHash,
	}
	sig, err := s.receipts.Sign(receipt)
	if err != nil {
		return nil, false, fmt.Errorf("sign receipt: %w", err)
	}
	receipt.Signature = sig

	entry, err := s.ledger.Append(auditCtx, &req.AgentID, "secure_call.run",
		requestDump(req),
		map[string]any{"mode": mode, "decision": decision, "outputs": outputs, "receipt": receipt},
	)
	if err != nil {
		return nil, false, fmt.Errorf("audit secure call: %w", err)
	}

	return &model.SecureCallResponse{
		Outputs: outputs,
		Receipt: receipt,
		Audit: &model.AuditRef{
			AuditID:  entry.ID,
			RowHash:  entry.RowHash,
			PrevHash: entry.PrevHash,
		},
	}, schemaFailed, nil
}

// requestDump is the audited shape of a secure-call request. Tool
// arguments are included; executors never receive secrets through
// them.
func requestDump(req model.SecureCallRequest) map[string]any {
	tools := make([]map[string]any, 0, len(req.Tools))
	for _, tc := range req.Tools {
		tools = append(tools, map[string]any{"tool_id": tc.ToolID, "args": tc.Args})
	}
	return map[string]any{
		"agent_id":    req.AgentID,
		"intent":      req.Intent,
		"tools":       tools,
		"data_scopes": req.DataScopes,
	}
}
