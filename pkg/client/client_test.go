package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inneri/gateway/internal/audit"
	"github.com/inneri/gateway/internal/gateway/handler"
	"github.com/inneri/gateway/internal/gateway/model"
	"github.com/inneri/gateway/internal/gateway/repository"
	"github.com/inneri/gateway/internal/gateway/service"
	"github.com/inneri/gateway/internal/identity"
	"github.com/inneri/gateway/internal/nonce"
	"github.com/inneri/gateway/internal/policy"
	"github.com/inneri/gateway/internal/threat"
	"github.com/inneri/gateway/internal/tools"
	"github.com/inneri/gateway/pkg/agentkey"
	"github.com/inneri/gateway/pkg/client"
)

type fixedPDP struct{ decision policy.Decision }

func (p *fixedPDP) Decide(_ context.Context, _ policy.Input) policy.Decision {
	return p.decision
}

// startGateway boots a full gateway over in-memory stores.
func startGateway(t *testing.T) (*httptest.Server, *fixedPDP) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	toolStore := repository.NewMemoryToolStore(
		&model.Tool{
			ToolID: "echo", Name: "Echo", Risk: model.RiskLow, Enabled: true, Version: 1,
			JSONSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
				"required":   []any{"text"},
			},
		},
	)

	tokens := identity.NewTokenIssuer([]byte("jwt-test-key"), 0)
	pdp := &fixedPDP{decision: policy.Decision{Allow: true, Mode: policy.ModeNormal}}
	svc := service.New(service.Deps{
		Agents:   repository.NewMemoryAgentStore(),
		Catalog:  tools.NewCatalog(toolStore),
		Runtime:  tools.NewRuntime(tools.EchoExecutor{}),
		Nonces:   nonce.NewRegistry(),
		Tokens:   tokens,
		Receipts: identity.NewReceiptSigner([]byte("receipt-test-key")),
		Ledger:   audit.NewMemoryLedger(),
		PDP:      pdp,
		Scorer:   threat.NewRuleBasedScorer(),
	})

	router := gin.New()
	handler.NewGatewayHandler(svc, tokens, zap.NewNop()).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, pdp
}

func TestClientEndToEnd(t *testing.T) {
	srv, _ := startGateway(t)
	ctx := context.Background()

	pub, priv, err := agentkey.GenerateKeypair()
	require.NoError(t, err)

	c := client.New(srv.URL)
	reg, err := c.Register(ctx, "a1", "A", pub)
	require.NoError(t, err)
	require.True(t, reg.OK)
	require.Equal(t, "a1", reg.AgentID)

	session, err := c.Authenticate(ctx, "a1", priv)
	require.NoError(t, err)
	require.True(t, session.OK)
	require.NotEmpty(t, c.Token())
	require.Equal(t, "agent_runtime", session.Agent.Role)

	listed, err := c.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "echo", listed[0].ToolID)

	result, err := c.SecureCall(ctx, "a1", "t",
		[]client.ToolCall{{ToolID: "echo", Args: map[string]any{"text": "hi"}}},
		[]string{"public"},
	)
	require.NoError(t, err)
	require.False(t, result.SchemaFailed)
	require.Len(t, result.Outputs, 1)
	require.Equal(t, map[string]any{"text": "hi"}, result.Outputs[0].Output)
	require.NotEmpty(t, result.Receipt.Signature)
	require.NotNil(t, result.Audit)

	score, err := c.Reputation(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 51, score)

	entries, root, err := c.VerifyAuditChain(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, root)
	require.GreaterOrEqual(t, entries, 3)
}

func TestClientSurfacesWireTokens(t *testing.T) {
	srv, pdp := startGateway(t)
	ctx := context.Background()

	pub, priv, err := agentkey.GenerateKeypair()
	require.NoError(t, err)

	c := client.New(srv.URL)

	// Nonce for an unknown agent.
	_, err = c.RequestNonce(ctx, "ghost")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 404, apiErr.Status)
	require.Equal(t, "agent_not_found", apiErr.Token)

	_, err = c.Register(ctx, "a1", "A", pub)
	require.NoError(t, err)
	_, err = c.Authenticate(ctx, "a1", priv)
	require.NoError(t, err)

	// Policy denial surfaces the denied token.
	pdp.decision = policy.Decision{Allow: false, Mode: policy.ModeDeny, Reasons: []string{"r"}}
	_, err = c.SecureCall(ctx, "a1", "t",
		[]client.ToolCall{{ToolID: "echo", Args: map[string]any{"text": "hi"}}}, nil)
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 403, apiErr.Status)
	require.Equal(t, "denied", apiErr.Token)
}

func TestClientSchemaFailureKeepsBody(t *testing.T) {
	srv, _ := startGateway(t)
	ctx := context.Background()

	pub, priv, err := agentkey.GenerateKeypair()
	require.NoError(t, err)
	c := client.New(srv.URL)
	_, err = c.Register(ctx, "a1", "A", pub)
	require.NoError(t, err)
	_, err = c.Authenticate(ctx, "a1", priv)
	require.NoError(t, err)

	result, err := c.SecureCall(ctx, "a1", "t", []client.ToolCall{
		{ToolID: "echo", Args: map[string]any{"text": 42}},
		{ToolID: "echo", Args: map[string]any{"text": "ok"}},
	}, nil)
	require.NoError(t, err)
	require.True(t, result.SchemaFailed)
	require.Len(t, result.Outputs, 2)
	require.Equal(t, "args_schema_invalid", result.Outputs[0].Error)
	require.Equal(t, map[string]any{"text": "ok"}, result.Outputs[1].Output)
}
