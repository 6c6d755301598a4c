package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testInput() Input {
	return Input{
		Agent: AgentInput{AgentID: "a1", VerificationLevel: "none", RiskTier: "low", Role: "agent_runtime"},
		Request: RequestInput{
			Intent:     "t",
			Tools:      []ToolInput{{ToolID: "echo", Risk: "low"}},
			DataScopes: []string{"public"},
		},
	}
}

func TestDecide_allow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/data/inneri/decision", r.URL.Path)

		var body map[string]Input
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a1", body["input"].Agent.AgentID)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": Decision{Allow: true, Mode: ModeNormal, TTLSeconds: 60, Reasons: []string{"ok"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, false, 0, zap.NewNop())
	d := c.Decide(context.Background(), testInput())

	assert.True(t, d.Allow)
	assert.Equal(t, ModeNormal, d.Mode)
	assert.Equal(t, []string{"ok"}, d.Reasons)
}

func TestDecide_missingResultDegradesToDeny(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// Even fail-open: a reachable PDP answering without a result denies.
	c := NewClient(srv.URL, true, 0, zap.NewNop())
	d := c.Decide(context.Background(), testInput())

	assert.False(t, d.Allow)
	assert.Equal(t, ModeDeny, d.Mode)
	assert.Equal(t, []string{"opa_no_result"}, d.Reasons)
}

func TestDecide_unreachableFailClosed(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", false, 200*time.Millisecond, zap.NewNop())
	d := c.Decide(context.Background(), testInput())

	assert.False(t, d.Allow)
	assert.Equal(t, ModeDeny, d.Mode)
	require.Len(t, d.Reasons, 1)
	assert.True(t, strings.HasPrefix(d.Reasons[0], "opa_unavailable:"), d.Reasons[0])
}

func TestDecide_unreachableFailOpen(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", true, 200*time.Millisecond, zap.NewNop())
	d := c.Decide(context.Background(), testInput())

	assert.True(t, d.Allow)
	assert.Equal(t, ModeSandbox, d.Mode)
	assert.Equal(t, 30, d.TTLSeconds)
	require.Len(t, d.Reasons, 1)
	assert.True(t, strings.HasPrefix(d.Reasons[0], "opa_unavailable_fail_open:"), d.Reasons[0])
}

func TestDecide_serverErrorFailClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, false, 0, zap.NewNop())
	d := c.Decide(context.Background(), testInput())

	assert.False(t, d.Allow)
	assert.Equal(t, []string{"opa_unavailable:http_500"}, d.Reasons)
}

func TestDecide_timeoutClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, false, 50*time.Millisecond, zap.NewNop())
	d := c.Decide(context.Background(), testInput())

	require.Len(t, d.Reasons, 1)
	assert.Equal(t, "opa_unavailable:timeout", d.Reasons[0])
}
