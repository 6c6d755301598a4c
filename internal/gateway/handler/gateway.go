// Package handler exposes the gateway's HTTP surface.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inneri/gateway/internal/gateway/model"
	"github.com/inneri/gateway/internal/gateway/repository"
	"github.com/inneri/gateway/internal/gateway/service"
	"github.com/inneri/gateway/internal/health"
	"github.com/inneri/gateway/internal/identity"
	"github.com/inneri/gateway/internal/tools"
)

// Version is reported by the liveness endpoint.
const Version = "0.1.0"

// GatewayHandler handles HTTP requests for the agent gateway.
type GatewayHandler struct {
	svc    *service.Service
	tokens *identity.TokenIssuer
	health *health.Checker // nil = no upstream probing
	logger *zap.Logger
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(svc *service.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{svc: svc, tokens: tokens, logger: logger}
}

// SetHealthChecker attaches the upstream probe results to /healthz.
func (h *GatewayHandler) SetHealthChecker(c *health.Checker) {
	h.health = c
}

// RegisterRoutes mounts every route on the engine.
func (h *GatewayHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", MetricsHandler())

	v1 := r.Group("/v1")
	{
		v1.POST("/agents/register", h.Register)
		v1.GET("/agents/:id/nonce", h.Nonce)
		v1.POST("/agents/auth", h.Auth)
		v1.GET("/tools", h.ListTools)
		v1.GET("/audit/verify", h.AuditVerify)

		authed := v1.Group("", identity.RequireToken(h.tokens))
		{
			authed.POST("/secure_call", h.SecureCall)
			authed.POST("/verify/agent", h.VerifyAgent)
			authed.GET("/reputation/:id", h.Reputation)
		}
	}
}

// Healthz reports liveness plus the latest upstream probe results.
func (h *GatewayHandler) Healthz(c *gin.Context) {
	body := gin.H{"ok": true, "service": "inneri-gateway", "version": Version}
	if h.health != nil {
		statuses, allHealthy := h.health.Snapshot()
		body["upstreams"] = statuses
		body["degraded"] = !allHealthy
	}
	c.JSON(http.StatusOK, body)
}

// Register handles POST /v1/agents/register.
func (h *GatewayHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}

	agent, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("agent registered",
		zap.String("agent_id", agent.AgentID),
		zap.String("risk_tier", agent.RiskTier),
	)
	c.JSON(http.StatusOK, model.RegisterResponse{OK: true, AgentID: agent.AgentID, RiskTier: agent.RiskTier})
}

// Nonce handles GET /v1/agents/{id}/nonce.
func (h *GatewayHandler) Nonce(c *gin.Context) {
	resp, err := h.svc.RequestNonce(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Auth handles POST /v1/agents/auth.
func (h *GatewayHandler) Auth(c *gin.Context) {
	var req model.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}

	resp, err := h.svc.Authenticate(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListTools handles GET /v1/tools.
func (h *GatewayHandler) ListTools(c *gin.Context) {
	infos, err := h.svc.ListTools(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if infos == nil {
		infos = []model.ToolInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"tools": infos})
}

// SecureCall handles POST /v1/secure_call. A schema failure on any
// requested tool yields 422 with the complete body so callers still
// receive the receipt and audit reference.
func (h *GatewayHandler) SecureCall(c *gin.Context) {
	var req model.SecureCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}
	claims := identity.ClaimsFromCtx(c)

	start := time.Now()
	resp, schemaFailed, err := h.svc.SecureCall(c.Request.Context(), claims, req)
	if err != nil {
		var denied *service.DeniedError
		if errors.As(err, &denied) {
			RecordPolicyDecision(false)
			c.JSON(http.StatusForbidden, gin.H{"error": model.ErrDenied, "decision": denied.Decision})
			return
		}
		h.writeError(c, err)
		return
	}

	RecordPolicyDecision(true)
	RecordSecureCall(resp.Receipt.Mode, time.Since(start))

	status := http.StatusOK
	if schemaFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

// VerifyAgent handles POST /v1/verify/agent.
func (h *GatewayHandler) VerifyAgent(c *gin.Context) {
	var req model.VerifyAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}
	claims := identity.ClaimsFromCtx(c)

	resp, err := h.svc.VerifyAgent(c.Request.Context(), claims, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Reputation handles GET /v1/reputation/{id}.
func (h *GatewayHandler) Reputation(c *gin.Context) {
	resp, err := h.svc.Reputation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AuditVerify handles GET /v1/audit/verify by re-walking the chain.
func (h *GatewayHandler) AuditVerify(c *gin.Context) {
	n, root, err := h.svc.VerifyAuditChain(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "entries": n, "root": root})
}

// writeError maps service and repository errors onto the wire tokens
// and their status codes.
func (h *GatewayHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAgentNotFound),
		errors.Is(err, repository.ErrKeyNotFound),
		errors.Is(err, tools.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrAgentIDTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidNonce),
		errors.Is(err, service.ErrBadSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTokenAgentMismatch),
		errors.Is(err, service.ErrRegistrationRejected):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidPublicKey),
		errors.Is(err, service.ErrInvalidVerificationLevel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
