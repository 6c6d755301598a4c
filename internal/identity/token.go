// Package identity issues and verifies the gateway's short-lived bearer
// credentials and signs call receipts.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/inneri/gateway/internal/gateway/model"
)

// DefaultTokenTTL is the session token lifetime.
const DefaultTokenTTL = 180 * time.Second

// ErrExpired and ErrInvalid classify verification failures so the HTTP
// layer can surface the right wire token.
var (
	ErrExpired = errors.New(model.ErrJWTExpired)
	ErrInvalid = errors.New(model.ErrJWTInvalid)
)

// SessionClaims are the claims carried by a gateway bearer token. The
// trust attributes are snapshotted at authentication time.
type SessionClaims struct {
	jwt.RegisteredClaims
	AgentID           string `json:"agent_id"`
	Role              string `json:"role"`
	VerificationLevel string `json:"verification_level"`
	RiskTier          string `json:"risk_tier"`
}

// TokenIssuer issues and verifies HS256 session tokens.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

// NewTokenIssuer creates a TokenIssuer signing with key. ttl defaults
// to DefaultTokenTTL when zero.
func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{key: key, ttl: ttl}
}

// Issue mints a session token for the given agent snapshot.
func (t *TokenIssuer) Issue(agent model.AgentBrief) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agent.AgentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		AgentID:           agent.AgentID,
		Role:              agent.Role,
		VerificationLevel: agent.VerificationLevel,
		RiskTier:          agent.RiskTier,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (t *TokenIssuer) Verify(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.key, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

const claimsCtxKey = "inneri_session_claims"

// RequireToken is a Gin middleware that enforces bearer authentication
// and injects the verified claims into the request context.
func RequireToken(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": model.ErrMissingBearerToken})
			return
		}
		tokenStr := strings.TrimSpace(header[len("Bearer "):])

		claims, err := issuer.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(claimsCtxKey, claims)
		c.Next()
	}
}

// ClaimsFromCtx returns the session claims injected by RequireToken, or
// nil when the request was not authenticated.
func ClaimsFromCtx(c *gin.Context) *SessionClaims {
	v, ok := c.Get(claimsCtxKey)
	if !ok {
		return nil
	}
	claims, ok := v.(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
