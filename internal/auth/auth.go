// Package auth validates bearer tokens issued by the identity collaborator
// and resolves the calling party id. The core treats party ids as opaque
// strings; this middleware only extracts them.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"agroforward/internal/config"
)

const partyIDKey = "auth_party_id"

// Middleware enforces a Bearer JWT on /api/* routes when enabled. Health and
// docs endpoints stay open.
func Middleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(raw, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		partyID, err := ParseToken(cfg, strings.TrimSpace(strings.TrimPrefix(raw, "Bearer ")))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(partyIDKey, partyID)
		c.Next()
	}
}

// PartyID returns the authenticated party id, empty when auth is disabled.
func PartyID(c *gin.Context) string {
	if v, ok := c.Get(partyIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IssueToken mints an HMAC-signed token for a party. Used by tooling and
// tests; production tokens come from the identity service.
func IssueToken(cfg config.AuthConfig, partyID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return "", errors.New("auth secret is empty")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   partyID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// ParseToken validates a token and returns its subject.
func ParseToken(cfg config.AuthConfig, raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token missing subject")
	}
	return claims.Subject, nil
}
