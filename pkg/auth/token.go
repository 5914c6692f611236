// Package auth issues and verifies HS256 bearer tokens: a stateless
// alternative to cookie-session auth.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ghuser/xscontrol/pkg/config"
	"github.com/ghuser/xscontrol/pkg/logger"
)

const tokenTTL = time.Hour

// SecureAgent issues and verifies bearer tokens signed with a single shared
// secret. Edge processes key it with PLUGIN_SIGNING_KEY (EDGE_TOKEN is the
// bearer token checked against it); the controller keys it with
// CTRL_JWT_SECRET.
type SecureAgent struct {
	secret string
}

// NewSecureAgent returns a SecureAgent keyed with secret.
func NewSecureAgent(secret string) *SecureAgent {
	return &SecureAgent{secret: secret}
}

// IssueToken mints a bearer token valid for one hour.
func (a *SecureAgent) IssueToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken reports whether tokenString is validly signed and unexpired.
func (a *SecureAgent) VerifyToken(tokenString string) bool {
	_, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return []byte(a.secret), nil
	})
	return err == nil
}

// DevModeToken returns configured as-is in production, or when it is
// already a well-formed three-part JWT. Otherwise — development and testing
// runs with no usable token set — it auto-issues one and logs it, mirroring secure_agent.py's
// DEV_MODE behavior so a fresh checkout has something to authenticate with.
func DevModeToken(agent *SecureAgent, configured, environment string, log logger.Logger) string {
	if environment == config.EnvProduction {
		return configured
	}
	if configured != "" && len(strings.Split(configured, ".")) == 3 {
		return configured
	}
	token, err := agent.IssueToken()
	if err != nil {
		log.Error("failed to auto-issue development bearer token", "error", err)
		return configured
	}
	log.Warn("DEV_MODE active, generated a temporary bearer token", "token", token)
	return token
}
