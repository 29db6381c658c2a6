// Package auth issues and validates the JWTs that protect the API, and
// handles Google sign-in via OpenID Connect discovery.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTypeAccess marks short-lived tokens accepted by RequireAuth.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks tokens accepted only by the refresh endpoint.
	TokenTypeRefresh = "refresh"
	// TokenTypeState marks the short-lived nonce used for the OAuth flow.
	TokenTypeState = "state"
)

// stateTTL bounds how long a Google sign-in redirect can take before the
// callback is rejected.
const stateTTL = 10 * time.Minute

// Claims carries the identity embedded in every token this service issues.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
}

// TokenManager signs and parses HS256 tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccess returns a signed access token for the given user.
func (m *TokenManager) IssueAccess(userID, role string) (string, error) {
	return m.sign(userID, role, TokenTypeAccess, m.accessTTL)
}

// IssueRefresh returns a signed refresh token for the given user. The caller
// is expected to store HashToken of the result so the token can be revoked.
func (m *TokenManager) IssueRefresh(userID, role string) (string, error) {
	return m.sign(userID, role, TokenTypeRefresh, m.refreshTTL)
}

// IssueState returns a signed nonce tying an OAuth callback to this service.
func (m *TokenManager) IssueState() (string, error) {
	return m.sign("", "", TokenTypeState, stateTTL)
}

// VerifyState checks that a callback state parameter was issued by IssueState
// and has not expired.
func (m *TokenManager) VerifyState(state string) error {
	claims, err := m.Parse(state)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeState {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

// AccessTTL reports how long issued access tokens remain valid.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

func (m *TokenManager) sign(userID, role, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      role,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates the signature and expiry of a token and returns its claims.
func (m *TokenManager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token. Refresh tokens
// are stored hashed so a database leak does not leak usable credentials.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
