package task

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/aerovision/detect-worker/internal/errors"
)

// TokenSigner mints and verifies HS256 download tokens. A token binds a task
// id to its archive name so the download endpoint needs no extra lookup.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner creates a signer. The secret must be non-empty.
func NewTokenSigner(secret string, ttl time.Duration) (*TokenSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl}, nil
}

type downloadClaims struct {
	Archive string `json:"archive"`
	jwt.RegisteredClaims
}

// Mint signs a download token for the task's archive.
func (s *TokenSigner) Mint(taskID, archiveName string) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		Archive: archiveName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   taskID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}
	return signed, nil
}

// Verify validates a download token and returns the task id and archive name
// it was minted for. Expired, malformed or wrongly-signed tokens all map to
// a token-expired error; callers must not distinguish them.
func (s *TokenSigner) Verify(tokenString string) (taskID, archiveName string, err error) {
	claims := &downloadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.NewTokenExpiredError(err)
	}
	return claims.Subject, claims.Archive, nil
}
