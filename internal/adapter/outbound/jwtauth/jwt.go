// Package jwtauth implements auth.JWTIssuer against golang-jwt/jwt/v5,
// issuing the HS256 tokens /auth/login hands back to dashboard clients.
package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sentinelops/gatekeep/internal/domain/auth"
)

// claims is the on-wire JWT claim set backing auth.JWTClaims.
type claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with a single HS256 secret.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
}

// New builds an Issuer. lifetime defaults to auth.DefaultJWTLifetime if
// zero.
func New(secret string, lifetime time.Duration) *Issuer {
	if lifetime <= 0 {
		lifetime = auth.DefaultJWTLifetime
	}
	return &Issuer{secret: []byte(secret), lifetime: lifetime}
}

// Issue implements auth.JWTIssuer.
func (i *Issuer) Issue(c auth.JWTClaims) (string, error) {
	now := c.IssuedAt
	if now.IsZero() {
		now = time.Now()
	}
	expiresAt := c.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(i.lifetime)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TenantID: c.TenantID,
		Role:     c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("jwtauth: sign token: %w", err)
	}
	return signed, nil
}

// Parse implements auth.JWTIssuer.
func (i *Issuer) Parse(tokenString string) (auth.JWTClaims, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwtauth: unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return auth.JWTClaims{}, fmt.Errorf("jwtauth: parse: %w", err)
	}
	if !token.Valid {
		return auth.JWTClaims{}, errors.New("jwtauth: invalid token")
	}
	var issuedAt, expiresAt time.Time
	if c.IssuedAt != nil {
		issuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.Time
	}
	return auth.JWTClaims{
		Subject:   c.Subject,
		TenantID:  c.TenantID,
		Role:      c.Role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

var _ auth.JWTIssuer = (*Issuer)(nil)
