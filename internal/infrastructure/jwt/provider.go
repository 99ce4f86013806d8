package jwtinfra

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/referral-onboarding/internal/config"
)

// Claims holds the visitor token payload. The visitor ID keys the
// attribution slot and the visitor's onboarding sessions.
type Claims struct {
	VisitorID string `json:"vid"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 visitor tokens.
type Provider struct {
	secret []byte
	expiry time.Duration
}

// NewProvider uses cfg.VisitorTokenSecret. Outside production an empty
// secret is replaced by a random one, so tokens do not survive a restart.
func NewProvider(cfg *config.Config) (*Provider, error) {
	secret := []byte(cfg.VisitorTokenSecret)
	if len(secret) == 0 {
		if cfg.AppEnv == "production" {
			return nil, errors.New("VISITOR_TOKEN_SECRET is required in production")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate visitor token secret: %w", err)
		}
		slog.Warn("VISITOR_TOKEN_SECRET not set, using an ephemeral secret")
	}
	return NewProviderWithSecret(secret, cfg.VisitorTokenTTL), nil
}

func NewProviderWithSecret(secret []byte, expiry time.Duration) *Provider {
	return &Provider{secret: secret, expiry: expiry}
}

// TTL is the lifetime of issued tokens.
func (p *Provider) TTL() time.Duration { return p.expiry }

func (p *Provider) Sign(visitorID string) (string, error) {
	now := time.Now()
	claims := Claims{
		VisitorID: visitorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   visitorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.VisitorID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
