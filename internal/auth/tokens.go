// Package auth issues and validates session tokens and checks credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/metrics"
)

// TokenType distinguishes access from refresh tokens inside the claims.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the JWT payload carried by both token kinds.
type Claims struct {
	Username string    `json:"username"`
	Type     TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Blacklist stores the ids of refresh tokens that must no longer be accepted.
// Add must be an atomic check-and-set: it returns true only for the single
// caller that inserted jti.
type Blacklist interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	Contains(ctx context.Context, jti string) (bool, error)
}

// Authenticator is the capability the HTTP layer depends on.
type Authenticator interface {
	Issue(ctx context.Context, identity domain.Identity) (TokenPair, error)
	Rotate(ctx context.Context, refresh string) (TokenPair, error)
	Revoke(ctx context.Context, refresh string) error
	Verify(access string) (domain.Identity, error)
}

// TokenService signs HS256 tokens and tracks rotated refresh tokens in a
// Blacklist.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	blacklist  Blacklist
	now        func() time.Time
}

var _ Authenticator = (*TokenService)(nil)

// NewTokenService builds a TokenService from validated auth settings.
func NewTokenService(cfg config.AuthConfig, blacklist Blacklist) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		blacklist:  blacklist,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue mints a new pair bound to identity.
func (s *TokenService) Issue(_ context.Context, identity domain.Identity) (TokenPair, error) {
	pair, err := s.issue(identity)
	if err != nil {
		metrics.TokenOperationsTotal.WithLabelValues("issue", "error").Inc()
		return TokenPair{}, err
	}
	metrics.TokenOperationsTotal.WithLabelValues("issue", "ok").Inc()
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// blacklisted first; only the caller whose blacklist insert wins gets a pair,
// so a replayed or concurrently reused token fails with ErrRevokedToken.
func (s *TokenService) Rotate(ctx context.Context, refresh string) (TokenPair, error) {
	pair, err := s.rotate(ctx, refresh)
	metrics.TokenOperationsTotal.WithLabelValues("rotate", resultLabel(err)).Inc()
	return pair, err
}

func (s *TokenService) rotate(ctx context.Context, refresh string) (TokenPair, error) {
	claims, err := s.parse(refresh, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return TokenPair{}, domain.ErrRevokedToken
	}

	added, err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return TokenPair{}, fmt.Errorf("blacklist refresh token: %w", err)
	}
	if !added {
		return TokenPair{}, domain.ErrRevokedToken
	}

	return s.issue(identityFrom(claims))
}

// Revoke blacklists a refresh token without replacing it. Tokens that are
// already revoked or expired need no action.
func (s *TokenService) Revoke(ctx context.Context, refresh string) error {
	err := s.revoke(ctx, refresh)
	metrics.TokenOperationsTotal.WithLabelValues("revoke", resultLabel(err)).Inc()
	return err
}

func (s *TokenService) revoke(ctx context.Context, refresh string) error {
	claims, err := s.parse(refresh, TokenRefresh)
	if errors.Is(err, domain.ErrExpiredToken) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("blacklist refresh token: %w", err)
	}
	return nil
}

// Verify resolves an access token to its identity without touching any store.
func (s *TokenService) Verify(access string) (domain.Identity, error) {
	claims, err := s.parse(access, TokenAccess)
	metrics.TokenOperationsTotal.WithLabelValues("verify", resultLabel(err)).Inc()
	if err != nil {
		return domain.Identity{}, err
	}
	return identityFrom(claims), nil
}

func (s *TokenService) issue(identity domain.Identity) (TokenPair, error) {
	now := s.now()
	access, accessExp, err := s.sign(identity, TokenAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.sign(identity, TokenRefresh, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(identity domain.Identity, typ TokenType, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Username: identity.Username,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

func (s *TokenService) parse(raw string, want TokenType) (*Claims, error) {
	if raw == "" {
		return nil, domain.ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, domain.ErrInvalidToken
	}
	if claims.Type != want || claims.Subject == "" || claims.ID == "" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func identityFrom(c *Claims) domain.Identity {
	return domain.Identity{UserID: c.Subject, Username: c.Username}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrExpiredToken):
		return "expired"
	case errors.Is(err, domain.ErrRevokedToken):
		return "revoked"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}
