// Package token issues and verifies the signed bearer credentials used for sessions.
//
// Access and refresh tokens are HS256 JWTs carrying {sub, role, exp} and, for refresh
// tokens, typ="refresh". Verification is stateless; checking a refresh token against the
// value stored on its identity is the caller's job.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TypeRefresh tags refresh tokens in the typ claim.
const TypeRefresh = "refresh"

var (
	// ErrInvalidToken indicates a malformed token or a bad signature.
	ErrInvalidToken = errors.New("token: invalid")
	// ErrExpired indicates a well-signed token past its expiry.
	ErrExpired = errors.New("token: expired")
)

// Config carries signing material and default lifetimes.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Claims is the decoded claim set.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *Claims) IsRefresh() bool {
	return c != nil && c.Type == TypeRefresh
}

// Service signs and verifies tokens with a single symmetric key.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// NewService validates cfg and constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: ttl must be greater than zero")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &Service{
		secret:     secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// AccessTTL returns the default access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the default refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs {sub, role, exp}. ttl <= 0 selects the configured default.
func (s *Service) IssueAccessToken(subject, role string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.accessTTL
	}
	return s.sign(subject, role, "", ttl)
}

// IssueRefreshToken signs {sub, role, typ=refresh, exp}. ttl <= 0 selects the configured default.
func (s *Service) IssueRefreshToken(subject, role string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.refreshTTL
	}
	return s.sign(subject, role, TypeRefresh, ttl)
}

func (s *Service) sign(subject, role, typ string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	expiresAt := s.now().Add(ttl)
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// VerifyToken checks signature and expiry and returns the decoded claims.
// It fails with ErrExpired for a valid signature past expiry and ErrInvalidToken otherwise.
func (s *Service) VerifyToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
