package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bizgate/bizgate/internal/shared"
	"github.com/bizgate/bizgate/internal/token"
)

// bcrypt only considers the first 72 bytes.
const maxPasswordBytes = 72

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *token.Service
	logger   *slog.Logger
	hashCost int
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPasswordCost overrides the bcrypt cost used when hashing new passwords.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithClock overrides the clock used for refresh token bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *token.Service, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, tokens: tokens, logger: logger, hashCost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPassword hashes a plaintext password with the configured cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates an identity with role user and attaches the named groups,
// creating missing groups. The whole operation commits or fails as one.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Identity, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", shared.ErrValidation)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", shared.ErrValidation)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, fmt.Errorf("%w: password is longer than %d bytes", shared.ErrValidation, maxPasswordBytes)
	}
	var email *string
	if in.Email != nil {
		if trimmed := strings.TrimSpace(*in.Email); trimmed != "" {
			email = &trimmed
		}
	}
	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	groups := CleanGroupNames(in.Groups)

	var identity *Identity
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		created, err := repo.CreateIdentity(ctx, NewIdentity{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			Role:         shared.RoleUser,
		})
		if err != nil {
			return err
		}
		for _, name := range groups {
			group, err := repo.EnsureGroup(ctx, name)
			if err != nil {
				return err
			}
			if err := repo.AttachGroup(ctx, created.ID, group.ID); err != nil {
				return fmt.Errorf("attach group %s: %w", name, err)
			}
		}
		created.Groups, err = repo.GroupsOf(ctx, created.ID)
		identity = created
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("auth: register %s: %w", username, err)
	}
	s.logger.Info("identity registered", slog.String("username", identity.Username), slog.Int("groups", len(identity.Groups)))
	return identity, nil
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	identity, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return identity, nil
}

// Login authenticates and issues an access and refresh token pair.
// The new refresh token replaces the stored one, invalidating earlier refresh tokens.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	identity, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return TokenPair{}, err
	}
	access, _, err := s.tokens.IssueAccessToken(identity.Username, identity.Role, 0)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, expiresAt, err := s.tokens.IssueRefreshToken(identity.Username, identity.Role, 0)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.RotateRefreshToken(ctx, identity, refresh, expiresAt); err != nil {
		return TokenPair{}, err
	}
	s.logger.Info("identity logged in", slog.String("username", identity.Username))
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RotateRefreshToken overwrites the stored refresh token of identity.
func (s *Service) RotateRefreshToken(ctx context.Context, identity *Identity, raw string, expiresAt time.Time) error {
	if err := s.repo.SetRefreshToken(ctx, identity.ID, &raw, &expiresAt); err != nil {
		return fmt.Errorf("auth: rotate refresh token: %w", err)
	}
	identity.RefreshToken = &raw
	identity.RefreshExpiresAt = &expiresAt
	return nil
}

// RevokeRefreshToken clears the stored refresh token of identity.
func (s *Service) RevokeRefreshToken(ctx context.Context, identity *Identity) error {
	if err := s.repo.SetRefreshToken(ctx, identity.ID, nil, nil); err != nil {
		return fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	identity.RefreshToken = nil
	identity.RefreshExpiresAt = nil
	return nil
}

// Refresh exchanges a refresh token for a new access token. The token must be
// well signed, unexpired, tagged as a refresh token and equal to the stored value.
func (s *Service) Refresh(ctx context.Context, raw string) (string, error) {
	claims, err := s.tokens.VerifyToken(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrUnauthenticated, err)
	}
	if !claims.IsRefresh() {
		return "", fmt.Errorf("%w: not a refresh token", shared.ErrUnauthenticated)
	}
	identity, err := s.repo.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown subject", shared.ErrUnauthenticated)
		}
		return "", err
	}
	if identity.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*identity.RefreshToken), []byte(strings.TrimSpace(raw))) != 1 {
		return "", fmt.Errorf("%w: refresh token revoked", shared.ErrUnauthenticated)
	}
	access, _, err := s.tokens.IssueAccessToken(identity.Username, identity.Role, 0)
	if err != nil {
		return "", err
	}
	return access, nil
}

// Logout revokes the refresh token of an already authenticated identity.
func (s *Service) Logout(ctx context.Context, identity *Identity) error {
	if err := s.RevokeRefreshToken(ctx, identity); err != nil {
		return err
	}
	s.logger.Info("identity logged out", slog.String("username", identity.Username))
	return nil
}

// LogoutWithCredentials verifies username/password and revokes the refresh token.
func (s *Service) LogoutWithCredentials(ctx context.Context, username, password string) error {
	identity, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	return s.Logout(ctx, identity)
}

// IdentityForAccessToken verifies an access token and resolves its subject.
// The returned identity carries the role encoded in the token rather than the stored one.
func (s *Service) IdentityForAccessToken(ctx context.Context, raw string) (*Identity, error) {
	claims, err := s.tokens.VerifyToken(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, err)
	}
	if claims.IsRefresh() {
		return nil, fmt.Errorf("%w: refresh token used as access token", shared.ErrUnauthenticated)
	}
	identity, err := s.repo.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", shared.ErrUnauthenticated)
		}
		return nil, err
	}
	identity.Role = claims.Role
	return identity, nil
}

// GroupNames implements the authorization resolver's group lookup.
func (s *Service) GroupNames(ctx context.Context, principal shared.Principal) ([]string, error) {
	if identity, ok := principal.(*Identity); ok && identity.Groups != nil {
		return identity.Groups, nil
	}
	return s.repo.GroupsOf(ctx, principal.GetID())
}

// SweepExpiredRefreshTokens clears stored refresh tokens past their expiry.
func (s *Service) SweepExpiredRefreshTokens(ctx context.Context) (int64, error) {
	cleared, err := s.repo.ClearExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("auth: sweep refresh tokens: %w", err)
	}
	return cleared, nil
}

// CleanGroupNames trims names and drops blanks and duplicates, keeping first-seen order.
func CleanGroupNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
