package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/shared"
)

// Service handles user administration on top of the identity store.
type Service struct {
	repo   auth.Repository
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo auth.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListUsers returns all identities with their groups.
func (s *Service) ListUsers(ctx context.Context) ([]auth.Identity, error) {
	return s.repo.ListIdentities(ctx)
}

// UpdateUser applies in to the identity named username in one transaction.
// Access tokens already issued keep the role they were signed with.
func (s *Service) UpdateUser(ctx context.Context, username string, in UpdateInput) (*auth.Identity, error) {
	username = strings.TrimSpace(username)
	if in.Role != nil && !shared.ValidRole(*in.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, *in.Role)
	}
	var updated *auth.Identity
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo auth.Repository) error {
		identity, err := repo.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if in.Role != nil && *in.Role != identity.Role {
			if err := repo.UpdateRole(ctx, identity.ID, *in.Role); err != nil {
				return err
			}
		}
		if in.Groups != nil {
			names := auth.CleanGroupNames(*in.Groups)
			ids := make([]int64, 0, len(names))
			for _, name := range names {
				group, err := repo.EnsureGroup(ctx, name)
				if err != nil {
					return err
				}
				ids = append(ids, group.ID)
			}
			if err := repo.ReplaceGroups(ctx, identity.ID, ids); err != nil {
				return err
			}
		}
		updated, err = repo.FindByUsername(ctx, username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("users: update %s: %w", username, err)
	}
	s.logger.Info("user updated", slog.String("username", updated.Username), slog.String("role", updated.Role), slog.Any("groups", updated.Groups))
	return updated, nil
}
