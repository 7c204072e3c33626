package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizgate/bizgate/internal/shared"
)

// Invalidator drops cached rules for endpoint names after a registry mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, endpoints ...string) error
}

// Service is the permission registry: administrator-facing CRUD over rules.
type Service struct {
	repo        Repository
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs a Service. invalidator may be nil when rules are not cached.
func NewService(repo Repository, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, logger: logger}
}

// Create registers a new rule, normalizing its allow-list.
func (s *Service) Create(ctx context.Context, in RuleInput) (Rule, error) {
	rule, err := ruleFromInput(in)
	if err != nil {
		return Rule{}, err
	}
	var created Rule
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetByEndpoint(ctx, rule.EndpointName); err == nil {
			return shared.ErrDuplicateEndpoint
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		created, err = repo.Create(ctx, rule)
		return err
	})
	if err != nil {
		return Rule{}, fmt.Errorf("rbac: create rule: %w", err)
	}
	s.invalidate(ctx, created.EndpointName)
	return created, nil
}

// Get returns the rule for endpoint or shared.ErrNotFound.
func (s *Service) Get(ctx context.Context, endpoint string) (Rule, error) {
	return s.repo.GetByEndpoint(ctx, strings.TrimSpace(endpoint))
}

// List returns rules sorted by module and endpoint name.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	filter.Module = strings.TrimSpace(filter.Module)
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

// Update applies a partial update to the rule currently registered under endpoint.
func (s *Service) Update(ctx context.Context, endpoint string, upd RuleUpdate) (Rule, error) {
	endpoint = strings.TrimSpace(endpoint)
	var updated Rule
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		rule, err := repo.GetByEndpoint(ctx, endpoint)
		if err != nil {
			return err
		}
		if upd.EndpointName != nil {
			name := strings.TrimSpace(*upd.EndpointName)
			if name == "" {
				return fmt.Errorf("%w: endpoint_name must not be empty", shared.ErrValidation)
			}
			if name != rule.EndpointName {
				if _, err := repo.GetByEndpoint(ctx, name); err == nil {
					return shared.ErrDuplicateEndpoint
				} else if !errors.Is(err, shared.ErrNotFound) {
					return err
				}
				rule.EndpointName = name
			}
		}
		if upd.Module != nil {
			module := strings.TrimSpace(*upd.Module)
			if module == "" {
				return fmt.Errorf("%w: module must not be empty", shared.ErrValidation)
			}
			rule.Module = module
		}
		if upd.AllowedGroups != nil {
			rule.AllowedGroups = SplitGroups(*upd.AllowedGroups)
		}
		updated, err = repo.Update(ctx, rule)
		return err
	})
	if err != nil {
		return Rule{}, fmt.Errorf("rbac: update rule %s: %w", endpoint, err)
	}
	s.invalidate(ctx, endpoint, updated.EndpointName)
	return updated, nil
}

// Delete removes the rule registered under endpoint.
func (s *Service) Delete(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if err := s.repo.Delete(ctx, endpoint); err != nil {
		return fmt.Errorf("rbac: delete rule %s: %w", endpoint, err)
	}
	s.invalidate(ctx, endpoint)
	return nil
}

// BulkUpsert updates existing rules in place and creates missing ones, all in one transaction.
// Either every item is applied or none is. The result holds one rule per distinct endpoint
// name in first-seen order; a later item for the same endpoint wins.
func (s *Service) BulkUpsert(ctx context.Context, items []RuleInput) ([]Rule, error) {
	rules := make([]Rule, 0, len(items))
	for i, in := range items {
		rule, err := ruleFromInput(in)
		if err != nil {
			return nil, fmt.Errorf("rbac: bulk item %d: %w", i, err)
		}
		rules = append(rules, rule)
	}

	var out []Rule
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		out = out[:0]
		position := make(map[string]int, len(rules))
		for _, rule := range rules {
			existing, err := repo.GetByEndpoint(ctx, rule.EndpointName)
			var saved Rule
			switch {
			case err == nil:
				existing.Module = rule.Module
				existing.AllowedGroups = rule.AllowedGroups
				saved, err = repo.Update(ctx, existing)
			case errors.Is(err, shared.ErrNotFound):
				saved, err = repo.Create(ctx, rule)
			}
			if err != nil {
				return fmt.Errorf("upsert %s: %w", rule.EndpointName, err)
			}
			if idx, ok := position[saved.EndpointName]; ok {
				out[idx] = saved
				continue
			}
			position[saved.EndpointName] = len(out)
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: bulk upsert: %w", err)
	}
	names := make([]string, 0, len(out))
	for _, rule := range out {
		names = append(names, rule.EndpointName)
	}
	s.invalidate(ctx, names...)
	return out, nil
}

// RuleFor implements RuleProvider directly on the store.
func (s *Service) RuleFor(ctx context.Context, endpoint string) (Rule, bool, error) {
	return lookupRule(ctx, s.repo, endpoint)
}

func (s *Service) invalidate(ctx context.Context, endpoints ...string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, endpoints...); err != nil {
		s.logger.Warn("rbac: invalidate rule cache", slog.Any("error", err), slog.Any("endpoints", endpoints))
	}
}

func lookupRule(ctx context.Context, repo Repository, endpoint string) (Rule, bool, error) {
	rule, err := repo.GetByEndpoint(ctx, endpoint)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Rule{}, false, nil
		}
		return Rule{}, false, err
	}
	return rule, true, nil
}

func ruleFromInput(in RuleInput) (Rule, error) {
	module := strings.TrimSpace(in.Module)
	endpoint := strings.TrimSpace(in.EndpointName)
	if module == "" {
		return Rule{}, fmt.Errorf("%w: module is required", shared.ErrValidation)
	}
	if endpoint == "" {
		return Rule{}, fmt.Errorf("%w: endpoint_name is required", shared.ErrValidation)
	}
	return Rule{Module: module, EndpointName: endpoint, AllowedGroups: SplitGroups(in.AllowedGroups)}, nil
}
