package rbac

import (
	"context"
	"fmt"

	"github.com/bizgate/bizgate/internal/shared"
)

// RuleProvider looks up the rule registered for an endpoint name.
// The boolean is false when no rule exists; err is reserved for storage failures.
type RuleProvider interface {
	RuleFor(ctx context.Context, endpoint string) (Rule, bool, error)
}

// GroupProvider resolves the group names a principal belongs to.
type GroupProvider interface {
	GroupNames(ctx context.Context, principal shared.Principal) ([]string, error)
}

// Resolver decides whether a principal may invoke a named endpoint.
type Resolver struct {
	groups GroupProvider
	rules  RuleProvider
}

// NewResolver constructs a Resolver.
func NewResolver(groups GroupProvider, rules RuleProvider) *Resolver {
	return &Resolver{groups: groups, rules: rules}
}

// Authorize returns nil when access is granted. Superadmins bypass rule lookup entirely.
// Otherwise shared.ErrPermissionNotConfigured is returned for endpoints without a rule and
// shared.ErrForbidden when the principal shares no group with the rule's allow-list.
func (r *Resolver) Authorize(ctx context.Context, principal shared.Principal, endpoint string) error {
	if principal == nil {
		return shared.ErrUnauthenticated
	}
	if principal.GetRole() == shared.RoleSuperadmin {
		return nil
	}
	rule, ok, err := r.rules.RuleFor(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("rbac: load rule %s: %w", endpoint, err)
	}
	if !ok {
		return shared.ErrPermissionNotConfigured
	}
	if len(rule.AllowedGroups) == 0 {
		return shared.ErrForbidden
	}
	groups, err := r.groups.GroupNames(ctx, principal)
	if err != nil {
		return fmt.Errorf("rbac: load groups for %s: %w", principal.GetUsername(), err)
	}
	if Intersects(groups, rule.AllowedGroups) {
		return nil
	}
	return shared.ErrForbidden
}

// Intersects reports whether the two group lists share at least one exact name.
func Intersects(held, allowed []string) bool {
	if len(held) == 0 || len(allowed) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(allowed))
	for _, g := range allowed {
		set[g] = struct{}{}
	}
	for _, g := range held {
		if _, ok := set[g]; ok {
			return true
		}
	}
	return false
}
