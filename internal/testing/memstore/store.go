// Package memstore is an in-memory implementation of the identity and permission
// repositories for tests. Transactions snapshot the whole store and restore it when
// the callback fails.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/shared"
	_ "github.com/bizgate/bizgate/internal/testing/guard"
)

type state struct {
	users       map[int64]auth.Identity
	groups      map[int64]auth.Group
	memberships map[int64]map[int64]struct{}
	rules       map[int64]rbac.Rule
	nextUser    int64
	nextGroup   int64
	nextRule    int64
}

func (s state) clone() state {
	out := state{
		users:       make(map[int64]auth.Identity, len(s.users)),
		groups:      make(map[int64]auth.Group, len(s.groups)),
		memberships: make(map[int64]map[int64]struct{}, len(s.memberships)),
		rules:       make(map[int64]rbac.Rule, len(s.rules)),
		nextUser:    s.nextUser,
		nextGroup:   s.nextGroup,
		nextRule:    s.nextRule,
	}
	for id, u := range s.users {
		out.users[id] = copyIdentity(u)
	}
	for id, g := range s.groups {
		out.groups[id] = g
	}
	for id, set := range s.memberships {
		dup := make(map[int64]struct{}, len(set))
		for g := range set {
			dup[g] = struct{}{}
		}
		out.memberships[id] = dup
	}
	for id, r := range s.rules {
		out.rules[id] = copyRule(r)
	}
	return out
}

// Store holds identities, groups and permission rules in memory.
type Store struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	data   state
	faults map[string]error
	fold   cases.Caser
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		data: state{
			users:       map[int64]auth.Identity{},
			groups:      map[int64]auth.Group{},
			memberships: map[int64]map[int64]struct{}{},
			rules:       map[int64]rbac.Rule{},
		},
		faults: map[string]error{},
		fold:   cases.Fold(),
	}
}

// Auth returns the identity repository view.
func (s *Store) Auth() *AuthRepo { return &AuthRepo{store: s} }

// Rules returns the permission rule repository view.
func (s *Store) Rules() *RuleRepo { return &RuleRepo{store: s} }

// Fail makes every later call of the named repository method return err.
// A nil err clears the fault.
func (s *Store) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) fault(method string) error {
	return s.faults[method]
}

func (s *Store) withTx(ctx context.Context, fn func(context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	if err := s.fault("WithTx"); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// AuthRepo implements auth.Repository.
type AuthRepo struct {
	store *Store
	inTx  bool
}

// WithTx implements auth.Repository.
func (r *AuthRepo) WithTx(ctx context.Context, fn func(context.Context, auth.Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.store.withTx(ctx, func(ctx context.Context) error {
		return fn(ctx, &AuthRepo{store: r.store, inTx: true})
	})
}

// FindByUsername implements auth.Repository.
func (r *AuthRepo) FindByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FindByUsername"); err != nil {
		return nil, err
	}
	for _, u := range s.data.users {
		if u.Username == username {
			identity := copyIdentity(u)
			identity.Groups = s.groupNamesLocked(u.ID)
			return &identity, nil
		}
	}
	return nil, shared.ErrNotFound
}

// CreateIdentity implements auth.Repository.
func (r *AuthRepo) CreateIdentity(ctx context.Context, in auth.NewIdentity) (*auth.Identity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateIdentity"); err != nil {
		return nil, err
	}
	for _, u := range s.data.users {
		if u.Username == in.Username {
			return nil, shared.ErrUsernameExists
		}
		if in.Email != nil && u.Email != nil && *u.Email == *in.Email {
			return nil, shared.ErrEmailExists
		}
	}
	s.data.nextUser++
	identity := auth.Identity{
		ID:           s.data.nextUser,
		Username:     in.Username,
		Email:        copyString(in.Email),
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	s.data.users[identity.ID] = identity
	out := copyIdentity(identity)
	return &out, nil
}

// ListIdentities implements auth.Repository.
func (r *AuthRepo) ListIdentities(ctx context.Context) ([]auth.Identity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListIdentities"); err != nil {
		return nil, err
	}
	out := make([]auth.Identity, 0, len(s.data.users))
	for _, u := range s.data.users {
		identity := copyIdentity(u)
		identity.Groups = s.groupNamesLocked(u.ID)
		out = append(out, identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// UpdateRole implements auth.Repository.
func (r *AuthRepo) UpdateRole(ctx context.Context, userID int64, role string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateRole"); err != nil {
		return err
	}
	u, ok := s.data.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	u.Role = role
	s.data.users[userID] = u
	return nil
}

// EnsureGroup implements auth.Repository.
func (r *AuthRepo) EnsureGroup(ctx context.Context, name string) (auth.Group, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("EnsureGroup"); err != nil {
		return auth.Group{}, err
	}
	for _, g := range s.data.groups {
		if g.Name == name {
			return g, nil
		}
	}
	s.data.nextGroup++
	g := auth.Group{ID: s.data.nextGroup, Name: name}
	s.data.groups[g.ID] = g
	return g, nil
}

// AttachGroup implements auth.Repository.
func (r *AuthRepo) AttachGroup(ctx context.Context, userID, groupID int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AttachGroup"); err != nil {
		return err
	}
	return s.attachLocked(userID, groupID)
}

// ReplaceGroups implements auth.Repository.
func (r *AuthRepo) ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ReplaceGroups"); err != nil {
		return err
	}
	delete(s.data.memberships, userID)
	for _, groupID := range groupIDs {
		if err := s.attachLocked(userID, groupID); err != nil {
			return err
		}
	}
	return nil
}

// GroupsOf implements auth.Repository.
func (r *AuthRepo) GroupsOf(ctx context.Context, userID int64) ([]string, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GroupsOf"); err != nil {
		return nil, err
	}
	return s.groupNamesLocked(userID), nil
}

// SetRefreshToken implements auth.Repository.
func (r *AuthRepo) SetRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SetRefreshToken"); err != nil {
		return err
	}
	u, ok := s.data.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	u.RefreshToken = copyString(token)
	u.RefreshExpiresAt = copyTime(expiresAt)
	s.data.users[userID] = u
	return nil
}

// ClearExpiredRefreshTokens implements auth.Repository.
func (r *AuthRepo) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ClearExpiredRefreshTokens"); err != nil {
		return 0, err
	}
	var cleared int64
	for id, u := range s.data.users {
		if u.RefreshToken == nil || u.RefreshExpiresAt == nil || u.RefreshExpiresAt.After(now) {
			continue
		}
		u.RefreshToken = nil
		u.RefreshExpiresAt = nil
		s.data.users[id] = u
		cleared++
	}
	return cleared, nil
}

func (s *Store) attachLocked(userID, groupID int64) error {
	if _, ok := s.data.users[userID]; !ok {
		return shared.ErrNotFound
	}
	if _, ok := s.data.groups[groupID]; !ok {
		return shared.ErrNotFound
	}
	set, ok := s.data.memberships[userID]
	if !ok {
		set = map[int64]struct{}{}
		s.data.memberships[userID] = set
	}
	set[groupID] = struct{}{}
	return nil
}

func (s *Store) groupNamesLocked(userID int64) []string {
	var names []string
	for groupID := range s.data.memberships[userID] {
		names = append(names, s.data.groups[groupID].Name)
	}
	sort.Strings(names)
	return names
}

// RuleRepo implements rbac.Repository.
type RuleRepo struct {
	store *Store
	inTx  bool
}

// WithTx implements rbac.Repository.
func (r *RuleRepo) WithTx(ctx context.Context, fn func(context.Context, rbac.Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.store.withTx(ctx, func(ctx context.Context) error {
		return fn(ctx, &RuleRepo{store: r.store, inTx: true})
	})
}

// GetByEndpoint implements rbac.Repository.
func (r *RuleRepo) GetByEndpoint(ctx context.Context, endpoint string) (rbac.Rule, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetByEndpoint"); err != nil {
		return rbac.Rule{}, err
	}
	for _, rule := range s.data.rules {
		if rule.EndpointName == endpoint {
			return copyRule(rule), nil
		}
	}
	return rbac.Rule{}, shared.ErrNotFound
}

// List implements rbac.Repository.
func (r *RuleRepo) List(ctx context.Context, filter rbac.ListFilter) ([]rbac.Rule, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("List"); err != nil {
		return nil, err
	}
	needle := s.fold.String(filter.Search)
	out := []rbac.Rule{}
	for _, rule := range s.data.rules {
		if filter.Module != "" && rule.Module != filter.Module {
			continue
		}
		if needle != "" && !strings.Contains(s.fold.String(rule.EndpointName), needle) {
			continue
		}
		out = append(out, copyRule(rule))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].EndpointName < out[j].EndpointName
	})
	return out, nil
}

// Create implements rbac.Repository.
func (r *RuleRepo) Create(ctx context.Context, rule rbac.Rule) (rbac.Rule, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Create"); err != nil {
		return rbac.Rule{}, err
	}
	for _, existing := range s.data.rules {
		if existing.EndpointName == rule.EndpointName {
			return rbac.Rule{}, shared.ErrDuplicateEndpoint
		}
	}
	s.data.nextRule++
	rule.ID = s.data.nextRule
	s.data.rules[rule.ID] = copyRule(rule)
	return copyRule(rule), nil
}

// Update implements rbac.Repository.
func (r *RuleRepo) Update(ctx context.Context, rule rbac.Rule) (rbac.Rule, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Update"); err != nil {
		return rbac.Rule{}, err
	}
	if _, ok := s.data.rules[rule.ID]; !ok {
		return rbac.Rule{}, shared.ErrNotFound
	}
	for id, existing := range s.data.rules {
		if id != rule.ID && existing.EndpointName == rule.EndpointName {
			return rbac.Rule{}, shared.ErrDuplicateEndpoint
		}
	}
	s.data.rules[rule.ID] = copyRule(rule)
	return copyRule(rule), nil
}

// Delete implements rbac.Repository.
func (r *RuleRepo) Delete(ctx context.Context, endpoint string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Delete"); err != nil {
		return err
	}
	for id, rule := range s.data.rules {
		if rule.EndpointName == endpoint {
			delete(s.data.rules, id)
			return nil
		}
	}
	return shared.ErrNotFound
}

func copyIdentity(u auth.Identity) auth.Identity {
	u.Email = copyString(u.Email)
	u.RefreshToken = copyString(u.RefreshToken)
	u.RefreshExpiresAt = copyTime(u.RefreshExpiresAt)
	if u.Groups != nil {
		u.Groups = append([]string(nil), u.Groups...)
	}
	return u
}

func copyRule(r rbac.Rule) rbac.Rule {
	if r.AllowedGroups != nil {
		r.AllowedGroups = append([]string(nil), r.AllowedGroups...)
	}
	return r
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

var (
	_ auth.Repository = (*AuthRepo)(nil)
	_ rbac.Repository = (*RuleRepo)(nil)
)
