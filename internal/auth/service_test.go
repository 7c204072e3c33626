package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/shared"
	"github.com/bizgate/bizgate/internal/testing/memstore"
	"github.com/bizgate/bizgate/internal/token"
	_ "github.com/bizgate/bizgate/testing"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	svc    *auth.Service
	store  *memstore.Store
	tokens *token.Service
	clock  *clock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	tokens, err := token.NewService(token.Config{
		Secret:     []byte("test-secret"),
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        c.Now,
	})
	require.NoError(t, err)
	store := memstore.New()
	svc := auth.NewService(store.Auth(), tokens, nil, auth.WithPasswordCost(bcrypt.MinCost), auth.WithClock(c.Now))
	return fixture{svc: svc, store: store, tokens: tokens, clock: c}
}

func (f fixture) register(t *testing.T, username, password string, groups ...string) *auth.Identity {
	t.Helper()
	identity, err := f.svc.Register(context.Background(), auth.RegisterInput{Username: username, Password: password, Groups: groups})
	require.NoError(t, err)
	return identity
}

func TestRegisterAttachesGroups(t *testing.T) {
	f := newFixture(t)
	email := " alice@example.com "
	identity, err := f.svc.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Password: "secret1",
		Email:    &email,
		Groups:   []string{"staff", " officer", "staff", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, shared.RoleUser, identity.Role)
	assert.Equal(t, []string{"officer", "staff"}, identity.Groups)
	require.NotNil(t, identity.Email)
	assert.Equal(t, "alice@example.com", *identity.Email)
	assert.NotEqual(t, "secret1", identity.PasswordHash)

	bob := f.register(t, "bob", "secret2", "staff")
	assert.Equal(t, []string{"staff"}, bob.Groups)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	email := "a@example.com"
	_, err := f.svc.Register(context.Background(), auth.RegisterInput{Username: "alice", Password: "secret1", Email: &email})
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), auth.RegisterInput{Username: "alice", Password: "secret1"})
	require.ErrorIs(t, err, shared.ErrUsernameExists)

	_, err = f.svc.Register(context.Background(), auth.RegisterInput{Username: "other", Password: "secret1", Email: &email})
	require.ErrorIs(t, err, shared.ErrEmailExists)
}

func TestRegisterRollsBackOnGroupFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Fail("AttachGroup", errors.New("constraint violated"))

	_, err := f.svc.Register(context.Background(), auth.RegisterInput{Username: "alice", Password: "secret1", Groups: []string{"staff"}})
	require.Error(t, err)
	f.store.Fail("AttachGroup", nil)

	_, err = f.store.Auth().FindByUsername(context.Background(), "alice")
	require.ErrorIs(t, err, shared.ErrNotFound)

	identity := f.register(t, "alice", "secret1", "staff")
	assert.Equal(t, []string{"staff"}, identity.Groups)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1", "staff")

	pair, err := f.svc.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	access, err := f.tokens.VerifyToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", access.Subject)
	assert.Equal(t, shared.RoleUser, access.Role)
	assert.False(t, access.IsRefresh())

	refresh, err := f.tokens.VerifyToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, refresh.IsRefresh())

	stored, err := f.store.Auth().FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, pair.RefreshToken, *stored.RefreshToken)
	require.NotNil(t, stored.RefreshExpiresAt)
	assert.Equal(t, f.clock.now.Add(7*24*time.Hour), *stored.RefreshExpiresAt)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")

	_, err := f.svc.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.svc.Login(context.Background(), "nobody", "secret1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRefreshRequiresCurrentStoredToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	access, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	claims, err := f.tokens.VerifyToken(access)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	second, err := f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsForgedAndMistypedTokens(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	foreign, err := token.NewService(token.Config{Secret: []byte("other"), AccessTTL: time.Hour, RefreshTTL: time.Hour, Now: f.clock.Now})
	require.NoError(t, err)
	forged, _, err := foreign.IssueRefreshToken("alice", shared.RoleSuperadmin, 0)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, forged)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
	require.ErrorIs(t, err, token.ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	ghost, _, err := f.tokens.IssueRefreshToken("ghost", shared.RoleUser, 0)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, ghost)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	f.clock.now = f.clock.now.Add(8 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestRefreshUsesStoredRole(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "alice", "secret1")
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	require.NoError(t, f.store.Auth().UpdateRole(ctx, identity.ID, shared.RoleAdmin))
	access, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := f.tokens.VerifyToken(access)
	require.NoError(t, err)
	assert.Equal(t, shared.RoleAdmin, claims.Role)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.LogoutWithCredentials(ctx, "alice", "nope"), shared.ErrInvalidCredentials)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.LogoutWithCredentials(ctx, "alice", "secret1"))
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	pair, err = f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	identity, err := f.svc.IdentityForAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, identity))
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestIdentityForAccessToken(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "alice", "secret1", "staff")
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	resolved, err := f.svc.IdentityForAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, resolved.ID)
	assert.Equal(t, []string{"staff"}, resolved.Groups)

	require.NoError(t, f.store.Auth().UpdateRole(ctx, identity.ID, shared.RoleSuperadmin))
	resolved, err = f.svc.IdentityForAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, shared.RoleUser, resolved.Role)

	_, err = f.svc.IdentityForAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	f.clock.now = f.clock.now.Add(time.Hour)
	_, err = f.svc.IdentityForAccessToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestGroupNamesFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "alice", "secret1", "staff", "admin")

	names, err := f.svc.GroupNames(context.Background(), &auth.Identity{ID: identity.ID, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "staff"}, names)

	names, err = f.svc.GroupNames(context.Background(), &auth.Identity{ID: identity.ID, Groups: []string{"cached"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cached"}, names)
}

func TestSweepExpiredRefreshTokens(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")
	f.register(t, "bob", "secret2")
	ctx := context.Background()
	_, err := f.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(6 * 24 * time.Hour)
	_, err = f.svc.Login(ctx, "bob", "secret2")
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(2 * 24 * time.Hour)
	cleared, err := f.svc.SweepExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	alice, err := f.store.Auth().FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, alice.RefreshToken)
	bob, err := f.store.Auth().FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, bob.RefreshToken)
}

func TestCleanGroupNames(t *testing.T) {
	assert.Equal(t, []string{"staff", "admin"}, auth.CleanGroupNames([]string{" staff", "admin", "staff ", " "}))
	assert.Empty(t, auth.CleanGroupNames(nil))
}
