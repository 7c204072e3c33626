package rbac_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/testing/memstore"
)

func newCachedRegistry(t *testing.T) (*rbac.Service, *rbac.RuleCache, *memstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := memstore.New()
	cache := rbac.NewRuleCache(client, store.Rules(), time.Minute, nil)
	return rbac.NewService(store.Rules(), cache, nil), cache, store, mr
}

func TestRuleCacheServesRepeatLookups(t *testing.T) {
	svc, cache, store, _ := newCachedRegistry(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, rbac.RuleInput{Module: "customer", EndpointName: "create-customer", AllowedGroups: "staff,admin"})
	require.NoError(t, err)

	rule, ok, err := cache.RuleFor(ctx, "create-customer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"staff", "admin"}, rule.AllowedGroups)

	store.Fail("GetByEndpoint", errors.New("store offline"))
	rule, ok, err = cache.RuleFor(ctx, "create-customer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "create-customer", rule.EndpointName)
	assert.Equal(t, "customer", rule.Module)
}

func TestRuleCacheRemembersMissingRules(t *testing.T) {
	_, cache, store, mr := newCachedRegistry(t)
	ctx := context.Background()

	_, ok, err := cache.RuleFor(ctx, "create-item")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("bizgate:rbac:rule:create-item"))

	store.Fail("GetByEndpoint", errors.New("store offline"))
	_, ok, err = cache.RuleFor(ctx, "create-item")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistryMutationsInvalidateCache(t *testing.T) {
	svc, cache, _, mr := newCachedRegistry(t)
	ctx := context.Background()

	_, ok, err := cache.RuleFor(ctx, "create-customer")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.Create(ctx, rbac.RuleInput{Module: "customer", EndpointName: "create-customer", AllowedGroups: "staff"})
	require.NoError(t, err)
	rule, ok, err := cache.RuleFor(ctx, "create-customer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"staff"}, rule.AllowedGroups)

	groups := "admin"
	_, err = svc.Update(ctx, "create-customer", rbac.RuleUpdate{AllowedGroups: &groups})
	require.NoError(t, err)
	rule, _, err = cache.RuleFor(ctx, "create-customer")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, rule.AllowedGroups)

	require.NoError(t, svc.Delete(ctx, "create-customer"))
	_, ok, err = cache.RuleFor(ctx, "create-customer")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("bizgate:rbac:rule:create-customer"))
}

func TestRuleCacheFallsBackWhenRedisIsDown(t *testing.T) {
	svc, cache, _, mr := newCachedRegistry(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, rbac.RuleInput{Module: "item", EndpointName: "create-item", AllowedGroups: "admin"})
	require.NoError(t, err)

	mr.Close()
	rule, ok, err := cache.RuleFor(ctx, "create-item")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"admin"}, rule.AllowedGroups)
}

func TestRuleCacheWithoutClientReadsStore(t *testing.T) {
	store := memstore.New()
	svc := rbac.NewService(store.Rules(), nil, nil)
	_, err := svc.Create(context.Background(), rbac.RuleInput{Module: "item", EndpointName: "create-item", AllowedGroups: "admin"})
	require.NoError(t, err)

	cache := rbac.NewRuleCache(nil, store.Rules(), time.Minute, nil)
	_, ok, err := cache.RuleFor(context.Background(), "create-item")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, cache.Invalidate(context.Background(), "create-item"))
}

// pausingRules blocks GetByEndpoint after it has read the store until resume is closed.
type pausingRules struct {
	rbac.Repository
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingRules) GetByEndpoint(ctx context.Context, endpoint string) (rbac.Rule, error) {
	rule, err := p.Repository.GetByEndpoint(ctx, endpoint)
	p.read <- struct{}{}
	<-p.resume
	return rule, err
}

func TestRuleCacheDiscardsFillThatRacedAnUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := memstore.New()
	ctx := context.Background()

	paused := &pausingRules{Repository: store.Rules(), read: make(chan struct{}, 1), resume: make(chan struct{})}
	cache := rbac.NewRuleCache(client, paused, time.Minute, nil)
	svc := rbac.NewService(store.Rules(), cache, nil)
	_, err := svc.Create(ctx, rbac.RuleInput{Module: "customer", EndpointName: "create-customer", AllowedGroups: "staff,admin"})
	require.NoError(t, err)

	done := make(chan []string, 1)
	go func() {
		rule, _, err := cache.RuleFor(ctx, "create-customer")
		assert.NoError(t, err)
		done <- rule.AllowedGroups
	}()
	<-paused.read

	groups := "admin"
	_, err = svc.Update(ctx, "create-customer", rbac.RuleUpdate{AllowedGroups: &groups})
	require.NoError(t, err)
	close(paused.resume)
	assert.Equal(t, []string{"staff", "admin"}, <-done)

	assert.False(t, mr.Exists("bizgate:rbac:rule:create-customer"))
	rule, ok, err := cache.RuleFor(ctx, "create-customer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"admin"}, rule.AllowedGroups)
}

func TestInvalidateBumpsGeneration(t *testing.T) {
	_, cache, _, mr := newCachedRegistry(t)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx, "create-item", "create-order"))
	require.NoError(t, cache.Invalidate(ctx, "create-item"))
	gen, err := mr.Get("bizgate:rbac:gen:create-item")
	require.NoError(t, err)
	assert.Equal(t, "2", gen)
	gen, err = mr.Get("bizgate:rbac:gen:create-order")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
}
