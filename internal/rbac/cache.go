package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	ruleKeyPrefix       = "bizgate:rbac:rule:"
	generationKeyPrefix = "bizgate:rbac:gen:"
)

// storeIfCurrent writes a rule entry only while the endpoint generation still matches the one
// read before the store lookup, so a fill racing a registry mutation cannot resurrect old rules.
var storeIfCurrent = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

type cachedRule struct {
	Found         bool     `json:"found"`
	ID            int64    `json:"id,omitempty"`
	Module        string   `json:"module,omitempty"`
	EndpointName  string   `json:"endpoint_name,omitempty"`
	AllowedGroups []string `json:"allowed_groups,omitempty"`
}

// RuleCache is a Redis read-through cache in front of the rule store.
// Missing rules are cached too so unconfigured endpoints do not hit the store on every request.
type RuleCache struct {
	client *redis.Client
	repo   Repository
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewRuleCache wires the cache. A nil client disables caching.
func NewRuleCache(client *redis.Client, repo Repository, ttl time.Duration, logger *slog.Logger) *RuleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleCache{client: client, repo: repo, ttl: ttl, logger: logger}
}

// RuleFor implements RuleProvider.
func (c *RuleCache) RuleFor(ctx context.Context, endpoint string) (Rule, bool, error) {
	if c.client == nil || c.ttl <= 0 {
		return lookupRule(ctx, c.repo, endpoint)
	}
	key := ruleKeyPrefix + endpoint
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cachedRule
		if err := json.Unmarshal(payload, &entry); err == nil {
			return entry.rule(), entry.Found, nil
		}
		c.logger.Warn("rbac: discard corrupt cache entry", slog.String("endpoint", endpoint))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("rbac: cache read", slog.String("endpoint", endpoint), slog.Any("error", err))
	}

	entry, err := c.load(ctx, endpoint)
	if err != nil {
		return Rule{}, false, err
	}
	return entry.rule(), entry.Found, nil
}

func (c *RuleCache) load(ctx context.Context, endpoint string) (cachedRule, error) {
	generation, err := c.client.Get(ctx, generationKeyPrefix+endpoint).Result()
	switch {
	case errors.Is(err, redis.Nil):
		generation = "0"
	case err != nil:
		c.logger.Warn("rbac: cache generation read", slog.String("endpoint", endpoint), slog.Any("error", err))
		rule, found, err := lookupRule(ctx, c.repo, endpoint)
		if err != nil {
			return cachedRule{}, err
		}
		return newCachedRule(rule, found), nil
	}

	// Fills that saw different generations must not share a result.
	resultChan := c.group.DoChan(endpoint+"@"+generation, func() (interface{}, error) {
		rule, found, err := lookupRule(ctx, c.repo, endpoint)
		if err != nil {
			return cachedRule{}, err
		}
		entry := newCachedRule(rule, found)
		raw, err := json.Marshal(entry)
		if err == nil {
			keys := []string{generationKeyPrefix + endpoint, ruleKeyPrefix + endpoint}
			err = storeIfCurrent.Run(ctx, c.client, keys, generation, raw, c.ttl.Milliseconds()).Err()
		}
		if err != nil {
			c.logger.Warn("rbac: cache write", slog.String("endpoint", endpoint), slog.Any("error", err))
		}
		return entry, nil
	})
	select {
	case <-ctx.Done():
		return cachedRule{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return cachedRule{}, res.Err
		}
		return res.Val.(cachedRule), nil
	}
}

// Invalidate implements Invalidator. It bumps each endpoint's generation and drops the cached entry
// in one MULTI so in-flight fills that read the store earlier discard their result.
func (c *RuleCache) Invalidate(ctx context.Context, endpoints ...string) error {
	if c.client == nil || len(endpoints) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, endpoint := range endpoints {
			pipe.Incr(ctx, generationKeyPrefix+endpoint)
			pipe.Del(ctx, ruleKeyPrefix+endpoint)
		}
		return nil
	})
	return err
}

func newCachedRule(rule Rule, found bool) cachedRule {
	entry := cachedRule{Found: found}
	if found {
		entry.ID = rule.ID
		entry.Module = rule.Module
		entry.EndpointName = rule.EndpointName
		entry.AllowedGroups = rule.AllowedGroups
	}
	return entry
}

func (e cachedRule) rule() Rule {
	if !e.Found {
		return Rule{}
	}
	return Rule{ID: e.ID, Module: e.Module, EndpointName: e.EndpointName, AllowedGroups: e.AllowedGroups}
}
