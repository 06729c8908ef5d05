package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openrisk-labs/kite/internal/domain"
)

// Cache keys for per-tenant configuration snapshots.
const (
	keyRules      = "config:rules"
	keyGroups     = "config:groups"
	keyWatchlists = "config:watchlists"
	keyPolicy     = "config:policy"
)

// DefaultConfigTTL bounds snapshot staleness when an invalidation is missed.
const DefaultConfigTTL = 5 * time.Second

// ConfigCache serves per-tenant rules, rule groups, watchlists and policy
// from cache, falling through to the repository on miss. Edits go through
// Invalidate so the next score sees them; the TTL catches anything else.
type ConfigCache struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewConfigCache creates a configuration cache over the repository.
func NewConfigCache(repo domain.Repository, c domain.Cache, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &ConfigCache{repo: repo, cache: c, ttl: ttl}
}

// Rules returns the tenant's rule set.
func (c *ConfigCache) Rules(ctx context.Context, tenantID string) ([]*domain.RiskRule, error) {
	var out []*domain.RiskRule
	err := c.load(ctx, tenantID, keyRules, &out, func() (any, error) {
		return c.repo.ListRules(ctx, tenantID)
	})
	return out, err
}

// Groups returns the tenant's rule groups.
func (c *ConfigCache) Groups(ctx context.Context, tenantID string) ([]*domain.RuleGroup, error) {
	var out []*domain.RuleGroup
	err := c.load(ctx, tenantID, keyGroups, &out, func() (any, error) {
		return c.repo.ListRuleGroups(ctx, tenantID)
	})
	return out, err
}

// Watchlists returns the tenant's watchlists.
func (c *ConfigCache) Watchlists(ctx context.Context, tenantID string) ([]*domain.Watchlist, error) {
	var out []*domain.Watchlist
	err := c.load(ctx, tenantID, keyWatchlists, &out, func() (any, error) {
		return c.repo.ListWatchlists(ctx, tenantID)
	})
	return out, err
}

// Policy returns the tenant's policy, or defaults for unconfigured tenants.
func (c *ConfigCache) Policy(ctx context.Context, tenantID string) (*domain.TenantPolicy, error) {
	var out *domain.TenantPolicy
	err := c.load(ctx, tenantID, keyPolicy, &out, func() (any, error) {
		return c.repo.GetPolicy(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return domain.DefaultPolicy(tenantID), nil
	}
	return out, nil
}

// Invalidate drops the tenant's cached snapshots. Call after any rule,
// group, watchlist or policy edit.
func (c *ConfigCache) Invalidate(ctx context.Context, tenantID string) {
	if c.cache == nil {
		return
	}
	for _, key := range []string{keyRules, keyGroups, keyWatchlists, keyPolicy} {
		if err := c.cache.Delete(ctx, tenantID, key); err != nil {
			slog.Warn("config cache invalidation failed",
				"tenant_id", tenantID, "key", key, "error", err)
		}
	}
}

// ListenInvalidations subscribes to the config-invalidation topic so edits
// made on other nodes drop this node's snapshots too.
func (c *ConfigCache) ListenInvalidations(ctx context.Context, bus domain.EventBus, tenantID string) (domain.Subscription, error) {
	if bus == nil {
		return nil, nil
	}
	return bus.Subscribe(ctx, tenantID, domain.TopicConfigInvalidate, func(ctx context.Context, msg *domain.Message) error {
		c.Invalidate(ctx, msg.TenantID)
		return nil
	})
}

// load fetches a cached JSON snapshot into dst, calling fill on miss and
// writing the result back with the configured TTL. A broken cache degrades
// to repository reads.
func (c *ConfigCache) load(ctx context.Context, tenantID, key string, dst any, fill func() (any, error)) error {
	if c.cache != nil {
		raw, err := c.cache.Get(ctx, tenantID, key)
		if err != nil {
			slog.Warn("config cache read failed", "tenant_id", tenantID, "key", key, "error", err)
		} else if raw != nil {
			if err := json.Unmarshal(raw, dst); err == nil {
				return nil
			}
			// Unreadable snapshot: fall through and overwrite it.
		}
	}

	fresh, err := fill()
	if err != nil {
		return fmt.Errorf("load %s for tenant %s: %w", key, tenantID, err)
	}

	raw, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("encode %s for tenant %s: %w", key, tenantID, err)
	}
	if uerr := json.Unmarshal(raw, dst); uerr != nil {
		return fmt.Errorf("decode %s for tenant %s: %w", key, tenantID, uerr)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, tenantID, key, raw, c.ttl); err != nil {
			slog.Warn("config cache write failed", "tenant_id", tenantID, "key", key, "error", err)
		}
	}
	return nil
}
