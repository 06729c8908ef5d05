package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/openrisk-labs/kite/internal/domain"
)

// VelocitySource answers "how many transactions did this customer send in the
// trailing window". The repository is the source of truth; a cache counter is
// maintained on every observed transaction so the question survives a slow or
// unavailable database.
type VelocitySource struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewVelocitySource creates a velocity source over the repository with a
// cache-backed fallback counter.
func NewVelocitySource(repo domain.Repository, cache domain.Cache) *VelocitySource {
	return &VelocitySource{repo: repo, cache: cache}
}

// Count returns the number of transactions the customer originated within the
// window. On repository failure it falls back to the cache counter and
// finally to zero.
func (v *VelocitySource) Count(ctx context.Context, tenantID, customerID string, windowSecs int64) (int64, error) {
	since := time.Now().UTC().Add(-time.Duration(windowSecs) * time.Second)
	n, err := v.repo.CountRecentTransactions(ctx, tenantID, customerID, since)
	if err == nil {
		return n, nil
	}
	slog.Warn("velocity count from repository failed, using cache counter",
		"tenant_id", tenantID, "customer_id", customerID, "error", err)

	if v.cache == nil {
		return 0, err
	}
	raw, cerr := v.cache.Get(ctx, tenantID, velocityKey(customerID, windowSecs))
	if cerr != nil || raw == nil {
		return 0, err
	}
	n, perr := strconv.ParseInt(string(raw), 10, 64)
	if perr != nil {
		return 0, err
	}
	return n, nil
}

// Observe bumps the cache counter for the transaction's sender. Best effort.
func (v *VelocitySource) Observe(ctx context.Context, tx *domain.Transaction, windowSecs int64) {
	if v.cache == nil {
		return
	}
	key := velocityKey(tx.SenderID, windowSecs)
	if _, err := v.cache.IncrementCounter(ctx, tx.TenantID, key, time.Duration(windowSecs)*time.Second); err != nil {
		slog.Debug("velocity counter increment failed", "tenant_id", tx.TenantID, "error", err)
	}
}

func velocityKey(customerID string, windowSecs int64) string {
	return fmt.Sprintf("velocity:%s:%d", customerID, windowSecs)
}
