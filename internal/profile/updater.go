package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/openrisk-labs/kite/internal/domain"
)

// ErrProfileLoad marks a failure to read the customer profile. Callers treat
// it as fail-closed: scoring without history would silently weaken velocity
// and new-customer checks.
var ErrProfileLoad = errors.New("profile load failed")

// Updater owns the per-customer serialization point. Scoring transaction N+1
// before transaction N's profile update lands would make velocity and
// new-customer rules stale, so reads and writes for one customer go through
// the keyed lock.
type Updater struct {
	repo  domain.Repository
	locks *KeyedMutex
}

// NewUpdater creates a profile updater backed by the repository.
func NewUpdater(repo domain.Repository) *Updater {
	return &Updater{
		repo:  repo,
		locks: NewKeyedMutex(),
	}
}

// WithCustomer runs fn while holding the customer's lock. fn receives the
// current profile (a fresh one for never-seen customers) and returns the
// updated profile to persist, or nil to skip the write.
func (u *Updater) WithCustomer(ctx context.Context, tenantID, customerID string, fn func(p *domain.CustomerProfile) (*domain.CustomerProfile, error)) error {
	unlock := u.locks.Lock(tenantID + ":" + customerID)
	defer unlock()

	current, err := u.repo.GetProfile(ctx, tenantID, customerID)
	if err != nil {
		return fmt.Errorf("%w for %s: %v", ErrProfileLoad, customerID, err)
	}
	if current == nil {
		current = domain.NewCustomerProfile(tenantID, customerID)
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	if err := u.repo.SaveProfile(ctx, tenantID, updated); err != nil {
		return fmt.Errorf("save profile for %s: %w", customerID, err)
	}
	return nil
}

// RecordReview folds a review outcome into the customer's counters, keeping
// rejected counts consistent under concurrent reviews.
func (u *Updater) RecordReview(ctx context.Context, tenantID, customerID string, status domain.ReviewStatus) error {
	if status != domain.ReviewRejected {
		return nil
	}
	return u.WithCustomer(ctx, tenantID, customerID, func(p *domain.CustomerProfile) (*domain.CustomerProfile, error) {
		p.RejectedCount++
		return p, nil
	})
}
