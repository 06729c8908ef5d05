// Package watchlist matches transaction fields against tenant-configured
// block, watch and allow lists.
package watchlist

import (
	"fmt"
	"strings"
	"time"

	"github.com/openrisk-labs/kite/internal/domain"
)

// Matcher evaluates watchlist entries against a transaction. Matching is
// stateless; lists come from the tenant's configuration snapshot.
type Matcher struct{}

// NewMatcher creates a watchlist matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match compares every enabled, non-expired entry against the transaction
// field it names, case-insensitively. Each matching entry contributes one
// independent factor; allowlist factors carry negative points and the
// aggregate floors at zero after summation, not per hit.
func (m *Matcher) Match(tx *domain.Transaction, lists []*domain.Watchlist, now time.Time) []domain.RiskFactor {
	var factors []domain.RiskFactor
	for _, list := range lists {
		if !list.Enabled {
			continue
		}
		for _, entry := range list.Entries {
			if entry.Expired(now) {
				continue
			}
			value, ok := extractField(tx, entry.Field)
			if !ok || !strings.EqualFold(value, entry.Value) {
				continue
			}

			delta := entry.Delta(list.Type)
			factor := domain.RiskFactor{
				Category:    domain.CategoryWatchlist,
				RuleName:    list.Name,
				Description: describeHit(list, &entry, value),
				Points:      delta,
				Severity:    severityForList(list.Type),
				Context: map[string]string{
					"list_type": string(list.Type),
					"field":     string(entry.Field),
					"value":     entry.Value,
				},
			}
			factors = append(factors, factor)
		}
	}
	return factors
}

func extractField(tx *domain.Transaction, field domain.WatchField) (string, bool) {
	switch field {
	case domain.WatchSender:
		return tx.SenderID, true
	case domain.WatchReceiver:
		return tx.ReceiverID, true
	case domain.WatchSourceCountry:
		return tx.SourceCountry, true
	case domain.WatchDestinationCountry:
		return tx.DestinationCountry, true
	}
	return "", false
}

func severityForList(t domain.ListType) domain.Severity {
	switch t {
	case domain.ListBlock:
		return domain.SeverityCritical
	case domain.ListWatch:
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}

func describeHit(list *domain.Watchlist, entry *domain.WatchlistEntry, value string) string {
	desc := fmt.Sprintf("%s %q matched %s entry on %q", entry.Field, value, list.Type, list.Name)
	if entry.Reason != "" {
		desc += ": " + entry.Reason
	}
	return desc
}
