package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerProfile is the rolling aggregate for one external customer within
// a tenant. It is read before scoring a transaction and written after, so
// reads and writes for the same customer must be serialized by the caller.
type CustomerProfile struct {
	TenantID   string `json:"tenantId"`
	CustomerID string `json:"customerId"`

	TotalTransactions int64           `json:"totalTransactions"`
	TotalVolume       decimal.Decimal `json:"totalVolume"`
	AvgTransaction    decimal.Decimal `json:"avgTransaction"`
	MaxTransaction    decimal.Decimal `json:"maxTransaction"`

	// Countries this customer has transacted with, most transactions first.
	FrequentCountries map[string]int64 `json:"frequentCountries,omitempty"`

	FlaggedCount  int64 `json:"flaggedCount"`
	RejectedCount int64 `json:"rejectedCount"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NewCustomerProfile returns an empty profile for a customer never seen before.
func NewCustomerProfile(tenantID, customerID string) *CustomerProfile {
	return &CustomerProfile{
		TenantID:          tenantID,
		CustomerID:        customerID,
		FrequentCountries: make(map[string]int64),
	}
}

// Apply folds one scored transaction into the rolling aggregates.
func (p *CustomerProfile) Apply(tx *Transaction, analysis *RiskAnalysis) {
	p.TotalTransactions++
	p.TotalVolume = p.TotalVolume.Add(tx.Amount)
	p.AvgTransaction = p.TotalVolume.DivRound(decimal.NewFromInt(p.TotalTransactions), 6)
	if tx.Amount.GreaterThan(p.MaxTransaction) {
		p.MaxTransaction = tx.Amount
	}

	if p.FrequentCountries == nil {
		p.FrequentCountries = make(map[string]int64)
	}
	if tx.DestinationCountry != "" {
		p.FrequentCountries[tx.DestinationCountry]++
	}

	if analysis != nil && (analysis.Level == RiskHigh || analysis.Level == RiskCritical) {
		p.FlaggedCount++
	}

	ts := tx.Timestamp.UTC()
	if p.FirstSeen.IsZero() {
		p.FirstSeen = ts
	}
	if ts.After(p.LastSeen) {
		p.LastSeen = ts
	}
}
