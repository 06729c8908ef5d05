package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of one financial movement.
// It is created once on ingestion and never mutated by the scoring core.
type Transaction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Parties
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`

	// Financial details
	Amount              decimal.Decimal `json:"amount"`
	SourceCurrency      string          `json:"sourceCurrency"`
	DestinationCurrency string          `json:"destinationCurrency"`
	SourceCountry       string          `json:"sourceCountry"`
	DestinationCountry  string          `json:"destinationCountry"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Reference to the raw provider payload (stored externally).
	RawPayloadRef string `json:"rawPayloadRef,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

var (
	ErrMissingTenant   = errors.New("transaction: tenant id is required")
	ErrMissingParty    = errors.New("transaction: sender and receiver ids are required")
	ErrInvalidAmount   = errors.New("transaction: amount must be positive")
	ErrMissingMoment   = errors.New("transaction: timestamp is required")
	ErrMissingCurrency = errors.New("transaction: source currency is required")
)

// Validate rejects malformed input before scoring begins. This is the only
// fatal condition in the scoring pipeline.
func (t *Transaction) Validate() error {
	switch {
	case t.TenantID == "":
		return ErrMissingTenant
	case t.SenderID == "" || t.ReceiverID == "":
		return ErrMissingParty
	case !t.Amount.IsPositive():
		return ErrInvalidAmount
	case t.Timestamp.IsZero():
		return ErrMissingMoment
	case t.SourceCurrency == "":
		return ErrMissingCurrency
	}
	return nil
}

// Hour returns the transaction hour of day in UTC, used by time-of-day rules.
func (t *Transaction) Hour() int {
	return t.Timestamp.UTC().Hour()
}
