package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() *Transaction {
	return &Transaction{
		ID:             "tx-1",
		TenantID:       "tenant-001",
		SenderID:       "cust-1",
		ReceiverID:     "cust-2",
		Amount:         decimal.NewFromInt(100),
		SourceCurrency: "USD",
		Timestamp:      time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC),
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"missing tenant", func(tx *Transaction) { tx.TenantID = "" }, ErrMissingTenant},
		{"missing sender", func(tx *Transaction) { tx.SenderID = "" }, ErrMissingParty},
		{"missing receiver", func(tx *Transaction) { tx.ReceiverID = "" }, ErrMissingParty},
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }, ErrInvalidAmount},
		{"missing timestamp", func(tx *Transaction) { tx.Timestamp = time.Time{} }, ErrMissingMoment},
		{"missing currency", func(tx *Transaction) { tx.SourceCurrency = "" }, ErrMissingCurrency},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tx := validTransaction()
			c.mutate(tx)
			if err := tx.Validate(); !errors.Is(err, c.want) {
				t.Errorf("got %v, want %v", err, c.want)
			}
		})
	}
}

func TestTransactionHourIsUTC(t *testing.T) {
	tx := validTransaction()
	loc := time.FixedZone("UTC+5", 5*3600)
	tx.Timestamp = time.Date(2026, 3, 14, 3, 0, 0, 0, loc) // 22:00 UTC previous day

	if got := tx.Hour(); got != 22 {
		t.Errorf("Hour() = %d, want 22", got)
	}
}

func TestProfileApply(t *testing.T) {
	p := NewCustomerProfile("tenant-001", "cust-1")

	tx := validTransaction()
	tx.Amount = decimal.NewFromInt(200)
	tx.DestinationCountry = "NG"
	p.Apply(tx, &RiskAnalysis{Level: RiskLow})

	tx2 := validTransaction()
	tx2.Amount = decimal.NewFromInt(100)
	tx2.DestinationCountry = "NG"
	tx2.Timestamp = tx.Timestamp.Add(time.Hour)
	p.Apply(tx2, &RiskAnalysis{Level: RiskHigh})

	if p.TotalTransactions != 2 {
		t.Errorf("TotalTransactions = %d, want 2", p.TotalTransactions)
	}
	if !p.TotalVolume.Equal(decimal.NewFromInt(300)) {
		t.Errorf("TotalVolume = %s, want 300", p.TotalVolume)
	}
	if !p.AvgTransaction.Equal(decimal.NewFromInt(150)) {
		t.Errorf("AvgTransaction = %s, want 150", p.AvgTransaction)
	}
	if !p.MaxTransaction.Equal(decimal.NewFromInt(200)) {
		t.Errorf("MaxTransaction = %s, want 200", p.MaxTransaction)
	}
	if p.FlaggedCount != 1 {
		t.Errorf("FlaggedCount = %d, want 1", p.FlaggedCount)
	}
	if p.FrequentCountries["NG"] != 2 {
		t.Errorf("FrequentCountries[NG] = %d, want 2", p.FrequentCountries["NG"])
	}
	if p.FirstSeen != tx.Timestamp.UTC() || p.LastSeen != tx2.Timestamp.UTC() {
		t.Errorf("seen range wrong: first %v last %v", p.FirstSeen, p.LastSeen)
	}
}

func TestPolicyOffHoursWrapsMidnight(t *testing.T) {
	p := DefaultPolicy("tenant-001")
	p.OffHoursStart = 22
	p.OffHoursEnd = 6

	for _, hour := range []int{22, 23, 0, 3, 6} {
		if !p.InOffHours(hour) {
			t.Errorf("hour %d should be in off-hours band", hour)
		}
	}
	for _, hour := range []int{7, 12, 21} {
		if p.InOffHours(hour) {
			t.Errorf("hour %d should not be in off-hours band", hour)
		}
	}
}

func TestRuleValidateExactlyOneRepresentation(t *testing.T) {
	rule := &RiskRule{
		ID:   "r-1",
		Name: "mixed",
		Kind: RuleKindBuiltin,
		Code: CodeHighAmount,
		Mode: ModeActive,
	}
	if err := rule.Validate(); err != nil {
		t.Fatalf("valid builtin rule rejected: %v", err)
	}

	rule.Script = "amount > 100.0"
	if err := rule.Validate(); err == nil {
		t.Error("builtin rule carrying a script should be rejected")
	}

	expr := &RiskRule{
		ID: "r-2", Name: "expr", Kind: RuleKindExpression,
		Field: "amount", Operator: ">", Value: "100", Mode: ModeShadow,
	}
	if err := expr.Validate(); err != nil {
		t.Fatalf("valid expression rule rejected: %v", err)
	}

	expr.Operator = ""
	if err := expr.Validate(); err == nil {
		t.Error("expression rule missing operator should be rejected")
	}
}

func TestWatchlistEntryDelta(t *testing.T) {
	e := &WatchlistEntry{Field: WatchSender, Value: "x"}

	if got := e.Delta(ListBlock); got != BlocklistDelta {
		t.Errorf("block delta = %d, want %d", got, BlocklistDelta)
	}
	if got := e.Delta(ListAllow); got != AllowlistDelta {
		t.Errorf("allow delta = %d, want %d", got, AllowlistDelta)
	}

	e.ScoreDelta = 10
	if got := e.Delta(ListBlock); got != 10 {
		t.Errorf("override delta = %d, want 10", got)
	}
}
