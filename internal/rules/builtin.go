package rules

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/openrisk-labs/kite/internal/domain"
)

// BuiltinInput carries everything a fixed detector reads: the snapshot, the
// rule instance (threshold, weight), tenant policy, and the trailing-24h
// transaction count for the sender.
type BuiltinInput struct {
	Snap       *Snapshot
	Rule       *domain.RiskRule
	Policy     *domain.TenantPolicy
	Velocity24 int64
}

// A detector returns a factor when it fires and false otherwise. Detectors
// ignore rules not matching their code; the engine dispatches by code.
type detector func(in *BuiltinInput) (*domain.RiskFactor, bool, error)

var detectors = map[domain.RuleCode]detector{
	domain.CodeHighAmount:       detectHighAmount,
	domain.CodeVelocity24h:      detectVelocity24h,
	domain.CodeNewCustomer:      detectNewCustomer,
	domain.CodeHighRiskCorridor: detectCorridor,
	domain.CodeRoundAmount:      detectRoundAmount,
	domain.CodeUnusualTime:      detectUnusualTime,
}

func builtinFactor(rule *domain.RiskRule, description string, context map[string]string) *domain.RiskFactor {
	return &domain.RiskFactor{
		Category:    domain.CategoryRule,
		RuleName:    string(rule.Code),
		Description: description,
		Points:      rule.Weight,
		Severity:    domain.SeverityForPoints(rule.Weight),
		Context:     context,
	}
}

// detectHighAmount fires when the amount meets or exceeds the rule threshold.
func detectHighAmount(in *BuiltinInput) (*domain.RiskFactor, bool, error) {
	threshold, err := decimal.NewFromString(in.Rule.Value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %q is not a decimal", ErrBadLiteral, in.Rule.Value)
	}
	amount := in.Snap.Tx.Amount
	if amount.LessThan(threshold) {
		return nil, false, nil
	}
	return builtinFactor(in.Rule,
		fmt.Sprintf("transaction amount %s meets or exceeds threshold %s", amount, threshold),
		map[string]string{"amount": amount.String(), "threshold": threshold.String()},
	), true, nil
}

// detectVelocity24h fires on the trailing-24h transaction count, not the
// lifetime total.
func detectVelocity24h(in *BuiltinInput) (*domain.RiskFactor, bool, error) {
	threshold, err := strconv.ParseInt(in.Rule.Value, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %q is not an integer", ErrBadLiteral, in.Rule.Value)
	}
	if in.Velocity24 < threshold {
		return nil, false, nil
	}
	return builtinFactor(in.Rule,
		fmt.Sprintf("%d transactions in the last 24h meets or exceeds threshold %d", in.Velocity24, threshold),
		map[string]string{"count_24h": strconv.FormatInt(in.Velocity24, 10), "threshold": in.Rule.Value},
	), true, nil
}

// detectNewCustomer fires on thin lifetime history.
func detectNewCustomer(in *BuiltinInput) (*domain.RiskFactor, bool, error) {
	threshold, err := strconv.ParseInt(in.Rule.Value, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %q is not an integer", ErrBadLiteral, in.Rule.Value)
	}
	total := in.Snap.Profile.TotalTransactions
	if total >= threshold {
		return nil, false, nil
	}
	return builtinFactor(in.Rule,
		fmt.Sprintf("customer has only %d prior transactions (threshold %d)", total, threshold),
		map[string]string{"total_transactions": strconv.FormatInt(total, 10), "threshold": in.Rule.Value},
	), true, nil
}

// detectCorridor fires when the (source, destination) country pair is in the
// tenant's configured high-risk set.
func detectCorridor(in *BuiltinInput) (*domain.RiskFactor, bool, error) {
	src, dst := in.Snap.Tx.SourceCountry, in.Snap.Tx.DestinationCountry
	if !in.Policy.IsHighRiskCorridor(src, dst) {
		return nil, false, nil
	}
	return builtinFactor(in.Rule,
		fmt.Sprintf("corridor %s->%s is configured high risk", src, dst),
		map[string]string{"source": src, "destination": dst},
	), true, nil
}

// detectRoundAmount fires when the amount is an exact multiple of the round
// unit at or above the floor, a structuring signal.
func detectRoundAmount(in *BuiltinInput) (*domain.RiskFactor, bool, error) {
	unit := decimal.NewFromInt(in.Policy.RoundAmountUnit)
	floor := decimal.NewFromInt(in.Policy.RoundAmountFloor)
	if !unit.IsPositive() {
		return nil, false, nil
	}
	amount := in.Snap.Tx.Amount
	if amount.LessThan(floor) || !amount.Mod(unit).IsZero() {
		return nil, false, nil
	}
	return builtinFactor(in.Rule,
		fmt.Sprintf("amount %s is an exact multiple of %s", amount, unit),
		map[string]string{"amount": amount.String(), "unit": unit.String()},
	), true, nil
}

// detectUnusualTime fires when the UTC transaction hour falls in the tenant's
// off-hours band.
func detectUnusualTime(in *BuiltinInput) (*domain.RiskFactor, bool, error) {
	hour := in.Snap.Tx.Hour()
	if !in.Policy.InOffHours(hour) {
		return nil, false, nil
	}
	return builtinFactor(in.Rule,
		fmt.Sprintf("transaction at %02d:00 UTC falls in off-hours band", hour),
		map[string]string{"hour": strconv.Itoa(hour)},
	), true, nil
}
