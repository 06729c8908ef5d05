package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openrisk-labs/kite/internal/domain"
)

// VelocityGetter returns the transaction count for a customer within a
// trailing window, backing the VELOCITY_24H detector.
type VelocityGetter func(ctx context.Context, tenantID, customerID string, windowSecs int) (int64, error)

// Engine evaluates a tenant's enabled rules against one snapshot. Rules are
// independent: a malformed rule is logged and skipped, never short-circuiting
// the others.
type Engine struct {
	velocityGetter VelocityGetter
	scripts        *ScriptEngine
}

// NewEngine creates a rule engine. scripts may be nil when script rules are
// not configured.
func NewEngine(velocityGetter VelocityGetter, scripts *ScriptEngine) *Engine {
	return &Engine{
		velocityGetter: velocityGetter,
		scripts:        scripts,
	}
}

// Evaluate runs every enabled rule: built-ins first, then expression rules,
// then script rules, insertion order stable within each kind. Shadow rules
// produce factors flagged as shadow; disabled rules are skipped.
func (e *Engine) Evaluate(ctx context.Context, snap *Snapshot, ruleSet []*domain.RiskRule, policy *domain.TenantPolicy) []domain.RiskFactor {
	ordered := orderRules(ruleSet)

	velocity := e.fetchVelocity(ctx, snap, ordered)

	var factors []domain.RiskFactor
	for _, rule := range ordered {
		factor, hit, err := e.evaluateRule(ctx, snap, rule, policy, velocity)
		if err != nil {
			slog.Warn("rule evaluation skipped",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}
		if !hit {
			continue
		}
		if rule.Mode == domain.ModeShadow {
			factor.Shadow = true
			slog.Info("shadow rule hit",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"points", factor.Points,
			)
		}
		factors = append(factors, *factor)
	}
	return factors
}

func (e *Engine) evaluateRule(ctx context.Context, snap *Snapshot, rule *domain.RiskRule, policy *domain.TenantPolicy, velocity int64) (*domain.RiskFactor, bool, error) {
	switch rule.Kind {
	case domain.RuleKindBuiltin:
		detect, ok := detectors[rule.Code]
		if !ok {
			return nil, false, fmt.Errorf("no detector for code %q", rule.Code)
		}
		return detect(&BuiltinInput{
			Snap:       snap,
			Rule:       rule,
			Policy:     policy,
			Velocity24: velocity,
		})

	case domain.RuleKindExpression:
		matched, err := Evaluate(rule.Field, rule.Operator, rule.Value, snap)
		if err != nil || !matched {
			return nil, false, err
		}
		return &domain.RiskFactor{
			Category:    domain.CategoryRule,
			RuleName:    rule.Name,
			Description: fmt.Sprintf("%s %s %s", rule.Field, rule.Operator, rule.Value),
			Points:      rule.Weight,
			Severity:    domain.SeverityForPoints(rule.Weight),
			Context:     map[string]string{"field": rule.Field, "operator": rule.Operator, "value": rule.Value},
		}, true, nil

	case domain.RuleKindScript:
		if e.scripts == nil {
			return nil, false, fmt.Errorf("script engine not configured")
		}
		matched, err := e.scripts.Evaluate(rule, snap)
		if err != nil || !matched {
			return nil, false, err
		}
		return &domain.RiskFactor{
			Category:    domain.CategoryRule,
			RuleName:    rule.Name,
			Description: rule.Description,
			Points:      rule.Weight,
			Severity:    domain.SeverityForPoints(rule.Weight),
		}, true, nil
	}

	return nil, false, fmt.Errorf("unknown rule kind %q", rule.Kind)
}

// fetchVelocity resolves the trailing-24h count once per pass, and only when
// an enabled velocity rule exists.
func (e *Engine) fetchVelocity(ctx context.Context, snap *Snapshot, ruleSet []*domain.RiskRule) int64 {
	if e.velocityGetter == nil {
		return 0
	}
	needed := false
	for _, r := range ruleSet {
		if r.Kind == domain.RuleKindBuiltin && r.Code == domain.CodeVelocity24h {
			needed = true
			break
		}
	}
	if !needed {
		return 0
	}

	count, err := e.velocityGetter(ctx, snap.Tx.TenantID, snap.Tx.SenderID, 24*3600)
	if err != nil {
		slog.Warn("velocity lookup failed, treating as zero",
			"tenant_id", snap.Tx.TenantID,
			"customer_id", snap.Tx.SenderID,
			"error", err,
		)
		return 0
	}
	return count
}

// orderRules filters to enabled rules and fixes the evaluation order:
// built-in, then expression, then script, insertion position within each.
func orderRules(ruleSet []*domain.RiskRule) []*domain.RiskRule {
	ordered := make([]*domain.RiskRule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.IsEnabled() {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := kindRank(ordered[i].Kind), kindRank(ordered[j].Kind)
		if ki != kj {
			return ki < kj
		}
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

func kindRank(k domain.RuleKind) int {
	switch k {
	case domain.RuleKindBuiltin:
		return 0
	case domain.RuleKindExpression:
		return 1
	default:
		return 2
	}
}
