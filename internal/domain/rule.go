package domain

import (
	"fmt"
	"time"
)

// RuleKind distinguishes how a risk rule is evaluated.
type RuleKind string

const (
	// RuleKindBuiltin rules dispatch to one of the fixed detectors by code.
	RuleKindBuiltin RuleKind = "builtin"

	// RuleKindExpression rules evaluate a field/operator/value triple.
	RuleKindExpression RuleKind = "expression"

	// RuleKindScript rules evaluate a tenant-authored CEL expression.
	RuleKindScript RuleKind = "script"
)

// RuleMode is the three-state lifecycle of a rule.
type RuleMode string

const (
	// ModeActive rules evaluate and contribute to the total score.
	ModeActive RuleMode = "active"

	// ModeShadow rules evaluate and surface as factors but contribute zero.
	// Used to trial new rules against live traffic safely.
	ModeShadow RuleMode = "shadow"

	// ModeDisabled rules are skipped entirely.
	ModeDisabled RuleMode = "disabled"
)

// ParseRuleMode validates a stored mode string at the core boundary.
func ParseRuleMode(s string) (RuleMode, error) {
	switch RuleMode(s) {
	case ModeActive, ModeShadow, ModeDisabled:
		return RuleMode(s), nil
	}
	return "", fmt.Errorf("unknown rule mode %q", s)
}

// RuleCode identifies one of the fixed built-in detectors.
type RuleCode string

const (
	CodeHighAmount       RuleCode = "HIGH_AMOUNT"
	CodeVelocity24h      RuleCode = "VELOCITY_24H"
	CodeNewCustomer      RuleCode = "NEW_CUSTOMER"
	CodeHighRiskCorridor RuleCode = "HIGH_RISK_CORRIDOR"
	CodeRoundAmount      RuleCode = "ROUND_AMOUNT"
	CodeUnusualTime      RuleCode = "UNUSUAL_TIME"
)

// BuiltinCodes lists every recognized detector code.
func BuiltinCodes() []RuleCode {
	return []RuleCode{
		CodeHighAmount, CodeVelocity24h, CodeNewCustomer,
		CodeHighRiskCorridor, CodeRoundAmount, CodeUnusualTime,
	}
}

// RiskRule is a tenant-scoped (or global) scoring rule. Exactly one of the
// builtin / expression / script representations holds, selected by Kind.
type RiskRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Kind RuleKind `json:"kind"`

	// Builtin rules only.
	Code RuleCode `json:"code,omitempty"`

	// Expression rules only.
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value,omitempty"`

	// Script rules only.
	Script string `json:"script,omitempty"`

	// Weight is the score contribution on match.
	Weight int `json:"weight"`

	Mode RuleMode `json:"mode"`

	// Position preserves insertion order for stable evaluation.
	Position int `json:"position"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// IsEnabled is the derived boolean view of the three-state mode.
func (r *RiskRule) IsEnabled() bool {
	return r.Mode != ModeDisabled
}

// Validate enforces the one-representation-per-rule invariant at the boundary
// of the core, so evaluation never sees a malformed rule shape.
func (r *RiskRule) Validate() error {
	if r.ID == "" || r.Name == "" {
		return fmt.Errorf("rule: id and name are required")
	}
	if _, err := ParseRuleMode(string(r.Mode)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	switch r.Kind {
	case RuleKindBuiltin:
		if r.Code == "" {
			return fmt.Errorf("rule %s: builtin rule requires a code", r.ID)
		}
		if r.Field != "" || r.Operator != "" || r.Script != "" {
			return fmt.Errorf("rule %s: builtin rule must not carry expression or script fields", r.ID)
		}
		for _, c := range BuiltinCodes() {
			if r.Code == c {
				return nil
			}
		}
		return fmt.Errorf("rule %s: unknown builtin code %q", r.ID, r.Code)
	case RuleKindExpression:
		if r.Field == "" || r.Operator == "" || r.Value == "" {
			return fmt.Errorf("rule %s: expression rule requires field, operator and value", r.ID)
		}
		if r.Code != "" || r.Script != "" {
			return fmt.Errorf("rule %s: expression rule must not carry a code or script", r.ID)
		}
	case RuleKindScript:
		if r.Script == "" {
			return fmt.Errorf("rule %s: script rule requires a script", r.ID)
		}
		if r.Code != "" || r.Field != "" {
			return fmt.Errorf("rule %s: script rule must not carry a code or expression fields", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown kind %q", r.ID, r.Kind)
	}
	return nil
}
