package domain

import (
	"fmt"
	"time"
)

// LogicalOperator combines the conditions of a rule group.
type LogicalOperator string

const (
	OpAnd LogicalOperator = "AND"
	OpOr  LogicalOperator = "OR"
)

// ParseLogicalOperator validates a stored operator string at the core boundary.
func ParseLogicalOperator(s string) (LogicalOperator, error) {
	switch LogicalOperator(s) {
	case OpAnd, OpOr:
		return LogicalOperator(s), nil
	}
	return "", fmt.Errorf("unknown logical operator %q", s)
}

// GroupCondition is one field/operator/value condition inside a rule group.
type GroupCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Position int    `json:"position"`
}

// RuleGroup is a compound rule: an ordered list of conditions combined with a
// single logical operator, triggering one weighted hit when the group matches.
type RuleGroup struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Operator   LogicalOperator  `json:"operator"`
	Conditions []GroupCondition `json:"conditions"`

	// Points is the group's total score contribution on match.
	Points int `json:"points"`

	Mode RuleMode `json:"mode"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// IsEnabled is the derived boolean view of the three-state mode.
func (g *RuleGroup) IsEnabled() bool {
	return g.Mode != ModeDisabled
}

// Validate enforces group shape at the core boundary.
func (g *RuleGroup) Validate() error {
	if g.ID == "" || g.Name == "" {
		return fmt.Errorf("rule group: id and name are required")
	}
	if _, err := ParseLogicalOperator(string(g.Operator)); err != nil {
		return fmt.Errorf("rule group %s: %w", g.ID, err)
	}
	if _, err := ParseRuleMode(string(g.Mode)); err != nil {
		return fmt.Errorf("rule group %s: %w", g.ID, err)
	}
	for i, c := range g.Conditions {
		if c.Field == "" || c.Operator == "" || c.Value == "" {
			return fmt.Errorf("rule group %s: condition %d requires field, operator and value", g.ID, i)
		}
	}
	return nil
}
