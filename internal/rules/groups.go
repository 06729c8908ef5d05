package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openrisk-labs/kite/internal/domain"
)

// GroupEngine evaluates compound rule groups. Each group combines its ordered
// conditions with a single AND/OR operator and triggers one weighted hit.
type GroupEngine struct{}

// NewGroupEngine creates a compound rule engine.
func NewGroupEngine() *GroupEngine {
	return &GroupEngine{}
}

// Evaluate runs every enabled group against the snapshot. A condition that
// fails to evaluate is treated as no-match and logged; with AND semantics the
// group therefore cannot fire, with OR the remaining conditions still can.
// Empty condition sets never match.
func (g *GroupEngine) Evaluate(snap *Snapshot, groups []*domain.RuleGroup) []domain.RiskFactor {
	var factors []domain.RiskFactor
	for _, group := range groups {
		if !group.IsEnabled() {
			continue
		}
		matched := g.evaluateGroup(snap, group)
		if !matched {
			continue
		}
		factor := domain.RiskFactor{
			Category:    domain.CategoryRuleGroup,
			RuleName:    group.Name,
			Description: describeGroup(group),
			Points:      group.Points,
			Severity:    domain.SeverityForPoints(group.Points),
			Shadow:      group.Mode == domain.ModeShadow,
		}
		factors = append(factors, factor)
	}
	return factors
}

func (g *GroupEngine) evaluateGroup(snap *Snapshot, group *domain.RuleGroup) bool {
	if len(group.Conditions) == 0 {
		return false
	}

	conditions := make([]domain.GroupCondition, len(group.Conditions))
	copy(conditions, group.Conditions)
	sort.SliceStable(conditions, func(i, j int) bool {
		return conditions[i].Position < conditions[j].Position
	})

	for _, cond := range conditions {
		matched, err := Evaluate(cond.Field, cond.Operator, cond.Value, snap)
		if err != nil {
			slog.Warn("group condition skipped",
				"group_id", group.ID,
				"field", cond.Field,
				"error", err,
			)
			matched = false
		}
		switch group.Operator {
		case domain.OpAnd:
			if !matched {
				return false
			}
		case domain.OpOr:
			if matched {
				return true
			}
		}
	}

	// AND: every condition held. OR: none did.
	return group.Operator == domain.OpAnd
}

func describeGroup(group *domain.RuleGroup) string {
	parts := make([]string, len(group.Conditions))
	for i, c := range group.Conditions {
		parts[i] = fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value)
	}
	return fmt.Sprintf("group matched: %s", strings.Join(parts, fmt.Sprintf(" %s ", group.Operator)))
}
