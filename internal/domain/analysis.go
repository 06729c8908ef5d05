package domain

import (
	"fmt"
	"time"
)

// RiskLevel classifies a clamped 0-100 score into fixed ascending bands.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk level band boundaries (inclusive lower bounds).
const (
	MediumBand   = 30
	HighBand     = 60
	CriticalBand = 85
)

// LevelForScore maps a clamped score to its risk level.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= CriticalBand:
		return RiskCritical
	case score >= HighBand:
		return RiskHigh
	case score >= MediumBand:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ReviewStatus is the routing decision attached to an analysis.
type ReviewStatus string

const (
	ReviewPending      ReviewStatus = "pending"
	ReviewApproved     ReviewStatus = "approved"
	ReviewRejected     ReviewStatus = "rejected"
	ReviewEscalated    ReviewStatus = "escalated"
	ReviewAutoApproved ReviewStatus = "auto_approved"
)

// Terminal reports whether no further human action is expected.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case ReviewApproved, ReviewRejected, ReviewAutoApproved:
		return true
	}
	return false
}

// CanTransition reports whether a human action may move the analysis from
// its current status to the target. Pending and Escalated are the only
// states that accept transitions.
func (s ReviewStatus) CanTransition(to ReviewStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case ReviewApproved, ReviewRejected:
		return true
	case ReviewEscalated:
		return s == ReviewPending
	}
	return false
}

// Severity grades the importance of a single risk factor.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForPoints derives a severity grade from a factor's point value.
func SeverityForPoints(points int) Severity {
	switch {
	case points >= 50:
		return SeverityCritical
	case points >= 30:
		return SeverityHigh
	case points >= 15:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// severityRank orders severities for explanation tie-breaking.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// FactorCategory names the detection strategy that produced a factor.
type FactorCategory string

const (
	CategoryRule         FactorCategory = "rule"
	CategoryRuleGroup    FactorCategory = "rule_group"
	CategoryWatchlist    FactorCategory = "watchlist"
	CategoryRelationship FactorCategory = "relationship"
	CategoryModel        FactorCategory = "model"
)

// RiskFactor is a single contributing hit. The non-shadow factors of an
// analysis must reconstruct its total score before clamping.
type RiskFactor struct {
	ID          string         `json:"id"`
	Category    FactorCategory `json:"category"`
	RuleName    string         `json:"ruleName"`
	Description string         `json:"description"`
	Points      int            `json:"points"`
	Severity    Severity       `json:"severity"`

	// Shadow factors are surfaced for analytics but contribute zero.
	Shadow bool `json:"shadow,omitempty"`

	Context map[string]string `json:"context,omitempty"`
}

// AnalysisMetadata carries processing information for observability.
type AnalysisMetadata struct {
	TraceID          string `json:"traceId,omitempty"`
	RulesEvaluated   int    `json:"rulesEvaluated"`
	GroupsEvaluated  int    `json:"groupsEvaluated"`
	ListsEvaluated   int    `json:"listsEvaluated"`
	ModelAvailable   bool   `json:"modelAvailable"`
	RawTotal         int    `json:"rawTotal"`
	TotalMs          int64  `json:"totalMs"`
	EngineVersion    string `json:"engineVersion"`
	DegradedProfile  bool   `json:"degradedProfile,omitempty"`
	DegradedLists    bool   `json:"degradedLists,omitempty"`
	DegradedGraph    bool   `json:"degradedGraph,omitempty"`
	ShadowFactorHits int    `json:"shadowFactorHits,omitempty"`
}

// RiskAnalysis is the scoring output, owned one-to-one by a transaction.
// Analyses are append-only: re-scoring creates a fresh analysis rather than
// editing an existing one, preserving the audit trail.
type RiskAnalysis struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	TxID     string `json:"txId"`

	Score       int          `json:"score"`
	Level       RiskLevel    `json:"level"`
	Status      ReviewStatus `json:"status"`
	Explanation string       `json:"explanation"`

	Factors []RiskFactor `json:"factors"`

	// Review metadata, set by human action.
	ReviewedBy string     `json:"reviewedBy,omitempty"`
	ReviewNote string     `json:"reviewNote,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`

	CreatedAt time.Time        `json:"createdAt"`
	Metadata  AnalysisMetadata `json:"metadata"`
}

// Review applies a human review action, enforcing the status state machine.
func (a *RiskAnalysis) Review(to ReviewStatus, reviewer, note string, at time.Time) error {
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("analysis %s: cannot transition from %s to %s", a.ID, a.Status, to)
	}
	a.Status = to
	a.ReviewedBy = reviewer
	a.ReviewNote = note
	a.ReviewedAt = &at
	return nil
}
