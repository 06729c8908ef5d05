// Package scoring combines the detection strategies into one deterministic,
// explainable risk decision per transaction.
package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openrisk-labs/kite/internal/domain"
)

// EngineVersion is stamped into analysis metadata.
const EngineVersion = "kite-1.0"

// AggregateInput carries every detector's factors plus the tenant policy that
// resolves the review decision.
type AggregateInput struct {
	TenantID string
	TxID     string
	TraceID  string

	Factors []domain.RiskFactor
	Policy  *domain.TenantPolicy

	RulesEvaluated  int
	GroupsEvaluated int
	ListsEvaluated  int
	ModelAvailable  bool
	DegradedLists   bool
	DegradedGraph   bool

	StartTime time.Time
}

// Aggregator produces the final RiskAnalysis. It tolerates partial results
// from every upstream component: missing factors just contribute nothing.
type Aggregator struct{}

// NewAggregator creates a score aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate sums all non-shadow contributions, clamps to [0, 100], classifies
// the risk level, resolves the review status against tenant thresholds, and
// assembles the ordered explanation. Negative contributions (allowlists) are
// clamped only after full aggregation.
func (a *Aggregator) Aggregate(in *AggregateInput) *domain.RiskAnalysis {
	factors := make([]domain.RiskFactor, len(in.Factors))
	copy(factors, in.Factors)
	sortFactors(factors)

	raw := 0
	shadowHits := 0
	for i := range factors {
		if factors[i].ID == "" {
			factors[i].ID = uuid.New().String()
		}
		if factors[i].Shadow {
			shadowHits++
			continue
		}
		raw += factors[i].Points
	}

	score := raw
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	analysis := &domain.RiskAnalysis{
		ID:          uuid.New().String(),
		TenantID:    in.TenantID,
		TxID:        in.TxID,
		Score:       score,
		Level:       domain.LevelForScore(score),
		Status:      resolveStatus(score, in.Policy),
		Explanation: explain(score, factors),
		Factors:     factors,
		CreatedAt:   time.Now().UTC(),
		Metadata: domain.AnalysisMetadata{
			TraceID:          in.TraceID,
			RulesEvaluated:   in.RulesEvaluated,
			GroupsEvaluated:  in.GroupsEvaluated,
			ListsEvaluated:   in.ListsEvaluated,
			ModelAvailable:   in.ModelAvailable,
			RawTotal:         raw,
			EngineVersion:    EngineVersion,
			DegradedLists:    in.DegradedLists,
			DegradedGraph:    in.DegradedGraph,
			ShadowFactorHits: shadowHits,
		},
	}
	if !in.StartTime.IsZero() {
		analysis.Metadata.TotalMs = time.Since(in.StartTime).Milliseconds()
	}
	return analysis
}

// resolveStatus maps the clamped score through the tenant's explicit
// threshold configuration.
func resolveStatus(score int, policy *domain.TenantPolicy) domain.ReviewStatus {
	switch {
	case score <= policy.AutoApproveThreshold:
		return domain.ReviewAutoApproved
	case score >= policy.AutoRejectThreshold:
		if policy.RejectRequiresReview {
			return domain.ReviewPending
		}
		return domain.ReviewEscalated
	default:
		return domain.ReviewPending
	}
}

// sortFactors orders by descending points, ties broken by severity then
// category name; shadow factors sort after scoring factors.
func sortFactors(factors []domain.RiskFactor) {
	sort.SliceStable(factors, func(i, j int) bool {
		fi, fj := factors[i], factors[j]
		if fi.Shadow != fj.Shadow {
			return !fi.Shadow
		}
		if fi.Points != fj.Points {
			return fi.Points > fj.Points
		}
		if fi.Severity.Rank() != fj.Severity.Rank() {
			return fi.Severity.Rank() > fj.Severity.Rank()
		}
		return fi.Category < fj.Category
	})
}

// explain renders the itemized explanation from scoring factors, already in
// contribution order.
func explain(score int, factors []domain.RiskFactor) string {
	var parts []string
	for _, f := range factors {
		if f.Shadow {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%+d): %s", f.RuleName, f.Points, f.Description))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("score %d: no risk factors triggered", score)
	}
	return fmt.Sprintf("score %d: %s", score, strings.Join(parts, "; "))
}
