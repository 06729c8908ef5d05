package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/openrisk-labs/kite/internal/domain"
)

func factor(name string, points int, shadow bool) domain.RiskFactor {
	return domain.RiskFactor{
		Category:    domain.CategoryRule,
		RuleName:    name,
		Description: name + " fired",
		Points:      points,
		Severity:    domain.SeverityForPoints(points),
		Shadow:      shadow,
	}
}

func aggregate(t *testing.T, factors ...domain.RiskFactor) *domain.RiskAnalysis {
	t.Helper()
	agg := NewAggregator()
	return agg.Aggregate(&AggregateInput{
		TenantID:  "tenant-001",
		TxID:      "tx-001",
		Factors:   factors,
		Policy:    domain.DefaultPolicy("tenant-001"),
		StartTime: time.Now(),
	})
}

func TestAggregateSumsAndClassifies(t *testing.T) {
	analysis := aggregate(t,
		factor("NEW_CUSTOMER", 15, false),
		factor("HIGH_AMOUNT", 25, false),
	)
	if analysis.Score != 40 {
		t.Fatalf("Score = %d, want 40", analysis.Score)
	}
	if analysis.Level != domain.RiskMedium {
		t.Errorf("Level = %q, want medium", analysis.Level)
	}
	if analysis.Status != domain.ReviewPending {
		t.Errorf("Status = %q, want pending between thresholds", analysis.Status)
	}
	if analysis.Metadata.RawTotal != 40 {
		t.Errorf("RawTotal = %d, want 40", analysis.Metadata.RawTotal)
	}
	if analysis.Metadata.EngineVersion != EngineVersion {
		t.Errorf("EngineVersion = %q", analysis.Metadata.EngineVersion)
	}
}

func TestAggregateClampsOver100(t *testing.T) {
	analysis := aggregate(t,
		factor("BLOCKLIST", 75, false),
		factor("HIGH_AMOUNT", 40, false),
	)
	if analysis.Score != 100 {
		t.Fatalf("Score = %d, want clamp at 100", analysis.Score)
	}
	if analysis.Level != domain.RiskCritical {
		t.Errorf("Level = %q, want critical", analysis.Level)
	}
	// The raw total survives in metadata for the audit trail.
	if analysis.Metadata.RawTotal != 115 {
		t.Errorf("RawTotal = %d, want 115", analysis.Metadata.RawTotal)
	}
}

func TestAggregateFloorsNegativeAtZeroAfterSummation(t *testing.T) {
	analysis := aggregate(t,
		factor("ALLOWLIST", -30, false),
		factor("ROUND_AMOUNT", 10, false),
	)
	if analysis.Score != 0 {
		t.Fatalf("Score = %d, want floor at 0", analysis.Score)
	}
	if analysis.Metadata.RawTotal != -20 {
		t.Errorf("RawTotal = %d, want -20 pre-clamp", analysis.Metadata.RawTotal)
	}
	if analysis.Status != domain.ReviewAutoApproved {
		t.Errorf("Status = %q, want auto-approved at 0", analysis.Status)
	}
}

func TestAggregateShadowExcludedButListed(t *testing.T) {
	analysis := aggregate(t,
		factor("ACTIVE", 10, false),
		factor("TRIAL", 50, true),
	)
	if analysis.Score != 10 {
		t.Fatalf("Score = %d, shadow factor contributed", analysis.Score)
	}
	if len(analysis.Factors) != 2 {
		t.Fatalf("got %d factors, want shadow listed", len(analysis.Factors))
	}
	if analysis.Metadata.ShadowFactorHits != 1 {
		t.Errorf("ShadowFactorHits = %d, want 1", analysis.Metadata.ShadowFactorHits)
	}
	if strings.Contains(analysis.Explanation, "TRIAL") {
		t.Error("shadow factor leaked into the explanation")
	}
	// Shadow factors sort after scoring factors regardless of points.
	if analysis.Factors[0].RuleName != "ACTIVE" {
		t.Errorf("factor order = %q first, want ACTIVE", analysis.Factors[0].RuleName)
	}
}

func TestAggregateStatusThresholds(t *testing.T) {
	policy := domain.DefaultPolicy("tenant-001") // approve <=20, reject >=80
	agg := NewAggregator()

	cases := []struct {
		points int
		want   domain.ReviewStatus
	}{
		{0, domain.ReviewAutoApproved},
		{20, domain.ReviewAutoApproved},
		{21, domain.ReviewPending},
		{79, domain.ReviewPending},
		{80, domain.ReviewPending}, // RejectRequiresReview keeps it pending
	}
	for _, tc := range cases {
		var factors []domain.RiskFactor
		if tc.points > 0 {
			factors = append(factors, factor("F", tc.points, false))
		}
		analysis := agg.Aggregate(&AggregateInput{
			TenantID: "tenant-001", TxID: "tx-001",
			Factors: factors, Policy: policy,
		})
		if analysis.Status != tc.want {
			t.Errorf("score %d: Status = %q, want %q", tc.points, analysis.Status, tc.want)
		}
	}

	policy.RejectRequiresReview = false
	analysis := agg.Aggregate(&AggregateInput{
		TenantID: "tenant-001", TxID: "tx-001",
		Factors: []domain.RiskFactor{factor("F", 90, false)},
		Policy:  policy,
	})
	if analysis.Status != domain.ReviewEscalated {
		t.Errorf("Status = %q, want escalated when review not required", analysis.Status)
	}
}

func TestAggregateExplanationOrderedByContribution(t *testing.T) {
	analysis := aggregate(t,
		factor("SMALL", 5, false),
		factor("BIG", 30, false),
		factor("MID", 15, false),
	)
	explanation := analysis.Explanation
	if !strings.HasPrefix(explanation, "score 50: ") {
		t.Fatalf("Explanation = %q", explanation)
	}
	big := strings.Index(explanation, "BIG")
	mid := strings.Index(explanation, "MID")
	small := strings.Index(explanation, "SMALL")
	if big == -1 || mid == -1 || small == -1 || !(big < mid && mid < small) {
		t.Errorf("contribution order broken: %q", explanation)
	}
	if !strings.Contains(explanation, "BIG (+30)") {
		t.Errorf("points not itemized: %q", explanation)
	}
}

func TestAggregateEmptyFactors(t *testing.T) {
	analysis := aggregate(t)
	if analysis.Score != 0 || analysis.Level != domain.RiskLow {
		t.Fatalf("empty aggregate = %d/%s, want 0/low", analysis.Score, analysis.Level)
	}
	if analysis.Explanation != "score 0: no risk factors triggered" {
		t.Errorf("Explanation = %q", analysis.Explanation)
	}
}

func TestAggregateDeterministicOrdering(t *testing.T) {
	// Equal points and severity: ties break on category name, so repeated
	// aggregation of the same shuffled input yields identical order.
	mk := func() []domain.RiskFactor {
		return []domain.RiskFactor{
			{Category: domain.CategoryWatchlist, RuleName: "W", Points: 10, Severity: domain.SeverityLow},
			{Category: domain.CategoryRule, RuleName: "R", Points: 10, Severity: domain.SeverityLow},
			{Category: domain.CategoryModel, RuleName: "M", Points: 10, Severity: domain.SeverityLow},
		}
	}
	first := aggregate(t, mk()...)
	shuffled := []domain.RiskFactor{mk()[2], mk()[0], mk()[1]}
	second := aggregate(t, shuffled...)

	for i := range first.Factors {
		if first.Factors[i].RuleName != second.Factors[i].RuleName {
			t.Fatalf("order differs at %d: %q vs %q", i, first.Factors[i].RuleName, second.Factors[i].RuleName)
		}
	}
	if first.Factors[0].Category != domain.CategoryModel {
		t.Errorf("tie-break order = %q first, want model by category name", first.Factors[0].Category)
	}
}

func TestAggregateAssignsFactorIDs(t *testing.T) {
	analysis := aggregate(t, factor("F", 10, false))
	if analysis.ID == "" {
		t.Error("analysis id not assigned")
	}
	if analysis.Factors[0].ID == "" {
		t.Error("factor id not assigned")
	}
}
