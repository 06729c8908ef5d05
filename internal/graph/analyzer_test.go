package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openrisk-labs/kite/internal/domain"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func graphTx(tenantID, sender, receiver string, amount int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:             fmt.Sprintf("tx-%s-%s-%d", sender, receiver, at.Unix()),
		TenantID:       tenantID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Amount:         decimal.NewFromInt(amount),
		SourceCurrency: "USD",
		Timestamp:      at,
	}
}

func TestFanOutDetection(t *testing.T) {
	a := NewAnalyzer()
	policy := domain.DefaultPolicy("tenant-001") // fan threshold 5, window 24h

	// Five prior receivers inside the window.
	for i := 0; i < 5; i++ {
		a.Record(graphTx("tenant-001", "hub", fmt.Sprintf("recv-%d", i), 100, baseTime.Add(-time.Duration(i+1)*time.Hour)))
	}

	// Sixth distinct counterparty, counting the current transaction's receiver.
	tx := graphTx("tenant-001", "hub", "recv-new", 100, baseTime)
	hits := a.Check(tx, policy)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1 fan-out", len(hits))
	}
	hit := hits[0]
	if hit.Direction != domain.FanOut {
		t.Errorf("Direction = %q, want fan_out", hit.Direction)
	}
	if hit.Actor != "hub" {
		t.Errorf("Actor = %q, want hub", hit.Actor)
	}
	if hit.UniqueCounterparties != 6 {
		t.Errorf("UniqueCounterparties = %d, want 6", hit.UniqueCounterparties)
	}
	// base 15 + 3 per counterparty over the threshold of 5.
	if hit.ScoreDelta != 18 {
		t.Errorf("ScoreDelta = %d, want 18", hit.ScoreDelta)
	}
	if !hit.TotalAmount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("TotalAmount = %s, want 600", hit.TotalAmount)
	}
}

func TestFanInDetection(t *testing.T) {
	a := NewAnalyzer()
	policy := domain.DefaultPolicy("tenant-001")

	for i := 0; i < 4; i++ {
		a.Record(graphTx("tenant-001", fmt.Sprintf("sender-%d", i), "sink", 50, baseTime.Add(-time.Hour)))
	}

	// Fifth distinct sender reaches the threshold exactly.
	tx := graphTx("tenant-001", "sender-new", "sink", 50, baseTime)
	hits := a.Check(tx, policy)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1 fan-in", len(hits))
	}
	if hits[0].Direction != domain.FanIn || hits[0].Actor != "sink" {
		t.Errorf("hit = %+v, want fan_in on sink", hits[0])
	}
	if hits[0].ScoreDelta != fanBasePoints {
		t.Errorf("ScoreDelta = %d, want base %d at threshold", hits[0].ScoreDelta, fanBasePoints)
	}
}

func TestFanScoringCap(t *testing.T) {
	a := NewAnalyzer()
	policy := domain.DefaultPolicy("tenant-001")

	// 19 prior + 1 current = 20 distinct: 15 + 3*15 uncapped, capped at 30.
	for i := 0; i < 19; i++ {
		a.Record(graphTx("tenant-001", "hub", fmt.Sprintf("recv-%d", i), 10, baseTime.Add(-time.Hour)))
	}
	hits := a.Check(graphTx("tenant-001", "hub", "recv-final", 10, baseTime), policy)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].ScoreDelta != fanMaxPoints {
		t.Errorf("ScoreDelta = %d, want cap %d", hits[0].ScoreDelta, fanMaxPoints)
	}
}

func TestWindowExcludesOldEdges(t *testing.T) {
	a := NewAnalyzer()
	policy := domain.DefaultPolicy("tenant-001")

	// Five receivers, but all beyond the 24h window.
	for i := 0; i < 5; i++ {
		a.Record(graphTx("tenant-001", "hub", fmt.Sprintf("recv-%d", i), 100, baseTime.Add(-25*time.Hour)))
	}

	hits := a.Check(graphTx("tenant-001", "hub", "recv-new", 100, baseTime), policy)
	if len(hits) != 0 {
		t.Fatalf("stale edges counted toward fan-out: %+v", hits)
	}
}

func TestTenantIsolation(t *testing.T) {
	a := NewAnalyzer()
	policy := domain.DefaultPolicy("tenant-002")

	for i := 0; i < 10; i++ {
		a.Record(graphTx("tenant-001", "hub", fmt.Sprintf("recv-%d", i), 100, baseTime.Add(-time.Hour)))
	}

	// Same sender id under another tenant sees an empty index.
	hits := a.Check(graphTx("tenant-002", "hub", "recv-new", 100, baseTime), policy)
	if len(hits) != 0 {
		t.Fatalf("edges leaked across tenants: %+v", hits)
	}
}

func TestBuildGraphAggregation(t *testing.T) {
	a := NewAnalyzer()

	a.Record(graphTx("tenant-001", "cust-a", "cust-b", 100, baseTime.Add(-2*time.Hour)))
	a.Record(graphTx("tenant-001", "cust-a", "cust-b", 200, baseTime.Add(-time.Hour)))
	a.Record(graphTx("tenant-001", "cust-c", "cust-a", 50, baseTime.Add(-time.Hour)))

	view := a.BuildGraph("tenant-001", "cust-a", 24*time.Hour, baseTime)
	if view.Center != "cust-a" {
		t.Errorf("Center = %q", view.Center)
	}
	if len(view.Nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(view.Nodes))
	}
	if len(view.Edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(view.Edges))
	}

	// Edges sorted by (from, to): a->b then c->a.
	ab := view.Edges[0]
	if ab.From != "cust-a" || ab.To != "cust-b" {
		t.Fatalf("edge[0] = %s->%s, want cust-a->cust-b", ab.From, ab.To)
	}
	if ab.Count != 2 || !ab.TotalAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("a->b aggregate = count %d total %s, want 2/300", ab.Count, ab.TotalAmount)
	}
	if !ab.FirstSeen.Equal(baseTime.Add(-2*time.Hour)) || !ab.LastSeen.Equal(baseTime.Add(-time.Hour)) {
		t.Errorf("a->b seen range = %s..%s", ab.FirstSeen, ab.LastSeen)
	}

	ca := view.Edges[1]
	if ca.From != "cust-c" || ca.To != "cust-a" || ca.Count != 1 {
		t.Errorf("edge[1] = %+v, want single cust-c->cust-a", ca)
	}
}

func TestSummaryTopN(t *testing.T) {
	a := NewAnalyzer()

	for i := 0; i < 6; i++ {
		a.Record(graphTx("tenant-001", "big-hub", fmt.Sprintf("r-%d", i), 10, baseTime.Add(-time.Hour)))
	}
	for i := 0; i < 2; i++ {
		a.Record(graphTx("tenant-001", "small-hub", fmt.Sprintf("s-%d", i), 10, baseTime.Add(-time.Hour)))
	}

	summaries := a.Summary("tenant-001", 24*time.Hour, 1, baseTime)
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want topN=1", len(summaries))
	}
	top := summaries[0]
	if top.Actor != "big-hub" || top.Direction != domain.FanOut {
		t.Errorf("top = %+v, want big-hub fan_out", top)
	}
	if top.UniqueCounterparties != 6 || top.Transactions != 6 {
		t.Errorf("top counts = %d unique / %d txs, want 6/6", top.UniqueCounterparties, top.Transactions)
	}
}

func TestParseWindow(t *testing.T) {
	cases := []struct {
		name string
		want time.Duration
		ok   bool
	}{
		{"1h", time.Hour, true},
		{"24h", 24 * time.Hour, true},
		{"", 24 * time.Hour, true},
		{"7d", 7 * 24 * time.Hour, true},
		{"30d", 30 * 24 * time.Hour, true},
		{"90d", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseWindow(tc.name)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseWindow(%q) = %v, %v; want %v, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
