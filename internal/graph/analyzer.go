// Package graph maintains the time-windowed transaction index used for
// fan-out/fan-in detection and on-demand relationship graph views.
package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openrisk-labs/kite/internal/domain"
)

// Fan pattern scoring: a hit starts at the base and grows per counterparty
// over the threshold, capped.
const (
	fanBasePoints = 15
	fanStepPoints = 3
	fanMaxPoints  = 30
)

// retention bounds how long edges stay indexed; it covers the largest
// queryable summary window.
const retention = 30 * 24 * time.Hour

type edge struct {
	counterparty string
	amount       decimal.Decimal
	at           time.Time
}

// tenantIndex is the per-tenant adjacency structure. It is the one piece of
// shared mutable state in the scoring core: reads happen during scoring,
// writes after the aggregator commits, from many customers concurrently.
type tenantIndex struct {
	mu  sync.RWMutex
	out map[string][]edge // sender -> sent edges
	in  map[string][]edge // receiver -> received edges
}

// Analyzer detects fan-out/fan-in patterns and serves graph views. Safe for
// concurrent use across tenants and customers.
type Analyzer struct {
	mu      sync.RWMutex
	tenants map[string]*tenantIndex
}

// NewAnalyzer creates an empty relationship analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{tenants: make(map[string]*tenantIndex)}
}

func (a *Analyzer) tenant(tenantID string) *tenantIndex {
	a.mu.RLock()
	idx, ok := a.tenants[tenantID]
	a.mu.RUnlock()
	if ok {
		return idx
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok = a.tenants[tenantID]; ok {
		return idx
	}
	idx = &tenantIndex{
		out: make(map[string][]edge),
		in:  make(map[string][]edge),
	}
	a.tenants[tenantID] = idx
	return idx
}

// Check runs the fan-out check for the sender and the fan-in check for the
// receiver, counting the current transaction's counterparty alongside the
// indexed window. It reads the index only; Record writes it after the scoring
// pass commits.
func (a *Analyzer) Check(tx *domain.Transaction, policy *domain.TenantPolicy) []domain.RelationshipHit {
	idx := a.tenant(tx.TenantID)
	window := policy.RelationshipWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	since := tx.Timestamp.Add(-window)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var hits []domain.RelationshipHit

	if hit, ok := fanCheck(idx.out[tx.SenderID], tx.ReceiverID, tx.Amount, since, policy.FanOutThreshold); ok {
		hit.Direction = domain.FanOut
		hit.Actor = tx.SenderID
		hit.WindowStart = since
		hit.WindowEnd = tx.Timestamp
		hits = append(hits, hit)
	}

	if hit, ok := fanCheck(idx.in[tx.ReceiverID], tx.SenderID, tx.Amount, since, policy.FanInThreshold); ok {
		hit.Direction = domain.FanIn
		hit.Actor = tx.ReceiverID
		hit.WindowStart = since
		hit.WindowEnd = tx.Timestamp
		hits = append(hits, hit)
	}

	return hits
}

// fanCheck counts distinct counterparties in the window, including the
// current transaction's counterparty.
func fanCheck(edges []edge, current string, amount decimal.Decimal, since time.Time, threshold int) (domain.RelationshipHit, bool) {
	if threshold <= 0 {
		return domain.RelationshipHit{}, false
	}

	distinct := map[string]struct{}{current: {}}
	total := amount
	for _, e := range edges {
		if e.at.Before(since) {
			continue
		}
		distinct[e.counterparty] = struct{}{}
		total = total.Add(e.amount)
	}

	count := len(distinct)
	if count < threshold {
		return domain.RelationshipHit{}, false
	}

	points := fanBasePoints + fanStepPoints*(count-threshold)
	if points > fanMaxPoints {
		points = fanMaxPoints
	}

	return domain.RelationshipHit{
		UniqueCounterparties: count,
		TotalAmount:          total,
		ScoreDelta:           points,
	}, true
}

// Record indexes a scored transaction in both directions and prunes edges
// beyond retention. Callers invoke it after the aggregator commits so the
// transaction is not counted against itself.
func (a *Analyzer) Record(tx *domain.Transaction) {
	idx := a.tenant(tx.TenantID)
	e := edge{amount: tx.Amount, at: tx.Timestamp}
	cutoff := tx.Timestamp.Add(-retention)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := e
	out.counterparty = tx.ReceiverID
	idx.out[tx.SenderID] = appendPruned(idx.out[tx.SenderID], out, cutoff)

	in := e
	in.counterparty = tx.SenderID
	idx.in[tx.ReceiverID] = appendPruned(idx.in[tx.ReceiverID], in, cutoff)
}

func appendPruned(edges []edge, e edge, cutoff time.Time) []edge {
	kept := edges[:0]
	for _, old := range edges {
		if !old.at.Before(cutoff) {
			kept = append(kept, old)
		}
	}
	return append(kept, e)
}

// BuildGraph constructs the on-demand relationship view around one customer:
// nodes are counterparties, edges aggregate transaction pairs with counts,
// amounts and first/last-seen timestamps.
func (a *Analyzer) BuildGraph(tenantID, customerID string, window time.Duration, now time.Time) *domain.GraphView {
	idx := a.tenant(tenantID)
	since := now.Add(-window)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type key struct{ from, to string }
	agg := make(map[key]*domain.GraphEdge)
	nodes := map[string]struct{}{customerID: {}}

	collect := func(edges []edge, from func(e edge) (string, string)) {
		for _, e := range edges {
			if e.at.Before(since) {
				continue
			}
			f, t := from(e)
			nodes[e.counterparty] = struct{}{}
			k := key{f, t}
			ge, ok := agg[k]
			if !ok {
				ge = &domain.GraphEdge{From: f, To: t, FirstSeen: e.at, LastSeen: e.at}
				agg[k] = ge
			}
			ge.Count++
			ge.TotalAmount = ge.TotalAmount.Add(e.amount)
			if e.at.Before(ge.FirstSeen) {
				ge.FirstSeen = e.at
			}
			if e.at.After(ge.LastSeen) {
				ge.LastSeen = e.at
			}
		}
	}

	collect(idx.out[customerID], func(e edge) (string, string) { return customerID, e.counterparty })
	collect(idx.in[customerID], func(e edge) (string, string) { return e.counterparty, customerID })

	view := &domain.GraphView{
		Center: customerID,
		Window: window.String(),
	}
	for id := range nodes {
		view.Nodes = append(view.Nodes, domain.GraphNode{ID: id})
	}
	sort.Slice(view.Nodes, func(i, j int) bool { return view.Nodes[i].ID < view.Nodes[j].ID })
	for _, ge := range agg {
		view.Edges = append(view.Edges, *ge)
	}
	sort.Slice(view.Edges, func(i, j int) bool {
		if view.Edges[i].From != view.Edges[j].From {
			return view.Edges[i].From < view.Edges[j].From
		}
		return view.Edges[i].To < view.Edges[j].To
	})

	return view
}

// Summary returns the tenant-wide top-N actors by distinct counterparties in
// the window, for both directions.
func (a *Analyzer) Summary(tenantID string, window time.Duration, topN int, now time.Time) []domain.ActorSummary {
	idx := a.tenant(tenantID)
	since := now.Add(-window)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	summaries := make([]domain.ActorSummary, 0)
	summaries = append(summaries, summarize(idx.out, domain.FanOut, since)...)
	summaries = append(summaries, summarize(idx.in, domain.FanIn, since)...)

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].UniqueCounterparties != summaries[j].UniqueCounterparties {
			return summaries[i].UniqueCounterparties > summaries[j].UniqueCounterparties
		}
		return summaries[i].Actor < summaries[j].Actor
	})

	if topN > 0 && len(summaries) > topN {
		summaries = summaries[:topN]
	}
	return summaries
}

func summarize(index map[string][]edge, direction domain.RelationshipDirection, since time.Time) []domain.ActorSummary {
	var out []domain.ActorSummary
	for actor, edges := range index {
		distinct := make(map[string]struct{})
		var total decimal.Decimal
		count := 0
		for _, e := range edges {
			if e.at.Before(since) {
				continue
			}
			distinct[e.counterparty] = struct{}{}
			total = total.Add(e.amount)
			count++
		}
		if count == 0 {
			continue
		}
		out = append(out, domain.ActorSummary{
			Actor:                actor,
			Direction:            direction,
			UniqueCounterparties: len(distinct),
			Transactions:         count,
			TotalAmount:          total,
		})
	}
	return out
}

// ParseWindow maps the supported summary window names to durations.
func ParseWindow(name string) (time.Duration, bool) {
	switch name {
	case "1h":
		return time.Hour, true
	case "24h", "":
		return 24 * time.Hour, true
	case "7d":
		return 7 * 24 * time.Hour, true
	case "30d":
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}
