package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/openrisk-labs/kite/internal/bus"
	"github.com/openrisk-labs/kite/internal/cache"
	"github.com/openrisk-labs/kite/internal/domain"
	"github.com/openrisk-labs/kite/internal/graph"
	"github.com/openrisk-labs/kite/internal/ml"
	"github.com/openrisk-labs/kite/internal/repository"
	"github.com/openrisk-labs/kite/internal/rules"
	"github.com/openrisk-labs/kite/internal/scoring"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kite-api-test.db"),
	})
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(1000)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	configs := cache.NewConfigCache(repo, lru, 50*time.Millisecond)
	scripts, err := rules.NewScriptEngine()
	if err != nil {
		t.Fatalf("script engine: %v", err)
	}
	analyzer := graph.NewAnalyzer()
	scorer := scoring.NewService(repo, configs, lru, eventBus, scripts, analyzer, ml.NewAdapter(nil, time.Second))

	srv := NewServer(domain.ServerConfig{}, repo, configs, eventBus, scorer, scripts, analyzer, "test")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, tenantID string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func TestHealthEndpointsNeedNoTenant(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health = %d: %s", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, ts, http.MethodGet, "/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/ready = %d", resp.StatusCode)
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, ts, http.MethodGet, "/rules", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing tenant = %d, want 400", resp.StatusCode)
	}
}

func TestScoreEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Seed one builtin rule through the API.
	resp, body := doJSON(t, ts, http.MethodPost, "/rules", "tenant-001", map[string]any{
		"name":   "high amount",
		"kind":   "builtin",
		"code":   "HIGH_AMOUNT",
		"value":  "10000",
		"weight": 25,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save rule = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, http.MethodPost, "/score", "tenant-001", map[string]any{
		"senderId":           "cust-a",
		"receiverId":         "cust-b",
		"amount":             "20000",
		"sourceCurrency":     "USD",
		"sourceCountry":      "US",
		"destinationCountry": "NG",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("score = %d: %s", resp.StatusCode, body)
	}

	var analysis domain.RiskAnalysis
	if err := json.Unmarshal(body, &analysis); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	// 25 (high amount) + 15 (new customer is not seeded, so rules only).
	if analysis.Score != 25 {
		t.Errorf("Score = %d, want 25", analysis.Score)
	}
	if analysis.Status != domain.ReviewPending {
		t.Errorf("Status = %q, want pending", analysis.Status)
	}
	if len(analysis.Factors) != 1 || analysis.Factors[0].RuleName != "HIGH_AMOUNT" {
		t.Errorf("factors = %+v", analysis.Factors)
	}

	// The analysis is retrievable by id and by transaction.
	resp, body = doJSON(t, ts, http.MethodGet, "/analyses/"+analysis.ID, "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get analysis = %d: %s", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, ts, http.MethodGet, "/transactions/"+analysis.TxID+"/analysis", "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get analysis by tx = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, ts, http.MethodGet, "/transactions/"+analysis.TxID, "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get transaction = %d", resp.StatusCode)
	}
}

func TestScoreValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodPost, "/score", "tenant-001", map[string]any{
		"senderId":       "cust-a",
		"receiverId":     "cust-b",
		"amount":         "-5",
		"sourceCurrency": "USD",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative amount = %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/score", "tenant-001", map[string]any{
		"senderId": "cust-a",
		"amount":   "100",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing receiver = %d, want 400", resp.StatusCode)
	}
}

func TestReviewFlow(t *testing.T) {
	ts := newTestServer(t)

	// Score into the pending band with a rule worth 30 points.
	doJSON(t, ts, http.MethodPost, "/rules", "tenant-001", map[string]any{
		"name": "amount", "kind": "expression",
		"field": "Amount", "operator": ">=", "value": "100", "weight": 30,
	})
	resp, body := doJSON(t, ts, http.MethodPost, "/score", "tenant-001", map[string]any{
		"senderId": "cust-a", "receiverId": "cust-b",
		"amount": "500", "sourceCurrency": "USD",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("score = %d: %s", resp.StatusCode, body)
	}
	var analysis domain.RiskAnalysis
	json.Unmarshal(body, &analysis)
	if analysis.Status != domain.ReviewPending {
		t.Fatalf("Status = %q, want pending", analysis.Status)
	}

	// Reviewer is mandatory.
	resp, _ = doJSON(t, ts, http.MethodPost, "/analyses/"+analysis.ID+"/review", "tenant-001", map[string]any{
		"action": "approve",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("review without reviewer = %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, ts, http.MethodPost, "/analyses/"+analysis.ID+"/review", "tenant-001", map[string]any{
		"action": "approve", "reviewer": "analyst-1", "note": "checked",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve = %d: %s", resp.StatusCode, body)
	}
	var reviewed domain.RiskAnalysis
	json.Unmarshal(body, &reviewed)
	if reviewed.Status != domain.ReviewApproved || reviewed.ReviewedBy != "analyst-1" {
		t.Errorf("reviewed = %+v", reviewed)
	}

	// Terminal analyses conflict on further review.
	resp, _ = doJSON(t, ts, http.MethodPost, "/analyses/"+analysis.ID+"/review", "tenant-001", map[string]any{
		"action": "reject", "reviewer": "analyst-2",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("re-review = %d, want 409", resp.StatusCode)
	}

	// Unknown analyses are 404.
	resp, _ = doJSON(t, ts, http.MethodPost, "/analyses/nope/review", "tenant-001", map[string]any{
		"action": "approve", "reviewer": "analyst-1",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown analysis = %d, want 404", resp.StatusCode)
	}
}

func TestRuleManagement(t *testing.T) {
	ts := newTestServer(t)

	// Expression rules validate their field against the catalogue.
	resp, body := doJSON(t, ts, http.MethodPost, "/rules", "tenant-001", map[string]any{
		"name": "bad", "kind": "expression",
		"field": "NoSuchField", "operator": "==", "value": "1", "weight": 10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field = %d: %s", resp.StatusCode, body)
	}

	// Script rules compile before saving.
	resp, _ = doJSON(t, ts, http.MethodPost, "/rules", "tenant-001", map[string]any{
		"name": "bad script", "kind": "script", "script": "amount >", "weight": 10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("broken script = %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, ts, http.MethodPost, "/rules", "tenant-001", map[string]any{
		"name": "corridor", "kind": "script",
		"script": `source_country == "US" && amount > 1000.0`, "weight": 20,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("script rule = %d: %s", resp.StatusCode, body)
	}
	var created domain.RiskRule
	json.Unmarshal(body, &created)
	if created.ID == "" || created.Mode != domain.ModeActive {
		t.Errorf("created = %+v, want generated id and active default", created)
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/rules", "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list rules = %d", resp.StatusCode)
	}
	var listed []domain.RiskRule
	json.Unmarshal(body, &listed)
	if len(listed) != 1 {
		t.Errorf("listed %d rules, want 1", len(listed))
	}

	resp, _ = doJSON(t, ts, http.MethodGet, "/rules/"+created.ID, "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get rule = %d", resp.StatusCode)
	}
	// Another tenant cannot see it.
	resp, _ = doJSON(t, ts, http.MethodGet, "/rules/"+created.ID, "tenant-002", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-tenant rule read = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, http.MethodPost, "/rules/reload", "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload = %d", resp.StatusCode)
	}
}

func TestRuleEditsVisibleToScoring(t *testing.T) {
	ts := newTestServer(t)

	score := func() int {
		resp, body := doJSON(t, ts, http.MethodPost, "/score", "tenant-001", map[string]any{
			"senderId": "cust-a", "receiverId": "cust-b",
			"amount": "5000", "sourceCurrency": "USD",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("score = %d: %s", resp.StatusCode, body)
		}
		var analysis domain.RiskAnalysis
		json.Unmarshal(body, &analysis)
		return analysis.Score
	}

	if got := score(); got != 0 {
		t.Fatalf("score before any rules = %d", got)
	}

	// Saving a rule invalidates the config snapshot, so the next score sees it.
	resp, body := doJSON(t, ts, http.MethodPost, "/rules", "tenant-001", map[string]any{
		"name": "amount", "kind": "expression",
		"field": "Amount", "operator": ">=", "value": "1000", "weight": 40,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save rule = %d: %s", resp.StatusCode, body)
	}
	if got := score(); got != 40 {
		t.Fatalf("score after rule save = %d, want 40", got)
	}
}

func TestGroupAndWatchlistEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodPost, "/groups", "tenant-001", map[string]any{
		"name":     "structuring",
		"operator": "AND",
		"conditions": []map[string]any{
			{"field": "Amount", "operator": ">=", "value": "9000"},
			{"field": "DestinationCountry", "operator": "==", "value": "NG", "position": 1},
		},
		"points": 35,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save group = %d: %s", resp.StatusCode, body)
	}
	var group domain.RuleGroup
	json.Unmarshal(body, &group)

	resp, _ = doJSON(t, ts, http.MethodGet, "/groups/"+group.ID, "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get group = %d", resp.StatusCode)
	}

	// Group conditions validate against the field catalogue too.
	resp, _ = doJSON(t, ts, http.MethodPost, "/groups", "tenant-001", map[string]any{
		"name": "bad", "operator": "AND",
		"conditions": []map[string]any{{"field": "Bogus", "operator": "==", "value": "1"}},
		"points":     10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad group field = %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, ts, http.MethodPost, "/watchlists", "tenant-001", map[string]any{
		"name": "sanctioned", "type": "blocklist", "enabled": true,
		"entries": []map[string]any{
			{"field": "receiver_id", "value": "cust-x", "reason": "ofac"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save watchlist = %d: %s", resp.StatusCode, body)
	}
	var list domain.Watchlist
	json.Unmarshal(body, &list)

	resp, _ = doJSON(t, ts, http.MethodGet, "/watchlists/"+list.ID, "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get watchlist = %d", resp.StatusCode)
	}

	// That blocklist now drives a scoring decision.
	resp, body = doJSON(t, ts, http.MethodPost, "/score", "tenant-001", map[string]any{
		"senderId": "cust-a", "receiverId": "cust-x",
		"amount": "100", "sourceCurrency": "USD",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("score = %d: %s", resp.StatusCode, body)
	}
	var analysis domain.RiskAnalysis
	json.Unmarshal(body, &analysis)
	if analysis.Score != domain.BlocklistDelta || analysis.Level != domain.RiskHigh {
		t.Errorf("blocklisted = %d/%s, want 75/high", analysis.Score, analysis.Level)
	}
}

func TestPolicyEndpoints(t *testing.T) {
	ts := newTestServer(t)

	// Unconfigured tenants read defaults.
	resp, body := doJSON(t, ts, http.MethodGet, "/policy", "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get policy = %d", resp.StatusCode)
	}
	var policy domain.TenantPolicy
	json.Unmarshal(body, &policy)
	if policy.AutoApproveThreshold != 20 || policy.AutoRejectThreshold != 80 {
		t.Errorf("default policy = %+v", policy)
	}

	// Thresholds must leave room for a pending band.
	resp, _ = doJSON(t, ts, http.MethodPut, "/policy", "tenant-001", map[string]any{
		"autoApproveThreshold": 90, "autoRejectThreshold": 50,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("inverted thresholds = %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, ts, http.MethodPut, "/policy", "tenant-001", map[string]any{
		"autoApproveThreshold": 10,
		"autoRejectThreshold":  90,
		"rejectRequiresReview": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save policy = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/policy", "tenant-001", nil)
	json.Unmarshal(body, &policy)
	if policy.AutoApproveThreshold != 10 || policy.AutoRejectThreshold != 90 {
		t.Errorf("stored policy = %+v", policy)
	}
}

func TestGraphEndpoints(t *testing.T) {
	ts := newTestServer(t)

	// Build some fan-out by scoring several transactions from one sender.
	for i := 0; i < 3; i++ {
		resp, body := doJSON(t, ts, http.MethodPost, "/score", "tenant-001", map[string]any{
			"senderId": "hub", "receiverId": fmt.Sprintf("recv-%d", i),
			"amount": "100", "sourceCurrency": "USD",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("score %d = %d: %s", i, resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, ts, http.MethodGet, "/graph/hub?window=24h", "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get graph = %d: %s", resp.StatusCode, body)
	}
	var view domain.GraphView
	json.Unmarshal(body, &view)
	if view.Center != "hub" || len(view.Nodes) != 4 {
		t.Errorf("graph = center %q with %d nodes, want hub with 4", view.Center, len(view.Nodes))
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/graph/summary?window=24h&top=5", "tenant-001", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("graph summary = %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, ts, http.MethodGet, "/graph/hub?window=90d", "tenant-001", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad window = %d, want 400", resp.StatusCode)
	}
}
