package rules

import (
	"testing"

	"github.com/openrisk-labs/kite/internal/domain"
)

func scriptRule(id, script string) *domain.RiskRule {
	return &domain.RiskRule{
		ID:       id,
		TenantID: "tenant-001",
		Name:     id,
		Kind:     domain.RuleKindScript,
		Script:   script,
		Weight:   20,
		Mode:     domain.ModeActive,
	}
}

func TestScriptEvaluate(t *testing.T) {
	engine, err := NewScriptEngine()
	if err != nil {
		t.Fatalf("NewScriptEngine: %v", err)
	}
	snap := testSnapshot() // Amount 5000, US->NG, 12 prior transactions

	cases := []struct {
		name   string
		script string
		want   bool
	}{
		{"amount threshold", "amount >= 5000.0", true},
		{"amount miss", "amount > 5000.0", false},
		{"corridor and history", `source_country == "US" && destination_country == "NG" && total_transactions < 20`, true},
		{"profile aggregates", "avg_transaction > 0.0 && flagged_count >= 2", true},
		{"party check", `sender_id == "cust-a" || receiver_id == "nobody"`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Evaluate(scriptRule("r-"+tc.name, tc.script), snap)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScriptValidate(t *testing.T) {
	engine, err := NewScriptEngine()
	if err != nil {
		t.Fatalf("NewScriptEngine: %v", err)
	}

	if err := engine.Validate("amount > 100.0"); err != nil {
		t.Errorf("valid script rejected: %v", err)
	}
	if err := engine.Validate("amount >"); err == nil {
		t.Error("syntax error accepted")
	}
	if err := engine.Validate("no_such_var > 1"); err == nil {
		t.Error("unknown variable accepted")
	}
	// Scripts must produce a boolean, not a value.
	if err := engine.Validate("amount + 1.0"); err == nil {
		t.Error("non-bool script accepted")
	}
}

func TestScriptCacheRecompilesOnEdit(t *testing.T) {
	engine, err := NewScriptEngine()
	if err != nil {
		t.Fatalf("NewScriptEngine: %v", err)
	}
	snap := testSnapshot()

	rule := scriptRule("r-edit", "amount > 10000.0")
	got, err := engine.Evaluate(rule, snap)
	if err != nil || got {
		t.Fatalf("first evaluation: got %v err %v, want false", got, err)
	}

	// Same rule id, new script text: the cache key includes the text, so the
	// edited version takes effect immediately.
	rule.Script = "amount > 1000.0"
	got, err = engine.Evaluate(rule, snap)
	if err != nil || !got {
		t.Fatalf("edited script: got %v err %v, want true", got, err)
	}

	engine.Invalidate()
	got, err = engine.Evaluate(rule, snap)
	if err != nil || !got {
		t.Fatalf("after invalidate: got %v err %v, want true", got, err)
	}
}
