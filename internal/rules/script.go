package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/openrisk-labs/kite/internal/domain"
)

// ScriptEngine compiles and evaluates CEL-scripted rules. Programs are
// compiled once and cached; the cache is keyed by rule id and script text so
// edited rules recompile transparently.
type ScriptEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// NewScriptEngine builds the CEL environment over the snapshot field
// catalogue. Scripts must produce a boolean.
func NewScriptEngine() (*ScriptEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("source_country", cel.StringType),
		cel.Variable("destination_country", cel.StringType),
		cel.Variable("source_currency", cel.StringType),
		cel.Variable("destination_currency", cel.StringType),
		cel.Variable("tx_hour", cel.IntType),
		cel.Variable("sender_id", cel.StringType),
		cel.Variable("receiver_id", cel.StringType),
		cel.Variable("total_transactions", cel.IntType),
		cel.Variable("total_volume", cel.DoubleType),
		cel.Variable("avg_transaction", cel.DoubleType),
		cel.Variable("max_transaction", cel.DoubleType),
		cel.Variable("flagged_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ScriptEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate compiles a script without caching it, for pre-save checks.
func (s *ScriptEngine) Validate(script string) error {
	_, err := s.compile(script)
	return err
}

// Evaluate runs the rule's script against the snapshot.
func (s *ScriptEngine) Evaluate(rule *domain.RiskRule, snap *Snapshot) (bool, error) {
	program, err := s.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(activation(snap))
	if err != nil {
		return false, fmt.Errorf("script evaluation failed: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("script returned %T, want bool", out)
	}
	return bool(b), nil
}

// Invalidate drops all cached programs, used on bulk rule reloads.
func (s *ScriptEngine) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = make(map[string]cel.Program)
}

func (s *ScriptEngine) program(rule *domain.RiskRule) (cel.Program, error) {
	key := rule.ID + "\x00" + rule.Script

	s.mu.RLock()
	program, ok := s.programs[key]
	s.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := s.compile(rule.Script)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.programs[key] = program
	s.mu.Unlock()

	return program, nil
}

func (s *ScriptEngine) compile(script string) (cel.Program, error) {
	ast, issues := s.env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile script: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("script must return bool, got %s", ast.OutputType())
	}
	program, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

func activation(snap *Snapshot) map[string]any {
	return map[string]any{
		"amount":               snap.Tx.Amount.InexactFloat64(),
		"source_country":       snap.Tx.SourceCountry,
		"destination_country":  snap.Tx.DestinationCountry,
		"source_currency":      snap.Tx.SourceCurrency,
		"destination_currency": snap.Tx.DestinationCurrency,
		"tx_hour":              snap.Tx.Hour(),
		"sender_id":            snap.Tx.SenderID,
		"receiver_id":          snap.Tx.ReceiverID,
		"total_transactions":   snap.Profile.TotalTransactions,
		"total_volume":         snap.Profile.TotalVolume.InexactFloat64(),
		"avg_transaction":      snap.Profile.AvgTransaction.InexactFloat64(),
		"max_transaction":      snap.Profile.MaxTransaction.InexactFloat64(),
		"flagged_count":        snap.Profile.FlaggedCount,
	}
}
