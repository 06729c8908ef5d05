package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/openrisk-labs/kite/internal/domain"
	"github.com/openrisk-labs/kite/internal/graph"
	"github.com/openrisk-labs/kite/internal/ml"
	"github.com/openrisk-labs/kite/internal/profile"
	"github.com/openrisk-labs/kite/internal/rules"
	"github.com/openrisk-labs/kite/internal/watchlist"
)

const velocityWindowSecs = 24 * 60 * 60

// ConfigSource provides per-tenant scoring configuration. Implementations
// may serve from cache; staleness is bounded by the cache's ConfigTTL.
type ConfigSource interface {
	Rules(ctx context.Context, tenantID string) ([]*domain.RiskRule, error)
	Groups(ctx context.Context, tenantID string) ([]*domain.RuleGroup, error)
	Watchlists(ctx context.Context, tenantID string) ([]*domain.Watchlist, error)
	Policy(ctx context.Context, tenantID string) (*domain.TenantPolicy, error)
}

// Service runs the full scoring pipeline for one transaction: rules, rule
// groups, watchlists, relationship analysis and the optional model, then
// aggregation, persistence and profile update. Scoring for one customer is
// serialized through the profile updater's keyed lock.
type Service struct {
	repo     domain.Repository
	config   ConfigSource
	bus      domain.EventBus
	engine   *rules.Engine
	groups   *rules.GroupEngine
	lists    *watchlist.Matcher
	graph    *graph.Analyzer
	model    *ml.Adapter
	profiles *profile.Updater
	velocity *VelocitySource
	aggr     *Aggregator
	tracer   trace.Tracer
}

// NewService wires the scoring pipeline. bus may be nil for synchronous-only
// deployments; model may be backed by a nil ScoreModel.
func NewService(
	repo domain.Repository,
	config ConfigSource,
	cache domain.Cache,
	bus domain.EventBus,
	scripts *rules.ScriptEngine,
	analyzer *graph.Analyzer,
	model *ml.Adapter,
) *Service {
	velocity := NewVelocitySource(repo, cache)
	getter := func(ctx context.Context, tenantID, customerID string, windowSecs int) (int64, error) {
		return velocity.Count(ctx, tenantID, customerID, int64(windowSecs))
	}
	return &Service{
		repo:     repo,
		config:   config,
		bus:      bus,
		engine:   rules.NewEngine(getter, scripts),
		groups:   rules.NewGroupEngine(),
		lists:    watchlist.NewMatcher(),
		graph:    analyzer,
		model:    model,
		profiles: profile.NewUpdater(repo),
		velocity: velocity,
		aggr:     NewAggregator(),
		tracer:   otel.Tracer("kite/scoring"),
	}
}

// ScoreTransaction validates, scores and persists a transaction, returning
// the completed analysis. A failed profile read escalates instead of scoring
// blind; failed watchlist or graph lookups degrade to the remaining
// detectors and are flagged in the analysis metadata.
func (s *Service) ScoreTransaction(ctx context.Context, tx *domain.Transaction) (*domain.RiskAnalysis, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "scoring.ScoreTransaction")
	defer span.End()

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	policy := s.loadPolicy(ctx, tx.TenantID)

	if err := s.repo.SaveTransaction(ctx, tx.TenantID, tx); err != nil {
		slog.Warn("transaction save failed, scoring continues",
			"tenant_id", tx.TenantID, "tx_id", tx.ID, "error", err)
	}

	var analysis *domain.RiskAnalysis
	err := s.profiles.WithCustomer(ctx, tx.TenantID, tx.SenderID, func(p *domain.CustomerProfile) (*domain.CustomerProfile, error) {
		analysis = s.score(ctx, tx, p, policy, start)
		if err := s.repo.SaveAnalysis(ctx, tx.TenantID, analysis); err != nil {
			slog.Error("analysis save failed",
				"tenant_id", tx.TenantID, "tx_id", tx.ID, "error", err)
		}
		s.graph.Record(tx)
		s.velocity.Observe(ctx, tx, velocityWindowSecs)
		p.Apply(tx, analysis)
		return p, nil
	})
	if errors.Is(err, profile.ErrProfileLoad) {
		analysis = s.escalate(ctx, tx, start, err)
		if serr := s.repo.SaveAnalysis(ctx, tx.TenantID, analysis); serr != nil {
			slog.Error("escalated analysis save failed",
				"tenant_id", tx.TenantID, "tx_id", tx.ID, "error", serr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("score transaction %s: %w", tx.ID, err)
	}

	s.publishDecision(ctx, tx, analysis)

	slog.Info("transaction scored",
		"tenant_id", tx.TenantID,
		"tx_id", tx.ID,
		"score", analysis.Score,
		"level", analysis.Level,
		"status", analysis.Status,
		"factors", len(analysis.Factors),
		"duration_ms", time.Since(start).Milliseconds())
	return analysis, nil
}

// score runs the five detection strategies concurrently over an immutable
// snapshot and aggregates their factors. Called with the customer lock held.
func (s *Service) score(ctx context.Context, tx *domain.Transaction, p *domain.CustomerProfile, policy *domain.TenantPolicy, start time.Time) *domain.RiskAnalysis {
	snap := &rules.Snapshot{Tx: tx, Profile: p}

	ruleSet := s.loadRules(ctx, tx.TenantID)
	groupSet := s.loadGroups(ctx, tx.TenantID)
	listSet, degradedLists := s.loadWatchlists(ctx, tx.TenantID)

	var (
		wg            sync.WaitGroup
		ruleFactors   []domain.RiskFactor
		groupFactors  []domain.RiskFactor
		listFactors   []domain.RiskFactor
		fanFactors    []domain.RiskFactor
		modelFactor   *domain.RiskFactor
		modelOK       bool
		degradedGraph bool
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		ruleFactors = s.engine.Evaluate(ctx, snap, ruleSet, policy)
	}()
	go func() {
		defer wg.Done()
		groupFactors = s.groups.Evaluate(snap, groupSet)
	}()
	go func() {
		defer wg.Done()
		listFactors = s.lists.Match(tx, listSet, time.Now().UTC())
	}()
	go func() {
		defer wg.Done()
		fanFactors, degradedGraph = s.relationshipFactors(tx, policy)
	}()
	go func() {
		defer wg.Done()
		modelFactor, modelOK = s.model.Score(ctx, tx, p)
	}()
	wg.Wait()

	factors := make([]domain.RiskFactor, 0,
		len(ruleFactors)+len(groupFactors)+len(listFactors)+len(fanFactors)+1)
	factors = append(factors, ruleFactors...)
	factors = append(factors, groupFactors...)
	factors = append(factors, listFactors...)
	factors = append(factors, fanFactors...)
	if modelFactor != nil {
		factors = append(factors, *modelFactor)
	}

	return s.aggr.Aggregate(&AggregateInput{
		TenantID:        tx.TenantID,
		TxID:            tx.ID,
		TraceID:         traceID(ctx),
		Factors:         factors,
		Policy:          policy,
		RulesEvaluated:  len(ruleSet),
		GroupsEvaluated: len(groupSet),
		ListsEvaluated:  len(listSet),
		ModelAvailable:  modelOK,
		DegradedLists:   degradedLists,
		DegradedGraph:   degradedGraph,
		StartTime:       start,
	})
}

// relationshipFactors converts fan-out and fan-in hits to risk factors.
func (s *Service) relationshipFactors(tx *domain.Transaction, policy *domain.TenantPolicy) ([]domain.RiskFactor, bool) {
	if s.graph == nil {
		return nil, true
	}
	hits := s.graph.Check(tx, policy)
	factors := make([]domain.RiskFactor, 0, len(hits))
	for _, hit := range hits {
		factors = append(factors, domain.RiskFactor{
			Category: domain.CategoryRelationship,
			RuleName: string(hit.Direction),
			Description: fmt.Sprintf("%s reached %d distinct counterparties (total %s) within the window",
				hit.Actor, hit.UniqueCounterparties, hit.TotalAmount.StringFixed(2)),
			Points:   hit.ScoreDelta,
			Severity: domain.SeverityForPoints(hit.ScoreDelta),
			Context: map[string]string{
				"actor":          hit.Actor,
				"counterparties": fmt.Sprintf("%d", hit.UniqueCounterparties),
			},
		})
	}
	return factors, false
}

// escalate builds the fail-closed analysis used when the customer profile
// cannot be read. No detector output exists; a human has to look.
func (s *Service) escalate(ctx context.Context, tx *domain.Transaction, start time.Time, cause error) *domain.RiskAnalysis {
	slog.Error("profile unavailable, escalating for manual review",
		"tenant_id", tx.TenantID, "tx_id", tx.ID, "error", cause)
	analysis := &domain.RiskAnalysis{
		ID:          uuid.New().String(),
		TenantID:    tx.TenantID,
		TxID:        tx.ID,
		Score:       0,
		Level:       domain.RiskLow,
		Status:      domain.ReviewEscalated,
		Explanation: "customer profile unavailable, escalated for manual review",
		Factors:     []domain.RiskFactor{},
		CreatedAt:   time.Now().UTC(),
		Metadata: domain.AnalysisMetadata{
			TraceID:         traceID(ctx),
			EngineVersion:   EngineVersion,
			DegradedProfile: true,
			TotalMs:         time.Since(start).Milliseconds(),
		},
	}
	return analysis
}

// ReviewAnalysis applies a human review action and folds the outcome into
// the sender's profile counters.
func (s *Service) ReviewAnalysis(ctx context.Context, tenantID, analysisID string, to domain.ReviewStatus, reviewer, note string) (*domain.RiskAnalysis, error) {
	analysis, err := s.repo.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		return nil, err
	}
	if err := analysis.Review(to, reviewer, note, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAnalysisReview(ctx, tenantID, analysis); err != nil {
		return nil, fmt.Errorf("persist review for analysis %s: %w", analysisID, err)
	}

	if to == domain.ReviewRejected {
		if tx, terr := s.repo.GetTransaction(ctx, tenantID, analysis.TxID); terr == nil && tx != nil {
			if perr := s.profiles.RecordReview(ctx, tenantID, tx.SenderID, to); perr != nil {
				slog.Warn("review counter update failed",
					"tenant_id", tenantID, "analysis_id", analysisID, "error", perr)
			}
		}
	}

	slog.Info("analysis reviewed",
		"tenant_id", tenantID, "analysis_id", analysisID,
		"status", analysis.Status, "reviewer", reviewer)
	return analysis, nil
}

func (s *Service) loadPolicy(ctx context.Context, tenantID string) *domain.TenantPolicy {
	policy, err := s.config.Policy(ctx, tenantID)
	if err != nil || policy == nil {
		if err != nil {
			slog.Warn("policy load failed, using defaults", "tenant_id", tenantID, "error", err)
		}
		return domain.DefaultPolicy(tenantID)
	}
	return policy
}

func (s *Service) loadRules(ctx context.Context, tenantID string) []*domain.RiskRule {
	ruleSet, err := s.config.Rules(ctx, tenantID)
	if err != nil {
		slog.Warn("rule load failed, scoring without rules", "tenant_id", tenantID, "error", err)
		return nil
	}
	return ruleSet
}

func (s *Service) loadGroups(ctx context.Context, tenantID string) []*domain.RuleGroup {
	groupSet, err := s.config.Groups(ctx, tenantID)
	if err != nil {
		slog.Warn("rule group load failed, scoring without groups", "tenant_id", tenantID, "error", err)
		return nil
	}
	return groupSet
}

func (s *Service) loadWatchlists(ctx context.Context, tenantID string) ([]*domain.Watchlist, bool) {
	listSet, err := s.config.Watchlists(ctx, tenantID)
	if err != nil {
		slog.Warn("watchlist load failed, scoring without lists", "tenant_id", tenantID, "error", err)
		return nil, true
	}
	return listSet, false
}

// publishDecision emits the decision event and, for high and critical
// levels, an alert. Best effort; scoring already succeeded.
func (s *Service) publishDecision(ctx context.Context, tx *domain.Transaction, analysis *domain.RiskAnalysis) {
	if s.bus == nil {
		return
	}
	payload, err := decisionPayload(tx, analysis)
	if err != nil {
		slog.Warn("decision payload encode failed", "tx_id", tx.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tx.TenantID, domain.TopicDecision, payload); err != nil {
		slog.Warn("decision publish failed", "tx_id", tx.ID, "error", err)
	}
	if analysis.Level == domain.RiskHigh || analysis.Level == domain.RiskCritical {
		if err := s.bus.Publish(ctx, tx.TenantID, domain.TopicAlert, payload); err != nil {
			slog.Warn("alert publish failed", "tx_id", tx.ID, "error", err)
		}
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
