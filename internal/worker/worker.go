// Package worker provides async transaction scoring from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/openrisk-labs/kite/internal/domain"
	"github.com/openrisk-labs/kite/internal/scoring"
)

// Worker consumes ingested transactions from the event bus and scores them
// through the same pipeline the synchronous API uses. Decisions and alerts
// are published by the scoring service itself.
type Worker struct {
	bus    domain.EventBus
	scorer *scoring.Service

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription).
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, scorer *scoring.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		scorer: scorer,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested,
	)

	return nil
}

// handleMessage scores one ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse ingested transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if tx.TenantID == "" {
		tx.TenantID = msg.TenantID
	}

	analysis, err := w.scorer.ScoreTransaction(ctx, &tx)
	if err != nil {
		slog.Error("async scoring failed",
			"tenant_id", tx.TenantID,
			"tx_id", tx.ID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Info("async transaction scored",
		"tenant_id", tx.TenantID,
		"tx_id", tx.ID,
		"score", analysis.Score,
		"status", analysis.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop cancels all subscriptions.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.cancel()
	slog.Info("workers stopped")
}
