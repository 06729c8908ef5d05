// Package ml wraps the externally trained score model behind a bounded,
// non-fatal adapter.
package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openrisk-labs/kite/internal/domain"
)

// Adapter calls the model with a bounded timeout and scales its probability
// into a fixed point range. Unavailability or timeout degrades to rule-only
// scoring; the adapter never fails a scoring pass.
type Adapter struct {
	model   domain.ScoreModel
	timeout time.Duration
}

// NewAdapter wraps a model. model may be nil when no model is deployed.
func NewAdapter(model domain.ScoreModel, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &Adapter{model: model, timeout: timeout}
}

// Score returns the model's factor, or nil, false when no contribution is
// available. The probability scales into [0, ModelMaxPoints].
func (a *Adapter) Score(ctx context.Context, tx *domain.Transaction, profile *domain.CustomerProfile) (*domain.RiskFactor, bool) {
	if a.model == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.model.Score(ctx, tx, profile)
	if err != nil {
		if !errors.Is(err, domain.ErrModelUnavailable) {
			slog.Warn("model scoring failed, degrading to rule-only",
				"tx_id", tx.ID,
				"error", err,
			)
		}
		return nil, false
	}

	p := result.Probability
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	points := int(p * float64(domain.ModelMaxPoints))

	explanation := result.Explanation
	if explanation == "" {
		explanation = fmt.Sprintf("model probability %.2f", p)
	}

	return &domain.RiskFactor{
		Category:    domain.CategoryModel,
		RuleName:    "ML_MODEL",
		Description: explanation,
		Points:      points,
		Severity:    domain.SeverityForPoints(points),
		Context:     map[string]string{"probability": fmt.Sprintf("%.4f", p)},
	}, true
}
