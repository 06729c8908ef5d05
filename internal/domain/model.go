package domain

import (
	"context"
	"errors"
)

// ErrModelUnavailable signals that no model is loaded or the model backend
// cannot serve a score. Callers degrade to rule-only scoring.
var ErrModelUnavailable = errors.New("score model unavailable")

// Maximum points the model contribution scales into.
const ModelMaxPoints = 40

// ModelScore is a probability-derived contribution with its explanation.
type ModelScore struct {
	// Probability is the raw model output in [0, 1].
	Probability float64 `json:"probability"`

	// Explanation is the model's human-readable feature summary.
	Explanation string `json:"explanation"`
}

// ScoreModel is the boundary to an externally trained model. Training,
// feature engineering and serialization live outside the scoring core.
type ScoreModel interface {
	// Score returns a probability for one (transaction, profile) pair, or
	// ErrModelUnavailable when no model can serve the request.
	Score(ctx context.Context, tx *Transaction, profile *CustomerProfile) (*ModelScore, error)
}
