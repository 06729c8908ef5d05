package scoring

import (
	"encoding/json"

	"github.com/openrisk-labs/kite/internal/domain"
)

// DecisionEvent is the payload published on the decision and alert topics.
type DecisionEvent struct {
	TenantID   string              `json:"tenantId"`
	TxID       string              `json:"txId"`
	AnalysisID string              `json:"analysisId"`
	SenderID   string              `json:"senderId"`
	ReceiverID string              `json:"receiverId"`
	Amount     string              `json:"amount"`
	Score      int                 `json:"score"`
	Level      domain.RiskLevel    `json:"level"`
	Status     domain.ReviewStatus `json:"status"`
}

func decisionPayload(tx *domain.Transaction, analysis *domain.RiskAnalysis) ([]byte, error) {
	return json.Marshal(DecisionEvent{
		TenantID:   tx.TenantID,
		TxID:       tx.ID,
		AnalysisID: analysis.ID,
		SenderID:   tx.SenderID,
		ReceiverID: tx.ReceiverID,
		Amount:     tx.Amount.String(),
		Score:      analysis.Score,
		Level:      analysis.Level,
		Status:     analysis.Status,
	})
}
