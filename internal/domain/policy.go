package domain

import "time"

// Corridor is an ordered (source country, destination country) pair.
type Corridor struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// TenantPolicy holds the per-tenant knobs the scoring core reads: review
// thresholds, built-in detector configuration, and relationship windows.
// The threshold-to-status mapping is explicit here, never hardcoded.
type TenantPolicy struct {
	TenantID string `json:"tenantId"`

	// AutoApproveThreshold: score <= threshold is auto-approved.
	AutoApproveThreshold int `json:"autoApproveThreshold"`

	// AutoRejectThreshold: score >= threshold is routed per
	// RejectRequiresReview below.
	AutoRejectThreshold int `json:"autoRejectThreshold"`

	// RejectRequiresReview keeps auto-reject candidates in Pending for human
	// confirmation; when false they escalate immediately.
	RejectRequiresReview bool `json:"rejectRequiresReview"`

	// HighRiskCorridors is the configured corridor set for HIGH_RISK_CORRIDOR.
	HighRiskCorridors []Corridor `json:"highRiskCorridors,omitempty"`

	// Off-hours band for UNUSUAL_TIME, in UTC hours. The band may wrap
	// midnight (e.g. start 22, end 6).
	OffHoursStart int `json:"offHoursStart"`
	OffHoursEnd   int `json:"offHoursEnd"`

	// Round-amount detector configuration.
	RoundAmountUnit  int64 `json:"roundAmountUnit"`
	RoundAmountFloor int64 `json:"roundAmountFloor"`

	// Relationship analysis thresholds and window.
	FanOutThreshold    int           `json:"fanOutThreshold"`
	FanInThreshold     int           `json:"fanInThreshold"`
	RelationshipWindow time.Duration `json:"relationshipWindow"`
}

// DefaultPolicy returns the policy applied to tenants with no stored override.
func DefaultPolicy(tenantID string) *TenantPolicy {
	return &TenantPolicy{
		TenantID:             tenantID,
		AutoApproveThreshold: 20,
		AutoRejectThreshold:  80,
		RejectRequiresReview: true,
		OffHoursStart:        1,
		OffHoursEnd:          5,
		RoundAmountUnit:      1000,
		RoundAmountFloor:     1000,
		FanOutThreshold:      5,
		FanInThreshold:       5,
		RelationshipWindow:   24 * time.Hour,
	}
}

// InOffHours reports whether an UTC hour falls in the configured band,
// handling bands that wrap midnight.
func (p *TenantPolicy) InOffHours(hour int) bool {
	if p.OffHoursStart <= p.OffHoursEnd {
		return hour >= p.OffHoursStart && hour <= p.OffHoursEnd
	}
	return hour >= p.OffHoursStart || hour <= p.OffHoursEnd
}

// IsHighRiskCorridor reports whether the ordered country pair is configured
// as high risk.
func (p *TenantPolicy) IsHighRiskCorridor(source, destination string) bool {
	for _, c := range p.HighRiskCorridors {
		if c.Source == source && c.Destination == destination {
			return true
		}
	}
	return false
}
