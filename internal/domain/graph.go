package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RelationshipDirection distinguishes fan-out from fan-in detections.
type RelationshipDirection string

const (
	FanOut RelationshipDirection = "FAN_OUT"
	FanIn  RelationshipDirection = "FAN_IN"
)

// RelationshipHit is a fan-out/fan-in detection. It is not persisted as its
// own entity; the aggregator surfaces it as a RiskFactor.
type RelationshipHit struct {
	Direction            RelationshipDirection `json:"direction"`
	Actor                string                `json:"actor"`
	UniqueCounterparties int                   `json:"uniqueCounterparties"`
	TotalAmount          decimal.Decimal       `json:"totalAmount"`
	WindowStart          time.Time             `json:"windowStart"`
	WindowEnd            time.Time             `json:"windowEnd"`
	ScoreDelta           int                   `json:"scoreDelta"`
}

// GraphNode is one counterparty in an on-demand graph view.
type GraphNode struct {
	ID string `json:"id"`
}

// GraphEdge aggregates all transactions between one ordered pair of parties.
type GraphEdge struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	FirstSeen   time.Time       `json:"firstSeen"`
	LastSeen    time.Time       `json:"lastSeen"`
}

// GraphView is the on-demand relationship graph around one customer.
type GraphView struct {
	Center string      `json:"center"`
	Window string      `json:"window"`
	Nodes  []GraphNode `json:"nodes"`
	Edges  []GraphEdge `json:"edges"`
}

// ActorSummary is one row of a tenant-wide top-N relationship summary.
type ActorSummary struct {
	Actor                string                `json:"actor"`
	Direction            RelationshipDirection `json:"direction"`
	UniqueCounterparties int                   `json:"uniqueCounterparties"`
	Transactions         int                   `json:"transactions"`
	TotalAmount          decimal.Decimal       `json:"totalAmount"`
}
