// Package domain defines the core types and interfaces for Kite.
package domain

import (
	"context"
	"time"
)

// Repository defines the persistence boundary. All methods take a tenantID
// for strict multi-tenancy isolation. The scoring core only reads rule,
// group and watchlist definitions; it never writes them.
type Repository interface {
	// Transactions
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID, txID string) (*Transaction, error)

	// CountRecentTransactions returns the sender's transaction count since
	// the given instant, backing the VELOCITY_24H detector.
	CountRecentTransactions(ctx context.Context, tenantID, customerID string, since time.Time) (int64, error)

	// Rules
	SaveRule(ctx context.Context, tenantID string, rule *RiskRule) error
	GetRule(ctx context.Context, tenantID, ruleID string) (*RiskRule, error)
	ListRules(ctx context.Context, tenantID string) ([]*RiskRule, error)

	// Rule groups
	SaveRuleGroup(ctx context.Context, tenantID string, group *RuleGroup) error
	GetRuleGroup(ctx context.Context, tenantID, groupID string) (*RuleGroup, error)
	ListRuleGroups(ctx context.Context, tenantID string) ([]*RuleGroup, error)

	// Watchlists
	SaveWatchlist(ctx context.Context, tenantID string, list *Watchlist) error
	GetWatchlist(ctx context.Context, tenantID, listID string) (*Watchlist, error)
	ListWatchlists(ctx context.Context, tenantID string) ([]*Watchlist, error)

	// Customer profiles
	GetProfile(ctx context.Context, tenantID, customerID string) (*CustomerProfile, error)
	SaveProfile(ctx context.Context, tenantID string, profile *CustomerProfile) error

	// Analyses (append-only: re-scoring inserts a fresh row)
	SaveAnalysis(ctx context.Context, tenantID string, analysis *RiskAnalysis) error
	GetAnalysis(ctx context.Context, tenantID, analysisID string) (*RiskAnalysis, error)
	GetAnalysisByTransaction(ctx context.Context, tenantID, txID string) (*RiskAnalysis, error)
	UpdateAnalysisReview(ctx context.Context, tenantID string, analysis *RiskAnalysis) error

	// Tenant policy
	GetPolicy(ctx context.Context, tenantID string) (*TenantPolicy, error)
	SavePolicy(ctx context.Context, tenantID string, policy *TenantPolicy) error

	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
