// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openrisk-labs/kite/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, tenant_id, sender_id, receiver_id, amount,
			source_currency, destination_currency, source_country, destination_country,
			timestamp, created_at, raw_payload_ref, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.SenderID, tx.ReceiverID, tx.Amount.String(),
		tx.SourceCurrency, tx.DestinationCurrency, tx.SourceCountry, tx.DestinationCountry,
		tx.Timestamp, tx.CreatedAt, tx.RawPayloadRef, string(metadata),
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, sender_id, receiver_id, amount,
			   source_currency, destination_currency, source_country, destination_country,
			   timestamp, created_at, raw_payload_ref, metadata
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var tx domain.Transaction
	var amount, metadata string
	var rawRef sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&tx.ID, &tx.TenantID, &tx.SenderID, &tx.ReceiverID, &amount,
		&tx.SourceCurrency, &tx.DestinationCurrency, &tx.SourceCountry, &tx.DestinationCountry,
		&tx.Timestamp, &tx.CreatedAt, &rawRef, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: bad stored amount %q: %w", txID, amount, err)
	}
	tx.RawPayloadRef = rawRef.String
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

// CountRecentTransactions counts a sender's transactions since the instant.
func (r *SQLRepository) CountRecentTransactions(ctx context.Context, tenantID, customerID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE tenant_id = ? AND sender_id = ? AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, customerID, since).Scan(&count)
	return count, err
}

// SaveRule upserts a risk rule with tenant isolation.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.RiskRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_rules (
			id, tenant_id, name, description, kind, code, field, operator, value, script,
			weight, mode, position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			kind = excluded.kind,
			code = excluded.code,
			field = excluded.field,
			operator = excluded.operator,
			value = excluded.value,
			script = excluded.script,
			weight = excluded.weight,
			mode = excluded.mode,
			position = excluded.position,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		string(rule.Kind), string(rule.Code), rule.Field, rule.Operator, rule.Value, rule.Script,
		rule.Weight, string(rule.Mode), rule.Position, now, now,
	)
	return err
}

// GetRule retrieves a risk rule with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID, ruleID string) (*domain.RiskRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := ruleSelect + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all rules for a tenant in evaluation order.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string) ([]*domain.RiskRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := ruleSelect + ` WHERE tenant_id = ? ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RiskRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

const ruleSelect = `
	SELECT id, tenant_id, name, description, kind, code, field, operator, value, script,
		   weight, mode, position, created_at, updated_at
	FROM risk_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.RiskRule, error) {
	var rule domain.RiskRule
	var description, code, field, operator, value, script sql.NullString
	var kind, mode string

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description,
		&kind, &code, &field, &operator, &value, &script,
		&rule.Weight, &mode, &rule.Position, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Kind = domain.RuleKind(kind)
	rule.Code = domain.RuleCode(code.String)
	rule.Field = field.String
	rule.Operator = operator.String
	rule.Value = value.String
	rule.Script = script.String
	rule.Mode = domain.RuleMode(mode)
	return &rule, nil
}

// SaveRuleGroup upserts a rule group with tenant isolation.
func (r *SQLRepository) SaveRuleGroup(ctx context.Context, tenantID string, group *domain.RuleGroup) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if err := group.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	conditions, _ := json.Marshal(group.Conditions)
	now := time.Now().UTC()

	query := `
		INSERT INTO rule_groups (
			id, tenant_id, name, description, operator, conditions, points, mode, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			operator = excluded.operator,
			conditions = excluded.conditions,
			points = excluded.points,
			mode = excluded.mode,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		group.ID, tenantID, group.Name, group.Description,
		string(group.Operator), string(conditions), group.Points, string(group.Mode),
		now, now,
	)
	return err
}

// GetRuleGroup retrieves a rule group with tenant isolation.
func (r *SQLRepository) GetRuleGroup(ctx context.Context, tenantID, groupID string) (*domain.RuleGroup, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := groupSelect + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, groupID)
	group, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return group, err
}

// ListRuleGroups retrieves all rule groups for a tenant.
func (r *SQLRepository) ListRuleGroups(ctx context.Context, tenantID string) ([]*domain.RuleGroup, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := groupSelect + ` WHERE tenant_id = ? ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*domain.RuleGroup
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

const groupSelect = `
	SELECT id, tenant_id, name, description, operator, conditions, points, mode, created_at, updated_at
	FROM rule_groups`

func scanGroup(row rowScanner) (*domain.RuleGroup, error) {
	var group domain.RuleGroup
	var description sql.NullString
	var operator, mode, conditions string

	err := row.Scan(
		&group.ID, &group.TenantID, &group.Name, &description,
		&operator, &conditions, &group.Points, &mode,
		&group.CreatedAt, &group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	group.Description = description.String
	group.Operator = domain.LogicalOperator(operator)
	group.Mode = domain.RuleMode(mode)
	if err := json.Unmarshal([]byte(conditions), &group.Conditions); err != nil {
		return nil, fmt.Errorf("rule group %s: bad stored conditions: %w", group.ID, err)
	}
	return &group, nil
}

// SaveWatchlist upserts a watchlist with tenant isolation.
func (r *SQLRepository) SaveWatchlist(ctx context.Context, tenantID string, list *domain.Watchlist) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if err := list.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	entries, _ := json.Marshal(list.Entries)
	enabled := 0
	if list.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO watchlists (
			id, tenant_id, name, type, enabled, entries, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			enabled = excluded.enabled,
			entries = excluded.entries,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		list.ID, tenantID, list.Name, string(list.Type), enabled, string(entries),
		now, now,
	)
	return err
}

// GetWatchlist retrieves a watchlist with tenant isolation.
func (r *SQLRepository) GetWatchlist(ctx context.Context, tenantID, listID string) (*domain.Watchlist, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := listSelect + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, listID)
	list, err := scanWatchlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return list, err
}

// ListWatchlists retrieves all watchlists for a tenant.
func (r *SQLRepository) ListWatchlists(ctx context.Context, tenantID string) ([]*domain.Watchlist, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := listSelect + ` WHERE tenant_id = ? ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*domain.Watchlist
	for rows.Next() {
		list, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

const listSelect = `
	SELECT id, tenant_id, name, type, enabled, entries, created_at, updated_at
	FROM watchlists`

func scanWatchlist(row rowScanner) (*domain.Watchlist, error) {
	var list domain.Watchlist
	var listType, entries string
	var enabled int

	err := row.Scan(
		&list.ID, &list.TenantID, &list.Name, &listType, &enabled, &entries,
		&list.CreatedAt, &list.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	list.Type = domain.ListType(listType)
	list.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(entries), &list.Entries); err != nil {
		return nil, fmt.Errorf("watchlist %s: bad stored entries: %w", list.ID, err)
	}
	return &list, nil
}

// GetProfile retrieves a customer profile; nil, nil for unknown customers.
func (r *SQLRepository) GetProfile(ctx context.Context, tenantID, customerID string) (*domain.CustomerProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, customer_id, total_transactions, total_volume, avg_transaction,
			   max_transaction, frequent_countries, flagged_count, rejected_count,
			   first_seen, last_seen
		FROM customer_profiles
		WHERE tenant_id = ? AND customer_id = ?
	`

	var p domain.CustomerProfile
	var totalVolume, avgTx, maxTx string
	var countries sql.NullString
	var firstSeen, lastSeen sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, customerID).Scan(
		&p.TenantID, &p.CustomerID, &p.TotalTransactions, &totalVolume, &avgTx,
		&maxTx, &countries, &p.FlaggedCount, &p.RejectedCount,
		&firstSeen, &lastSeen,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if p.TotalVolume, err = decimal.NewFromString(totalVolume); err != nil {
		return nil, fmt.Errorf("profile %s: bad stored volume: %w", customerID, err)
	}
	if p.AvgTransaction, err = decimal.NewFromString(avgTx); err != nil {
		return nil, fmt.Errorf("profile %s: bad stored average: %w", customerID, err)
	}
	if p.MaxTransaction, err = decimal.NewFromString(maxTx); err != nil {
		return nil, fmt.Errorf("profile %s: bad stored max: %w", customerID, err)
	}
	if countries.Valid && countries.String != "" {
		json.Unmarshal([]byte(countries.String), &p.FrequentCountries)
	}
	if p.FrequentCountries == nil {
		p.FrequentCountries = make(map[string]int64)
	}
	p.FirstSeen = firstSeen.Time
	p.LastSeen = lastSeen.Time

	return &p, nil
}

// SaveProfile upserts a customer profile.
func (r *SQLRepository) SaveProfile(ctx context.Context, tenantID string, profile *domain.CustomerProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	countries, _ := json.Marshal(profile.FrequentCountries)

	query := `
		INSERT INTO customer_profiles (
			tenant_id, customer_id, total_transactions, total_volume, avg_transaction,
			max_transaction, frequent_countries, flagged_count, rejected_count,
			first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, customer_id) DO UPDATE SET
			total_transactions = excluded.total_transactions,
			total_volume = excluded.total_volume,
			avg_transaction = excluded.avg_transaction,
			max_transaction = excluded.max_transaction,
			frequent_countries = excluded.frequent_countries,
			flagged_count = excluded.flagged_count,
			rejected_count = excluded.rejected_count,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, profile.CustomerID, profile.TotalTransactions,
		profile.TotalVolume.String(), profile.AvgTransaction.String(), profile.MaxTransaction.String(),
		string(countries), profile.FlaggedCount, profile.RejectedCount,
		profile.FirstSeen, profile.LastSeen,
	)
	return err
}

// SaveAnalysis stores a risk analysis. Analyses are append-only.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, analysis *domain.RiskAnalysis) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(analysis.Factors)
	metadata, _ := json.Marshal(analysis.Metadata)

	query := `
		INSERT INTO risk_analyses (
			id, tenant_id, tx_id, score, level, status, explanation, factors,
			reviewed_by, review_note, reviewed_at, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var reviewedAt any
	if analysis.ReviewedAt != nil {
		reviewedAt = *analysis.ReviewedAt
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		analysis.ID, tenantID, analysis.TxID, analysis.Score,
		string(analysis.Level), string(analysis.Status), analysis.Explanation, string(factors),
		analysis.ReviewedBy, analysis.ReviewNote, reviewedAt, analysis.CreatedAt, string(metadata),
	)
	return err
}

// GetAnalysis retrieves a risk analysis by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID, analysisID string) (*domain.RiskAnalysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := analysisSelect + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return analysis, err
}

// GetAnalysisByTransaction retrieves the latest analysis for a transaction.
func (r *SQLRepository) GetAnalysisByTransaction(ctx context.Context, tenantID, txID string) (*domain.RiskAnalysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := analysisSelect + `
		WHERE tenant_id = ? AND tx_id = ?
		ORDER BY created_at DESC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return analysis, err
}

// UpdateAnalysisReview persists the review fields of an analysis.
func (r *SQLRepository) UpdateAnalysisReview(ctx context.Context, tenantID string, analysis *domain.RiskAnalysis) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE risk_analyses
		SET status = ?, reviewed_by = ?, review_note = ?, reviewed_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	var reviewedAt any
	if analysis.ReviewedAt != nil {
		reviewedAt = *analysis.ReviewedAt
	}

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(analysis.Status), analysis.ReviewedBy, analysis.ReviewNote, reviewedAt,
		tenantID, analysis.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const analysisSelect = `
	SELECT id, tenant_id, tx_id, score, level, status, explanation, factors,
		   reviewed_by, review_note, reviewed_at, created_at, metadata
	FROM risk_analyses`

func scanAnalysis(row rowScanner) (*domain.RiskAnalysis, error) {
	var a domain.RiskAnalysis
	var level, status, factors, metadata string
	var explanation, reviewedBy, reviewNote sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.TenantID, &a.TxID, &a.Score, &level, &status, &explanation, &factors,
		&reviewedBy, &reviewNote, &reviewedAt, &a.CreatedAt, &metadata,
	)
	if err != nil {
		return nil, err
	}

	a.Level = domain.RiskLevel(level)
	a.Status = domain.ReviewStatus(status)
	a.Explanation = explanation.String
	a.ReviewedBy = reviewedBy.String
	a.ReviewNote = reviewNote.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}
	if err := json.Unmarshal([]byte(factors), &a.Factors); err != nil {
		return nil, fmt.Errorf("analysis %s: bad stored factors: %w", a.ID, err)
	}
	json.Unmarshal([]byte(metadata), &a.Metadata)

	return &a, nil
}

// GetPolicy retrieves a tenant policy; nil, nil for unconfigured tenants.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string) (*domain.TenantPolicy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT policy FROM tenant_policies WHERE tenant_id = ?`

	var raw string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var policy domain.TenantPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		return nil, fmt.Errorf("policy for tenant %s: %w", tenantID, err)
	}
	return &policy, nil
}

// SavePolicy upserts a tenant policy.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.TenantPolicy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	policy.TenantID = tenantID
	raw, err := json.Marshal(policy)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenant_policies (tenant_id, policy, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			policy = excluded.policy,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), tenantID, string(raw), time.Now().UTC())
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
