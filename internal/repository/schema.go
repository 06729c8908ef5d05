package repository

// Schema definitions for the Kite database.
// Compatible with both SQLite and PostgreSQL. Monetary values are stored as
// TEXT decimal strings; REAL would lose precision on large amounts.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    source_currency TEXT NOT NULL,
    destination_currency TEXT,
    source_country TEXT,
    destination_country TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    raw_payload_ref TEXT,
    metadata TEXT,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(tenant_id, sender_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(tenant_id, receiver_id);
`

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    kind TEXT NOT NULL,
    code TEXT,
    field TEXT,
    operator TEXT,
    value TEXT,
    script TEXT,
    weight INTEGER NOT NULL DEFAULT 0,
    mode TEXT NOT NULL DEFAULT 'active',
    position INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_tenant ON risk_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_risk_rules_mode ON risk_rules(tenant_id, mode);
`

const schemaRuleGroups = `
CREATE TABLE IF NOT EXISTS rule_groups (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    operator TEXT NOT NULL,
    conditions TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    mode TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rule_groups_tenant ON rule_groups(tenant_id);
`

const schemaWatchlists = `
CREATE TABLE IF NOT EXISTS watchlists (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    entries TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_watchlists_tenant ON watchlists(tenant_id);
`

const schemaCustomerProfiles = `
CREATE TABLE IF NOT EXISTS customer_profiles (
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    total_transactions INTEGER NOT NULL DEFAULT 0,
    total_volume TEXT NOT NULL DEFAULT '0',
    avg_transaction TEXT NOT NULL DEFAULT '0',
    max_transaction TEXT NOT NULL DEFAULT '0',
    frequent_countries TEXT,
    flagged_count INTEGER NOT NULL DEFAULT 0,
    rejected_count INTEGER NOT NULL DEFAULT 0,
    first_seen TIMESTAMP,
    last_seen TIMESTAMP,
    PRIMARY KEY (tenant_id, customer_id)
);
`

const schemaRiskAnalyses = `
CREATE TABLE IF NOT EXISTS risk_analyses (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    level TEXT NOT NULL,
    status TEXT NOT NULL,
    explanation TEXT,
    factors TEXT NOT NULL,
    reviewed_by TEXT,
    review_note TEXT,
    reviewed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_risk_analyses_tenant ON risk_analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_risk_analyses_tx ON risk_analyses(tenant_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_risk_analyses_status ON risk_analyses(tenant_id, status);
`

const schemaTenantPolicies = `
CREATE TABLE IF NOT EXISTS tenant_policies (
    tenant_id TEXT PRIMARY KEY,
    policy TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRiskRules,
		schemaRuleGroups,
		schemaWatchlists,
		schemaCustomerProfiles,
		schemaRiskAnalyses,
		schemaTenantPolicies,
	}
}
