package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    recipient TEXT NOT NULL,
    amount REAL NOT NULL,
    purpose TEXT,
    status TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions(recipient);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaPatterns = `
CREATE TABLE IF NOT EXISTS patterns (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    recipient TEXT NOT NULL,
    description TEXT,
    detected_at TIMESTAMP NOT NULL,
    occurrences TEXT NOT NULL,
    threat_level TEXT NOT NULL,
    estimated_impact REAL NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    confidence REAL NOT NULL DEFAULT 0.5
);

CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(type);
CREATE INDEX IF NOT EXISTS idx_patterns_recipient ON patterns(recipient);
CREATE INDEX IF NOT EXISTS idx_patterns_active ON patterns(active);
`

const schemaRiskSignals = `
CREATE TABLE IF NOT EXISTS risk_signals (
    id TEXT PRIMARY KEY,
    pattern_type TEXT NOT NULL,
    severity REAL NOT NULL,
    description TEXT,
    detected_at TIMESTAMP NOT NULL,
    related_tx_ids TEXT NOT NULL,
    resolved INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_risk_signals_resolved ON risk_signals(resolved);
CREATE INDEX IF NOT EXISTS idx_risk_signals_detected ON risk_signals(detected_at);
`

const schemaAdaptationEvents = `
CREATE TABLE IF NOT EXISTS adaptation_events (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    pattern_type TEXT NOT NULL,
    direction TEXT NOT NULL,
    reason TEXT,
    outcome TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adaptation_events_timestamp ON adaptation_events(timestamp);
`

// memory_state is a single-row table holding the persisted resilience
// score. The fixed id enforces the single row.
const schemaMemoryState = `
CREATE TABLE IF NOT EXISTS memory_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    score REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    message TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_enabled ON policies(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaPatterns,
		schemaRiskSignals,
		schemaAdaptationEvents,
		schemaMemoryState,
		schemaPolicies,
	}
}
