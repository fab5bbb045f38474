package repository

// Schema definitions for the FraudGuard database.
// Compatible with both SQLite and PostgreSQL.

// schemaAnalyses stores one row per evaluated transaction. Transaction
// fields that drive queries (card, risk level, action, timestamp) are
// materialized as columns; the full derived results are kept as JSON.
const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    card_number TEXT NOT NULL,
    merchant TEXT NOT NULL,
    location TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT,
    tx_timestamp TIMESTAMP NOT NULL,
    risk_level TEXT NOT NULL,
    action TEXT NOT NULL,
    final_risk_score REAL NOT NULL,
    transaction_json TEXT NOT NULL,
    rules_json TEXT NOT NULL,
    assessment_json TEXT NOT NULL,
    prediction_json TEXT,
    decision_json TEXT NOT NULL,
    warnings_json TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_transaction ON analyses(transaction_id);
CREATE INDEX IF NOT EXISTS idx_analyses_card ON analyses(card_number, tx_timestamp);
CREATE INDEX IF NOT EXISTS idx_analyses_level ON analyses(risk_level);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    risk_score REAL NOT NULL,
    action_required TEXT NOT NULL,
    reason TEXT NOT NULL,
    merchant TEXT NOT NULL,
    amount TEXT NOT NULL,
    location TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN'
);

CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAnalyses,
		schemaAlerts,
	}
}
