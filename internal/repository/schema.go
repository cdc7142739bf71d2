package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT PRIMARY KEY,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    amount REAL NOT NULL,
    transaction_date TIMESTAMP NOT NULL,
    reason TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_origin ON fraud_alerts(origin);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_status ON fraud_alerts(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fraud_alerts_natural
    ON fraud_alerts(origin, destination, amount, transaction_date);
`

const schemaAccountViews = `
CREATE TABLE IF NOT EXISTS account_views (
    iban TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT '',
    refreshed_at TIMESTAMP NOT NULL
);
`

const schemaHistoryBackups = `
CREATE TABLE IF NOT EXISTS history_backups (
    iban TEXT PRIMARY KEY,
    entries TEXT NOT NULL,
    fetched_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaFraudAlerts,
		schemaAccountViews,
		schemaHistoryBackups,
	}
}
