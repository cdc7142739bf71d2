// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence: fraud alerts, the
// materialized account view, and durable history backups.
//
// The account view is exposed as an explicit find/bulk-upsert pair so the
// full-resync-on-miss strategy can be swapped for an incremental one without
// touching the risk evaluator.
type Repository interface {
	// Alert operations. CreateAlert inserts a PENDING alert; a conflict on
	// the natural key (origin, destination, amount, transaction date) is not
	// a failure - the already existing alert is returned instead, so retried
	// identical requests do not produce duplicate alerts.
	CreateAlert(ctx context.Context, alert *FraudAlert) (*FraudAlert, error)
	GetAlert(ctx context.Context, id string) (*FraudAlert, error)
	ListAlertsByOrigin(ctx context.Context, origin string) ([]*FraudAlert, error)
	UpdateAlert(ctx context.Context, id string, upd AlertUpdate) (*FraudAlert, error)
	DeleteAlert(ctx context.Context, id string) error

	// Account view operations.
	FindAccountView(ctx context.Context, iban string) (*AccountView, error)
	BulkUpsertAccountViews(ctx context.Context, views []AccountView) error

	// History backup operations.
	SaveHistoryBackup(ctx context.Context, backup *HistoryBackup) error
	GetHistoryBackup(ctx context.Context, iban string) (*HistoryBackup, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
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
