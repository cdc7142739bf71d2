// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// ErrNotFound aliases the domain sentinel so callers can match it
	// without importing this package.
	ErrNotFound     = domain.ErrNotFound
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

// CreateAlert inserts a new alert. The natural key (origin, destination,
// amount, transaction date) is advisory-unique: on conflict the insert is a
// no-op and the existing alert is returned, so a retried identical request
// does not open a second audit record.
func (r *SQLRepository) CreateAlert(ctx context.Context, alert *domain.FraudAlert) (*domain.FraudAlert, error) {
	if alert == nil || alert.ID == "" {
		return nil, fmt.Errorf("%w: alert with id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO fraud_alerts (
			id, origin, destination, amount, transaction_date,
			reason, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(origin, destination, amount, transaction_date) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.Origin, alert.Destination,
		alert.Amount, alert.TransactionDate.UTC(),
		alert.Reason, string(alert.Status),
		now, now,
	)
	if err != nil {
		return nil, err
	}

	return r.getAlertByNaturalKey(ctx, alert)
}

func (r *SQLRepository) getAlertByNaturalKey(ctx context.Context, alert *domain.FraudAlert) (*domain.FraudAlert, error) {
	query := `
		SELECT id, origin, destination, amount, transaction_date,
		       reason, status, created_at, updated_at
		FROM fraud_alerts
		WHERE origin = ? AND destination = ? AND amount = ? AND transaction_date = ?
	`
	row := r.db.QueryRowContext(ctx, r.rebind(query),
		alert.Origin, alert.Destination, alert.Amount, alert.TransactionDate.UTC())
	return scanAlert(row)
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, id string) (*domain.FraudAlert, error) {
	query := `
		SELECT id, origin, destination, amount, transaction_date,
		       reason, status, created_at, updated_at
		FROM fraud_alerts
		WHERE id = ?
	`
	return scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), id))
}

// ListAlertsByOrigin retrieves all alerts registered for an origin account,
// newest first.
func (r *SQLRepository) ListAlertsByOrigin(ctx context.Context, origin string) ([]*domain.FraudAlert, error) {
	query := `
		SELECT id, origin, destination, amount, transaction_date,
		       reason, status, created_at, updated_at
		FROM fraud_alerts
		WHERE origin = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), origin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.FraudAlert
	for rows.Next() {
		var a domain.FraudAlert
		var status string
		if err := rows.Scan(
			&a.ID, &a.Origin, &a.Destination, &a.Amount, &a.TransactionDate,
			&a.Reason, &status, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Status = domain.AlertStatus(status)
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// UpdateAlert applies an operator or evaluator update to an alert. Any
// status may follow any other; the only requirement is that the alert
// exists.
func (r *SQLRepository) UpdateAlert(ctx context.Context, id string, upd domain.AlertUpdate) (*domain.FraudAlert, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Reason != nil {
		sets = append(sets, "reason = ?")
		args = append(args, *upd.Reason)
	}
	args = append(args, id)

	query := "UPDATE fraud_alerts SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	result, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	return r.GetAlert(ctx, id)
}

// DeleteAlert removes an alert.
func (r *SQLRepository) DeleteAlert(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM fraud_alerts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindAccountView looks up an account in the materialized view.
func (r *SQLRepository) FindAccountView(ctx context.Context, iban string) (*domain.AccountView, error) {
	query := `SELECT iban, status, refreshed_at FROM account_views WHERE iban = ?`

	var v domain.AccountView
	err := r.db.QueryRowContext(ctx, r.rebind(query), iban).Scan(&v.IBAN, &v.Status, &v.RefreshedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// BulkUpsertAccountViews writes the full upstream account listing into the
// materialized view: existing rows get their status refreshed, unknown
// accounts are inserted. Rows are never deleted here.
func (r *SQLRepository) BulkUpsertAccountViews(ctx context.Context, views []domain.AccountView) error {
	if len(views) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO account_views (iban, status, refreshed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(iban) DO UPDATE SET
			status = excluded.status,
			refreshed_at = excluded.refreshed_at
	`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, v := range views {
		refreshed := v.RefreshedAt
		if refreshed.IsZero() {
			refreshed = now
		}
		if _, err := stmt.ExecContext(ctx, v.IBAN, v.Status, refreshed); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveHistoryBackup stores the durable fallback copy of an account's
// transaction history, replacing any previous copy.
func (r *SQLRepository) SaveHistoryBackup(ctx context.Context, backup *domain.HistoryBackup) error {
	if backup == nil || backup.IBAN == "" {
		return fmt.Errorf("%w: backup with iban is required", ErrInvalidInput)
	}

	entries, err := json.Marshal(backup.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode history entries: %w", err)
	}

	fetched := backup.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now().UTC()
	}

	query := `
		INSERT INTO history_backups (iban, entries, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(iban) DO UPDATE SET
			entries = excluded.entries,
			fetched_at = excluded.fetched_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), backup.IBAN, string(entries), fetched)
	return err
}

// GetHistoryBackup retrieves the fallback history copy for an account.
// Age is not checked here; a stale backup is still better than no history
// when the upstream is down.
func (r *SQLRepository) GetHistoryBackup(ctx context.Context, iban string) (*domain.HistoryBackup, error) {
	query := `SELECT iban, entries, fetched_at FROM history_backups WHERE iban = ?`

	var b domain.HistoryBackup
	var entries string

	err := r.db.QueryRowContext(ctx, r.rebind(query), iban).Scan(&b.IBAN, &entries, &b.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(entries), &b.Entries); err != nil {
		return nil, fmt.Errorf("failed to parse history backup for %s: %w", iban, err)
	}

	return &b, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	var status string

	err := row.Scan(
		&a.ID, &a.Origin, &a.Destination, &a.Amount, &a.TransactionDate,
		&a.Reason, &status, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Status = domain.AlertStatus(status)
	return &a, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
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
