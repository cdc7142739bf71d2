package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testAlert(id string) *domain.FraudAlert {
	return &domain.FraudAlert{
		ID:              id,
		Origin:          "ES9121000418450200051332",
		Destination:     "DE89370400440532013000",
		Amount:          2500.00,
		TransactionDate: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Reason:          "Suspicious transaction detected: high money amount transferred.",
		Status:          domain.AlertPending,
	}
}

func TestSQLiteAlerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		created, err := repo.CreateAlert(ctx, testAlert("alert-001"))
		if err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}
		if created.ID != "alert-001" {
			t.Errorf("expected ID alert-001, got %s", created.ID)
		}
		if created.Status != domain.AlertPending {
			t.Errorf("expected status PENDING, got %s", created.Status)
		}

		retrieved, err := repo.GetAlert(ctx, "alert-001")
		if err != nil {
			t.Fatalf("GetAlert failed: %v", err)
		}
		if retrieved.Amount != 2500.00 {
			t.Errorf("expected Amount 2500.00, got %.2f", retrieved.Amount)
		}
		if !retrieved.TransactionDate.Equal(time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)) {
			t.Errorf("transaction date mismatch: %v", retrieved.TransactionDate)
		}
	})

	t.Run("NaturalKeyConflictReturnsExisting", func(t *testing.T) {
		// Same origin/destination/amount/date as alert-001, new ID.
		dup := testAlert("alert-dup")
		got, err := repo.CreateAlert(ctx, dup)
		if err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}
		if got.ID != "alert-001" {
			t.Errorf("expected existing alert-001, got %s", got.ID)
		}
	})

	t.Run("CreateRequiresID", func(t *testing.T) {
		if _, err := repo.CreateAlert(ctx, &domain.FraudAlert{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ListByOriginNewestFirst", func(t *testing.T) {
		second := testAlert("alert-002")
		second.Amount = 3100.00
		if _, err := repo.CreateAlert(ctx, second); err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}

		alerts, err := repo.ListAlertsByOrigin(ctx, "ES9121000418450200051332")
		if err != nil {
			t.Fatalf("ListAlertsByOrigin failed: %v", err)
		}
		if len(alerts) != 2 {
			t.Fatalf("expected 2 alerts, got %d", len(alerts))
		}

		other, err := repo.ListAlertsByOrigin(ctx, "FR1420041010050500013M02606")
		if err != nil {
			t.Fatalf("ListAlertsByOrigin failed: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("expected no alerts for unknown origin, got %d", len(other))
		}
	})

	t.Run("UpdateStatusAndReason", func(t *testing.T) {
		status := domain.AlertConfirmed
		reason := "Manually confirmed after review."
		updated, err := repo.UpdateAlert(ctx, "alert-001", domain.AlertUpdate{
			Status: &status,
			Reason: &reason,
		})
		if err != nil {
			t.Fatalf("UpdateAlert failed: %v", err)
		}
		if updated.Status != domain.AlertConfirmed {
			t.Errorf("expected status CONFIRMED, got %s", updated.Status)
		}
		if updated.Reason != reason {
			t.Errorf("expected updated reason, got %q", updated.Reason)
		}
	})

	t.Run("PartialUpdateKeepsOtherFields", func(t *testing.T) {
		status := domain.AlertReviewed
		updated, err := repo.UpdateAlert(ctx, "alert-001", domain.AlertUpdate{Status: &status})
		if err != nil {
			t.Fatalf("UpdateAlert failed: %v", err)
		}
		if updated.Reason != "Manually confirmed after review." {
			t.Errorf("reason should be untouched, got %q", updated.Reason)
		}
	})

	t.Run("UpdateUnknownIsNotFound", func(t *testing.T) {
		status := domain.AlertReviewed
		if _, err := repo.UpdateAlert(ctx, "nope", domain.AlertUpdate{Status: &status}); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteAlert(ctx, "alert-002"); err != nil {
			t.Fatalf("DeleteAlert failed: %v", err)
		}
		if _, err := repo.GetAlert(ctx, "alert-002"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteAlert(ctx, "alert-002"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestSQLiteAccountViews(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("UnknownIsNotFound", func(t *testing.T) {
		if _, err := repo.FindAccountView(ctx, "ES9121000418450200051332"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("BulkUpsertInsertsAndRefreshes", func(t *testing.T) {
		err := repo.BulkUpsertAccountViews(ctx, []domain.AccountView{
			{IBAN: "ES9121000418450200051332", Status: "active"},
			{IBAN: "DE89370400440532013000", Status: "active"},
		})
		if err != nil {
			t.Fatalf("BulkUpsertAccountViews failed: %v", err)
		}

		view, err := repo.FindAccountView(ctx, "ES9121000418450200051332")
		if err != nil {
			t.Fatalf("FindAccountView failed: %v", err)
		}
		if view.Status != "active" {
			t.Errorf("expected status active, got %s", view.Status)
		}
		if view.RefreshedAt.IsZero() {
			t.Error("refreshed_at should be stamped on insert")
		}

		// Re-sync flips the status in place.
		err = repo.BulkUpsertAccountViews(ctx, []domain.AccountView{
			{IBAN: "ES9121000418450200051332", Status: "blocked"},
		})
		if err != nil {
			t.Fatalf("BulkUpsertAccountViews failed: %v", err)
		}

		view, err = repo.FindAccountView(ctx, "ES9121000418450200051332")
		if err != nil {
			t.Fatalf("FindAccountView failed: %v", err)
		}
		if view.Status != "blocked" {
			t.Errorf("expected status blocked after resync, got %s", view.Status)
		}

		// The untouched row survives.
		if _, err := repo.FindAccountView(ctx, "DE89370400440532013000"); err != nil {
			t.Errorf("second account should still exist: %v", err)
		}
	})

	t.Run("EmptyUpsertIsNoop", func(t *testing.T) {
		if err := repo.BulkUpsertAccountViews(ctx, nil); err != nil {
			t.Errorf("empty upsert should succeed: %v", err)
		}
	})
}

func TestSQLiteHistoryBackups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	iban := "ES9121000418450200051332"

	t.Run("MissingIsNotFound", func(t *testing.T) {
		if _, err := repo.GetHistoryBackup(ctx, iban); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		backup := &domain.HistoryBackup{
			IBAN: iban,
			Entries: []domain.HistoryEntry{
				{ID: "tx-1", Currency: "EUR", Date: "2026-01-10T09:00:00Z", Quantity: 1500},
				{ID: "tx-2", Currency: "EUR", Date: "2026-01-12T11:00:00Z", Quantity: 80},
			},
			FetchedAt: time.Now().UTC(),
		}
		if err := repo.SaveHistoryBackup(ctx, backup); err != nil {
			t.Fatalf("SaveHistoryBackup failed: %v", err)
		}

		got, err := repo.GetHistoryBackup(ctx, iban)
		if err != nil {
			t.Fatalf("GetHistoryBackup failed: %v", err)
		}
		if len(got.Entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(got.Entries))
		}
		if got.Entries[0].Quantity != 1500 {
			t.Errorf("expected quantity 1500, got %v", got.Entries[0].Quantity)
		}
	})

	t.Run("SaveReplacesPrevious", func(t *testing.T) {
		backup := &domain.HistoryBackup{
			IBAN:      iban,
			Entries:   []domain.HistoryEntry{{ID: "tx-3", Currency: "EUR", Quantity: 42}},
			FetchedAt: time.Now().UTC(),
		}
		if err := repo.SaveHistoryBackup(ctx, backup); err != nil {
			t.Fatalf("SaveHistoryBackup failed: %v", err)
		}

		got, err := repo.GetHistoryBackup(ctx, iban)
		if err != nil {
			t.Fatalf("GetHistoryBackup failed: %v", err)
		}
		if len(got.Entries) != 1 || got.Entries[0].ID != "tx-3" {
			t.Errorf("expected the replacement snapshot, got %+v", got.Entries)
		}
	})

	t.Run("SaveRequiresIBAN", func(t *testing.T) {
		if err := repo.SaveHistoryBackup(ctx, &domain.HistoryBackup{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
