// Package accountview maintains the local read model of upstream
// accounts and answers existence checks against it.
package accountview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Resolver answers "does this account exist" against the local account
// view table, lazily resyncing the whole table from the accounts service
// on a miss. A failed resync fails open: the account is treated as
// existing so that an accounts-service outage degrades to extra rule
// evaluations instead of blocking every check.
type Resolver struct {
	repo     domain.Repository
	accounts domain.AccountsGateway
	logger   *slog.Logger
}

// NewResolver creates an account existence resolver.
func NewResolver(repo domain.Repository, accounts domain.AccountsGateway, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		accounts: accounts,
		logger:   logger,
	}
}

// Exists reports whether the account is known. A local hit answers
// immediately; a miss triggers a full resync and a re-check. When the
// resync itself fails the answer is true (fail open) so a degraded
// accounts service cannot veto evaluations.
func (r *Resolver) Exists(ctx context.Context, iban, token string) (bool, error) {
	view, err := r.repo.FindAccountView(ctx, iban)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("failed to look up account view: %w", err)
	}
	if view != nil {
		return true, nil
	}

	if err := r.Resync(ctx, token); err != nil {
		r.logger.Warn("account resync failed, assuming account exists",
			"iban", iban,
			"error", err)
		return true, nil
	}

	view, err = r.repo.FindAccountView(ctx, iban)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("failed to re-check account view: %w", err)
	}
	return view != nil, nil
}

// Resync replaces the local account view with the full upstream listing.
func (r *Resolver) Resync(ctx context.Context, token string) error {
	start := time.Now()

	accounts, err := r.accounts.ListAccounts(ctx, token)
	if err != nil {
		metrics.AccountSyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch upstream accounts: %w", err)
	}

	views := make([]domain.AccountView, 0, len(accounts))
	now := time.Now().UTC()
	for _, a := range accounts {
		status := "active"
		if a.IsBlocked {
			status = "blocked"
		}
		views = append(views, domain.AccountView{
			IBAN:        a.IBAN,
			Status:      status,
			RefreshedAt: now,
		})
	}

	if err := r.repo.BulkUpsertAccountViews(ctx, views); err != nil {
		metrics.AccountSyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to store account views: %w", err)
	}

	metrics.AccountSyncs.WithLabelValues("ok").Inc()
	r.logger.Info("account view resynced",
		"accounts", len(views),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
