package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// AlertService is the operator-facing alert surface: list, update,
// delete. Updates are unrestricted across statuses so a misclassified
// alert can always be corrected; the only requirement is that the alert
// exists and the caller's identity matches its origin account.
type AlertService struct {
	repo   domain.Repository
	guard  IdentityGuard
	logger *slog.Logger
}

// NewAlertService creates the alert lifecycle service.
func NewAlertService(repo domain.Repository, guard IdentityGuard, logger *slog.Logger) *AlertService {
	return &AlertService{repo: repo, guard: guard, logger: logger}
}

// ListForAccount returns the alerts whose origin is iban.
func (s *AlertService) ListForAccount(ctx context.Context, iban, token string) ([]*domain.FraudAlert, error) {
	if err := s.guard.Verify(token, iban); err != nil {
		return nil, err
	}
	if !domain.ValidIBAN(iban) {
		return nil, domain.Validationf("invalid IBAN format: %s", iban)
	}

	alerts, err := s.repo.ListAlertsByOrigin(ctx, iban)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for %s: %w", iban, err)
	}
	if len(alerts) == 0 {
		return nil, fmt.Errorf("%w: no alerts found for account %s", domain.ErrNotFound, iban)
	}
	return alerts, nil
}

// Update applies an operator update to an alert.
func (s *AlertService) Update(ctx context.Context, id string, upd domain.AlertUpdate, token string) (*domain.FraudAlert, error) {
	alert, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %s: %w", id, err)
	}
	if err := s.guard.Verify(token, alert.Origin); err != nil {
		return nil, err
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, domain.Validationf("invalid alert status: %s", *upd.Status)
	}

	updated, err := s.repo.UpdateAlert(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	s.logger.Info("alert updated", "alert_id", id)
	return updated, nil
}

// Delete removes an alert.
func (s *AlertService) Delete(ctx context.Context, id, token string) error {
	alert, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load alert %s: %w", id, err)
	}
	if err := s.guard.Verify(token, alert.Origin); err != nil {
		return err
	}
	if err := s.repo.DeleteAlert(ctx, id); err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	s.logger.Info("alert deleted", "alert_id", id)
	return nil
}
