// Package evaluator implements the risk evaluation pipeline: identity
// check, existence resolution, rule evaluation over account history, and
// the alert lifecycle around the decision.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// IdentityGuard validates caller identity against a target account.
type IdentityGuard interface {
	Verify(token, targetIBAN string) error
}

// ExistenceResolver answers account existence checks.
type ExistenceResolver interface {
	Exists(ctx context.Context, iban, token string) (bool, error)
}

// HistoryFetcher resolves account transaction history.
type HistoryFetcher interface {
	Fetch(ctx context.Context, iban, token string) ([]domain.HistoryEntry, error)
}

// AccountBlocker blocks an account, best effort.
type AccountBlocker interface {
	Block(ctx context.Context, iban, token string)
}

const (
	reasonSuspicious   = "Suspicious transaction detected: high money amount transferred."
	reasonSafe         = "Risk analysis passed."
	notificationPrefix = "Account blocked: "
)

// Evaluator runs the fraud decision for proposed transfers. Every
// evaluation opens a PENDING alert before any rule runs and closes it to
// REVIEWED or CONFIRMED before returning; the alert trail exists even for
// evaluations that end in an error.
type Evaluator struct {
	guard    IdentityGuard
	resolver ExistenceResolver
	history  HistoryFetcher
	engine   *rules.Engine
	blocker  AccountBlocker
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus

	decisionTTL time.Duration
	logger      *slog.Logger
}

// New creates a risk evaluator.
func New(
	guard IdentityGuard,
	resolver ExistenceResolver,
	history HistoryFetcher,
	engine *rules.Engine,
	blocker AccountBlocker,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	decisionTTL time.Duration,
	logger *slog.Logger,
) *Evaluator {
	if decisionTTL <= 0 {
		decisionTTL = 5 * time.Minute
	}
	return &Evaluator{
		guard:       guard,
		resolver:    resolver,
		history:     history,
		engine:      engine,
		blocker:     blocker,
		repo:        repo,
		cache:       cache,
		bus:         bus,
		decisionTTL: decisionTTL,
		logger:      logger,
	}
}

// Check screens a proposed transfer and reports whether it is fraudulent.
func (e *Evaluator) Check(ctx context.Context, req domain.CheckRequest, token string) (bool, error) {
	if err := e.guard.Verify(token, req.Origin); err != nil {
		return false, err
	}
	if err := validate(req); err != nil {
		return false, err
	}

	e.logger.Info("analyzing transaction",
		"origin", req.Origin,
		"amount", req.Amount)

	exists, err := e.resolver.Exists(ctx, req.Origin, token)
	if err != nil {
		return false, fmt.Errorf("%w: existence check failed: %v", domain.ErrInternal, err)
	}
	if !exists {
		return false, domain.Validationf("origin account %s is not a valid account in our system", req.Origin)
	}

	// Audit trail: the alert exists before any rule runs. A failed insert
	// is logged and the evaluation continues without one.
	alert := e.openAlert(ctx, req)

	fraud, err := e.applyRules(ctx, req, token, alert)
	if err != nil {
		return false, err
	}

	e.memoize(ctx, req, fraud)
	if fraud {
		metrics.Decisions.WithLabelValues("fraud").Inc()
	} else {
		metrics.Decisions.WithLabelValues("clear").Inc()
	}
	return fraud, nil
}

func validate(req domain.CheckRequest) error {
	if !domain.ValidIBAN(req.Origin) {
		return domain.Validationf("invalid IBAN format: %s", req.Origin)
	}
	if !domain.ValidIBAN(req.Destination) {
		return domain.Validationf("invalid IBAN format: %s", req.Destination)
	}
	if req.Amount <= 0 {
		return domain.Validationf("amount must be positive")
	}
	if req.TransactionDate.IsZero() {
		return domain.Validationf("transactionDate is required")
	}
	return nil
}

// applyRules runs the two rules in order and settles the alert.
func (e *Evaluator) applyRules(ctx context.Context, req domain.CheckRequest, token string, alert *domain.FraudAlert) (bool, error) {
	high, err := e.engine.HighAmount(req.Amount)
	if err != nil {
		e.logger.Error("amount rule evaluation failed", "error", err)
		e.settleAlert(ctx, alert, domain.AlertReviewed,
			fmt.Sprintf("Unable to evaluate transaction amount. Error: %v", err))
		metrics.Decisions.WithLabelValues("degraded").Inc()
		return false, fmt.Errorf("%w: could not evaluate transaction amount", domain.ErrInternal)
	}
	if high {
		e.logger.Info("high amount detected, confirming fraud",
			"origin", req.Origin,
			"amount", req.Amount)
		e.confirmFraud(ctx, req, token, alert, reasonSuspicious, notificationPrefix+reasonSuspicious)
		return true, nil
	}

	entries, err := e.history.Fetch(ctx, req.Origin, token)
	if err != nil {
		e.settleDegraded(ctx, alert, err)
		metrics.Decisions.WithLabelValues("degraded").Inc()
		return false, fmt.Errorf("%w: could not verify transaction history", domain.ErrInternal)
	}

	count, err := e.engine.CountRecentHighValue(entries, req.TransactionDate)
	if err != nil {
		e.settleDegraded(ctx, alert, err)
		metrics.Decisions.WithLabelValues("degraded").Inc()
		return false, fmt.Errorf("%w: could not verify transaction history", domain.ErrInternal)
	}

	e.logger.Info("history analyzed",
		"origin", req.Origin,
		"high_value_count", count)

	if e.engine.PatternDetected(count) {
		// The proposed transfer itself is the count+1-th occurrence.
		reason := fmt.Sprintf("Several recent high amount transactions detected: %d times in last %d months.",
			count+1, e.engine.LookbackMonths())
		// The notification wording lowercases the detail after the prefix.
		e.confirmFraud(ctx, req, token, alert, reason, notificationPrefix+"s"+reason[1:])
		return true, nil
	}

	e.settleAlert(ctx, alert, domain.AlertReviewed, reasonSafe)
	return false, nil
}

// openAlert writes the unconditional PENDING alert.
func (e *Evaluator) openAlert(ctx context.Context, req domain.CheckRequest) *domain.FraudAlert {
	now := time.Now().UTC()
	alert := &domain.FraudAlert{
		ID:              uuid.NewString(),
		Origin:          req.Origin,
		Destination:     req.Destination,
		Amount:          req.Amount,
		TransactionDate: req.TransactionDate,
		Reason:          reasonSuspicious,
		Status:          domain.AlertPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := e.repo.CreateAlert(ctx, alert)
	if err != nil {
		e.logger.Error("failed to create alert, continuing without audit record",
			"origin", req.Origin,
			"error", err)
		return nil
	}

	if b, err := json.Marshal(created); err == nil {
		if err := e.bus.Publish(ctx, domain.TopicAlertCreated, b); err != nil {
			e.logger.Warn("failed to publish alert created event", "error", err)
		}
	}
	return created
}

// confirmFraud settles the alert as CONFIRMED, blocks the account and
// publishes the notification event. Block and publish are best effort.
func (e *Evaluator) confirmFraud(ctx context.Context, req domain.CheckRequest, token string, alert *domain.FraudAlert, reason, notification string) {
	e.settleAlert(ctx, alert, domain.AlertConfirmed, reason)
	e.blocker.Block(ctx, req.Origin, token)

	ev := domain.FraudEvent{AccountID: req.Origin, Reason: notification}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicFraudConfirmed, b); err != nil {
		e.logger.Error("failed to publish fraud event",
			"iban", req.Origin,
			"error", err)
	}
}

// settleDegraded records that history could not be verified.
func (e *Evaluator) settleDegraded(ctx context.Context, alert *domain.FraudAlert, cause error) {
	e.logger.Error("failed to fetch history during check", "error", cause)
	reason := fmt.Sprintf("High transaction amount detected and unable to retrieve previous records. Error: %v", cause)
	e.settleAlert(ctx, alert, domain.AlertReviewed, reason)
}

func (e *Evaluator) settleAlert(ctx context.Context, alert *domain.FraudAlert, status domain.AlertStatus, reason string) {
	if alert == nil {
		return
	}
	upd := domain.AlertUpdate{Status: &status, Reason: &reason}
	if _, err := e.repo.UpdateAlert(ctx, alert.ID, upd); err != nil {
		e.logger.Error("failed to settle alert",
			"alert_id", alert.ID,
			"status", status,
			"error", err)
	}
}

// memoize records the finished decision in the short-TTL memo cache. The
// memo is diagnostic only and never consulted to skip an evaluation, so
// the PENDING alert trail stays complete.
func (e *Evaluator) memoize(ctx context.Context, req domain.CheckRequest, fraud bool) {
	key := "tx:" + req.Origin + ":" + req.Destination + ":" + strconv.FormatFloat(req.Amount, 'f', -1, 64)
	val, err := json.Marshal(map[string]any{
		"isFraudulent": fraud,
		"decidedAt":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, val, e.decisionTTL); err != nil {
		e.logger.Warn("failed to memoize decision", "error", err)
	}
}
