package evaluator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/breaker"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Blocker performs account blocking behind a circuit breaker. Blocking is
// fire-and-forget: a short-circuited or failed block is logged but never
// fails the evaluation, the confirmed alert is the durable record either
// way.
type Blocker struct {
	accounts domain.AccountsGateway
	breaker  *breaker.Breaker
	logger   *slog.Logger
}

// NewBlocker creates a breaker-guarded account blocker.
func NewBlocker(accounts domain.AccountsGateway, brk *breaker.Breaker, logger *slog.Logger) *Blocker {
	b := &Blocker{
		accounts: accounts,
		breaker:  brk,
		logger:   logger,
	}
	brk.OnStateChange(func(name string, from, to breaker.State) {
		logger.Warn("block account circuit state change",
			"breaker", name,
			"from", from.String(),
			"to", to.String())
	})
	return b
}

// Block asks the accounts service to block iban, guarded by the breaker.
func (b *Blocker) Block(ctx context.Context, iban, token string) {
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.accounts.BlockAccount(ctx, iban, token)
	})
	switch {
	case err == nil:
		metrics.BlockAttempts.WithLabelValues("ok").Inc()
	case errors.Is(err, breaker.ErrOpen):
		metrics.BlockAttempts.WithLabelValues("rejected").Inc()
		b.logger.Error("circuit breaker fallback: could not block account",
			"iban", iban)
	default:
		metrics.BlockAttempts.WithLabelValues("error").Inc()
		b.logger.Error("failed to block account",
			"iban", iban,
			"error", err)
	}
}
