// Package dispatch delivers confirmed-fraud events to the notifications
// service asynchronously.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Dispatcher consumes fraud events from the bus and forwards them as
// notification-service events. Delivery is best effort: a failed POST is
// logged and counted, never retried into the evaluation path.
type Dispatcher struct {
	bus           domain.EventBus
	notifications domain.NotificationsGateway

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// New creates a notification dispatcher.
func New(bus domain.EventBus, notifications domain.NotificationsGateway) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		bus:           bus,
		notifications: notifications,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start subscribes to the fraud topic.
func (d *Dispatcher) Start() error {
	sub, err := d.bus.Subscribe(d.ctx, domain.TopicFraudConfirmed, d.handleFraudEvent)
	if err != nil {
		return err
	}
	d.subscriptions = append(d.subscriptions, sub)

	slog.Info("notification dispatcher started",
		"topic", domain.TopicFraudConfirmed,
	)
	return nil
}

// handleFraudEvent forwards one fraud event to the notifications service.
func (d *Dispatcher) handleFraudEvent(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var ev domain.FraudEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse fraud event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := d.notifications.FraudDetected(ctx, ev.AccountID, ev.Reason); err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		slog.Error("failed to send fraud notification",
			"iban", ev.AccountID,
			"error", err,
		)
		return err
	}

	metrics.NotificationsSent.WithLabelValues("ok").Inc()
	slog.Info("fraud notification sent",
		"iban", ev.AccountID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and stops the dispatcher.
func (d *Dispatcher) Stop() error {
	d.cancel()

	for _, sub := range d.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	d.subscriptions = nil

	slog.Info("notification dispatcher stopped")
	return nil
}
