package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// NotificationsClient talks to the notifications microservice.
type NotificationsClient struct {
	*client
}

// NewNotificationsClient creates a client for the notifications microservice.
func NewNotificationsClient(cfg domain.UpstreamConfig) *NotificationsClient {
	return &NotificationsClient{client: newClient(cfg, cfg.NotificationsURL, "notifications service")}
}

type notificationEvent struct {
	AccountID string `json:"accountId"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
}

// FraudDetected emits a fraud-detected event for the given account.
func (c *NotificationsClient) FraudDetected(ctx context.Context, iban, reason string) error {
	ev := notificationEvent{AccountID: iban, Type: "fraud-detected", Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/events", "", ev, nil); err != nil {
		return fmt.Errorf("failed to send fraud notification for %s: %w", iban, err)
	}
	return nil
}
