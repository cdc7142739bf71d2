package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// TransfersClient talks to the transfers microservice.
type TransfersClient struct {
	*client
}

// NewTransfersClient creates a client for the transfers microservice.
func NewTransfersClient(cfg domain.UpstreamConfig) *TransfersClient {
	return &TransfersClient{client: newClient(cfg, cfg.TransfersURL, "transfers service")}
}

// UserHistory returns the transaction history for an account. A 404 from
// the transfers service is returned as a *StatusError so callers can
// distinguish "no history" from an outage.
func (c *TransfersClient) UserHistory(ctx context.Context, iban, token string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	path := "/v1/transactions/user/" + url.PathEscape(iban)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &entries); err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", iban, err)
	}
	return entries, nil
}
