package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// AccountsClient talks to the accounts microservice.
type AccountsClient struct {
	*client
}

// NewAccountsClient creates a client for the accounts microservice.
func NewAccountsClient(cfg domain.UpstreamConfig) *AccountsClient {
	return &AccountsClient{client: newClient(cfg, cfg.AccountsURL, "accounts service")}
}

type accountItem struct {
	IBAN      string `json:"iban"`
	IsBlocked bool   `json:"isBlocked"`
}

type listAccountsResponse struct {
	Items []accountItem `json:"items"`
}

// ListAccounts returns every account known to the accounts service.
func (c *AccountsClient) ListAccounts(ctx context.Context, token string) ([]domain.UpstreamAccount, error) {
	var resp listAccountsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]domain.UpstreamAccount, 0, len(resp.Items))
	for _, it := range resp.Items {
		accounts = append(accounts, domain.UpstreamAccount{IBAN: it.IBAN, IsBlocked: it.IsBlocked})
	}
	return accounts, nil
}

// BlockAccount asks the accounts service to block the given account.
func (c *AccountsClient) BlockAccount(ctx context.Context, iban, token string) error {
	path := "/v1/accounts/" + url.PathEscape(iban) + "/block"
	if err := c.do(ctx, http.MethodPatch, path, token, nil, nil); err != nil {
		return fmt.Errorf("failed to block account %s: %w", iban, err)
	}
	return nil
}
