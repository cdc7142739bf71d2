package domain

import (
	"context"
	"time"
)

// AccountView is a locally materialized copy of an upstream account,
// refreshed lazily by the existence resolver. Rows are only ever upserted,
// never deleted.
type AccountView struct {
	IBAN        string    `json:"iban"`
	Status      string    `json:"status"` // "active", "blocked", ...
	RefreshedAt time.Time `json:"refreshedAt"`
}

// UpstreamAccount is one entry of the accounts service listing.
type UpstreamAccount struct {
	IBAN      string `json:"iban"`
	IsBlocked bool   `json:"isBlocked"`
}

// AccountsGateway talks to the upstream accounts service.
// The caller's bearer token is forwarded on every call.
type AccountsGateway interface {
	// ListAccounts fetches the complete account listing. The listing
	// endpoint is the only interface the accounts service offers, which is
	// why resynchronization is full-refresh rather than incremental.
	ListAccounts(ctx context.Context, token string) ([]UpstreamAccount, error)

	// BlockAccount asks the accounts service to freeze an account.
	BlockAccount(ctx context.Context, iban string, token string) error
}

// HistoryGateway talks to the upstream transaction-history service.
type HistoryGateway interface {
	UserHistory(ctx context.Context, iban string, token string) ([]HistoryEntry, error)
}

// NotificationsGateway delivers fraud notifications to the notification
// service. Delivery is best-effort everywhere in the pipeline.
type NotificationsGateway interface {
	FraudDetected(ctx context.Context, iban string, reason string) error
}
