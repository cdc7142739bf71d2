// Package history fetches per-account transaction history with a
// short-TTL cache in front of the transfers service and a durable backup
// behind it.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/upstream"
)

// Service resolves account history. Lookup order:
//
//  1. cache (TTL-bounded snapshot)
//  2. transfers service; a fresh result is cached and backed up
//  3. on transfers failure, the last durable backup regardless of age
//
// A 404 from the transfers service means the account simply has no
// history and resolves to an empty list. Only when the service is down
// AND no backup exists does the lookup fail.
type Service struct {
	cache     domain.Cache
	repo      domain.Repository
	transfers domain.HistoryGateway
	ttl       time.Duration
	logger    *slog.Logger
}

// NewService creates a history service.
func NewService(cache domain.Cache, repo domain.Repository, transfers domain.HistoryGateway, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Service{
		cache:     cache,
		repo:      repo,
		transfers: transfers,
		ttl:       ttl,
		logger:    logger,
	}
}

func cacheKey(iban string) string {
	return "history:" + iban
}

// Fetch returns the transaction history for an account.
func (s *Service) Fetch(ctx context.Context, iban, token string) ([]domain.HistoryEntry, error) {
	if cached, err := s.cache.Get(ctx, cacheKey(iban)); err == nil && cached != nil {
		var entries []domain.HistoryEntry
		if err := json.Unmarshal(cached, &entries); err == nil {
			metrics.HistoryLookups.WithLabelValues("cache").Inc()
			return entries, nil
		}
		// Corrupt entry: drop it and fall through to upstream.
		s.cache.Delete(ctx, cacheKey(iban))
	}

	entries, err := s.transfers.UserHistory(ctx, iban, token)
	if err == nil {
		s.store(ctx, iban, entries)
		metrics.HistoryLookups.WithLabelValues("upstream").Inc()
		return entries, nil
	}

	if upstream.IsNotFound(err) {
		metrics.HistoryLookups.WithLabelValues("empty").Inc()
		return []domain.HistoryEntry{}, nil
	}

	s.logger.Warn("transfers service unavailable, trying history backup",
		"iban", iban,
		"error", err)

	backup, backupErr := s.repo.GetHistoryBackup(ctx, iban)
	if backupErr != nil {
		if errors.Is(backupErr, domain.ErrNotFound) {
			return nil, fmt.Errorf("history unavailable and no backup exists for %s: %w", iban, err)
		}
		return nil, fmt.Errorf("history unavailable and backup lookup failed for %s: %w", iban, backupErr)
	}

	metrics.HistoryLookups.WithLabelValues("backup").Inc()
	s.logger.Info("serving history from backup",
		"iban", iban,
		"fetched_at", backup.FetchedAt)
	return backup.Entries, nil
}

// store caches a fresh snapshot and persists it as the durable backup.
// The backup write happens off the request path; losing one is fine, the
// next successful fetch writes another.
func (s *Service) store(ctx context.Context, iban string, entries []domain.HistoryEntry) {
	if b, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, cacheKey(iban), b, s.ttl); err != nil {
			s.logger.Warn("failed to cache history", "iban", iban, "error", err)
		}
	}

	backup := &domain.HistoryBackup{
		IBAN:      iban,
		Entries:   entries,
		FetchedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.SaveHistoryBackup(ctx, backup); err != nil {
			s.logger.Warn("failed to persist history backup", "iban", iban, "error", err)
		}
	}()
}
