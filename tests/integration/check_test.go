//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel fraud
// screening pipeline.
//
// These tests wire the COMPLETE stack in-process:
//
//	HTTP check → identity → account view (sqlite) → rules → history
//	(cache + upstream fake) → breaker-guarded block → alert lifecycle →
//	bus → notification dispatch
//
// Run with: go test -tags=integration -v ./tests/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opensource-finance/kestrel/internal/accountview"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/breaker"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dispatch"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/evaluator"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/identity"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/upstream"
)

const (
	originIBAN = "ES9121000418450200051332"
	destIBAN   = "DE89370400440532013000"
)

// upstreamFakes simulates the accounts, transfers and notifications
// microservices behind one httptest server.
type upstreamFakes struct {
	mu            sync.Mutex
	accounts      []map[string]any
	history       []map[string]any
	blocked       []string
	notifications []map[string]string
	historyDown   bool
}

func (u *upstreamFakes) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/accounts", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"items": u.accounts})
	})

	mux.HandleFunc("PATCH /v1/accounts/{iban}/block", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.blocked = append(u.blocked, r.PathValue("iban"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /v1/transactions/user/{iban}", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.historyDown {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(u.history)
	})

	mux.HandleFunc("POST /v1/notifications/events", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		var ev map[string]string
		json.NewDecoder(r.Body).Decode(&ev)
		u.notifications = append(u.notifications, ev)
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

func (u *upstreamFakes) blockedCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.blocked)
}

func (u *upstreamFakes) notificationCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.notifications)
}

type stack struct {
	server    *httptest.Server
	upstreams *upstreamFakes
	repo      domain.Repository
}

func newStack(t *testing.T) *stack {
	t.Helper()

	fakes := &upstreamFakes{
		accounts: []map[string]any{
			{"iban": originIBAN, "isBlocked": false},
			{"iban": destIBAN, "isBlocked": false},
		},
	}
	upstreamSrv := httptest.NewServer(fakes.handler())
	t.Cleanup(upstreamSrv.Close)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cacheImpl, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { cacheImpl.Close() })

	busImpl := bus.NewChannelBus(64)
	t.Cleanup(func() { busImpl.Close() })

	upstreamCfg := domain.UpstreamConfig{
		AccountsURL:      upstreamSrv.URL,
		TransfersURL:     upstreamSrv.URL,
		NotificationsURL: upstreamSrv.URL,
		RequestTimeout:   5 * time.Second,
	}
	accountsGW := upstream.NewAccountsClient(upstreamCfg)
	transfersGW := upstream.NewTransfersClient(upstreamCfg)
	notificationsGW := upstream.NewNotificationsClient(upstreamCfg)

	engine, err := rules.NewEngine(domain.RulesConfig{
		HighAmountExpr:     "amount > 2000.0",
		HighValueEntryExpr: "amount > 1000.0",
		LookbackMonths:     2,
		PatternCount:       2,
	})
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := identity.NewGuard()
	resolver := accountview.NewResolver(repo, accountsGW, logger)
	historySvc := history.NewService(cacheImpl, repo, transfersGW, time.Minute, logger)

	brk := breaker.New("block_account_"+t.Name(), domain.BreakerConfig{
		CallTimeout:       3 * time.Second,
		ErrorThresholdPct: 50,
		VolumeThreshold:   5,
		ResetTimeout:      10 * time.Second,
		RollingWindow:     10 * time.Second,
	})
	blocker := evaluator.NewBlocker(accountsGW, brk, logger)

	eval := evaluator.New(guard, resolver, historySvc, engine, blocker,
		repo, cacheImpl, busImpl, time.Minute, logger)
	alerts := evaluator.NewAlertService(repo, guard, logger)

	dispatcher := dispatch.New(busImpl, notificationsGW)
	if err := dispatcher.Start(); err != nil {
		t.Fatalf("failed to start dispatcher: %v", err)
	}
	t.Cleanup(func() { dispatcher.Stop() })

	srv := api.NewServer(domain.ServerConfig{}, eval, alerts, repo, cacheImpl, busImpl, "test")
	apiSrv := httptest.NewServer(srv.Router())
	t.Cleanup(apiSrv.Close)

	return &stack{server: apiSrv, upstreams: fakes, repo: repo}
}

func bearerFor(t *testing.T, iban string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iban": iban})
	s, err := tok.SignedString([]byte("integration"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return "Bearer " + s
}

func check(t *testing.T, s *stack, amount float64) (int, bool) {
	t.Helper()

	body, _ := json.Marshal(map[string]any{
		"origin":          originIBAN,
		"destination":     destIBAN,
		"amount":          amount,
		"transactionDate": time.Now().UTC().Format(time.RFC3339),
	})
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/v1/fraud-alerts/check", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerFor(t, originIBAN))

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		IsFraudulent bool `json:"isFraudulent"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result.IsFraudulent
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHighAmountEndToEnd(t *testing.T) {
	s := newStack(t)

	status, fraud := check(t, s, 2500)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !fraud {
		t.Fatal("expected fraudulent verdict")
	}

	// Account gets blocked and the notification flows through the bus.
	waitFor(t, "block call", func() bool { return s.upstreams.blockedCount() == 1 })
	waitFor(t, "notification", func() bool { return s.upstreams.notificationCount() == 1 })

	// Alert is CONFIRMED, not left PENDING.
	alerts, err := s.repo.ListAlertsByOrigin(context.Background(), originIBAN)
	if err != nil {
		t.Fatalf("failed to list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Status != domain.AlertConfirmed {
		t.Errorf("alert status = %s, want CONFIRMED", alerts[0].Status)
	}
}

func TestRepeatedPatternEndToEnd(t *testing.T) {
	s := newStack(t)
	recent := time.Now().UTC().AddDate(0, 0, -10).Format(time.RFC3339)
	s.upstreams.history = []map[string]any{
		{"id": "tx-1", "currency": "EUR", "date": recent, "quantity": 1500.0},
		{"id": "tx-2", "currency": "EUR", "date": recent, "quantity": 1200.0},
	}

	status, fraud := check(t, s, 1500)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !fraud {
		t.Fatal("expected fraudulent verdict for repeated pattern")
	}
	waitFor(t, "block call", func() bool { return s.upstreams.blockedCount() == 1 })
}

func TestSafeTransactionEndToEnd(t *testing.T) {
	s := newStack(t)

	status, fraud := check(t, s, 500)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if fraud {
		t.Fatal("expected clear verdict")
	}
	if s.upstreams.blockedCount() != 0 {
		t.Error("safe transaction must not block the account")
	}

	alerts, err := s.repo.ListAlertsByOrigin(context.Background(), originIBAN)
	if err != nil {
		t.Fatalf("failed to list alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Status != domain.AlertReviewed {
		t.Errorf("expected one REVIEWED alert, got %+v", alerts)
	}
}

func TestHistoryOutageDegrades(t *testing.T) {
	s := newStack(t)
	s.upstreams.historyDown = true

	status, _ := check(t, s, 1500)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when history cannot be verified", status)
	}

	alerts, err := s.repo.ListAlertsByOrigin(context.Background(), originIBAN)
	if err != nil {
		t.Fatalf("failed to list alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Status != domain.AlertReviewed {
		t.Errorf("degraded evaluation must settle the alert REVIEWED, got %+v", alerts)
	}
}

func TestHistoryServedFromCacheOnSecondCheck(t *testing.T) {
	s := newStack(t)

	if status, _ := check(t, s, 500); status != http.StatusOK {
		t.Fatal("first check failed")
	}

	// Kill the transfers service; the cached snapshot keeps checks working.
	s.upstreams.mu.Lock()
	s.upstreams.historyDown = true
	s.upstreams.mu.Unlock()

	status, fraud := check(t, s, 500)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want cache to cover the outage", status)
	}
	if fraud {
		t.Error("expected clear verdict")
	}
}
