package accountview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type fakeRepo struct {
	views   map[string]domain.AccountView
	findErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{views: make(map[string]domain.AccountView)}
}

func (f *fakeRepo) FindAccountView(ctx context.Context, iban string) (*domain.AccountView, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	v, ok := f.views[iban]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (f *fakeRepo) BulkUpsertAccountViews(ctx context.Context, views []domain.AccountView) error {
	for _, v := range views {
		f.views[v.IBAN] = v
	}
	return nil
}

// Unused Repository methods.
func (f *fakeRepo) CreateAlert(ctx context.Context, a *domain.FraudAlert) (*domain.FraudAlert, error) {
	return nil, nil
}
func (f *fakeRepo) GetAlert(ctx context.Context, id string) (*domain.FraudAlert, error) {
	return nil, nil
}
func (f *fakeRepo) ListAlertsByOrigin(ctx context.Context, origin string) ([]*domain.FraudAlert, error) {
	return nil, nil
}
func (f *fakeRepo) UpdateAlert(ctx context.Context, id string, upd domain.AlertUpdate) (*domain.FraudAlert, error) {
	return nil, nil
}
func (f *fakeRepo) DeleteAlert(ctx context.Context, id string) error { return nil }
func (f *fakeRepo) SaveHistoryBackup(ctx context.Context, b *domain.HistoryBackup) error {
	return nil
}
func (f *fakeRepo) GetHistoryBackup(ctx context.Context, iban string) (*domain.HistoryBackup, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

type fakeAccounts struct {
	accounts []domain.UpstreamAccount
	listErr  error
	calls    int
}

func (f *fakeAccounts) ListAccounts(ctx context.Context, token string) ([]domain.UpstreamAccount, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.accounts, nil
}

func (f *fakeAccounts) BlockAccount(ctx context.Context, iban, token string) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExistsLocalHitSkipsSync(t *testing.T) {
	repo := newFakeRepo()
	repo.views["ES91"] = domain.AccountView{IBAN: "ES91", Status: "active"}
	gw := &fakeAccounts{}

	r := NewResolver(repo, gw, discardLogger())
	exists, err := r.Exists(context.Background(), "ES91", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected account to exist")
	}
	if gw.calls != 0 {
		t.Errorf("local hit must not call upstream, got %d calls", gw.calls)
	}
}

func TestExistsMissTriggersResync(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeAccounts{accounts: []domain.UpstreamAccount{
		{IBAN: "ES91", IsBlocked: false},
		{IBAN: "DE89", IsBlocked: true},
	}}

	r := NewResolver(repo, gw, discardLogger())
	exists, err := r.Exists(context.Background(), "ES91", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected account to exist after resync")
	}
	if gw.calls != 1 {
		t.Errorf("expected one upstream call, got %d", gw.calls)
	}
	if repo.views["DE89"].Status != "blocked" {
		t.Errorf("blocked upstream account must map to blocked status, got %q", repo.views["DE89"].Status)
	}
}

func TestExistsUnknownAfterResync(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeAccounts{accounts: []domain.UpstreamAccount{{IBAN: "DE89"}}}

	r := NewResolver(repo, gw, discardLogger())
	exists, err := r.Exists(context.Background(), "ES91", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("account absent from a fresh sync must not exist")
	}
}

func TestExistsFailsOpenWhenSyncFails(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeAccounts{listErr: errors.New("accounts service down")}

	r := NewResolver(repo, gw, discardLogger())
	exists, err := r.Exists(context.Background(), "ES91", "tok")
	if err != nil {
		t.Fatalf("fail-open must not surface the sync error, got %v", err)
	}
	// Trade-off: an unknown account passes the existence check during an
	// accounts-service outage so evaluations keep flowing.
	if !exists {
		t.Error("sync failure must fail open")
	}
}

func TestExistsRepositoryErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.findErr = errors.New("db gone")
	gw := &fakeAccounts{}

	r := NewResolver(repo, gw, discardLogger())
	if _, err := r.Exists(context.Background(), "ES91", "tok"); err == nil {
		t.Error("expected repository error to propagate")
	}
}
