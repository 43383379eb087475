package admin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/enrichment/service"
	"crmbot/internal/importer"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
	"crmbot/platform/apperr"
	"crmbot/platform/logger"
)

type fakeManagers struct {
	byID map[int64]domain.Manager
	err  error
}

func (f *fakeManagers) GetByTelegramID(_ context.Context, id int64) (domain.Manager, error) {
	m, ok := f.byID[id]
	if !ok {
		return domain.Manager{}, apperr.NotFound("manager not found")
	}
	return m, nil
}

func (f *fakeManagers) ListActive(context.Context) ([]domain.Manager, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Manager
	for _, m := range f.byID {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeImporter struct {
	got     domain.Manager
	content string
	err     error
}

func (f *fakeImporter) Import(_ context.Context, m domain.Manager, _ string, r io.Reader) (importer.Report, error) {
	f.got = m
	b, _ := io.ReadAll(r)
	f.content = string(b)
	return importer.Report{Imported: 1, LedgerURL: domain.LedgerURL(m.LedgerID)}, f.err
}

type fakeRefetcher struct {
	result service.Result
	calls  int
}

func (f *fakeRefetcher) Refetch(context.Context, string) service.Result {
	f.calls++
	return f.result
}

const (
	operatorTG = int64(101)
	inactiveTG = int64(102)
	taxID      = "7707083893"
	aggID      = "agg-1"
)

var captureTime = time.Date(2025, 2, 1, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, refetch *fakeRefetcher, imp *fakeImporter) (*Service, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemoryBackend()
	backend.AddLedger("ledger-101")
	backend.AddLedger(aggID)
	set := schema.MustLoad()
	op := store.New(backend, set.Operator, logger.Nop())
	agg := store.New(backend, set.Aggregate, logger.Nop())
	engine := ledgersync.New(op, agg, aggID, logger.Nop())

	managers := &fakeManagers{byID: map[int64]domain.Manager{
		operatorTG: {TelegramID: operatorTG, FullName: "Иван Петров", LedgerID: "ledger-101", Active: true},
		inactiveTG: {TelegramID: inactiveTG, FullName: "Старый", LedgerID: "ledger-102"},
	}}
	return New(Deps{
		Managers:    managers,
		Importer:    imp,
		Enricher:    refetch,
		Refresher:   engine,
		Operator:    op,
		Aggregate:   agg,
		AggregateID: aggID,
		Log:         logger.Nop(),
	}), backend
}

func TestImportResolvesManager(t *testing.T) {
	imp := &fakeImporter{}
	svc, _ := newTestService(t, &fakeRefetcher{}, imp)

	report, err := svc.Import(context.Background(), operatorTG, "calls.csv", bytes.NewBufferString("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imp.got.LedgerID != "ledger-101" || imp.content != "x" || report.Imported != 1 {
		t.Fatalf("unexpected import call %+v report %+v", imp.got, report)
	}

	if _, err := svc.Import(context.Background(), 999, "calls.csv", bytes.NewBufferString("x")); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown manager, got %v", err)
	}
	if _, err := svc.Import(context.Background(), inactiveTG, "calls.csv", bytes.NewBufferString("x")); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for inactive manager, got %v", err)
	}
}

func TestImportUnreadableFileIsValidationError(t *testing.T) {
	svc, _ := newTestService(t, &fakeRefetcher{}, &fakeImporter{err: errors.New("bad csv")})
	_, err := svc.Import(context.Background(), operatorTG, "calls.csv", bytes.NewBufferString("x"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefreshOverwritesEnrichmentColumns(t *testing.T) {
	ctx := context.Background()
	refetch := &fakeRefetcher{result: service.Result{
		Status:   service.StatusComplete,
		Snapshot: &domain.CompanySnapshot{Name: domain.StringPtr("ПАО Сбербанк"), Region: domain.StringPtr("Москва")},
	}}
	svc, backend := newTestService(t, refetch, &fakeImporter{})

	rec := domain.Draft{Kind: domain.SessionNew, TaxID: taxID, Comment: "первый"}.Finalize(operatorTG, captureTime)
	out := svc.refresher.(*ledgersync.Engine).Upsert(ctx, ledgersync.Target{OperatorLedgerID: "ledger-101", OperatorName: "Иван Петров"}, rec, nil)
	if !out.OK() {
		t.Fatalf("seed upsert failed: %+v", out)
	}

	res, err := svc.Refresh(ctx, operatorTG, " 7707-083-893 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TaxID != taxID || res.Outcome.Operator.Action != ledgersync.ActionUpdated || res.Outcome.Aggregate.Action != ledgersync.ActionUpdated {
		t.Fatalf("unexpected result %+v", res)
	}

	set := schema.MustLoad()
	row := backend.Snapshot("ledger-101")[1]
	if got := row[set.Operator.MustIndex(schema.Region)]; got != "Москва" {
		t.Fatalf("expected region to be refreshed, got %q", got)
	}
	if got := row[set.Operator.MustIndex(schema.CompanyName)]; got != domain.UnknownCompany {
		t.Fatalf("refresh must not rewrite the company name, got %q", got)
	}
}

func TestRefreshRejectsBadInput(t *testing.T) {
	refetch := &fakeRefetcher{result: service.Result{Status: service.StatusUnavailable}}
	svc, _ := newTestService(t, refetch, &fakeImporter{})

	if _, err := svc.Refresh(context.Background(), operatorTG, "123"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if refetch.calls != 0 {
		t.Fatal("provider must not be called for an invalid tax id")
	}
	if _, err := svc.Refresh(context.Background(), operatorTG, taxID); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestReconcileCoversEveryLedger(t *testing.T) {
	svc, backend := newTestService(t, &fakeRefetcher{}, &fakeImporter{})
	backend.Seed("ledger-101", [][]string{{"ИНН", "Компания"}, {taxID, "Сбербанк"}})

	plans, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected operator and aggregate plans, got %d", len(plans))
	}
	for _, p := range plans {
		if p.Err != nil || p.Plan.NoOp() {
			t.Fatalf("expected an applied plan for %s, got %+v", p.LedgerID, p)
		}
	}

	plans, err = svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range plans {
		if !p.Plan.NoOp() {
			t.Fatalf("second reconcile of %s must be a no-op", p.LedgerID)
		}
	}
}
