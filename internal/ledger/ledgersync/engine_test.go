package ledgersync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
	"crmbot/platform/logger"
)

const (
	operatorLedger  = "op-ledger"
	aggregateLedger = "agg-ledger"
)

// failingBackend fails every call for one ledger id.
type failingBackend struct {
	*store.MemoryBackend
	ledger string
}

var errSheets = errors.New("sheets: 503 backend error")

func (f *failingBackend) ReadRange(ctx context.Context, id string, r store.Range) ([][]string, error) {
	if id == f.ledger {
		return nil, errSheets
	}
	return f.MemoryBackend.ReadRange(ctx, id, r)
}

type countingRecorder struct{ writes map[string]int }

func (c *countingRecorder) LedgerWrite(ledger, _ string) { c.writes[ledger]++ }

type fixture struct {
	engine   *Engine
	backend  *store.MemoryBackend
	opStore  *store.Store
	aggStore *store.Store
	recorder *countingRecorder
}

func newFixture(t *testing.T, failLedger string) fixture {
	t.Helper()
	set := schema.MustLoad()
	mem := store.NewMemoryBackend()
	mem.AddLedger(operatorLedger)
	mem.AddLedger(aggregateLedger)

	var backend store.Backend = mem
	if failLedger != "" {
		backend = &failingBackend{MemoryBackend: mem, ledger: failLedger}
	}
	op := store.New(backend, set.Operator, logger.Nop())
	agg := store.New(backend, set.Aggregate, logger.Nop())
	rec := &countingRecorder{writes: map[string]int{}}
	return fixture{
		engine:   New(op, agg, aggregateLedger, logger.Nop(), WithRecorder(rec)),
		backend:  mem,
		opStore:  op,
		aggStore: agg,
		recorder: rec,
	}
}

func record(comment string, day int) domain.CallRecord {
	now := time.Date(2025, 2, day, 12, 0, 0, 0, time.UTC)
	next := now.AddDate(0, 0, 7)
	return domain.Draft{
		Kind:            domain.SessionNew,
		TaxID:           "7707083893",
		CompanyName:     "ПАО Сбербанк",
		ContactName:     "Греф Г.О.",
		Comment:         comment,
		NextContactDate: &next,
	}.Finalize(101, now)
}

func (f fixture) row(t *testing.T, s *store.Store, ledgerID string) store.Row {
	t.Helper()
	row, found, err := s.FindRow(context.Background(), ledgerID, "7707083893")
	if err != nil || !found {
		t.Fatalf("expected row for tax id in %s: found=%v err=%v", ledgerID, found, err)
	}
	return row
}

func TestUpsertInsertsIntoBothLedgers(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	out := f.engine.Upsert(ctx, Target{OperatorLedgerID: operatorLedger, OperatorName: "Иван"}, record("обсудили условия", 1), nil)
	if !out.OK() || out.Operator.Action != ActionInserted || out.Aggregate.Action != ActionInserted {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.recorder.writes["operator"] != 1 || f.recorder.writes["aggregate"] != 1 {
		t.Fatalf("expected exactly one write attempt per ledger, got %v", f.recorder.writes)
	}

	op := f.row(t, f.opStore, operatorLedger)
	if got := f.opStore.Get(op, schema.History); got != "01.02.25 - обсудили условия" {
		t.Fatalf("unexpected operator history %q", got)
	}
	if got := f.opStore.Get(op, schema.FirstContactDate); got != "01.02.25" {
		t.Fatalf("unexpected first contact date %q", got)
	}
	for _, fld := range []schema.Field{schema.RevenueCurrent, schema.Equity, schema.LitigationOpenSum} {
		if got := f.opStore.Get(op, fld); got != "" {
			t.Fatalf("expected empty %s without enrichment, got %q", fld, got)
		}
	}
	if raw := f.backend.Snapshot(operatorLedger)[op.Index-1]; len(raw) != f.opStore.Schema().Width() {
		t.Fatalf("financial columns must be written, not omitted: width %d", len(raw))
	}

	agg := f.row(t, f.aggStore, aggregateLedger)
	if got := f.aggStore.Get(agg, schema.History); got != "[Иван] 01.02.25 - обсудили условия" {
		t.Fatalf("unexpected aggregate history %q", got)
	}
	if got := f.aggStore.Get(agg, schema.OperatorName); got != "Иван" {
		t.Fatalf("unexpected operator name %q", got)
	}
}

func TestUpsertPrependsHistoryOnUpdate(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	target := Target{OperatorLedgerID: operatorLedger, OperatorName: "Иван"}

	f.engine.Upsert(ctx, target, record("первый звонок", 1), nil)
	out := f.engine.Upsert(ctx, Target{OperatorLedgerID: operatorLedger, OperatorName: "Пётр"}, record("обсудили условия", 3), nil)
	if out.Operator.Action != ActionUpdated || out.Aggregate.Action != ActionUpdated {
		t.Fatalf("expected updates, got %+v", out)
	}

	op := f.row(t, f.opStore, operatorLedger)
	want := "03.02.25 - обсудили условия" + HistorySeparator + "01.02.25 - первый звонок"
	if got := f.opStore.Get(op, schema.History); got != want {
		t.Fatalf("unexpected history:\n%s", got)
	}
	if got := f.opStore.Get(op, schema.NextContactDate); got != "10.02.25" {
		t.Fatalf("expected next date rewritten, got %q", got)
	}

	agg := f.row(t, f.aggStore, aggregateLedger)
	if !strings.HasPrefix(f.aggStore.Get(agg, schema.History), "[Пётр] 03.02.25") {
		t.Fatalf("expected newest tagged entry first, got %q", f.aggStore.Get(agg, schema.History))
	}
	if got := f.aggStore.Get(agg, schema.OperatorName); got != "Пётр" {
		t.Fatalf("aggregate row should move to latest operator, got %q", got)
	}
	if rows := f.backend.Snapshot(aggregateLedger); len(rows) != 2 {
		t.Fatalf("aggregate must keep one row per company, got %d data rows", len(rows)-1)
	}
}

func TestUpsertReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	target := Target{OperatorLedgerID: operatorLedger, OperatorName: "Иван"}
	rec := record("обсудили условия", 1)

	f.engine.Upsert(ctx, target, rec, nil)
	before := f.backend.Mutations(operatorLedger)
	out := f.engine.Upsert(ctx, target, rec, nil)

	if out.Operator.Action != ActionUnchanged || out.Aggregate.Action != ActionUnchanged {
		t.Fatalf("expected unchanged on replay, got %+v", out)
	}
	if f.backend.Mutations(operatorLedger) != before {
		t.Fatal("replay must not write")
	}
	op := f.row(t, f.opStore, operatorLedger)
	if strings.Contains(f.opStore.Get(op, schema.History), HistorySeparator) {
		t.Fatal("replay stacked a duplicate entry")
	}
}

func TestUpsertKeepsEnrichmentOnUpdate(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	target := Target{OperatorLedgerID: operatorLedger}

	f.engine.Upsert(ctx, target, record("a", 1), &domain.CompanySnapshot{RevenueCurrent: domain.Int64Ptr(1500)})
	f.engine.Upsert(ctx, target, record("b", 2), &domain.CompanySnapshot{RevenueCurrent: domain.Int64Ptr(9999)})

	op := f.row(t, f.opStore, operatorLedger)
	if got := f.opStore.Get(op, schema.RevenueCurrent); got != "1500" {
		t.Fatalf("enrichment must not be overwritten by a comment update, got %q", got)
	}
}

func TestAggregateFailureDoesNotAffectOperator(t *testing.T) {
	f := newFixture(t, aggregateLedger)
	out := f.engine.Upsert(context.Background(), Target{OperatorLedgerID: operatorLedger, OperatorName: "Иван"}, record("x", 1), nil)

	if out.Operator.Action != ActionInserted {
		t.Fatalf("operator write should succeed, got %+v", out.Operator)
	}
	if out.Aggregate.Action != ActionFailed || !errors.Is(out.Aggregate.Err, errSheets) {
		t.Fatalf("expected aggregate failure, got %+v", out.Aggregate)
	}
	if out.OK() {
		t.Fatal("outcome must report the failure")
	}
}

func TestOperatorFailureStillWritesAggregate(t *testing.T) {
	f := newFixture(t, operatorLedger)
	out := f.engine.Upsert(context.Background(), Target{OperatorLedgerID: operatorLedger, OperatorName: "Иван"}, record("x", 1), nil)
	if out.Operator.Action != ActionFailed || out.Aggregate.Action != ActionInserted {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestAggregateDisabled(t *testing.T) {
	set := schema.MustLoad()
	mem := store.NewMemoryBackend()
	mem.AddLedger(operatorLedger)
	e := New(store.New(mem, set.Operator, logger.Nop()), nil, "", logger.Nop())

	out := e.Upsert(context.Background(), Target{OperatorLedgerID: operatorLedger}, record("x", 1), nil)
	if out.Aggregate.Action != ActionSkipped || !out.OK() {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRefreshOverwritesOnlyEnrichment(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	target := Target{OperatorLedgerID: operatorLedger, OperatorName: "Иван"}
	f.engine.Upsert(ctx, target, record("a", 1), &domain.CompanySnapshot{RevenueCurrent: domain.Int64Ptr(1500), Region: domain.StringPtr("Москва")})

	out := f.engine.Refresh(ctx, target, "7707083893", &domain.CompanySnapshot{RevenueCurrent: domain.Int64Ptr(2000)})
	if out.Operator.Action != ActionUpdated || out.Aggregate.Action != ActionUpdated {
		t.Fatalf("unexpected outcome %+v", out)
	}
	op := f.row(t, f.opStore, operatorLedger)
	if f.opStore.Get(op, schema.RevenueCurrent) != "2000" || f.opStore.Get(op, schema.Region) != "Москва" {
		t.Fatalf("refresh should overwrite supplied fields only: %v", op.Cells)
	}
	if f.opStore.Get(op, schema.History) != "01.02.25 - a" {
		t.Fatal("refresh must not touch history")
	}

	missing := f.engine.Refresh(ctx, target, "500100732259", &domain.CompanySnapshot{RevenueCurrent: domain.Int64Ptr(1)})
	if missing.Operator.Action != ActionSkipped {
		t.Fatalf("unknown company should be skipped, got %+v", missing.Operator)
	}
}

func TestMergeHistory(t *testing.T) {
	cases := []struct {
		existing, entry, want string
	}{
		{"", "01.02.25 - a", "01.02.25 - a"},
		{"01.01.25 - old", "01.02.25 - a", "01.02.25 - a" + HistorySeparator + "01.01.25 - old"},
		{"01.01.25 - old", "   ", "01.01.25 - old"},
		{"01.02.25 - a" + HistorySeparator + "01.01.25 - old", "01.02.25 - a", "01.02.25 - a" + HistorySeparator + "01.01.25 - old"},
	}
	for _, tc := range cases {
		if got := MergeHistory(tc.existing, tc.entry); got != tc.want {
			t.Fatalf("MergeHistory(%q, %q) = %q, want %q", tc.existing, tc.entry, got, tc.want)
		}
	}
}
