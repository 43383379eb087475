package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/events"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
	"crmbot/platform/logger"
	"crmbot/platform/validator"
)

const (
	opLedger  = "ledger-ivan"
	aggLedger = "ledger-all"
)

type memoryCalls struct {
	mu      sync.Mutex
	records []domain.CallRecord
	err     error
}

func (m *memoryCalls) Save(_ context.Context, rec domain.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

type stubArchiver struct {
	key  string
	err  error
	got  []byte
	name string
}

func (a *stubArchiver) Put(_ context.Context, _ int64, fileName string, data []byte) (string, error) {
	a.name = fileName
	a.got = data
	return a.key, a.err
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

type fixture struct {
	svc   *Service
	op    *store.Store
	agg   *store.Store
	calls *memoryCalls
	bus   *recordingBus
}

var manager = domain.Manager{TelegramID: 42, FullName: "Иван", LedgerID: opLedger, Active: true}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	set := schema.MustLoad()
	mem := store.NewMemoryBackend()
	mem.AddLedger(opLedger)
	mem.AddLedger(aggLedger)
	op := store.New(mem, set.Operator, logger.Nop())
	agg := store.New(mem, set.Aggregate, logger.Nop())
	engine := ledgersync.New(op, agg, aggLedger, logger.Nop())

	calls := &memoryCalls{}
	bus := &recordingBus{}
	now := func() time.Time { return time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC) }
	opts = append([]Option{WithClock(now)}, opts...)
	return fixture{
		svc:   New(engine, calls, validator.New(), bus, time.UTC, logger.Nop(), opts...),
		op:    op,
		agg:   agg,
		calls: calls,
		bus:   bus,
	}
}

func (f fixture) history(t *testing.T, taxID string) string {
	t.Helper()
	row, found, err := f.op.FindRow(context.Background(), opLedger, taxID)
	if err != nil || !found {
		t.Fatalf("row for %s: found=%v err=%v", taxID, found, err)
	}
	return f.op.Get(row, schema.History)
}

func TestImportSemicolonFileWithHeader(t *testing.T) {
	f := newFixture(t)
	file := "\ufeffНазвание;ИНН;Контакт;Телефон;Первый;Следующий;Комментарий\n" +
		"ПАО Сбербанк;7707083893;Греф;+7 495 500-55-50;15.01.25;10.02.25;обсудили условия\n" +
		"Короткая;7707083893;Греф\n" +
		"ООО Ромашка;12345;Петров;;;;звонок\n"

	report, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Imported != 1 || report.Failed != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Errors[0].Line != 3 || report.Errors[1].Line != 4 {
		t.Fatalf("unexpected error lines %+v", report.Errors)
	}
	if !strings.Contains(report.Errors[1].Message, "tax id") {
		t.Fatalf("expected tax id message, got %q", report.Errors[1].Message)
	}
	if report.LedgerURL != domain.LedgerURL(opLedger) {
		t.Fatalf("unexpected ledger url %q", report.LedgerURL)
	}

	if got := f.history(t, "7707083893"); got != "15.01.25 - обсудили условия" {
		t.Fatalf("unexpected history %q", got)
	}
	row, _, _ := f.op.FindRow(context.Background(), opLedger, "7707083893")
	if got := f.op.Get(row, schema.NextContactDate); got != "10.02.25" {
		t.Fatalf("unexpected next contact %q", got)
	}
	if got := f.op.Get(row, schema.FirstContactDate); got != "15.01.25" {
		t.Fatalf("unexpected first contact %q", got)
	}
	if _, found, _ := f.agg.FindRow(context.Background(), aggLedger, "7707083893"); !found {
		t.Fatal("expected aggregate row")
	}
	if len(f.calls.records) != 1 || f.calls.records[0].OperatorID != 42 {
		t.Fatalf("expected one saved call, got %+v", f.calls.records)
	}
}

func TestImportCommaFileKeepsStampsAndOlderComments(t *testing.T) {
	f := newFixture(t)
	file := "ООО Ромашка,5408130693,Петров,,,,20.01.25 - перезвонить,10.01.25 - первый звонок,\n"

	report, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file))
	if err != nil || report.Imported != 1 {
		t.Fatalf("report=%+v err=%v", report, err)
	}
	want := "20.01.25 - перезвонить\n---\n10.01.25 - первый звонок"
	if got := f.history(t, "5408130693"); got != want {
		t.Fatalf("history = %q, want %q", got, want)
	}
}

func TestImportStampsUndatedCommentWithToday(t *testing.T) {
	f := newFixture(t)
	file := "ООО Ромашка;5408130693;Петров;;;;без даты\n"

	if _, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file)); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := f.history(t, "5408130693"); got != "01.02.25 - без даты" {
		t.Fatalf("unexpected history %q", got)
	}
}

func TestImportMapsEnrichmentColumns(t *testing.T) {
	f := newFixture(t)
	cells := []string{
		"ООО Ромашка", "5408130693", "Петров", "", "", "", "звонок", "", "",
		"1 500", "1200", "300", "", "", "", "Новосибирская обл.", "Торговля", "46.90", "250000", "0", "нет", "", "info@romashka.ru",
	}
	file := strings.Join(cells, ";") + "\n"

	report, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file))
	if err != nil || report.Imported != 1 {
		t.Fatalf("report=%+v err=%v", report, err)
	}
	row, _, _ := f.op.FindRow(context.Background(), opLedger, "5408130693")
	checks := map[schema.Field]string{
		schema.RevenueCurrent:     "1500",
		schema.RevenuePrior:       "1200",
		schema.Equity:             "300",
		schema.Region:             "Новосибирская обл.",
		schema.ClassificationCode: "46.90",
		schema.GovContractsSum:    "250000",
		schema.Bankruptcy:         "нет",
		schema.ContactEmail:       "info@romashka.ru",
	}
	for field, want := range checks {
		if got := f.op.Get(row, field); got != want {
			t.Fatalf("%s = %q, want %q", field, got, want)
		}
	}
}

func TestImportArchivesUpload(t *testing.T) {
	arch := &stubArchiver{key: "imports/42/2025-02-01/calls_abcd1234.csv"}
	f := newFixture(t, WithArchiver(arch))
	file := "ООО Ромашка;5408130693;Петров;;;;звонок\n"

	report, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.ArchiveKey != arch.key || string(arch.got) != file || arch.name != "calls.csv" {
		t.Fatalf("archive not called as expected: %+v %q", report, arch.got)
	}
}

func TestImportArchiveFailureIsNotFatal(t *testing.T) {
	arch := &stubArchiver{err: errors.New("minio down")}
	f := newFixture(t, WithArchiver(arch))
	file := "ООО Ромашка;5408130693;Петров;;;;звонок\n"

	report, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file))
	if err != nil || report.Imported != 1 || report.ArchiveKey != "" {
		t.Fatalf("report=%+v err=%v", report, err)
	}
}

func TestImportPublishesEvents(t *testing.T) {
	f := newFixture(t)
	file := "ООО Ромашка;5408130693;Петров;;;;звонок\nООО Лютик;7707083893;Сидоров;;;;звонок\n"

	if _, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file)); err != nil {
		t.Fatalf("import: %v", err)
	}
	var captured int
	var done *events.ImportCompleted
	for _, e := range f.bus.events {
		switch ev := e.(type) {
		case events.CallCaptured:
			captured++
			if ev.Source != "import" || !ev.Synced {
				t.Fatalf("unexpected captured event %+v", ev)
			}
		case events.ImportCompleted:
			done = &ev
		}
	}
	if captured != 2 || done == nil || done.Imported != 2 || done.TelegramID != 42 {
		t.Fatalf("captured=%d completed=%+v", captured, done)
	}
}

func TestImportRejectsMalformedDates(t *testing.T) {
	f := newFixture(t)
	file := "ООО Ромашка;5408130693;Петров;;;31.02.25;звонок\n"

	report, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Failed != 1 || !strings.Contains(report.Errors[0].Message, "next contact") {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestImportSaveFailureStillSyncs(t *testing.T) {
	f := newFixture(t)
	f.calls.err = errors.New("db down")
	file := "ООО Ромашка;5408130693;Петров;;;;звонок\n"

	report, err := f.svc.Import(context.Background(), manager, "calls.csv", strings.NewReader(file))
	if err != nil || report.Imported != 1 {
		t.Fatalf("report=%+v err=%v", report, err)
	}
}
