package conversation

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/enrichment/service"
	"crmbot/internal/importer"
	"crmbot/internal/ledger/agenda"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/platform/apperr"
	"crmbot/platform/logger"

	"github.com/google/uuid"
)

const (
	adminID    int64 = 1
	operatorID int64 = 101
	strangerID int64 = 999
	chatID     int64 = 5000
)

var captureTime = time.Date(2025, 2, 1, 10, 30, 0, 0, time.UTC)

type fakeManagers struct {
	mu      sync.Mutex
	byID    map[int64]domain.Manager
	err     error
	created []domain.Manager
}

func newFakeManagers(ms ...domain.Manager) *fakeManagers {
	f := &fakeManagers{byID: map[int64]domain.Manager{}}
	for _, m := range ms {
		f.byID[m.TelegramID] = m
	}
	return f
}

func (f *fakeManagers) GetByTelegramID(_ context.Context, id int64) (domain.Manager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Manager{}, f.err
	}
	m, ok := f.byID[id]
	if !ok {
		return domain.Manager{}, apperr.NotFound("manager not found")
	}
	return m, nil
}

func (f *fakeManagers) ListActive(context.Context) ([]domain.Manager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Manager
	for _, m := range f.byID {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeManagers) Create(_ context.Context, m domain.Manager) (domain.Manager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[m.TelegramID]; ok {
		return domain.Manager{}, apperr.Conflict("manager exists")
	}
	m.ID = uuid.New()
	f.byID[m.TelegramID] = m
	f.created = append(f.created, m)
	return m, nil
}

type fakeCalls struct {
	mu      sync.Mutex
	saved   []domain.CallRecord
	prior   map[string]domain.CallRecord
	saveErr error
}

func (f *fakeCalls) Save(_ context.Context, rec domain.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeCalls) Latest(_ context.Context, _ int64, taxID string) (domain.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.prior[taxID]
	if !ok {
		return domain.CallRecord{}, apperr.NotFound("no prior call")
	}
	return rec, nil
}

type fakeEnricher struct {
	result  service.Result
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeEnricher) Fetch(ctx context.Context, _ string) service.Result {
	f.calls++
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.result
}

type upsertCall struct {
	target ledgersync.Target
	rec    domain.CallRecord
	snap   *domain.CompanySnapshot
}

type fakeSyncer struct {
	mu      sync.Mutex
	calls   []upsertCall
	outcome ledgersync.Outcome
}

func (f *fakeSyncer) Upsert(_ context.Context, t ledgersync.Target, rec domain.CallRecord, snap *domain.CompanySnapshot) ledgersync.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upsertCall{target: t, rec: rec, snap: snap})
	if f.outcome.Operator.Action == "" {
		return ledgersync.Outcome{
			Operator:  ledgersync.LedgerOutcome{LedgerID: t.OperatorLedgerID, Action: ledgersync.ActionInserted},
			Aggregate: ledgersync.LedgerOutcome{LedgerID: "aggregate", Action: ledgersync.ActionInserted},
		}
	}
	return f.outcome
}

type fakeProvisioner struct {
	titles []string
	err    error
}

func (f *fakeProvisioner) CreateLedger(_ context.Context, title string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.titles = append(f.titles, title)
	return "sheet-" + title, nil
}

type fakeImporter struct {
	manager  domain.Manager
	fileName string
	body     string
	report   importer.Report
}

func (f *fakeImporter) Import(_ context.Context, m domain.Manager, fileName string, r io.Reader) (importer.Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return importer.Report{}, err
	}
	f.manager, f.fileName, f.body = m, fileName, string(data)
	return f.report, nil
}

type fakeAgenda struct {
	entries []agenda.Entry
	err     error
	day     time.Time
}

func (f *fakeAgenda) Due(_ context.Context, _ string, day time.Time) ([]agenda.Entry, error) {
	f.day = day
	return f.entries, f.err
}

var errLedgerDown = errors.New("sheets: 503")

type harness struct {
	machine  *Machine
	store    *MemoryStore
	managers *fakeManagers
	calls    *fakeCalls
	enricher *fakeEnricher
	syncer   *fakeSyncer
	prov     *fakeProvisioner
	imp      *fakeImporter
	agenda   *fakeAgenda
}

func newHarness() *harness {
	h := &harness{
		store: NewMemoryStore(time.Hour),
		managers: newFakeManagers(domain.Manager{
			ID: uuid.New(), TelegramID: operatorID, FullName: "Иван Петров", LedgerID: "ledger-ivan", Active: true,
		}),
		calls:    &fakeCalls{prior: map[string]domain.CallRecord{}},
		enricher: &fakeEnricher{},
		syncer:   &fakeSyncer{},
		prov:     &fakeProvisioner{},
		imp:      &fakeImporter{},
		agenda:   &fakeAgenda{},
	}
	h.machine = New(Deps{
		Managers:    h.managers,
		Calls:       h.calls,
		Enricher:    h.enricher,
		Syncer:      h.syncer,
		Provisioner: h.prov,
		Importer:    h.imp,
		Agenda:      h.agenda,
		Log:         logger.Nop(),
		Location:    time.UTC,
		Now:         func() time.Time { return captureTime },
		Admins:      []int64{adminID},
	}, h.store)
	return h
}

func (h *harness) close() { h.store.Close() }

func (h *harness) text(user int64, text string) Reply {
	return h.machine.Handle(context.Background(), Input{ChatID: chatID + user, UserID: user, Text: text})
}

func (h *harness) act(user int64, a Action, arg string) Reply {
	return h.machine.Handle(context.Background(), Input{ChatID: chatID + user, UserID: user, Action: a, Arg: arg})
}

func (h *harness) state(user int64) State {
	sess, err := h.store.Get(context.Background(), chatID+user)
	if err != nil {
		panic(err)
	}
	return stateOf(sess)
}
