// Package importer replays rows of a delimited file through the same
// validation and upsert path as a captured conversation.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/events"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/platform/logger"
	"crmbot/platform/validator"

	"github.com/google/uuid"
)

const maxFileBytes = 10 << 20

// Syncer upserts one record into the ledgers.
type Syncer interface {
	Upsert(ctx context.Context, t ledgersync.Target, rec domain.CallRecord, snap *domain.CompanySnapshot) ledgersync.Outcome
}

// CallLog is the secondary store of captured records.
type CallLog interface {
	Save(ctx context.Context, rec domain.CallRecord) error
}

// Archiver keeps a copy of uploaded files.
type Archiver interface {
	Put(ctx context.Context, telegramID int64, fileName string, data []byte) (string, error)
}

// RowError explains why one line was not imported.
type RowError struct {
	Line    int    `json:"line"`
	TaxID   string `json:"taxId,omitempty"`
	Message string `json:"message"`
}

// Report summarises an import.
type Report struct {
	Imported   int        `json:"imported"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors,omitempty"`
	ArchiveKey string     `json:"archiveKey,omitempty"`
	LedgerURL  string     `json:"ledgerUrl"`
}

// Service imports files.
type Service struct {
	syncer   Syncer
	calls    CallLog
	archiver Archiver
	val      *validator.Validator
	bus      events.Bus
	log      *logger.Logger
	loc      *time.Location
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithArchiver stores every uploaded file before it is processed.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an import service. loc is the zone capture dates are stamped in.
func New(syncer Syncer, calls CallLog, val *validator.Validator, bus events.Bus, loc *time.Location, log *logger.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		syncer: syncer,
		calls:  calls,
		val:    val,
		bus:    bus,
		log:    log,
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import processes every row of r for manager m. Rows are independent: a bad
// row is reported and the rest continue. Only an unreadable file is an error.
func (s *Service) Import(ctx context.Context, m domain.Manager, fileName string, r io.Reader) (Report, error) {
	report := Report{LedgerURL: domain.LedgerURL(m.LedgerID)}

	data, err := io.ReadAll(io.LimitReader(r, maxFileBytes+1))
	if err != nil {
		return report, fmt.Errorf("read upload: %w", err)
	}

	if s.archiver != nil {
		key, err := s.archiver.Put(ctx, m.TelegramID, fileName, data)
		if err != nil {
			s.log.Warn("import archive failed", "file", fileName, "error", err)
		} else {
			report.ArchiveKey = key
		}
	}

	records, err := readRows(bytes.NewReader(data))
	if err != nil {
		return report, err
	}

	target := ledgersync.Target{OperatorLedgerID: m.LedgerID, OperatorName: m.FullName}
	for i, cells := range records {
		line := i + 1
		if len(cells) == 1 && cells[0] == "" {
			continue
		}
		rw := newRow(line, cells)

		if i == 0 && !domain.ValidTaxID(rw.TaxID) {
			continue // header
		}
		if len(cells) < minColumns {
			report.fail(line, rw.TaxID, fmt.Sprintf("expected at least %d columns, got %d", minColumns, len(cells)))
			continue
		}
		if err := s.val.Struct(rw); err != nil {
			report.fail(line, rw.TaxID, describe(err))
			continue
		}

		rec, snap := s.toRecord(m, rw)
		if err := s.calls.Save(ctx, rec); err != nil {
			s.log.DatabaseError("import save call", err)
		}
		out := s.syncer.Upsert(ctx, target, rec, snap)
		if !out.Operator.OK() {
			report.fail(line, rw.TaxID, fmt.Sprintf("ledger sync failed: %v", out.Operator.Err))
			continue
		}
		report.Imported++

		if s.bus != nil {
			s.bus.Publish(ctx, events.CallCaptured{
				BaseEvent:    events.NewBaseEvent(),
				Record:       rec,
				OperatorName: m.FullName,
				Source:       "import",
				Synced:       out.OK(),
			})
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.ImportCompleted{
			BaseEvent:  events.NewBaseEvent(),
			TelegramID: m.TelegramID,
			FileName:   fileName,
			Imported:   report.Imported,
			Failed:     report.Failed,
			ArchiveKey: report.ArchiveKey,
		})
	}
	s.log.Info("import finished", "file", fileName, "operator", m.FullName, "imported", report.Imported, "failed", report.Failed)
	return report, nil
}

func (s *Service) toRecord(m domain.Manager, rw row) (domain.CallRecord, *domain.CompanySnapshot) {
	now := s.now().In(s.loc)
	created := now
	if rw.FirstContact != "" {
		if d, err := domain.ParseDate(rw.FirstContact); err == nil {
			created = time.Date(d.Year(), d.Month(), d.Day(), now.Hour(), now.Minute(), now.Second(), 0, s.loc)
		}
	}
	var next *time.Time
	if rw.NextContact != "" {
		if d, err := domain.ParseDate(rw.NextContact); err == nil {
			next = &d
		}
	}
	name := rw.CompanyName
	if name == "" {
		name = domain.UnknownCompany
	}
	snap := rw.snapshot()
	rec := domain.CallRecord{
		ID:              uuid.New(),
		OperatorID:      m.TelegramID,
		Kind:            domain.SessionNew,
		TaxID:           rw.TaxID,
		CompanyName:     name,
		ContactName:     cell(rw.Cells, colContactName),
		ContactPhone:    cell(rw.Cells, colPhone),
		Comment:         rw.history(domain.FormatDate(created)),
		NextContactDate: next,
		CreatedAt:       created,
	}
	if snap != nil && snap.Email != nil && s.val.Var(*snap.Email, "email") == nil {
		rec.ContactEmail = *snap.Email
	}
	return rec, snap
}

func (r *Report) fail(line int, taxID, msg string) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{Line: line, TaxID: taxID, Message: msg})
}
