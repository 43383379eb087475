// Package admin holds the operator-facing maintenance operations shared by the
// ops HTTP endpoints and the ledgerctl CLI: bulk import for a manager,
// explicit re-enrichment of one company and schema reconciliation of every
// ledger.
package admin

import (
	"context"
	"io"

	"crmbot/internal/domain"
	"crmbot/internal/enrichment/service"
	"crmbot/internal/importer"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/internal/ledger/schema"
	"crmbot/platform/apperr"
	"crmbot/platform/logger"
)

// Managers looks up operators.
type Managers interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (domain.Manager, error)
	ListActive(ctx context.Context) ([]domain.Manager, error)
}

// Importer runs a bulk import for one manager.
type Importer interface {
	Import(ctx context.Context, m domain.Manager, fileName string, r io.Reader) (importer.Report, error)
}

// Refetcher fetches a fresh snapshot, bypassing any cache.
type Refetcher interface {
	Refetch(ctx context.Context, taxID string) service.Result
}

// Refresher overwrites enrichment columns of existing rows.
type Refresher interface {
	Refresh(ctx context.Context, t ledgersync.Target, taxID string, snap *domain.CompanySnapshot) ledgersync.Outcome
}

// SchemaEnsurer reconciles one ledger with its layout.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context, ledgerID string) (schema.MigrationPlan, error)
}

// Service runs maintenance operations.
type Service struct {
	managers    Managers
	importer    Importer
	enricher    Refetcher
	refresher   Refresher
	operator    SchemaEnsurer
	aggregate   SchemaEnsurer
	aggregateID string
	log         *logger.Logger
}

// Deps are the collaborators of a Service.
type Deps struct {
	Managers    Managers
	Importer    Importer
	Enricher    Refetcher
	Refresher   Refresher
	Operator    SchemaEnsurer
	Aggregate   SchemaEnsurer
	AggregateID string
	Log         *logger.Logger
}

// New creates a Service.
func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		managers:    d.Managers,
		importer:    d.Importer,
		enricher:    d.Enricher,
		refresher:   d.Refresher,
		operator:    d.Operator,
		aggregate:   d.Aggregate,
		aggregateID: d.AggregateID,
		log:         log,
	}
}

// RefreshResult reports one re-enrichment.
type RefreshResult struct {
	TaxID   string
	Status  service.Status
	Outcome ledgersync.Outcome
}

// LedgerPlan reports the reconciliation of one ledger.
type LedgerPlan struct {
	Kind     string
	Owner    string
	LedgerID string
	Plan     schema.MigrationPlan
	Err      error
}

// Import runs a bulk import into the ledger of the manager with telegramID.
func (s *Service) Import(ctx context.Context, telegramID int64, fileName string, r io.Reader) (importer.Report, error) {
	m, err := s.manager(ctx, telegramID)
	if err != nil {
		return importer.Report{}, err
	}
	report, err := s.importer.Import(ctx, m, fileName, r)
	if err != nil {
		return report, apperr.Wrap(apperr.KindValidation, "unreadable import file", err).WithOp("admin.Import")
	}
	return report, nil
}

// Refresh fetches a fresh snapshot for rawTaxID and overwrites the enrichment
// columns of the matching rows. An unavailable provider is an error because
// there is nothing to write.
func (s *Service) Refresh(ctx context.Context, telegramID int64, rawTaxID string) (RefreshResult, error) {
	taxID, ok := domain.ParseTaxID(rawTaxID)
	if !ok {
		return RefreshResult{}, apperr.Validation("tax id must have 10 or 12 digits")
	}
	m, err := s.manager(ctx, telegramID)
	if err != nil {
		return RefreshResult{}, err
	}

	fetched := s.enricher.Refetch(ctx, taxID)
	res := RefreshResult{TaxID: taxID, Status: fetched.Status}
	if fetched.Snapshot == nil {
		return res, apperr.Unavailable("company data unavailable", nil).WithOp("admin.Refresh")
	}

	res.Outcome = s.refresher.Refresh(ctx, ledgersync.Target{
		OperatorLedgerID: m.LedgerID,
		OperatorName:     m.FullName,
	}, taxID, fetched.Snapshot)
	if !res.Outcome.OK() {
		return res, apperr.Persistence("ledger refresh failed", firstErr(res.Outcome)).WithOp("admin.Refresh")
	}
	return res, nil
}

// Reconcile runs EnsureSchema on every active manager's ledger and on the
// aggregated ledger. Failures are reported per ledger; the error is only for
// a failed manager listing.
func (s *Service) Reconcile(ctx context.Context) ([]LedgerPlan, error) {
	managers, err := s.managers.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	plans := make([]LedgerPlan, 0, len(managers)+1)
	for _, m := range managers {
		if m.LedgerID == "" {
			continue
		}
		p := LedgerPlan{Kind: "operator", Owner: m.FullName, LedgerID: m.LedgerID}
		p.Plan, p.Err = s.operator.EnsureSchema(ctx, m.LedgerID)
		plans = append(plans, p)
	}
	if s.aggregateID != "" {
		p := LedgerPlan{Kind: "aggregate", LedgerID: s.aggregateID}
		p.Plan, p.Err = s.aggregate.EnsureSchema(ctx, s.aggregateID)
		plans = append(plans, p)
	}

	for _, p := range plans {
		if p.Err != nil {
			s.log.Error("ledger reconcile failed", "ledger", p.LedgerID, "error", p.Err)
			continue
		}
		s.log.Info("ledger reconciled", "ledger", p.LedgerID, "kind", p.Kind,
			"noop", p.Plan.NoOp(), "dropped", len(p.Plan.Dropped), "added", len(p.Plan.Added))
	}
	return plans, nil
}

func (s *Service) manager(ctx context.Context, telegramID int64) (domain.Manager, error) {
	if telegramID <= 0 {
		return domain.Manager{}, apperr.Validation("telegram id must be a positive integer")
	}
	m, err := s.managers.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return domain.Manager{}, err
	}
	if !m.Active {
		return domain.Manager{}, apperr.NotFound("manager is not active")
	}
	return m, nil
}

func firstErr(o ledgersync.Outcome) error {
	if o.Operator.Err != nil {
		return o.Operator.Err
	}
	return o.Aggregate.Err
}
