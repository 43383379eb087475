// Package ledger provides the composition root for the spreadsheet ledgers:
// backend selection, the operator and aggregated stores, the sync engine and
// the agenda reader.
package ledger

import (
	"context"
	"fmt"

	"crmbot/internal/ledger/agenda"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
	"crmbot/platform/config"
	"crmbot/platform/logger"
)

const backendMemory = "memory"

// Module wires the ledger stores.
type Module struct {
	backend   store.Backend
	operator  *store.Store
	aggregate *store.Store
	engine    *ledgersync.Engine
	agenda    *agenda.Reader
}

// NewModule builds the ledgers on Google Sheets, or in memory when
// LEDGER_BACKEND=memory. recorder may be nil.
func NewModule(ctx context.Context, cfg config.SheetsConfig, recorder ledgersync.Recorder, log *logger.Logger) (*Module, error) {
	var backend store.Backend
	if cfg.GetLedgerBackend() == backendMemory {
		log.Warn("LEDGER_BACKEND=memory, ledgers are not persisted")
		mem := store.NewMemoryBackend()
		if id := cfg.GetSupervisorSheetID(); id != "" {
			mem.AddLedger(id)
		}
		backend = mem
	} else {
		sheets, err := store.NewSheetsBackend(ctx, cfg.GetSheetsCredentialsFile())
		if err != nil {
			return nil, fmt.Errorf("ledger backend: %w", err)
		}
		backend = sheets
	}
	return NewModuleWithBackend(backend, cfg.GetSupervisorSheetID(), recorder, log)
}

// NewModuleWithBackend wires the ledgers on an existing backend. An empty
// aggregateID disables the aggregated ledger.
func NewModuleWithBackend(backend store.Backend, aggregateID string, recorder ledgersync.Recorder, log *logger.Logger) (*Module, error) {
	set, err := schema.Load()
	if err != nil {
		return nil, err
	}
	if aggregateID == "" {
		log.Warn("SUPERVISOR_SHEET_ID not set, aggregated ledger disabled")
	}

	operator := store.New(backend, set.Operator, log)
	aggregate := store.New(backend, set.Aggregate, log)

	var opts []ledgersync.Option
	if recorder != nil {
		opts = append(opts, ledgersync.WithRecorder(recorder))
	}

	return &Module{
		backend:   backend,
		operator:  operator,
		aggregate: aggregate,
		engine:    ledgersync.New(operator, aggregate, aggregateID, log, opts...),
		agenda:    agenda.New(operator),
	}, nil
}

// Operator returns the store for per-operator ledgers.
func (m *Module) Operator() *store.Store { return m.operator }

// Aggregate returns the store for the supervisor ledger.
func (m *Module) Aggregate() *store.Store { return m.aggregate }

// Engine returns the sync engine.
func (m *Module) Engine() *ledgersync.Engine { return m.engine }

// Agenda returns the due-today reader over operator ledgers.
func (m *Module) Agenda() *agenda.Reader { return m.agenda }

// Backend returns the raw backend.
func (m *Module) Backend() store.Backend { return m.backend }
