// Package ledgersync upserts captured calls into the operator ledger and the
// aggregated ledger. The two writes are independent and best-effort: a failure
// on one never rolls back the other, and no error escapes Upsert.
package ledgersync

import (
	"context"
	"strings"

	"crmbot/internal/domain"
	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
	"crmbot/platform/logger"
)

// Ledger is the subset of the store the engine needs.
type Ledger interface {
	Schema() *schema.Schema
	EnsureSchema(ctx context.Context, ledgerID string) (schema.MigrationPlan, error)
	FindRow(ctx context.Context, ledgerID, taxID string) (store.Row, bool, error)
	AppendRow(ctx context.Context, ledgerID string, values store.Values) (int, error)
	UpdateCells(ctx context.Context, ledgerID string, row int, values store.Values) error
}

// Recorder receives one observation per ledger write.
type Recorder interface {
	LedgerWrite(ledger string, action string)
}

type nopRecorder struct{}

func (nopRecorder) LedgerWrite(string, string) {}

// Action is what happened to one ledger.
type Action string

const (
	ActionInserted  Action = "inserted"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// LedgerOutcome reports one ledger write.
type LedgerOutcome struct {
	LedgerID string
	Action   Action
	Row      int
	Err      error
}

// OK is false only for a failed write.
func (o LedgerOutcome) OK() bool { return o.Action != ActionFailed }

// Outcome reports both writes. They may disagree: the ledgers are not kept
// strongly consistent with each other.
type Outcome struct {
	Operator  LedgerOutcome
	Aggregate LedgerOutcome
}

// OK reports whether every attempted write succeeded.
func (o Outcome) OK() bool { return o.Operator.OK() && o.Aggregate.OK() }

// Target names the operator whose ledger receives the record.
type Target struct {
	OperatorLedgerID string
	OperatorName     string
}

// Engine performs upserts.
type Engine struct {
	operator    Ledger
	aggregate   Ledger
	aggregateID string
	recorder    Recorder
	log         *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New creates an engine. An empty aggregateID disables the aggregated ledger.
func New(operator, aggregate Ledger, aggregateID string, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		operator:    operator,
		aggregate:   aggregate,
		aggregateID: aggregateID,
		recorder:    nopRecorder{},
		log:         log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AggregateID returns the aggregated ledger id, "" when disabled.
func (e *Engine) AggregateID() string { return e.aggregateID }

// Upsert writes rec into the operator ledger and the aggregated ledger.
// Existing rows only get their follow-up date and history refreshed; enrichment
// columns are written on insert and otherwise only by Refresh.
func (e *Engine) Upsert(ctx context.Context, t Target, rec domain.CallRecord, snap *domain.CompanySnapshot) Outcome {
	values := RenderRecord(rec, snap)

	out := Outcome{
		Operator: e.upsertOne(ctx, "operator", e.operator, t.OperatorLedgerID, rec.TaxID, values, nil),
	}

	if e.aggregateID == "" {
		out.Aggregate = LedgerOutcome{Action: ActionSkipped}
		return out
	}

	aggValues := make(store.Values, len(values)+1)
	for f, v := range values {
		aggValues[f] = v
	}
	aggValues[schema.History] = TagOperator(t.OperatorName, rec.Comment)
	aggValues[schema.OperatorName] = t.OperatorName

	out.Aggregate = e.upsertOne(ctx, "aggregate", e.aggregate, e.aggregateID, rec.TaxID, aggValues,
		[]schema.Field{schema.OperatorName})
	return out
}

// upsertOne runs ensure-schema, lookup and then append or partial update.
// extra lists fields rewritten on update besides next date and history.
func (e *Engine) upsertOne(ctx context.Context, kind string, l Ledger, ledgerID, taxID string, values store.Values, extra []schema.Field) (res LedgerOutcome) {
	res = LedgerOutcome{LedgerID: ledgerID}
	defer func() {
		e.recorder.LedgerWrite(kind, string(res.Action))
		e.log.SyncOutcome(kind+":"+ledgerID, taxID, string(res.Action), res.Err)
	}()

	if ledgerID == "" {
		res.Action = ActionSkipped
		return res
	}

	if _, err := l.EnsureSchema(ctx, ledgerID); err != nil {
		return failed(res, err)
	}

	row, found, err := l.FindRow(ctx, ledgerID, taxID)
	if err != nil {
		return failed(res, err)
	}

	if !found {
		idx, err := l.AppendRow(ctx, ledgerID, values)
		if err != nil {
			return failed(res, err)
		}
		res.Action = ActionInserted
		res.Row = idx
		return res
	}

	res.Row = row.Index
	current := func(f schema.Field) string {
		i, ok := l.Schema().Index(f)
		if !ok || i >= len(row.Cells) {
			return ""
		}
		return row.Cells[i]
	}

	update := store.Values{
		schema.NextContactDate: values[schema.NextContactDate],
		schema.History:         MergeHistory(current(schema.History), values[schema.History]),
	}
	for _, f := range extra {
		update[f] = values[f]
	}

	changed := false
	for f, v := range update {
		if strings.TrimSpace(current(f)) != strings.TrimSpace(v) {
			changed = true
			break
		}
	}
	if !changed {
		res.Action = ActionUnchanged
		return res
	}

	if err := l.UpdateCells(ctx, ledgerID, row.Index, update); err != nil {
		return failed(res, err)
	}
	res.Action = ActionUpdated
	return res
}

// Refresh overwrites the enrichment columns of an existing row in both ledgers
// with the fields snap supplies. A company absent from a ledger is skipped.
func (e *Engine) Refresh(ctx context.Context, t Target, taxID string, snap *domain.CompanySnapshot) Outcome {
	out := Outcome{
		Operator: e.refreshOne(ctx, "operator", e.operator, t.OperatorLedgerID, taxID, snap),
	}
	if e.aggregateID == "" {
		out.Aggregate = LedgerOutcome{Action: ActionSkipped}
		return out
	}
	out.Aggregate = e.refreshOne(ctx, "aggregate", e.aggregate, e.aggregateID, taxID, snap)
	return out
}

func (e *Engine) refreshOne(ctx context.Context, kind string, l Ledger, ledgerID, taxID string, snap *domain.CompanySnapshot) (res LedgerOutcome) {
	res = LedgerOutcome{LedgerID: ledgerID, Action: ActionSkipped}
	defer func() {
		e.recorder.LedgerWrite(kind, string(res.Action))
		e.log.SyncOutcome(kind+":"+ledgerID, taxID, "refresh_"+string(res.Action), res.Err)
	}()

	values := refreshValues(l.Schema(), snap)
	if ledgerID == "" || len(values) == 0 {
		return res
	}
	if _, err := l.EnsureSchema(ctx, ledgerID); err != nil {
		return failed(res, err)
	}
	row, found, err := l.FindRow(ctx, ledgerID, taxID)
	if err != nil {
		return failed(res, err)
	}
	if !found {
		return res
	}
	res.Row = row.Index
	if err := l.UpdateCells(ctx, ledgerID, row.Index, values); err != nil {
		return failed(res, err)
	}
	res.Action = ActionUpdated
	return res
}

func failed(res LedgerOutcome, err error) LedgerOutcome {
	res.Action = ActionFailed
	res.Err = err
	return res
}
