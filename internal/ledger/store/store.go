package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"crmbot/internal/domain"
	"crmbot/internal/ledger/schema"
	"crmbot/platform/logger"
)

const headerRow = 1

// Values maps logical fields to rendered cell text.
type Values map[schema.Field]string

// Row is one data row read back from a ledger.
type Row struct {
	Index int
	Cells []string
}

// Store operates on ledgers sharing one column layout.
type Store struct {
	backend Backend
	schema  *schema.Schema
	log     *logger.Logger
}

// New creates a store for ledgers laid out as s.
func New(backend Backend, s *schema.Schema, log *logger.Logger) *Store {
	return &Store{backend: backend, schema: s, log: log}
}

// Schema returns the layout this store writes.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Get returns the cell for f, or "" when the row is short.
func (s *Store) Get(row Row, f schema.Field) string {
	i, ok := s.schema.Index(f)
	if !ok || i >= len(row.Cells) {
		return ""
	}
	return row.Cells[i]
}

// EnsureSchema makes the header row match the layout exactly. On mismatch it
// migrates existing data into the new positions, rewrites headers and
// re-applies currency formatting and column visibility. A matching sheet is
// left untouched, so calling this before every write is safe.
func (s *Store) EnsureSchema(ctx context.Context, ledgerID string) (schema.MigrationPlan, error) {
	header, err := s.backend.ReadRange(ctx, ledgerID, Range{FromRow: headerRow, ToRow: headerRow, FromCol: 0, ToCol: maxScanColumn})
	if err != nil {
		return schema.MigrationPlan{}, fmt.Errorf("read header row: %w", err)
	}
	var current []string
	if len(header) > 0 {
		current = header[0]
	}

	plan := schema.Plan(current, s.schema)
	if plan.NoOp() {
		return plan, nil
	}

	if len(plan.Dropped) > 0 {
		s.log.Warn("ledger columns outside the layout will be cleared",
			slog.String("ledger", ledgerID),
			slog.Any("headers", plan.Dropped),
		)
	}

	width := max(len(current), s.schema.Width())
	rows := [][]any{padRow(toAny(s.schema.Headers()), width)}

	if plan.Reorder {
		data, err := s.backend.ReadRange(ctx, ledgerID, Range{FromRow: headerRow + 1, FromCol: 0, ToCol: width - 1})
		if err != nil {
			return plan, fmt.Errorf("read rows for migration: %w", err)
		}
		for _, cells := range data {
			if len(cells) > width {
				width = len(cells)
			}
			rows = append(rows, s.encodeRow(plan.Apply(cells, s.schema.Width())))
		}
		for i := range rows {
			rows[i] = padRow(rows[i], width)
		}
	}

	if err := s.backend.WriteRows(ctx, ledgerID, headerRow, rows); err != nil {
		return plan, fmt.Errorf("rewrite ledger layout: %w", err)
	}

	if err := s.backend.ApplyFormat(ctx, ledgerID, s.format()); err != nil {
		return plan, fmt.Errorf("apply column format: %w", err)
	}

	s.log.Info("ledger schema reconciled",
		slog.String("ledger", ledgerID),
		slog.Int("version", s.schema.Version),
		slog.Int("moved", len(plan.Moves)),
		slog.Int("dropped", len(plan.Dropped)),
		slog.Bool("reordered", plan.Reorder),
	)
	return plan, nil
}

// FindRow scans the tax id column; the earliest matching row wins.
func (s *Store) FindRow(ctx context.Context, ledgerID, taxID string) (Row, bool, error) {
	col := s.schema.MustIndex(schema.TaxID)
	cells, err := s.backend.ReadRange(ctx, ledgerID, Range{FromRow: headerRow + 1, FromCol: col, ToCol: col})
	if err != nil {
		return Row{}, false, fmt.Errorf("scan tax id column: %w", err)
	}

	for i, c := range cells {
		if len(c) == 0 || domain.NormalizeTaxID(c[0]) != taxID {
			continue
		}
		index := headerRow + 1 + i
		full, err := s.backend.ReadRange(ctx, ledgerID, Range{FromRow: index, ToRow: index, FromCol: 0, ToCol: s.schema.Width() - 1})
		if err != nil {
			return Row{}, false, fmt.Errorf("read row %d: %w", index, err)
		}
		row := Row{Index: index, Cells: make([]string, s.schema.Width())}
		if len(full) > 0 {
			copy(row.Cells, full[0])
		}
		return row, true, nil
	}
	return Row{}, false, nil
}

// Rows returns every data row, padded to the layout width.
func (s *Store) Rows(ctx context.Context, ledgerID string) ([]Row, error) {
	data, err := s.backend.ReadRange(ctx, ledgerID, Range{FromRow: headerRow + 1, FromCol: 0, ToCol: s.schema.Width() - 1})
	if err != nil {
		return nil, fmt.Errorf("read ledger rows: %w", err)
	}
	rows := make([]Row, 0, len(data))
	for i, cells := range data {
		row := Row{Index: headerRow + 1 + i, Cells: make([]string, s.schema.Width())}
		copy(row.Cells, cells)
		rows = append(rows, row)
	}
	return rows, nil
}

// AppendRow writes a complete row after the last one. Fields missing from
// values are written as empty strings so every column is present.
func (s *Store) AppendRow(ctx context.Context, ledgerID string, values Values) (int, error) {
	cells := make([]string, s.schema.Width())
	for f, v := range values {
		if i, ok := s.schema.Index(f); ok {
			cells[i] = v
		}
	}
	index, err := s.backend.AppendRow(ctx, ledgerID, s.encodeRow(cells))
	if err != nil {
		return 0, fmt.Errorf("append row: %w", err)
	}
	return index, nil
}

// UpdateCells writes only the given fields of one row.
func (s *Store) UpdateCells(ctx context.Context, ledgerID string, row int, values Values) error {
	if row <= headerRow {
		return fmt.Errorf("refusing to update header row %d", row)
	}
	updates := make([]CellUpdate, 0, len(values))
	for f, v := range values {
		i, ok := s.schema.Index(f)
		if !ok {
			continue
		}
		updates = append(updates, CellUpdate{Row: row, Col: i, Value: encodeCell(s.schema.Column(i), v)})
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.backend.BatchWrite(ctx, ledgerID, updates); err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	return nil
}

// CreateLedger creates an empty spreadsheet and lays out the header row.
func (s *Store) CreateLedger(ctx context.Context, title string) (string, error) {
	id, err := s.backend.Create(ctx, title)
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}
	if _, err := s.EnsureSchema(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

func (s *Store) format() Format {
	return Format{
		Width: s.schema.Width(),
		CurrencyColumns: s.schema.Indexes(func(c schema.Column) bool {
			return c.Type == schema.TypeCurrency
		}),
		CurrencyPattern: schema.CurrencyPattern,
		HiddenColumns: s.schema.Indexes(func(c schema.Column) bool {
			return c.Hidden
		}),
	}
}

func (s *Store) encodeRow(cells []string) []any {
	out := make([]any, len(cells))
	for i, v := range cells {
		if i < s.schema.Width() {
			out[i] = encodeCell(s.schema.Column(i), v)
		} else {
			out[i] = v
		}
	}
	return out
}

// encodeCell sends numeric columns as numbers so the sheet's number format applies.
func encodeCell(c schema.Column, v string) any {
	if c.Type != schema.TypeCurrency && c.Type != schema.TypeNumber {
		return v
	}
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return ""
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return v
}

// maxScanColumn bounds the header read; legacy sheets never exceeded column AZ.
const maxScanColumn = 51

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func padRow(row []any, width int) []any {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}
