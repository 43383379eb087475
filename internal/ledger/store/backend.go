// Package store provides read, append and partial-update primitives over a
// spreadsheet-backed ledger, addressed through the column schema.
package store

import "context"

// Range addresses a rectangle of cells. Rows are 1-based sheet rows; ToRow 0
// means "to the last row". Columns are 0-based and inclusive.
type Range struct {
	FromRow int
	ToRow   int
	FromCol int
	ToCol   int
}

// CellUpdate writes one value into one cell.
type CellUpdate struct {
	Row   int
	Col   int
	Value any
}

// Format describes column presentation re-applied on schema reconciliation.
type Format struct {
	Width           int
	CurrencyColumns []int
	CurrencyPattern string
	HiddenColumns   []int
}

// Backend is the transport to one spreadsheet service.
// Cell values handed to writes are string, int64 or float64.
type Backend interface {
	ReadRange(ctx context.Context, ledgerID string, r Range) ([][]string, error)
	WriteRows(ctx context.Context, ledgerID string, fromRow int, rows [][]any) error
	AppendRow(ctx context.Context, ledgerID string, row []any) (int, error)
	BatchWrite(ctx context.Context, ledgerID string, updates []CellUpdate) error
	ApplyFormat(ctx context.Context, ledgerID string, f Format) error
	Create(ctx context.Context, title string) (string, error)
}
