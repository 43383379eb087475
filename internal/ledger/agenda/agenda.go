// Package agenda reads follow-ups due on a given day from an operator ledger.
package agenda

import (
	"context"
	"strings"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/ledger/ledgersync"
	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
)

const previewRunes = 50

// Entry is one call due today.
type Entry struct {
	CompanyName string
	TaxID       string
	ContactName string
	Phone       string
	LastComment string
	Row         int
}

// RowReader is the part of the ledger store the agenda needs.
type RowReader interface {
	Rows(ctx context.Context, ledgerID string) ([]store.Row, error)
	Get(row store.Row, f schema.Field) string
}

// Reader lists due follow-ups.
type Reader struct {
	rows RowReader
}

// New creates an agenda reader.
func New(rows RowReader) *Reader {
	return &Reader{rows: rows}
}

// Due returns rows whose next-contact cell equals day as DD.MM.YY.
func (r *Reader) Due(ctx context.Context, ledgerID string, day time.Time) ([]Entry, error) {
	rows, err := r.rows.Rows(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	want := domain.FormatDate(day)
	var out []Entry
	for _, row := range rows {
		if strings.TrimSpace(r.rows.Get(row, schema.NextContactDate)) != want {
			continue
		}
		out = append(out, Entry{
			CompanyName: r.rows.Get(row, schema.CompanyName),
			TaxID:       r.rows.Get(row, schema.TaxID),
			ContactName: r.rows.Get(row, schema.ContactName),
			Phone:       r.rows.Get(row, schema.ContactPhone),
			LastComment: preview(ledgersync.HeadEntry(r.rows.Get(row, schema.History))),
			Row:         row.Index,
		})
	}
	return out, nil
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewRunes {
		return s
	}
	return string(runes[:previewRunes]) + "…"
}
