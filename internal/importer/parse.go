package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"crmbot/internal/domain"
)

const minColumns = 7

// Positional layout of an import file.
const (
	colCompanyName = iota
	colTaxID
	colContactName
	colPhone
	colFirstContact
	colNextContact
	colComment
	colCommentOlder
	colCommentOldest
	colRevenueCurrent
	colRevenuePrior
	colEquity
	colFixedAssets
	colReceivables
	colPayables
	colRegion
	colClassificationLabel
	colClassificationCode
	colGovContracts
	colLitigationSum
	colBankruptcy
	_ // phone, duplicated by some exports
	colEmail
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// row is one parsed import line before validation.
type row struct {
	Line         int
	Cells        []string
	CompanyName  string
	TaxID        string `validate:"required,taxid"`
	FirstContact string `validate:"omitempty,ddmmyy"`
	NextContact  string `validate:"omitempty,ddmmyy"`
}

// readRows decodes the file. The delimiter is ';' when the first line has one, ',' otherwise.
func readRows(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("import file exceeds %d bytes", maxFileBytes)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	firstLine, _, _ := bytes.Cut(data, []byte("\n"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ','
	if bytes.ContainsRune(firstLine, ';') {
		reader.Comma = ';'
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse import file: %w", err)
	}
	return records, nil
}

func newRow(line int, cells []string) row {
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return row{
		Line:         line,
		Cells:        cells,
		CompanyName:  cell(cells, colCompanyName),
		TaxID:        domain.NormalizeTaxID(cell(cells, colTaxID)),
		FirstContact: cell(cells, colFirstContact),
		NextContact:  cell(cells, colNextContact),
	}
}

// history joins the comment columns newest first. Only the newest one is
// stamped with the capture date, and only when it carries no date yet.
func (r row) history(stamp string) string {
	var entries []string
	if c := cell(r.Cells, colComment); c != "" {
		if !domain.HasDateStamp(c) {
			c = stamp + " - " + c
		}
		entries = append(entries, c)
	}
	for _, i := range []int{colCommentOlder, colCommentOldest} {
		if c := cell(r.Cells, i); c != "" {
			entries = append(entries, c)
		}
	}
	return strings.Join(entries, "\n---\n")
}

// snapshot maps the optional enrichment columns. Unparsable numbers are ignored.
func (r row) snapshot() *domain.CompanySnapshot {
	snap := &domain.CompanySnapshot{
		RevenueCurrent:      number(r.Cells, colRevenueCurrent),
		RevenuePrior:        number(r.Cells, colRevenuePrior),
		Equity:              number(r.Cells, colEquity),
		FixedAssets:         number(r.Cells, colFixedAssets),
		Receivables:         number(r.Cells, colReceivables),
		Payables:            number(r.Cells, colPayables),
		Region:              domain.StringPtr(cell(r.Cells, colRegion)),
		ClassificationLabel: domain.StringPtr(cell(r.Cells, colClassificationLabel)),
		ClassificationCode:  domain.StringPtr(cell(r.Cells, colClassificationCode)),
		GovContractsSum:     number(r.Cells, colGovContracts),
		LitigationOpenSum:   number(r.Cells, colLitigationSum),
		Email:               domain.StringPtr(cell(r.Cells, colEmail)),
	}
	switch strings.ToLower(cell(r.Cells, colBankruptcy)) {
	case "да", "yes", "true":
		v := true
		snap.Bankrupt = &v
	case "нет", "no", "false":
		v := false
		snap.Bankrupt = &v
	}
	if snap.IsEmpty() {
		return nil
	}
	return snap
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

func number(cells []string, i int) *int64 {
	raw := strings.NewReplacer(" ", "", "\u00a0", "", "₽", "").Replace(cell(cells, i))
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		n := int64(f)
		return &n
	}
	return nil
}
