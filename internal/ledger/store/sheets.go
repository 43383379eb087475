package store

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"crmbot/internal/ledger/schema"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const valueInputRaw = "RAW"

var updatedRangeRow = regexp.MustCompile(`![A-Z]+(\d+)`)

// SheetsBackend talks to the Google Sheets v4 API. Every ledger uses its first tab.
type SheetsBackend struct {
	svc  *sheets.Service
	gids sync.Map // ledgerID -> int64 sheet id of the first tab
}

// NewSheetsBackend authenticates with a service account key file.
func NewSheetsBackend(ctx context.Context, credentialsFile string) (*SheetsBackend, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &SheetsBackend{svc: svc}, nil
}

// NewSheetsBackendWithService wraps an existing service, e.g. one pointed at a test server.
func NewSheetsBackendWithService(svc *sheets.Service) *SheetsBackend {
	return &SheetsBackend{svc: svc}
}

func (b *SheetsBackend) ReadRange(ctx context.Context, ledgerID string, r Range) ([][]string, error) {
	resp, err := b.svc.Spreadsheets.Values.Get(ledgerID, a1(r)).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cellString(v)
		}
		out[i] = cells
	}
	return out, nil
}

func (b *SheetsBackend) WriteRows(ctx context.Context, ledgerID string, fromRow int, rows [][]any) error {
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = r
	}
	_, err := b.svc.Spreadsheets.Values.Update(ledgerID, fmt.Sprintf("A%d", fromRow), &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	return err
}

func (b *SheetsBackend) AppendRow(ctx context.Context, ledgerID string, row []any) (int, error) {
	resp, err := b.svc.Spreadsheets.Values.Append(ledgerID, "A:A", &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, err
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return rowFromUpdatedRange(resp.Updates.UpdatedRange), nil
}

func (b *SheetsBackend) BatchWrite(ctx context.Context, ledgerID string, updates []CellUpdate) error {
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s%d", schema.ColumnLetter(u.Col), u.Row),
			Values: [][]interface{}{{u.Value}},
		})
	}
	_, err := b.svc.Spreadsheets.Values.BatchUpdate(ledgerID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: valueInputRaw,
		Data:             data,
	}).Context(ctx).Do()
	return err
}

func (b *SheetsBackend) ApplyFormat(ctx context.Context, ledgerID string, f Format) error {
	gid, err := b.firstSheetID(ctx, ledgerID)
	if err != nil {
		return err
	}

	requests := []*sheets.Request{{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{SheetId: gid, StartRowIndex: 0, EndRowIndex: 1},
			Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
				BackgroundColor:     &sheets.Color{Red: 0.8, Green: 0.8, Blue: 0.8},
				TextFormat:          &sheets.TextFormat{Bold: true},
				HorizontalAlignment: "CENTER",
				WrapStrategy:        "WRAP",
			}},
			Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment,wrapStrategy)",
		},
	}}

	for _, col := range f.CurrencyColumns {
		requests = append(requests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          gid,
					StartRowIndex:    1,
					StartColumnIndex: int64(col),
					EndColumnIndex:   int64(col + 1),
				},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					NumberFormat: &sheets.NumberFormat{Type: "CURRENCY", Pattern: f.CurrencyPattern},
				}},
				Fields: "userEnteredFormat.numberFormat",
			},
		})
	}

	hidden := make(map[int]bool, len(f.HiddenColumns))
	for _, col := range f.HiddenColumns {
		hidden[col] = true
	}
	for col := 0; col < f.Width; col++ {
		requests = append(requests, &sheets.Request{
			UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
				Range: &sheets.DimensionRange{
					SheetId:    gid,
					Dimension:  "COLUMNS",
					StartIndex: int64(col),
					EndIndex:   int64(col + 1),
				},
				Properties: &sheets.DimensionProperties{
					HiddenByUser:    hidden[col],
					ForceSendFields: []string{"HiddenByUser"},
				},
				Fields: "hiddenByUser",
			},
		})
	}

	_, err = b.svc.Spreadsheets.BatchUpdate(ledgerID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).
		Do()
	return err
}

func (b *SheetsBackend) Create(ctx context.Context, title string) (string, error) {
	created, err := b.svc.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title, Locale: "ru_RU"},
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.SpreadsheetId, nil
}

func (b *SheetsBackend) firstSheetID(ctx context.Context, ledgerID string) (int64, error) {
	if v, ok := b.gids.Load(ledgerID); ok {
		return v.(int64), nil
	}
	resp, err := b.svc.Spreadsheets.Get(ledgerID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read sheet properties: %w", err)
	}
	if len(resp.Sheets) == 0 || resp.Sheets[0].Properties == nil {
		return 0, fmt.Errorf("spreadsheet %s has no sheets", ledgerID)
	}
	gid := resp.Sheets[0].Properties.SheetId
	b.gids.Store(ledgerID, gid)
	return gid, nil
}

func a1(r Range) string {
	from := fmt.Sprintf("%s%d", schema.ColumnLetter(r.FromCol), r.FromRow)
	to := schema.ColumnLetter(r.ToCol)
	if r.ToRow > 0 {
		to += strconv.Itoa(r.ToRow)
	}
	return from + ":" + to
}

func rowFromUpdatedRange(updated string) int {
	m := updatedRangeRow.FindStringSubmatch(updated)
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
