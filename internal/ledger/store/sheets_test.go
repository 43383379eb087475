package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func newSheetsTestBackend(t *testing.T, handler http.HandlerFunc) *SheetsBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}
	return NewSheetsBackendWithService(svc)
}

func TestSheetsAppendRowParsesUpdatedRange(t *testing.T) {
	var body map[string]any
	b := newSheetsTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":append") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("valueInputOption"); got != "RAW" {
			t.Fatalf("expected RAW input, got %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"'Лист1'!A7:X7"}}`))
	})

	idx, err := b.AppendRow(context.Background(), "sheet-1", []any{"ПАО", "7707083893", int64(1500)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if idx != 7 {
		t.Fatalf("expected row 7, got %d", idx)
	}
	values := body["values"].([]any)[0].([]any)
	if values[2].(float64) != 1500 {
		t.Fatalf("expected numeric cell, got %#v", values[2])
	}
}

func TestSheetsReadRangeStringifiesNumbers(t *testing.T) {
	b := newSheetsTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/values/B2:B") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"values":[["7707083893"],[],[7736050003]]}`))
	})

	rows, err := b.ReadRange(context.Background(), "sheet-1", Range{FromRow: 2, FromCol: 1, ToCol: 1})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "7707083893" || len(rows[1]) != 0 || rows[2][0] != "7736050003" {
		t.Fatalf("unexpected rows %#v", rows)
	}
}

func TestSheetsBatchWriteAddressesSingleCells(t *testing.T) {
	var req sheets.BatchUpdateValuesRequest
	b := newSheetsTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(`{}`))
	})

	err := b.BatchWrite(context.Background(), "sheet-1", []CellUpdate{
		{Row: 5, Col: 4, Value: "01.03.25"},
		{Row: 5, Col: 5, Value: "hist"},
	})
	if err != nil {
		t.Fatalf("batch write: %v", err)
	}
	if req.ValueInputOption != "RAW" || len(req.Data) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Data[0].Range != "E5" || req.Data[1].Range != "F5" {
		t.Fatalf("unexpected ranges %q %q", req.Data[0].Range, req.Data[1].Range)
	}
}

func TestA1(t *testing.T) {
	if got := a1(Range{FromRow: 1, ToRow: 1, FromCol: 0, ToCol: 23}); got != "A1:X1" {
		t.Fatalf("got %s", got)
	}
	if got := a1(Range{FromRow: 2, FromCol: 0, ToCol: 24}); got != "A2:Y" {
		t.Fatalf("got %s", got)
	}
}
