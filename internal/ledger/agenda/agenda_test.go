package agenda

import (
	"context"
	"strings"
	"testing"
	"time"

	"crmbot/internal/ledger/schema"
	"crmbot/internal/ledger/store"
	"crmbot/platform/logger"
)

func TestDueFiltersByNextContactDate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryBackend()
	mem.AddLedger("l")
	s := store.New(mem, schema.MustLoad().Operator, logger.Nop())
	if _, err := s.EnsureSchema(ctx, "l"); err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("я", 80)
	_, _ = s.AppendRow(ctx, "l", store.Values{schema.TaxID: "7707083893", schema.CompanyName: "Сбер", schema.NextContactDate: "01.02.25", schema.History: long + "\n---\nстарое"})
	_, _ = s.AppendRow(ctx, "l", store.Values{schema.TaxID: "7736050003", schema.CompanyName: "Газпром", schema.NextContactDate: "02.02.25"})

	due, err := New(s).Due(ctx, "l", time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].TaxID != "7707083893" {
		t.Fatalf("unexpected due list %+v", due)
	}
	if got := []rune(due[0].LastComment); len(got) != previewRunes+1 {
		t.Fatalf("expected preview truncated to %d runes plus ellipsis, got %d", previewRunes, len(got))
	}
}
