package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"crmbot/internal/events"
	"crmbot/platform/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	m := New()
	m.LedgerWrite("operator", "inserted")
	m.LedgerWrite("operator", "inserted")
	m.LedgerWrite("aggregate", "failed")
	m.EnrichmentFetch("finance", "tier_limited")

	if got := testutil.ToFloat64(m.LedgerWrites.WithLabelValues("operator", "inserted")); got != 2 {
		t.Fatalf("operator inserts = %v", got)
	}
	if got := testutil.ToFloat64(m.LedgerWrites.WithLabelValues("aggregate", "failed")); got != 1 {
		t.Fatalf("aggregate failures = %v", got)
	}
	if got := testutil.ToFloat64(m.EnrichmentCalls.WithLabelValues("finance", "tier_limited")); got != 1 {
		t.Fatalf("finance fetches = %v", got)
	}
}

func TestEventSubscriptions(t *testing.T) {
	m := New()
	bus := events.NewInMemoryBus(logger.Nop())
	m.Subscribe(bus)
	ctx := context.Background()

	_ = bus.PublishSync(ctx, events.CallCaptured{Source: "chat", Synced: true})
	_ = bus.PublishSync(ctx, events.CallCaptured{Source: "import", Synced: false})
	_ = bus.PublishSync(ctx, events.ImportCompleted{Imported: 5, Failed: 2})
	_ = bus.PublishSync(ctx, events.ManagerOnboarded{})

	if got := testutil.ToFloat64(m.CallsCaptured.WithLabelValues("chat", "true")); got != 1 {
		t.Fatalf("chat captures = %v", got)
	}
	if got := testutil.ToFloat64(m.ImportRows.WithLabelValues("imported")); got != 5 {
		t.Fatalf("imported rows = %v", got)
	}
	if got := testutil.ToFloat64(m.ManagersAdded); got != 1 {
		t.Fatalf("managers = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.LedgerWrite("operator", "updated")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `crmbot_ledger_writes_total{action="updated",ledger="operator"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
