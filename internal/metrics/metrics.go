// Package metrics exposes Prometheus counters for ledger writes, enrichment
// fetches and captured calls.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"crmbot/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crmbot"

// Metrics satisfies ledgersync.Recorder and service.Recorder.
type Metrics struct {
	LedgerWrites     *prometheus.CounterVec
	EnrichmentCalls  *prometheus.CounterVec
	CallsCaptured    *prometheus.CounterVec
	ImportRows       *prometheus.CounterVec
	ManagersAdded    prometheus.Counter
	HTTPRequestsSeen *prometheus.CounterVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LedgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_writes_total",
			Help:      "Ledger upsert attempts by ledger kind and resulting action",
		}, []string{"ledger", "action"}),
		EnrichmentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_fetches_total",
			Help:      "Enrichment sub-fetches by part and outcome",
		}, []string{"part", "outcome"}),
		CallsCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_captured_total",
			Help:      "Captured call records by source and whether both ledgers were written",
		}, []string{"source", "synced"}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Bulk import rows by result",
		}, []string{"result"}),
		ManagersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "managers_onboarded_total",
			Help:      "Managers registered through the admin flow",
		}),
		HTTPRequestsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Ops HTTP requests by route and status",
		}, []string{"route", "status"}),
	}
	m.registry.MustRegister(
		m.LedgerWrites,
		m.EnrichmentCalls,
		m.CallsCaptured,
		m.ImportRows,
		m.ManagersAdded,
		m.HTTPRequestsSeen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) LedgerWrite(ledger, action string) {
	m.LedgerWrites.WithLabelValues(ledger, action).Inc()
}

func (m *Metrics) EnrichmentFetch(part, outcome string) {
	m.EnrichmentCalls.WithLabelValues(part, outcome).Inc()
}

func (m *Metrics) HTTPRequest(route string, status int) {
	m.HTTPRequestsSeen.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Subscribe counts domain events published on bus.
func (m *Metrics) Subscribe(bus events.Bus) {
	bus.Subscribe(events.CallCaptured{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.CallCaptured); ok {
			m.CallsCaptured.WithLabelValues(ev.Source, strconv.FormatBool(ev.Synced)).Inc()
		}
		return nil
	}))
	bus.Subscribe(events.ImportCompleted{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.ImportCompleted); ok {
			m.ImportRows.WithLabelValues("imported").Add(float64(ev.Imported))
			m.ImportRows.WithLabelValues("failed").Add(float64(ev.Failed))
		}
		return nil
	}))
	bus.Subscribe(events.ManagerOnboarded{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		m.ManagersAdded.Inc()
		return nil
	}))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry to tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
