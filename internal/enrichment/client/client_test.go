package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"crmbot/platform/logger"
)

func newTestClient(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if body == "500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", 0, logger.Nop())
}

func TestCounterpartyExtractsRegistryFacts(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/counterparty": `{
			"inn": "7707083893", "ogrn": "1027700132195",
			"company": {
				"company_names": {"short_name": "ПАО СБЕРБАНК"},
				"okveds": [{"main": false, "code": "66.19", "value": "Прочее"}, {"main": true, "code": "64.19", "value": "Денежное посредничество"}],
				"address": {"region": {"name": "г. Москва"}},
				"contacts": [{"type": "phone", "value": "900"}, {"type": "email", "value": "sberbank@sberbank.ru"}]
			},
			"negative_lists": {"bankruptcy": {"active": false}}
		}`,
	})

	cp, err := c.Counterparty(context.Background(), "7707083893")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Name != "ПАО СБЕРБАНК" || cp.OGRN != "1027700132195" || cp.Region != "г. Москва" || cp.Email != "sberbank@sberbank.ru" {
		t.Fatalf("unexpected counterparty %+v", cp)
	}
	if cp.Okved == nil || cp.Okved.Code != "64.19" {
		t.Fatalf("expected main okved 64.19, got %+v", cp.Okved)
	}
	if cp.Bankrupt == nil || *cp.Bankrupt {
		t.Fatalf("expected bankrupt=false")
	}
}

func TestCounterpartyNotFound(t *testing.T) {
	c := newTestClient(t, map[string]string{"/counterparty": `{"inn": "7707083893"}`})
	if _, err := c.Counterparty(context.Background(), "7707083893"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFinanceTierLimited(t *testing.T) {
	c := newTestClient(t, map[string]string{"/finance": `{"available_count": 0}`})
	if _, err := c.Finance(context.Background(), "7707083893"); !errors.Is(err, ErrTierLimited) {
		t.Fatalf("expected ErrTierLimited, got %v", err)
	}
}

func TestFinanceConvertsToThousands(t *testing.T) {
	c := newTestClient(t, map[string]string{"/finance": `{
		"fin_results": {"indicators": [{"name": "Выручка", "code": "2110", "sum": {"2023": 3500000, "2024": 4200500}}]},
		"balances": {"indicators": [
			{"name": "Капитал и резервы", "code": "1300", "sum": {"2024": 900000}},
			{"name": "Дебиторская задолженность", "code": "1230", "sum": {"2023": 1000, "2024": "120 000"}}
		]}
	}`})

	fin, err := c.Finance(context.Background(), "7707083893")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fin.Year != 2024 || *fin.RevenueCurrent != 4200 || *fin.RevenuePrior != 3500 {
		t.Fatalf("unexpected revenue %+v", fin)
	}
	if *fin.Equity != 900 || *fin.Receivables != 120 {
		t.Fatalf("unexpected balance figures %+v", fin)
	}
	if fin.FixedAssets != nil || fin.Payables != nil {
		t.Fatalf("absent indicators must stay nil")
	}
}

func TestGovContractsSumsBothSides(t *testing.T) {
	c := newTestClient(t, map[string]string{"/governmentContractsStat": `{
		"suppliers_stat": {"stat": [{"sum": 1000, "okpd2_code": "62.01"}, {"sum": 500}]},
		"customers_stat": {"stat": [{"sum": 2500.9, "okpd2_code": "41.20", "okpd2_name": "Работы строительные"}]}
	}`})

	gc, err := c.GovContracts(context.Background(), "7707083893", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *gc.TotalSum != 4000 || gc.TopOKPD2 != "41.20" || gc.TopOKPD2Name != "Работы строительные" {
		t.Fatalf("unexpected contracts %+v", gc)
	}
}

func TestGovContractsPrefersOGRN(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "test-key", 0, logger.Nop())

	if _, err := c.GovContracts(context.Background(), "7707083893", "1027700132195"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := query["ogrn"]; len(got) != 1 || got[0] != "1027700132195" {
		t.Fatalf("expected ogrn parameter, got %v", query)
	}
	if _, ok := query["inn"]; ok {
		t.Fatalf("inn must not be sent when ogrn is known, got %v", query)
	}
}

func TestOpenArbitrationUsesOneList(t *testing.T) {
	c := newTestClient(t, map[string]string{"/arbitration-cases": `{
		"total_cases": 2,
		"data": [
			{"sum": 150000, "last_document_date": 1738368000000},
			{"sum": "50000", "last_document_date": 1700000000000}
		]
	}`})

	arb, err := c.OpenArbitration(context.Background(), "7707083893")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if arb.OpenCount != 2 || arb.OpenSum != 200000 {
		t.Fatalf("unexpected arbitration %+v", arb)
	}
	if arb.LastFiling == nil || arb.LastFiling.Format("02.01.06") != "01.02.25" {
		t.Fatalf("unexpected last filing %v", arb.LastFiling)
	}
}

func TestServerErrorIsReturned(t *testing.T) {
	c := newTestClient(t, map[string]string{"/arbitration-cases": "500"})
	if _, err := c.OpenArbitration(context.Background(), "7707083893"); err == nil {
		t.Fatal("expected error")
	}
}
