package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"crmbot/internal/enrichment/client"
	"crmbot/platform/logger"

	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	counterparty   *client.Counterparty
	counterpartyEr error
	classification *client.Okved
	finance        *client.Financials
	financeErr     error
	gov            *client.GovContracts
	govErr         error
	arb            *client.Arbitration
	arbErr         error
	calls          int32
	govOGRN        string
}

func (f *fakeRegistry) Counterparty(context.Context, string) (*client.Counterparty, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.counterparty, f.counterpartyEr
}

func (f *fakeRegistry) Classification(context.Context, string) (*client.Okved, error) {
	return f.classification, nil
}

func (f *fakeRegistry) Finance(context.Context, string) (*client.Financials, error) {
	return f.finance, f.financeErr
}

func (f *fakeRegistry) GovContracts(_ context.Context, _ string, ogrn string) (*client.GovContracts, error) {
	f.govOGRN = ogrn
	return f.gov, f.govErr
}

func (f *fakeRegistry) OpenArbitration(context.Context, string) (*client.Arbitration, error) {
	return f.arb, f.arbErr
}

func i64(v int64) *int64 { return &v }

func TestFetchIsolatesFailures(t *testing.T) {
	reg := &fakeRegistry{
		counterparty: &client.Counterparty{Name: "ПАО СБЕРБАНК", OGRN: "1027700132195", Okved: &client.Okved{Code: "64.19", Value: "Денежное посредничество"}},
		financeErr:   errors.New("timeout"),
		gov:          &client.GovContracts{TotalSum: i64(4000)},
		arbErr:       errors.New("502"),
	}
	svc := New(reg, time.Hour, logger.Nop())

	res := svc.Fetch(context.Background(), "7707083893")
	require.Equal(t, StatusPartial, res.Status)
	require.NotNil(t, res.Snapshot)
	require.Equal(t, "ПАО СБЕРБАНК", *res.Snapshot.Name)
	require.Equal(t, "64.19", *res.Snapshot.ClassificationCode)
	require.Equal(t, int64(4000), *res.Snapshot.GovContractsSum)
	require.Nil(t, res.Snapshot.RevenueCurrent)
	require.Nil(t, res.Snapshot.LitigationOpenCount)
	require.Contains(t, res.Failures, PartFinancials)
	require.Contains(t, res.Failures, PartLitigation)
}

func TestFetchPassesOGRNToContractStats(t *testing.T) {
	reg := &fakeRegistry{
		counterparty: &client.Counterparty{Name: "ПАО СБЕРБАНК", OGRN: "1027700132195", Okved: &client.Okved{Code: "64.19"}},
		gov:          &client.GovContracts{TotalSum: i64(4000), TopOKPD2: "41.20"},
	}
	res := New(reg, time.Hour, logger.Nop()).Fetch(context.Background(), "7707083893")
	require.Equal(t, "1027700132195", reg.govOGRN)
	require.Equal(t, "41.20", *res.Snapshot.ProcurementLabel, "code stands in for a missing OKPD2 name")

	reg = &fakeRegistry{
		counterpartyEr: errors.New("timeout"),
		gov:            &client.GovContracts{TotalSum: i64(10), TopOKPD2: "62.01", TopOKPD2Name: "Разработка ПО"},
	}
	res = New(reg, time.Hour, logger.Nop()).Fetch(context.Background(), "7707083893")
	require.Empty(t, reg.govOGRN, "without a registry answer the tax id is used")
	require.Equal(t, "Разработка ПО", *res.Snapshot.ProcurementLabel)
	require.Equal(t, StatusPartial, res.Status)
}

func TestFetchTierLimitIsNotDegradation(t *testing.T) {
	reg := &fakeRegistry{
		counterparty: &client.Counterparty{Name: "ООО Ромашка", Okved: &client.Okved{Code: "47.11"}},
		financeErr:   client.ErrTierLimited,
		gov:          &client.GovContracts{},
		arb:          &client.Arbitration{},
	}
	res := New(reg, time.Hour, logger.Nop()).Fetch(context.Background(), "7707083893")
	require.Equal(t, StatusComplete, res.Status)
	require.Equal(t, int64(0), *res.Snapshot.LitigationOpenCount)
}

func TestFetchClassificationFallback(t *testing.T) {
	reg := &fakeRegistry{
		counterparty:   &client.Counterparty{Name: "ИП Иванов"},
		classification: &client.Okved{Code: "62.01", Value: "Разработка ПО"},
	}
	res := New(reg, time.Hour, logger.Nop()).Fetch(context.Background(), "500100732259")
	require.Equal(t, "62.01", *res.Snapshot.ClassificationCode)
	require.Equal(t, "Разработка ПО", *res.Snapshot.ClassificationLabel)
}

func TestFetchTotalOutageIsUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	reg := &fakeRegistry{counterpartyEr: boom, financeErr: boom, govErr: boom, arbErr: boom}
	svc := New(reg, time.Hour, logger.Nop())

	res := svc.Fetch(context.Background(), "7707083893")
	require.Equal(t, StatusUnavailable, res.Status)
	require.Nil(t, res.Snapshot)

	svc.Fetch(context.Background(), "7707083893")
	require.Equal(t, int32(2), reg.calls, "unavailable results must not be cached")
}

func TestFetchUnknownCompany(t *testing.T) {
	reg := &fakeRegistry{counterpartyEr: client.ErrNotFound, financeErr: client.ErrNotFound, govErr: client.ErrNotFound, arbErr: client.ErrNotFound}
	res := New(reg, time.Hour, logger.Nop()).Fetch(context.Background(), "7707083893")
	require.Nil(t, res.Snapshot)
	require.Equal(t, StatusComplete, res.Status)
}

func TestFetchCachesUntilExpiry(t *testing.T) {
	reg := &fakeRegistry{counterparty: &client.Counterparty{Name: "A", Okved: &client.Okved{Code: "1"}}}
	svc := New(reg, time.Minute, logger.Nop())
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.Fetch(context.Background(), "7707083893")
	svc.Fetch(context.Background(), "7707083893")
	require.Equal(t, int32(1), reg.calls)

	now = now.Add(2 * time.Minute)
	svc.Fetch(context.Background(), "7707083893")
	require.Equal(t, int32(2), reg.calls)

	svc.Refetch(context.Background(), "7707083893")
	require.Equal(t, int32(3), reg.calls)
}

func TestFetchDisabled(t *testing.T) {
	res := New(nil, 0, logger.Nop()).Fetch(context.Background(), "7707083893")
	require.Equal(t, StatusUnavailable, res.Status)
}
