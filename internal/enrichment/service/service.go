// Package service assembles company snapshots from independent registry
// sub-fetches, with caching. Missing data is a normal result, never an error.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/enrichment/client"
	"crmbot/platform/logger"

	"golang.org/x/sync/errgroup"
)

const defaultCacheTTL = 24 * time.Hour

// Sub-fetch names, used in Result.Failures and logs.
const (
	PartRegistry       = "registry"
	PartFinancials     = "financials"
	PartGovContracts   = "gov_contracts"
	PartLitigation     = "litigation"
	PartClassification = "classification"
)

// Registry is the provider contract; *client.Client satisfies it.
type Registry interface {
	Counterparty(ctx context.Context, inn string) (*client.Counterparty, error)
	Classification(ctx context.Context, inn string) (*client.Okved, error)
	Finance(ctx context.Context, inn string) (*client.Financials, error)
	GovContracts(ctx context.Context, inn, ogrn string) (*client.GovContracts, error)
	OpenArbitration(ctx context.Context, inn string) (*client.Arbitration, error)
}

// Recorder receives one observation per sub-fetch.
type Recorder interface {
	EnrichmentFetch(part, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) EnrichmentFetch(string, string) {}

// Status classifies a fetch.
type Status string

const (
	// StatusComplete: every sub-fetch answered.
	StatusComplete Status = "complete"
	// StatusPartial: some sub-fetches failed; the snapshot holds the rest.
	StatusPartial Status = "partial"
	// StatusUnavailable: nothing could be fetched; Snapshot is nil.
	StatusUnavailable Status = "unavailable"
)

// Result of one fetch. Snapshot is nil when the company is unknown or the
// provider was unreachable.
type Result struct {
	Snapshot *domain.CompanySnapshot
	Status   Status
	Failures map[string]error
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// Service fetches and caches company snapshots.
type Service struct {
	registry Registry
	log      *logger.Logger
	recorder Recorder
	cache    map[string]cacheEntry
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
	now      func() time.Time
}

// New creates an enrichment service. registry may be nil when no API key is
// configured; every fetch then reports StatusUnavailable.
func New(registry Registry, cacheTTL time.Duration, log *logger.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Service{
		registry: registry,
		log:      log,
		recorder: nopRecorder{},
		cache:    make(map[string]cacheEntry),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// SetRecorder attaches a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// Fetch returns the snapshot for taxID, served from cache when fresh.
func (s *Service) Fetch(ctx context.Context, taxID string) Result {
	if cached, ok := s.getFromCache(taxID); ok {
		return cached
	}
	result := s.fetch(ctx, taxID)
	if result.Status != StatusUnavailable {
		s.setCache(taxID, result)
	}
	return result
}

// Refetch bypasses the cache; used for explicit re-enrichment.
func (s *Service) Refetch(ctx context.Context, taxID string) Result {
	result := s.fetch(ctx, taxID)
	if result.Status != StatusUnavailable {
		s.setCache(taxID, result)
	}
	return result
}

func (s *Service) fetch(ctx context.Context, taxID string) Result {
	if s.registry == nil {
		return Result{Status: StatusUnavailable, Failures: map[string]error{PartRegistry: errors.New("enrichment disabled")}}
	}

	var (
		cp   *client.Counterparty
		fin  *client.Financials
		gov  *client.GovContracts
		arb  *client.Arbitration
		mu   sync.Mutex
		errs = map[string]error{}
	)
	fail := func(part string, err error) {
		mu.Lock()
		errs[part] = err
		mu.Unlock()
	}

	// Sub-fetches never return an error to the group, so one failure cannot
	// cancel the others.
	g, gctx := errgroup.WithContext(ctx)
	// Contract statistics are keyed by OGRN when the registry knows it, so
	// they follow the registry fetch instead of running beside it.
	g.Go(func() error {
		v, err := s.registry.Counterparty(gctx, taxID)
		s.observe(taxID, PartRegistry, err)
		var ogrn string
		if err != nil {
			fail(PartRegistry, err)
		} else if v != nil {
			cp = v
			ogrn = v.OGRN
		}

		gv, err := s.registry.GovContracts(gctx, taxID, ogrn)
		s.observe(taxID, PartGovContracts, err)
		if err != nil {
			fail(PartGovContracts, err)
			return nil
		}
		gov = gv
		return nil
	})
	g.Go(func() error {
		v, err := s.registry.Finance(gctx, taxID)
		s.observe(taxID, PartFinancials, err)
		if err != nil {
			fail(PartFinancials, err)
			return nil
		}
		fin = v
		return nil
	})
	g.Go(func() error {
		v, err := s.registry.OpenArbitration(gctx, taxID)
		s.observe(taxID, PartLitigation, err)
		if err != nil {
			fail(PartLitigation, err)
			return nil
		}
		arb = v
		return nil
	})
	_ = g.Wait()

	snap := &domain.CompanySnapshot{}
	if cp != nil {
		snap.Name = domain.StringPtr(cp.Name)
		snap.Region = domain.StringPtr(cp.Region)
		snap.Email = domain.StringPtr(cp.Email)
		snap.RegistrationID = domain.StringPtr(cp.OGRN)
		snap.Bankrupt = cp.Bankrupt
		if cp.Okved != nil {
			snap.ClassificationCode = domain.StringPtr(cp.Okved.Code)
			snap.ClassificationLabel = domain.StringPtr(cp.Okved.Value)
		}
	}
	if snap.ClassificationCode == nil && !errors.Is(errs[PartRegistry], client.ErrNotFound) && ctx.Err() == nil {
		okved, err := s.registry.Classification(ctx, taxID)
		s.observe(taxID, PartClassification, err)
		if err != nil {
			errs[PartClassification] = err
		} else if okved != nil {
			snap.ClassificationCode = domain.StringPtr(okved.Code)
			snap.ClassificationLabel = domain.StringPtr(okved.Value)
		}
	}
	if fin != nil {
		snap.RevenueCurrent = fin.RevenueCurrent
		snap.RevenuePrior = fin.RevenuePrior
		snap.Equity = fin.Equity
		snap.FixedAssets = fin.FixedAssets
		snap.Receivables = fin.Receivables
		snap.Payables = fin.Payables
	}
	if gov != nil {
		snap.GovContractsSum = gov.TotalSum
		label := gov.TopOKPD2Name
		if label == "" {
			label = gov.TopOKPD2
		}
		snap.ProcurementLabel = domain.StringPtr(label)
	}
	if arb != nil {
		snap.LitigationOpenCount = domain.Int64Ptr(arb.OpenCount)
		snap.LitigationOpenSum = domain.Int64Ptr(arb.OpenSum)
		snap.LitigationLastFiled = arb.LastFiling
	}

	result := Result{Snapshot: snap, Status: StatusComplete, Failures: errs}
	switch {
	case snap.IsEmpty() && errors.Is(errs[PartRegistry], client.ErrNotFound):
		result.Snapshot = nil
		result.Status = StatusComplete
	case snap.IsEmpty() && len(errs) > 0:
		result.Snapshot = nil
		result.Status = StatusUnavailable
	case hardFailures(errs) > 0:
		result.Status = StatusPartial
	}
	return result
}

// hardFailures ignores plan limitations and not-found answers, which are
// expected steady states rather than degradation.
func hardFailures(errs map[string]error) int {
	n := 0
	for _, err := range errs {
		if errors.Is(err, client.ErrTierLimited) || errors.Is(err, client.ErrNotFound) {
			continue
		}
		n++
	}
	return n
}

func (s *Service) observe(taxID, part string, err error) {
	switch {
	case err == nil:
		s.recorder.EnrichmentFetch(part, "ok")
	case errors.Is(err, client.ErrTierLimited):
		s.recorder.EnrichmentFetch(part, "tier_limited")
		s.log.Debug("enrichment part not on plan", "tax_id", taxID, "part", part)
	case errors.Is(err, client.ErrNotFound):
		s.recorder.EnrichmentFetch(part, "not_found")
	default:
		s.recorder.EnrichmentFetch(part, "error")
		s.log.EnrichmentDegraded(taxID, part, err)
	}
}

func (s *Service) getFromCache(key string) (Result, bool) {
	s.cacheMu.RLock()
	entry, ok := s.cache[key]
	s.cacheMu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return Result{}, false
	}
	return entry.result, true
}

func (s *Service) setCache(key string, result Result) {
	s.cacheMu.Lock()
	s.cache[key] = cacheEntry{result: result, expiresAt: s.now().Add(s.cacheTTL)}
	s.cacheMu.Unlock()
}
