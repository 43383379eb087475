// Package enrichment provides the composition root for company enrichment.
package enrichment

import (
	"crmbot/internal/enrichment/client"
	"crmbot/internal/enrichment/service"
	"crmbot/platform/config"
	"crmbot/platform/logger"
)

// Module wires the enrichment service.
type Module struct {
	service *service.Service
}

// NewModule creates a new enrichment module. Without an API key the service
// runs in disabled mode and every capture proceeds without a snapshot.
func NewModule(cfg config.EnrichmentConfig, log *logger.Logger) *Module {
	var registry service.Registry
	if cfg.IsEnrichmentEnabled() {
		registry = client.New(cfg.GetDataNewtonBaseURL(), cfg.GetDataNewtonAPIKey(), cfg.GetDataNewtonRPS(), log)
	} else {
		log.Warn("DATANEWTON_API_KEY not set, company enrichment disabled")
	}
	return &Module{service: service.New(registry, cfg.GetEnrichmentCacheTTL(), log)}
}

// Service returns the enrichment service.
func (m *Module) Service() *service.Service {
	return m.service
}
