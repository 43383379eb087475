// Package http provides the ops HTTP server infrastructure including module registration.
package http

import (
	"context"
	"net/http"

	"crmbot/platform/config"
	"crmbot/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.AdminConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RequestRecorder counts served requests per route.
type RequestRecorder interface {
	HTTPRequest(route string, status int)
}

// MetricsExporter serves the metrics registry.
type MetricsExporter interface {
	RequestRecorder
	Handler() http.Handler
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (listen address and admin token).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks (DB ping). Nil reports healthy.
	Health HealthChecker
	// Metrics is served on /metrics. Nil disables the endpoint.
	Metrics MetricsExporter
	// Modules contains all HTTP-facing modules.
	Modules []Module
}
