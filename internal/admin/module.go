package admin

import (
	apphttp "crmbot/internal/http"
)

// Module wires the admin HTTP routes.
type Module struct {
	service *Service
	handler *Handler
}

func NewModule(d Deps) *Module {
	svc := New(d)
	return &Module{service: svc, handler: NewHandler(svc)}
}

// Service returns the maintenance service for non-HTTP callers.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) Name() string {
	return "admin"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/managers/:telegramId")
	group.POST("/import", m.handler.Import)
	group.POST("/refresh/:taxId", m.handler.Refresh)
}

var _ apphttp.Module = (*Module)(nil)
