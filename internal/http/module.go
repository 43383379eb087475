// Package http provides the ops HTTP server infrastructure including the Module
// interface that HTTP-facing modules implement for route registration.
package http

import (
	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router groups.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared groups for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for routes outside /api/v1, such as webhooks.
	Engine *gin.Engine
	// V1 is the /api/v1 route group.
	V1 *gin.RouterGroup
	// Admin is the /api/v1 group guarded by the admin bearer token.
	Admin *gin.RouterGroup
}
