// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared route groups for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access
	// (webhooks outside /api/v1).
	Engine *gin.Engine
	// V1 is the /api/v1 route group without extra middleware.
	V1 *gin.RouterGroup
	// Public is the rate-limited prospect-facing group under /api/v1/public.
	Public *gin.RouterGroup
	// Internal is the operator group under /api/v1, guarded by the internal key.
	Internal *gin.RouterGroup
}
