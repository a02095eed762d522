// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/ratelimit"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.InternalAPIConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP and internal key only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks (DB ping).
	Health HealthChecker
	// Limiter throttles the public funnel routes per client IP.
	Limiter ratelimit.Limiter
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
