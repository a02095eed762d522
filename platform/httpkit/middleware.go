// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	internalKeyHeader = "X-Internal-Key"
	requestIDHeader   = "X-Request-ID"
)

// RequestLogger tags the request context with a request id and logs the
// request with timing. Errors recorded by handlers are logged with the
// same id; storage failures go through DatabaseError.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))
		c.Header(requestIDHeader, requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()
		reqLog := log.WithContext(c.Request.Context())

		for _, ginErr := range c.Errors {
			var domainErr *apperr.Error
			if errors.As(ginErr.Err, &domainErr) && domainErr.Kind == apperr.KindPersistence {
				reqLog.DatabaseError(domainErr.Op, ginErr.Err)
				continue
			}
			reqLog.HTTPError(c.Request.Method, path, status, ginErr.Err, clientIP)
		}
		reqLog.HTTPRequest(c.Request.Method, path, status, float64(latency.Milliseconds()), clientIP)
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// RateLimit throttles requests per client IP. A limiter backend failure lets
// the request through and is logged.
func RateLimit(limiter ratelimit.Limiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			log.Error("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !allowed {
			log.RateLimitExceeded(ip, c.Request.URL.Path)
			HandleError(c, apperr.TooManyRequests("Too many requests. Please try again later."))
			c.Abort()
			return
		}
		c.Next()
	}
}

// InternalKeyRequired guards operator endpoints with a shared static key.
// When no key is configured the group is closed.
func InternalKeyRequired(cfg config.InternalAPIConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := cfg.GetInternalAPIKey()
		supplied := strings.TrimSpace(c.GetHeader(internalKeyHeader))
		if expected == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) != 1 {
			HandleError(c, apperr.Unauthorized("invalid internal key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
