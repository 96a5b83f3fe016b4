// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with request_id/tenant_id fields.
type LoggerKey struct{}

// RequestIDKey is the context key type for the per-request correlation id.
type RequestIDKey struct{}

// AuthContextKey is the context key type for the resolved auth context
// (tenant id, application id, credential kind) attached by the auth middleware.
type AuthContextKey struct{}

// RestoreMappingKey is the context key type for the per-request anonymization
// restore mapping produced by the disposition resolver's anonymize action.
// Threaded explicitly through request-scoped context rather than a process
// global (spec.md §9: "Request-scoped context... becomes an explicit
// argument or a per-request struct").
type RestoreMappingKey struct{}
