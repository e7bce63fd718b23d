// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// every dependency on a request-scoped value is discoverable in one place.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.IdentityMiddleware (pkg/middleware/identity.go)
	// Required by: auth.Guard for every protected operation
	// Type: *auth.Identity
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the resolved user ID string
	// Set by: auth.Caller.Bind
	// Used by: Logger, audit trail
	// Type: string
	UserIDKey Key = "user_id"

	// TenantIDKey contains the resolved tenant ID string
	// Set by: auth.Caller.Bind
	// Used by: Logger, audit trail
	// Type: string
	TenantIDKey Key = "tenant_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: observability.FromContext
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// RemoteAddrKey contains the client address string
	// Set by: httputil.RequestIDMiddleware
	// Used by: audit events
	// Type: string
	RemoteAddrKey Key = "remote_addr"
)

// WithIdentity adds the verified caller identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithTenantID adds tenant ID to the context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithRemoteAddr adds the client address to the context
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	return getString(ctx, UserIDKey)
}

// GetTenantID retrieves tenant ID from context
func GetTenantID(ctx context.Context) string {
	return getString(ctx, TenantIDKey)
}

// GetRemoteAddr retrieves the client address from context
func GetRemoteAddr(ctx context.Context) string {
	return getString(ctx, RemoteAddrKey)
}

func getString(ctx context.Context, key Key) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
