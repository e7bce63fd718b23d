package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/sunup/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes buffered events and releases resources
	Close() error
}

type contextKey string

// AuditLoggerKey is the context key for the audit logger
const AuditLoggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOpLogger()
}

// NoOpLogger returns a logger that discards every event
func NoOpLogger() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (noOpLogger) Close() error                                     { return nil }

// NewEvent creates an event populated with the request, user and tenant ids
// carried by ctx.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    contextkeys.GetUserID(ctx),
		TenantID:  contextkeys.GetTenantID(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
		IPAddress: contextkeys.GetRemoteAddr(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// LogSuccess records a successful action against a resource
func LogSuccess(ctx context.Context, logger Logger, eventType EventType, resourceType ResourceType, resourceID, message string) error {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return logger.Log(ctx, event)
}

// LogDenied records a refused authorization check
func LogDenied(ctx context.Context, logger Logger, check, reason string) error {
	event := NewEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.Message = "Access denied: " + reason
	event.Metadata["check"] = check
	return logger.Log(ctx, event)
}
