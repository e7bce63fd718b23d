package audit

import (
	"context"
	"sync"

	"github.com/platinummonkey/sunup/pkg/observability"
)

// LogSink writes audit events to the structured application log
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink that writes through logger
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger.WithField("component", "audit")}
}

// Log writes the event as a single log record
func (s *LogSink) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != "" {
		fields["actor_id"] = event.UserID
	}
	if event.TenantID != "" {
		fields["actor_tenant_id"] = event.TenantID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta."+k] = v
	}

	entry := s.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close is a no-op
func (s *LogSink) Close() error {
	return nil
}

// MemoryLogger keeps events in memory
type MemoryLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
}

// NewMemoryLogger creates an empty in-memory logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends a copy of the event
func (m *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	copied := *event
	m.mu.Lock()
	m.events = append(m.events, &copied)
	m.mu.Unlock()
	return nil
}

// Events returns the recorded events in order
func (m *MemoryLogger) Events() []*AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns the recorded events of one type
func (m *MemoryLogger) ByType(eventType EventType) []*AuditEvent {
	var out []*AuditEvent
	for _, e := range m.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Close is a no-op
func (m *MemoryLogger) Close() error {
	return nil
}
