package audit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/contextkeys"
	"github.com/platinummonkey/sunup/pkg/observability"
)

type failingLogger struct {
	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *failingLogger) Log(ctx context.Context, event *AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("store unavailable")
}

func (f *failingLogger) Close() error {
	f.closed = true
	return nil
}

func TestMultiLogger_Sync(t *testing.T) {
	mem := NewMemoryLogger()
	failing := &failingLogger{}
	m := NewMultiLogger(failing, mem)

	err := m.Log(context.Background(), &AuditEvent{EventType: EventTypeAdminUserCreate})
	assert.Error(t, err)
	assert.Len(t, mem.Events(), 1, "later loggers still receive the event")

	require.NoError(t, m.Close())
	assert.True(t, failing.closed)
}

func TestMultiLogger_AsyncDrainsOnClose(t *testing.T) {
	mem := NewMemoryLogger()
	failing := &failingLogger{}
	m := NewAsyncMultiLogger(context.Background(), 2, time.Second, failing, mem)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 20; i++ {
		assert.NoError(t, m.Log(ctx, &AuditEvent{EventType: EventTypeDataPersonUpdate}))
	}
	cancel()

	require.NoError(t, m.Close())
	assert.Len(t, mem.Events(), 20)
	assert.Equal(t, 20, failing.calls)
}

func TestMultiLogger_Empty(t *testing.T) {
	m := NewMultiLogger()
	assert.NoError(t, m.Log(context.Background(), &AuditEvent{}))
	assert.NoError(t, m.Close())
}

func TestNewEventFromContext(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-9")
	ctx = contextkeys.WithUserID(ctx, "user-9")
	ctx = contextkeys.WithTenantID(ctx, "tenant-9")

	mem := NewMemoryLogger()
	require.NoError(t, LogSuccess(ctx, mem, EventTypeDataStageCreate, ResourceTypePipelineStage, "stage-1", "stage created"))
	require.NoError(t, LogDenied(ctx, mem, "requirePermission", "missing person:delete"))

	events := mem.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "req-9", events[0].RequestID)
	assert.Equal(t, "user-9", events[0].UserID)
	assert.Equal(t, "tenant-9", events[0].TenantID)
	assert.Equal(t, "stage-1", events[0].ResourceID)

	denied := mem.ByType(EventTypeAuthzAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, EventStatusDenied, denied[0].Status)
	assert.Equal(t, "requirePermission", denied[0].Metadata["check"])
}

func TestFromContextDefaultsToNoOp(t *testing.T) {
	logger := FromContext(context.Background())
	assert.NoError(t, logger.Log(context.Background(), &AuditEvent{}))

	mem := NewMemoryLogger()
	ctx := WithLogger(context.Background(), mem)
	assert.Same(t, mem, FromContext(ctx))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(observability.NewLogger(observability.InfoLevel, &buf))

	event := &AuditEvent{
		EventType:    EventTypeAuthzAccessDenied,
		Status:       EventStatusDenied,
		UserID:       "user-1",
		ResourceType: ResourceTypePerson,
		ResourceID:   "p-1",
		Message:      "Access denied: missing role",
		Metadata:     map[string]interface{}{"check": "requireRole"},
	}
	require.NoError(t, sink.Log(context.Background(), event))

	out := buf.String()
	assert.Contains(t, out, "Access denied: missing role")
	assert.Contains(t, out, "authz.access_denied")
	assert.Contains(t, out, "meta.check")
	assert.Contains(t, out, "WARN")
}
