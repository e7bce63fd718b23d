package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("debug message")
	assert.Zero(t, buf.Len(), "debug should be filtered at info level")

	logger.Info("info message")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "info message", entry["msg"])

	buf.Reset()
	logger.SetLevel(DebugLevel)
	logger.Debugf("debug %d", 42)
	entry = decodeEntry(t, &buf)
	assert.Equal(t, "debug 42", entry["msg"])
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("key", "value").
		WithFields(map[string]interface{}{"count": 3}).
		WithError(errors.New("boom")).
		Warnf("warning %s", "test")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "warning test", entry["msg"])
	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_DerivedLoggersShareLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)
	child := logger.WithField("component", "guard")

	child.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.SetLevel(InfoLevel)
	child.Info("visible")
	assert.NotZero(t, buf.Len())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = contextkeys.WithRequestID(ctx, "req-123")
	ctx = contextkeys.WithUserID(ctx, "user-456")
	ctx = contextkeys.WithTenantID(ctx, "tenant-789")

	FromContext(ctx).Info("test message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "user-456", entry["user_id"])
	assert.Equal(t, "tenant-789", entry["tenant_id"])
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "unit test")
		panic("kaboom")
	}()

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "PANIC recovered", entry["msg"])
	assert.Equal(t, "kaboom", entry["panic"])
	assert.Equal(t, "unit test", entry["context"])

	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("bad"), "panic: bad")
}
