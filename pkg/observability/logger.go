package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/platinummonkey/sunup/pkg/contextkeys"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}[l]
}

// ParseLogLevel parses a level name, defaulting to info
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) toSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides structured JSON logging using stdlib slog
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewLogger creates a new structured logger using slog
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	lv := new(slog.LevelVar)
	lv.Set(level.toSlogLevel())
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: lv})

	return &Logger{
		logger: slog.New(handler),
		level:  lv,
	}
}

// NopLogger returns a logger that discards everything
func NopLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

// SetLevel changes the level of this logger and every logger derived from it
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(level.toSlogLevel())
}

// Slog exposes the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With(key, value),
		level:  l.level,
	}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		logger: l.logger.With(args...),
		level:  l.level,
	}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) {
	l.logger.Debug(message)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(message string) {
	l.logger.Info(message)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(message string) {
	l.logger.Warn(message)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(message string) {
	l.logger.Error(message)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, logger)
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the context logger annotated with the request, user and
// tenant ids carried by ctx.
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)

	fields := map[string]interface{}{}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	if userID := contextkeys.GetUserID(ctx); userID != "" {
		fields["user_id"] = userID
	}
	if tenantID := contextkeys.GetTenantID(ctx); tenantID != "" {
		fields["tenant_id"] = tenantID
	}
	if len(fields) > 0 {
		logger = logger.WithFields(fields)
	}

	return UpdateLoggerWithTraceContext(ctx, logger)
}
