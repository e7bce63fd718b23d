package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/platinummonkey/sunup/pkg/contextkeys"
)

// instrumentationName is the tracer and meter name used by every package
const instrumentationName = "github.com/platinummonkey/sunup"

// Span attributes set from the request context
const (
	AttrTenantID  = attribute.Key("sunup.tenant_id")
	AttrUserID    = attribute.Key("sunup.user_id")
	AttrRequestID = attribute.Key("sunup.request_id")
)

const exporterDialTimeout = 10 * time.Second

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	// SampleRatio is the fraction of root traces sampled; 0 means all.
	SampleRatio float64
}

func (c OTelConfig) sampler() sdktrace.Sampler {
	ratio := c.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func (c OTelConfig) dialOptions() []grpc.DialOption {
	if !c.Insecure {
		return nil
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}

// OTelProviders owns the installed tracer and meter providers. A nil
// *OTelProviders, returned when OTel is disabled, is safe to shut down.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// InitOTel exports traces and metrics over OTLP/gRPC and installs the
// providers and the W3C propagators globally
func InitOTel(ctx context.Context, cfg OTelConfig, logger *Logger) (*OTelProviders, error) {
	if !cfg.Enabled {
		logger.Info("OpenTelemetry is disabled")
		return nil, nil
	}
	log := logger.WithField("otlp_endpoint", cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	spans, err := otlptracegrpc.New(dialCtx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(cfg.dialOptions()...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	measurements, err := otlpmetricgrpc.New(dialCtx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithDialOption(cfg.dialOptions()...),
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create metric exporter: %w", err), spans.Shutdown(ctx))
	}

	providers := &OTelProviders{
		TracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithSampler(cfg.sampler()),
		),
		MeterProvider: metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(measurements, metric.WithInterval(15*time.Second))),
		),
	}

	otel.SetTracerProvider(providers.TracerProvider)
	otel.SetMeterProvider(providers.MeterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("OpenTelemetry initialized")
	return providers, nil
}

// Shutdown flushes and stops both providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the process tracer. Before InitOTel runs (or when OTel is
// disabled) it is the global no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named name. kv holds string attributes as
// key/value pairs; the tenant, user and request ids bound to ctx are added.
func StartSpan(ctx context.Context, name string, kv ...string) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2+3)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	attrs = append(attrs, contextAttributes(ctx)...)
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func contextAttributes(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id := contextkeys.GetTenantID(ctx); id != "" {
		attrs = append(attrs, AttrTenantID.String(id))
	}
	if id := contextkeys.GetUserID(ctx); id != "" {
		attrs = append(attrs, AttrUserID.String(id))
	}
	if id := contextkeys.GetRequestID(ctx); id != "" {
		attrs = append(attrs, AttrRequestID.String(id))
	}
	return attrs
}

// RecordError marks span as failed with err. Nil errors are ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// UpdateLoggerWithTraceContext adds the trace and span ids of the recording
// span in ctx to logger
func UpdateLoggerWithTraceContext(ctx context.Context, logger *Logger) *Logger {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return logger
	}

	spanCtx := span.SpanContext()
	return logger.WithFields(map[string]interface{}{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
