// Package observability provides structured logging, Prometheus metrics, health
// checks and OpenTelemetry tracing for the CRM server.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("person_id", id).Info("stage changed")
//
// FromContext returns the request logger annotated with the request, user and
// tenant ids placed in the context by the HTTP middleware.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.ObserveTransition("success")
//
// Every Observe helper tolerates a nil *Metrics.
//
// # Tracing
//
//	ctx, span := observability.StartSpan(ctx, "pipeline.move", "person_id", id)
//	defer span.End()
//
// Until InitOTel installs an exporter the global tracer is a no-op.
package observability
