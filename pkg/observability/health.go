package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// errDegraded marks a probe result that is usable but impaired
var errDegraded = errors.New("degraded")

// Degraded wraps msg so that a probe reports degraded instead of unhealthy
func Degraded(msg string) error {
	return &degradedError{msg: msg}
}

type degradedError struct{ msg string }

func (e *degradedError) Error() string        { return e.msg }
func (e *degradedError) Is(target error) bool { return target == errDegraded }

// Probe checks one dependency. A nil error is healthy; an error built with
// Degraded is degraded; any other error is unhealthy.
type Probe func(ctx context.Context) error

type check struct {
	probe    Probe
	required bool
}

// HealthChecker reports liveness and dependency readiness
type HealthChecker struct {
	version string

	mu     sync.RWMutex
	checks map[string]check
}

// NewHealthChecker creates a health checker with a required database probe
// and an optional Redis probe. Either may be nil.
func NewHealthChecker(db *sql.DB, client *redis.Client, version string) *HealthChecker {
	h := &HealthChecker{version: version, checks: make(map[string]check)}
	if db != nil {
		h.AddCheck("database", true, DatabaseProbe(db))
	}
	if client != nil {
		h.AddCheck("redis", false, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return h
}

// AddCheck registers probe under name. A failing required probe makes the
// service unhealthy; a failing optional one only degrades it.
func (h *HealthChecker) AddCheck(name string, required bool, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{probe: probe, required: required}
}

// DatabaseProbe runs SELECT 1 and reports an exhausted pool as degraded
func DatabaseProbe(db *sql.DB) Probe {
	return func(ctx context.Context) error {
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return errors.New("query failed: " + err.Error())
		}
		stats := db.Stats()
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return Degraded("connection pool exhausted")
		}
		return nil
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Required  bool      `json:"required"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Check runs every probe
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]check, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(names)),
	}
	for _, name := range names {
		c := checks[name]
		dep := runProbe(ctx, c)
		status.Dependencies[name] = dep
		status.Status = worst(status.Status, effective(dep.Status, c.required))
	}
	return status
}

func runProbe(ctx context.Context, c check) DependencyStatus {
	start := time.Now()
	err := c.probe(ctx)
	dep := DependencyStatus{
		Status:    StatusHealthy,
		Required:  c.required,
		LatencyMS: time.Since(start).Milliseconds(),
		Timestamp: start.UTC(),
	}
	switch {
	case err == nil:
	case errors.Is(err, errDegraded):
		dep.Status = StatusDegraded
		dep.Message = err.Error()
	default:
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

// effective caps an optional dependency's failure at degraded
func effective(status string, required bool) string {
	if !required && status == StatusUnhealthy {
		return StatusDegraded
	}
	return status
}

func worst(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Liveness always returns 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness runs the probes and returns 503 when a required one fails
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
