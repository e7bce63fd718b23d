// Package config loads and validates sunup configuration.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// SUNUP_CONFIG_FILE, then SUNUP_* environment variables.
//
// Server settings:
//
//	SUNUP_HOST="0.0.0.0"
//	SUNUP_PORT="8080"
//	SUNUP_HEALTH_PORT="9090"
//	SUNUP_READ_TIMEOUT="15s"
//	SUNUP_WRITE_TIMEOUT="15s"
//	SUNUP_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	SUNUP_DATABASE_DRIVER="postgres"  # postgres, sqlite3
//	SUNUP_DATABASE_URL="postgres://localhost/sunup?sslmode=disable"
//	SUNUP_DB_MAX_OPEN_CONNS="25"
//	SUNUP_DB_MAX_TX_RETRIES="3"
//
// Identity settings:
//
//	SUNUP_AUTH_MODE="oidc"  # oidc, header
//	SUNUP_OIDC_ISSUER_URL="https://accounts.example.com"
//	SUNUP_OIDC_CLIENT_ID="sunup"
//	SUNUP_AUTH_SUBJECT_HEADER="X-Sunup-Subject"
//	SUNUP_IDENTITY_CACHE_TTL="5m"
//
// Events and jobs:
//
//	SUNUP_REDIS_URL="redis://localhost:6379/0"  # empty disables the stream publisher
//	SUNUP_REDIS_STREAM="sunup:pipeline-events"
//	SUNUP_EVENTS_ASYNC="true"
//	SUNUP_EVENTS_WORKERS="4"
//	SUNUP_JOBS_STATS_SCHEDULE="@every 1m"
//
// Observability settings:
//
//	SUNUP_LOG_LEVEL="info"  # debug, info, warn, error
//	SUNUP_METRICS_ENABLED="true"
//	SUNUP_OTEL_ENABLED="false"
//	SUNUP_OTEL_ENDPOINT="otel-collector:4317"
//
// The YAML file uses the same structure; pipeline.default_stages can only be
// set there:
//
//	pipeline:
//	  default_stages:
//	    - name: Lead
//	      order: 1
//	      category: sales
//
// Watch reloads the file on change so that the log level and default stage
// template can be updated without a restart.
package config
