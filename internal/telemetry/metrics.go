// Package telemetry provides application-level observability for the admin back-office.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<NIA_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Login attempts by flow and outcome
//   - Step-up (2FA) code issuance and validation outcomes
//   - Authorization denials by resource
//   - Session revocations and audit sink failures
//   - Security monitor alerts
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /sessions/:id), NOT the raw
// URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics.
//
// LoginAttemptsTotal is a CounterVec with labels {flow, result}. flow is "admin"
// or "public"; result is one of success, invalid_credentials, account_disabled,
// 2fa_required, 2fa_failed, error.
//
// Example PromQL queries:
//   - Failed login rate:   sum(rate(login_attempts_total{result="invalid_credentials"}[5m]))
//   - Alert on brute force: sum(increase(login_attempts_total{result="invalid_credentials"}[5m])) > 50
//
// TwoFactorCodesTotal is a CounterVec with label {event}: issued, send_failed,
// validated, rejected, exhausted.
var (
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of login attempts, by flow and result.",
		},
		[]string{"flow", "result"},
	)

	TwoFactorCodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "two_factor_codes_total",
			Help: "Step-up verification code lifecycle events.",
		},
		[]string{"event"},
	)
)

// Authorization metrics.
//
// PermissionDenialsTotal is a CounterVec with labels {resource, reason}; reason is
// "insufficient_level" or "unauthenticated".
//
// Example PromQL queries:
//   - Denials by resource: sum by (resource) (rate(permission_denials_total[1h]))
var PermissionDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "permission_denials_total",
		Help: "Requests rejected by the permission guard, by resource and reason.",
	},
	[]string{"resource", "reason"},
)

// Session registry and audit trail metrics.
//
// SessionsRevokedTotal counts rows actually deleted, by mode (single, selected, all, user, logout).
// AuditSinkFailuresTotal counts swallowed sink write failures; any sustained
// increase means part of the audit trail is being lost.
//
// Example PromQL queries:
//   - Alert expression:  increase(audit_sink_failures_total[15m]) > 0
//
// AuditPurgedRowsTotal counts rows removed by purge, by table.
var (
	SessionsRevokedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_revoked_total",
			Help: "Total number of sessions revoked, by mode.",
		},
		[]string{"mode"},
	)

	AuditSinkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_sink_failures_total",
			Help: "Total number of failed audit sink writes, by sink.",
		},
		[]string{"sink"},
	)

	AuditPurgedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_purged_rows_total",
			Help: "Total number of log rows removed by purge operations, by table.",
		},
		[]string{"table"},
	)
)

// SecurityAlertsTotal is a CounterVec with labels {type, severity} incremented
// whenever the security monitor raises an alert.
var SecurityAlertsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "security_alerts_total",
		Help: "Total number of security monitor alerts raised, by event type and severity.",
	},
	[]string{"type", "severity"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <NIA_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens when
// the application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
