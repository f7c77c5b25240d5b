// Package metrics names the monitor's telemetry series and records them
// through the global telemetry system. Every recorder is a no-op until the
// serve command initializes telemetry.
package metrics

import (
	"strconv"
	"time"

	"github.com/feedwatch/feedwatch/internal/observability"
)

func counter(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}

func gauge(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, labels)
	}
}

func histogram(name string, d time.Duration, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, labels)
	}
}

func outcome(ok bool, success, failure string) string {
	if ok {
		return success
	}
	return failure
}

// Server and admin series.
const (
	OperationsTotal       = "app_operations_total"
	OperationsErrorsTotal = "app_operations_errors_total"
	HealthCheckTotal      = "app_health_check_total"
	HealthCheckDuration   = "app_health_check_duration_ms"
	ServerStartTime       = "app_server_start_time_seconds"
	ServerUptime          = "app_server_uptime_seconds"
	ErrorsTotal           = "errors_total"
	ErrorsByEndpoint      = "errors_by_endpoint"
	PanicsTotal           = "panics_total"
)

// RecordOperation counts a target add or remove.
func RecordOperation(operation string, success bool) {
	counter(OperationsTotal, map[string]string{
		"operation": operation,
		"status":    outcome(success, "success", "failure"),
	})
}

// RecordOperationError counts a failed target operation by error code.
func RecordOperationError(operation, errorType string) {
	counter(OperationsErrorsTotal, map[string]string{"operation": operation, "error_type": errorType})
}

func RecordHealthCheck(check string, healthy bool, duration time.Duration) {
	counter(HealthCheckTotal, map[string]string{
		"check":  check,
		"status": outcome(healthy, "healthy", "unhealthy"),
	})
	histogram(HealthCheckDuration, duration, map[string]string{"check": check})
}

// SetServerStartTime records the start time as a Unix timestamp.
func SetServerStartTime(unix int64) {
	gauge(ServerStartTime, float64(unix), nil)
}

func SetServerUptime(seconds int64) {
	gauge(ServerUptime, float64(seconds), nil)
}

// RecordError counts an error envelope written to a client.
func RecordError(code string, status int) {
	counter(ErrorsTotal, map[string]string{"error_code": code, "http_status": strconv.Itoa(status)})
}

func RecordErrorByEndpoint(endpoint, code string) {
	counter(ErrorsByEndpoint, map[string]string{"endpoint": endpoint, "error_code": code})
}

func RecordPanic() {
	counter(PanicsTotal, nil)
}
