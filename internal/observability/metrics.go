package observability

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

const fallbackMetricsPort = 9090

var (
	// TelemetrySystem receives every poll, pool and HTTP metric. Nil
	// disables metrics.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves TelemetrySystem on its own port.
	PrometheusExporter *exporters.PrometheusExporter

	metricsMu   sync.RWMutex
	metricsPort int
)

// InitMetrics starts a Prometheus exporter on port (0 picks a free port)
// and routes TelemetrySystem to it. Metric names are prefixed with
// namespace, or serviceName when no namespace is given.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}

	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return err
	}

	bound := port
	if actual, err := resolvePort(exporter.GetAddr()); err == nil {
		bound = actual
	} else if port == 0 {
		bound = fallbackMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return err
	}

	metricsMu.Lock()
	metricsPort = bound
	metricsMu.Unlock()
	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// StopMetrics stops the exporter and disables TelemetrySystem.
func StopMetrics() error {
	exporter := PrometheusExporter
	PrometheusExporter = nil
	TelemetrySystem = nil

	metricsMu.Lock()
	metricsPort = 0
	metricsMu.Unlock()

	if exporter == nil {
		return nil
	}
	return exporter.Stop()
}

// GetMetricsPort returns the port the exporter bound, or 0 before
// InitMetrics.
func GetMetricsPort() int {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
