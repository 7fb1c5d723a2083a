package config

import (
	"github.com/marmos91/dittostorage/pkg/metrics"
	promMetrics "github.com/marmos91/dittostorage/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Requests is the collector for bus requests (never nil, noop if disabled)
	Requests metrics.RequestMetrics
}

// InitializeMetrics creates the metrics components.
//
// When metrics are disabled the server is nil and the collectors are no-ops.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{Requests: metrics.NewNoopRequestMetrics()}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:   metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		Requests: promMetrics.NewRequestMetrics(),
	}
}
