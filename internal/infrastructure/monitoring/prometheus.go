package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler returns an http.Handler serving this Monitor's registry
// in Prometheus exposition format. Mount it at "/metrics" in the gateway's
// HTTP server, gated by config.MonitoringConfig.Enabled.
func (m *Monitor) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RegisterRuntimeCollectors adds the standard Go/process collectors
// (goroutines, GC pauses, RSS, open FDs) to the Monitor's registry, so
// /metrics carries the same runtime visibility the previous hand-rolled
// exposition computed from runtime.ReadMemStats on every scrape.
func (m *Monitor) RegisterRuntimeCollectors() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
