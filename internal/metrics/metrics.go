// Package metrics defines the Prometheus collectors of the gateway.
//
// Collectors are registered on the Registerer passed to New, so tests and
// embedders can use isolated registries. Names carry the jmxgate_ prefix,
// counters end in _total and durations in _seconds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's collectors.
type Metrics struct {
	// GatewayRequests counts inbound gateway calls by RBAC mode and outcome.
	GatewayRequests *prometheus.CounterVec
	// ACLDecisions counts per-operation ACL verdicts.
	ACLDecisions *prometheus.CounterVec
	// Intercepted counts requests answered by the gateway itself.
	Intercepted *prometheus.CounterVec
	// UpstreamDuration observes agent calls by kind (forward, registry).
	UpstreamDuration *prometheus.HistogramVec
	// HTTPRequests and HTTPDuration cover every route of the server.
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GatewayRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jmxgate_gateway_requests_total",
				Help: "Gateway calls by RBAC mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		ACLDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jmxgate_acl_decisions_total",
				Help: "ACL verdicts for individual Jolokia operations.",
			},
			[]string{"role", "decision"},
		),
		Intercepted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jmxgate_intercepted_total",
				Help: "Jolokia requests answered without contacting the agent.",
			},
			[]string{"kind"},
		),
		UpstreamDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jmxgate_upstream_request_duration_seconds",
				Help:    "Duration of calls to Jolokia agents.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jmxgate_http_requests_total",
				Help: "HTTP requests by method, status and route.",
			},
			[]string{"method", "status", "route"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:                            "jmxgate_http_request_duration_seconds",
				Help:                            "HTTP request latencies by method, status and route.",
				NativeHistogramBucketFactor:     1.1,
				NativeHistogramMaxBucketNumber:  100,
				NativeHistogramMinResetDuration: time.Hour,
			},
			[]string{"method", "status", "route"},
		),
	}
}

// ObserveUpstream records the duration of one agent call.
func (m *Metrics) ObserveUpstream(kind string, start time.Time) {
	m.UpstreamDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// RecordDecision counts one ACL verdict.
func (m *Metrics) RecordDecision(role string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.ACLDecisions.WithLabelValues(role, decision).Inc()
}
