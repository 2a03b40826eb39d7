// Package metrics declares the Prometheus collectors exported by the server.
// Collectors are registered with the default registry on import and served by
// promhttp at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for LLMRequests.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeRateLimited = "rate_limited"
	OutcomeQuota       = "quota_exceeded"
	OutcomeError       = "error"
)

var (
	// LLMRequests counts gateway calls by provider, feature and outcome.
	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicmirror",
		Name:      "llm_requests_total",
		Help:      "Language model generation calls by outcome.",
	}, []string{"provider", "feature", "outcome"})

	// LLMDuration observes end to end gateway latency including retries.
	LLMDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sonicmirror",
		Name:      "llm_request_duration_seconds",
		Help:      "Language model generation latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"provider", "feature"})

	// LLMFallbacks counts generation responses served with fallback content.
	LLMFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicmirror",
		Name:      "llm_fallbacks_total",
		Help:      "Generation responses served with fallback content.",
	}, []string{"feature"})

	// HTTPRequests counts served requests by method, route and status code.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicmirror",
		Name:      "http_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "route", "code"})

	// CacheLookups counts cache reads by hit or miss.
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sonicmirror",
		Name:      "cache_lookups_total",
		Help:      "Result cache lookups.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(LLMRequests, LLMDuration, LLMFallbacks, HTTPRequests, CacheLookups)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
