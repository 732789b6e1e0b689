// Package metrics declares the Prometheus collectors exported by adpanel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "adpanel"
)

var (
	// Upstream (provider API) metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Count of HTTP requests sent to advertising platforms.",
	}, []string{"provider", "outcome"})

	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of HTTP requests sent to advertising platforms.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	// Connector metrics
	CampaignTogglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "campaign_toggles_total",
		Help:      "Count of campaign status changes requested from the dashboard.",
	}, []string{"provider", "outcome"})

	OAuthFlowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oauth_flows_total",
		Help:      "Count of OAuth authorization attempts by terminal state.",
	}, []string{"provider", "state"})

	RefreshRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_runs_total",
		Help:      "Count of campaign metric refreshes.",
	}, []string{"provider", "status"})

	RefreshLastSuccessTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "refresh_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful metrics refresh.",
	}, []string{"provider"})
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
