package monitoring

import "github.com/prometheus/client_golang/prometheus"

var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "code"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	EngagementToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_toggles_total",
			Help: "Total number of follow, like and save toggles by outcome",
		},
		[]string{"kind", "result"},
	)

	LikeRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "like_cas_retries_total",
			Help: "Like-set writes retried after losing the version check",
		},
	)

	FeedPages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_pages_total",
			Help: "Total number of feed pages served",
		},
		[]string{"filter"},
	)

	FollowCounterRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "follow_counter_repairs_total",
			Help: "Users whose follow counters disagreed with their edge count",
		},
	)

	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected event stream clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HttpRequestsTotal,
		HttpRequestDuration,
		ActiveConnections,
		EngagementToggles,
		LikeRetries,
		FeedPages,
		FollowCounterRepairs,
		WebsocketClients,
	)
}

// ToggleResult labels a toggle outcome for EngagementToggles.
func ToggleResult(on bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case on:
		return "on"
	default:
		return "off"
	}
}
