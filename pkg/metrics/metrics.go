package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	skipSignalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karaoke_skip_signals_total",
			Help: "Number of times a skip vote reached the threshold",
		},
	)

	youtubeSearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karaoke_youtube_search_total",
			Help: "Total number of video searches by outcome",
		},
		[]string{"status"},
	)

	invitationRedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karaoke_invitation_redemptions_total",
			Help: "Total number of invitation redemptions by result",
		},
		[]string{"result"},
	)

	changeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karaoke_change_events_total",
			Help: "Change events published by table",
		},
		[]string{"table"},
	)
)

// Middleware collects request count and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		httpRequestsInFlight.Dec()
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func RecordSkipSignal() {
	skipSignalsTotal.Inc()
}

// RecordYouTubeSearch labels a search as "ok", "cached" or "error".
func RecordYouTubeSearch(status string) {
	youtubeSearchTotal.WithLabelValues(status).Inc()
}

func RecordInvitationRedemption(result string) {
	invitationRedemptionsTotal.WithLabelValues(result).Inc()
}

func RecordChangeEvent(table string) {
	changeEventsTotal.WithLabelValues(table).Inc()
}
