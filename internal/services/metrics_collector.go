package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/qlozet/stylefeed/pkg/models"
)

// Pipeline labels used on every feed metric.
const (
	PipelineHome           = "home"
	PipelineVendor         = "vendor"
	PipelineTrending       = "trending"
	PipelineNewArrivals    = "new_arrivals"
	PipelineBoughtTogether = "bought_together"
	PipelineCompleteLook   = "complete_look"
)

// FeedMetrics holds the Prometheus collectors for the feed pipelines. A nil
// *FeedMetrics records nothing.
type FeedMetrics struct {
	feedRequests  *prometheus.CounterVec
	feedLatency   *prometheus.HistogramVec
	feedItems     *prometheus.HistogramVec
	filterDrops   *prometheus.CounterVec
	coldStart     *prometheus.CounterVec
	searchLatency *prometheus.HistogramVec
	trendingFill  prometheus.Counter
	eventsLogged  *prometheus.CounterVec
	breakerState  prometheus.Gauge
}

// NewFeedMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	factory := promauto.With(reg)

	return &FeedMetrics{
		feedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_requests_total",
			Help: "Total number of feed requests by pipeline and outcome",
		}, []string{"pipeline", "status"}),

		feedLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feed_latency_seconds",
			Help:    "Feed assembly latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"pipeline"}),

		feedItems: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feed_items_returned",
			Help:    "Number of items returned per feed",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		}, []string{"pipeline"}),

		filterDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_filter_drops_total",
			Help: "Candidates removed by hard filters, by first failing predicate",
		}, []string{"pipeline", "reason"}),

		coldStart: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_cold_start_total",
			Help: "Home feed requests by personalisation level",
		}, []string{"level"}),

		searchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vector_search_latency_seconds",
			Help:    "Nearest-neighbour search latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"status"}),

		trendingFill: factory.NewCounter(prometheus.CounterOpts{
			Name: "retrieval_trending_fill_total",
			Help: "Trending items used to fill personalised candidate sets",
		}),

		eventsLogged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_events_logged_total",
			Help: "Behavioural events accepted by type",
		}, []string{"event_type"}),

		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vector_search_breaker_state",
			Help: "Vector search circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
	}
}

func (m *FeedMetrics) ObserveFeed(pipeline string, start time.Time, items int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.feedRequests.WithLabelValues(pipeline, status).Inc()
	m.feedLatency.WithLabelValues(pipeline).Observe(time.Since(start).Seconds())
	if err == nil {
		m.feedItems.WithLabelValues(pipeline).Observe(float64(items))
	}
}

func (m *FeedMetrics) RecordDrops(pipeline string, dropped models.DropCounts) {
	if m == nil {
		return
	}
	for reason, n := range dropped {
		if n > 0 {
			m.filterDrops.WithLabelValues(pipeline, string(reason)).Add(float64(n))
		}
	}
}

func (m *FeedMetrics) RecordColdStart(level models.ColdStartLevel) {
	if m == nil {
		return
	}
	m.coldStart.WithLabelValues(string(level)).Inc()
}

func (m *FeedMetrics) ObserveSearch(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.searchLatency.WithLabelValues(status).Observe(d.Seconds())
}

func (m *FeedMetrics) RecordTrendingFill(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.trendingFill.Add(float64(n))
}

func (m *FeedMetrics) RecordEvent(t models.EventType) {
	if m == nil {
		return
	}
	m.eventsLogged.WithLabelValues(string(t)).Inc()
}

func (m *FeedMetrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(state))
}
