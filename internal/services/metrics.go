package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/recanthology/engine/pkg/models"
)

// MetricsService exposes the engine's Prometheus instruments. All methods
// are safe for concurrent use and never block request handling; a nil
// receiver records nothing.
type MetricsService struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	recommendations *prometheus.CounterVec
	recLatency      *prometheus.HistogramVec
	cacheEvents     *prometheus.CounterVec
	ratingWrites    *prometheus.CounterVec
	similarityCalcs *prometheus.CounterVec
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "path"}),

		recommendations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Recommendation responses served, by kind and mode",
		}, []string{"kind", "mode"}),

		recLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_latency_seconds",
			Help:    "Recommendation pipeline latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"kind", "mode"}),

		cacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_events_total",
			Help: "Cache hits and misses by namespace",
		}, []string{"namespace", "event"}),

		ratingWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rating_writes_total",
			Help: "Rating upserts by item kind",
		}, []string{"kind"}),

		similarityCalcs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "similarity_computations_total",
			Help: "Item similarity list recomputations by kind",
		}, []string{"kind"}),
	}
}

func (m *MetricsService) ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *MetricsService) ObserveRecommendation(kind models.ItemKind, mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(string(kind), mode).Inc()
	m.recLatency.WithLabelValues(string(kind), mode).Observe(duration.Seconds())
}

func (m *MetricsService) CacheHit(namespace string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(namespace, "hit").Inc()
}

func (m *MetricsService) CacheMiss(namespace string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(namespace, "miss").Inc()
}

func (m *MetricsService) RatingWritten(kind models.ItemKind) {
	if m == nil {
		return
	}
	m.ratingWrites.WithLabelValues(string(kind)).Inc()
}

func (m *MetricsService) SimilarityComputed(kind models.ItemKind) {
	if m == nil {
		return
	}
	m.similarityCalcs.WithLabelValues(string(kind)).Inc()
}
