// Package monitoring exposes the service's Prometheus metrics.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartfail_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heartfail_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartfail_classifications_total",
			Help: "Classifications served, by result label",
		},
		[]string{"result"},
	)

	ClassificationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartfail_classification_errors_total",
			Help: "Classification requests that failed, by reason",
		},
		[]string{"reason"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartfail_prediction_cache_lookups_total",
			Help: "Prediction cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	ModelReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartfail_model_reloads_total",
			Help: "Model file reloads triggered by the watcher",
		},
		[]string{"outcome"},
	)

	ModelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartfail_model_loaded",
			Help: "1 when a model is available for classification",
		},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heartfail_fetch_duration_seconds",
			Help:    "Time spent fetching startup resources",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"resource", "outcome"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartfail_websocket_clients",
			Help: "Connected live-form websocket clients",
		},
	)
)

func ObserveFetch(resource string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FetchDuration.WithLabelValues(resource, outcome).Observe(d.Seconds())
}

func SetModelLoaded(loaded bool) {
	if loaded {
		ModelLoaded.Set(1)
		return
	}
	ModelLoaded.Set(0)
}

func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
