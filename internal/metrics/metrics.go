// Package metrics exposes Prometheus collectors for the crawl run.
package metrics

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal           *prometheus.CounterVec
	rateLimitRetriesTotal prometheus.Counter
	proxyPoolSize         prometheus.Gauge
	proxyRefreshesTotal   *prometheus.CounterVec
	proxyRefreshSeconds   prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than
// once.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branchscan_checks_total",
				Help: "Total identifier checks, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "branchscan_rate_limit_retries_total",
				Help: "Total proxy-rotation retries triggered by rate limiting.",
			},
		)

		proxyPoolSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "branchscan_proxy_pool_size",
				Help: "Validated proxy endpoints currently in the pool.",
			},
		)

		proxyRefreshesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "branchscan_proxy_refreshes_total",
				Help: "Proxy pool refresh cycles, labeled ok or empty.",
			},
			[]string{"result"},
		)

		proxyRefreshSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "branchscan_proxy_refresh_duration_seconds",
				Help:    "Wall time of proxy pool refresh cycles.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)
	})
}

// ObserveCheck records one terminal per-identifier outcome.
func ObserveCheck(outcome string) {
	if checksTotal != nil {
		checksTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRateLimitRetry records one proxy-rotation retry.
func ObserveRateLimitRetry() {
	if rateLimitRetriesTotal != nil {
		rateLimitRetriesTotal.Inc()
	}
}

// SetProxyPoolSize records the validated pool size after a refresh.
func SetProxyPoolSize(n int) {
	if proxyPoolSize != nil {
		proxyPoolSize.Set(float64(n))
	}
}

// ObserveProxyRefresh records one refresh cycle and its duration.
func ObserveProxyRefresh(result string, seconds float64) {
	if proxyRefreshesTotal != nil {
		proxyRefreshesTotal.WithLabelValues(result).Inc()
	}
	if proxyRefreshSeconds != nil {
		proxyRefreshSeconds.Observe(seconds)
	}
}

// Router returns a chi router serving /metrics and /healthz, for the
// optional observability listener.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
