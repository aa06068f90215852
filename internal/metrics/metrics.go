package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/maltedev/costco-scraper/internal/scraper"
)

// ScraperMetrics holds the counters of one batch run. The job is short lived, so
// they are pushed to a Pushgateway instead of being scraped.
type ScraperMetrics struct {
	registry    *prometheus.Registry
	categories  *prometheus.CounterVec
	cards       *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	upserts     *prometheus.CounterVec
	runDuration prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func NewScraperMetrics() *ScraperMetrics {
	m := &ScraperMetrics{
		registry: prometheus.NewRegistry(),
		categories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costco_scraper_categories_total",
			Help: "Categories visited, by result.",
		}, []string{"result"}),
		cards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costco_scraper_cards_total",
			Help: "Product cards matched on listing pages, by category.",
		}, []string{"category"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costco_scraper_cards_skipped_total",
			Help: "Cards dropped before the write because a name or link was missing, by category.",
		}, []string{"category"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costco_scraper_upserts_total",
			Help: "Product writes, by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "costco_scraper_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "costco_scraper_last_success_timestamp_seconds",
			Help: "Unix time of the last run that wrote at least one record.",
		}),
	}

	m.registry.MustRegister(m.categories, m.cards, m.skipped, m.upserts, m.runDuration, m.lastSuccess)
	return m
}

// ObserveRun folds a finished run into the counters.
func (m *ScraperMetrics) ObserveRun(summary *scraper.RunSummary) {
	for _, c := range summary.Categories {
		m.categories.WithLabelValues(string(c.Status)).Inc()
		m.cards.WithLabelValues(string(c.Category)).Add(float64(c.CardsFound))
		m.skipped.WithLabelValues(string(c.Category)).Add(float64(c.Skipped))
	}

	m.upserts.WithLabelValues("inserted").Add(float64(summary.Inserted()))
	m.upserts.WithLabelValues("updated").Add(float64(summary.Updated()))
	m.upserts.WithLabelValues("failed").Add(float64(summary.RecordsFailed()))

	m.runDuration.Set(summary.Duration().Seconds())
	if summary.RecordsWritten() > 0 && !summary.Interrupted {
		m.lastSuccess.Set(float64(summary.FinishedAt.Unix()))
	}
}

// Push sends the collected metrics to the Pushgateway at url under job.
func (m *ScraperMetrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

func (m *ScraperMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// APIMetrics instruments the read API.
type APIMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewAPIMetrics() *APIMetrics {
	m := &APIMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costco_api_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "costco_api_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware records every request under its chi route pattern.
func (m *APIMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
