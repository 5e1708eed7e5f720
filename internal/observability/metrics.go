// Package observability exposes pipeline metrics in Prometheus format.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SmillingSword/news-reynra/internal/types"
)

const namespace = "reynra"

// Metrics holds the pipeline's Prometheus collectors. It satisfies the
// recorder interfaces of the engine, queue and publisher.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal     *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	ArticlesTotal *prometheus.CounterVec
	RewritesTotal *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	TasksTotal    *prometheus.CounterVec
	PublishTotal  *prometheus.CounterVec

	logger *slog.Logger
}

// NewMetrics creates and registers all metrics on a fresh registry that also
// carries the Go runtime and process collectors.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_jobs_total",
			Help:      "Scraping jobs by final status.",
		}, []string{"status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_job_duration_seconds",
			Help:      "Duration of scraping jobs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
		}, []string{"status"}),
		ArticlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Candidate outcomes by action and skip reason.",
		}, []string{"action", "reason"}),
		RewritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Rewrites by the path that produced them.",
		}, []string{"rewritten_by"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of outbound fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"fetcher", "outcome"}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_tasks_total",
			Help:      "Queue task outcomes.",
		}, []string{"queue", "outcome"}),
		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Draft publication outcomes.",
		}, []string{"outcome"}),
		logger: logger.With("component", "metrics"),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveJob(status types.JobStatus, d time.Duration) {
	m.JobsTotal.WithLabelValues(string(status)).Inc()
	m.JobDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func (m *Metrics) ObserveArticle(action types.Action, reason string) {
	m.ArticlesTotal.WithLabelValues(string(action), reason).Inc()
}

// ObserveRewrite counts one rewrite attributed to rewrittenBy.
func (m *Metrics) ObserveRewrite(rewrittenBy string) {
	m.RewritesTotal.WithLabelValues(rewrittenBy).Inc()
}

func (m *Metrics) ObserveFetch(fetcher, outcome string, d time.Duration) {
	m.FetchDuration.WithLabelValues(fetcher, outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveTask(queue, outcome string) {
	m.TasksTotal.WithLabelValues(queue, outcome).Inc()
}

func (m *Metrics) ObservePublish(outcome string) {
	m.PublishTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves metrics on path and a liveness check on /health until
// ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}
