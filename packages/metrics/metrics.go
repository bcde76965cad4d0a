// Package metrics
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_name"},
	)
	PagesScraped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradcafe_pages_scraped_total",
			Help: "Total number of listing pages fetched and parsed.",
		},
	)
	RecordsScraped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradcafe_records_scraped_total",
			Help: "Total number of applicant records extracted from listing pages.",
		},
	)
	FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradcafe_fetch_failures_total",
			Help: "Total number of failed page fetches, labeled by failure kind.",
		},
		[]string{"kind"},
	)
	LoadRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradcafe_load_rows_total",
			Help: "Rows handled by the bulk loader, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	PullDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gradcafe_pull_duration_seconds",
			Help:    "Wall-clock duration of complete pulls.",
			Buckets: []float64{5, 10, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(DBQueryDuration)
	prometheus.MustRegister(PagesScraped)
	prometheus.MustRegister(RecordsScraped)
	prometheus.MustRegister(FetchFailures)
	prometheus.MustRegister(LoadRows)
	prometheus.MustRegister(PullDuration)
}

// ObserveQuery records the time since start under name.
func ObserveQuery(name string, start time.Time) {
	DBQueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// ExposeMetrics serves /metrics on addr until ctx is cancelled.
func ExposeMetrics(ctx context.Context, addr string) error {
	slog.Info("Exposing Prometheus metrics", "address", addr)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to start Prometheus metrics server", "error", err)
		return err
	}
	return nil
}
