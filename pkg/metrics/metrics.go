// Package metrics holds the Prometheus collectors of the sync engine
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	SupplierRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_sync_requests_total",
			Help: "Supplier HTTP requests, labeled by method and status code (\"error\" for transport failures).",
		},
		[]string{"method", "status_code"},
	)
	SupplierRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supplier_sync_request_duration_seconds",
			Help:    "Duration of supplier HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	FetchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_sync_fetch_retries_total",
			Help: "Retried supplier fetches, labeled by error category.",
		},
		[]string{"category"},
	)
	LoginOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_sync_logins_total",
			Help: "Login attempts, labeled by supplier and outcome.",
		},
		[]string{"supplier", "outcome"},
	)
	ExtractionMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_sync_extraction_misses_total",
			Help: "Login chain pattern extractions that found no match.",
		},
		[]string{"step", "field"},
	)
	DocumentsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_sync_documents_saved_total",
			Help: "Documents handed to the save boundary, labeled by mode (raw, parsed, blank).",
		},
		[]string{"mode"},
	)
	SaveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supplier_sync_save_duration_seconds",
			Help:    "Duration of saves in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	SaveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_sync_save_errors_total",
			Help: "Failed saves, labeled by mode.",
		},
		[]string{"mode"},
	)
	SyncsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supplier_sync_syncs_in_progress",
			Help: "Sync requests currently running.",
		},
	)
)

func init() {
	prometheus.MustRegister(SupplierRequests)
	prometheus.MustRegister(SupplierRequestDuration)
	prometheus.MustRegister(FetchRetries)
	prometheus.MustRegister(LoginOutcomes)
	prometheus.MustRegister(ExtractionMisses)
	prometheus.MustRegister(DocumentsSaved)
	prometheus.MustRegister(SaveDuration)
	prometheus.MustRegister(SaveErrors)
	prometheus.MustRegister(SyncsInProgress)
}

// ObserveSave records the outcome of one save
func ObserveSave(mode string, start time.Time, err error) {
	SaveDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		SaveErrors.WithLabelValues(mode).Inc()
		return
	}
	DocumentsSaved.WithLabelValues(mode).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Expose serves /metrics on addr until ctx is cancelled
func Expose(ctx context.Context, addr string, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Exposing Prometheus metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
