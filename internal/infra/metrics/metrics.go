// internal/infra/metrics/metrics.go
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
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_notifier_events_total",
			Help: "Notification events produced by the classifier",
		},
		[]string{"event"},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_notifier_deliveries_total",
			Help: "Telegram delivery attempts per result",
		},
		[]string{"result"},
	)

	PollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_notifier_poll_errors_total",
			Help: "Poll cycle failures per entity type and stage",
		},
		[]string{"entity", "stage"},
	)

	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booking_notifier_poll_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle over all entity types",
			Buckets: prometheus.DefBuckets,
		},
	)

	DigestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_notifier_digest_runs_total",
			Help: "Daily digest runs per result",
		},
		[]string{"result"},
	)

	DBRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_notifier_db_retries_total",
			Help: "Queries retried after a connection-class failure",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsEmitted, Deliveries, PollErrors, PollCycleDuration, DigestRuns, DBRetries)
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables the endpoint.
func Serve(ctx context.Context, addr string, logger *logrus.Entry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Metrics endpoint stopped")
	}
}
