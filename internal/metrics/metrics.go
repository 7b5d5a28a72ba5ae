// Package metrics exposes Prometheus collectors for sleep function waits.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/sqlsleep/internal/sleep"
)

var (
	waitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlsleep",
		Subsystem: "waiter",
		Name:      "waits_total",
		Help:      "Count of non-null rows processed, by outcome.",
	}, []string{"function", "outcome"})

	waitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sqlsleep",
		Subsystem: "waiter",
		Name:      "wait_duration_seconds",
		Help:      "Time actually spent waiting per row.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9), // 10ms..~655s
	}, []string{"function", "outcome"})

	nullRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlsleep",
		Subsystem: "waiter",
		Name:      "null_rows_total",
		Help:      "Count of null rows skipped without waiting.",
	}, []string{"function"})
)

// Waiter implements sleep.Observer on top of the package collectors.
type Waiter struct{}

// NewWaiter constructs a Waiter.
func NewWaiter() *Waiter {
	return &Waiter{}
}

// ObserveWait records a finished row and the time spent on it.
func (Waiter) ObserveWait(function string, outcome sleep.Outcome, elapsed time.Duration) {
	waitsTotal.WithLabelValues(function, string(outcome)).Inc()
	waitDuration.WithLabelValues(function, string(outcome)).Observe(elapsed.Seconds())
}

// ObserveNull records a skipped null row.
func (Waiter) ObserveNull(function string) {
	nullRowsTotal.WithLabelValues(function).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()
}
