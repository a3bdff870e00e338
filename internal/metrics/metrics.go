package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	admissionDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sbcntr_booking",
			Name:      "admission_decision_total",
			Help:      "Count of booking admission decisions by result.",
		},
		[]string{"result"},
	)

	statusTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sbcntr_booking",
			Name:      "status_transition_total",
			Help:      "Count of applied reservation status transitions.",
		},
		[]string{"from", "to"},
	)

	admissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sbcntr_booking",
			Name:      "admission_duration_seconds",
			Help:      "Latency of booking admission including store retries.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sbcntr_booking",
			Name:      "sweep_runs_total",
			Help:      "Count of lifecycle sweep runs by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(admissionDecision, statusTransition, admissionDuration, sweepRuns)
	})
}

// 受付結果のラベル
const (
	ResultAccepted    = "accepted"
	ResultSlotFull    = "slot_full"
	ResultInvalid     = "invalid"
	ResultInvalidTime = "invalid_time"
	ResultUnavailable = "unavailable"
)

func IncAdmission(result string) {
	admissionDecision.WithLabelValues(result).Inc()
}

func ObserveAdmission(d time.Duration) {
	admissionDuration.Observe(d.Seconds())
}

func IncTransition(from, to string) {
	statusTransition.WithLabelValues(from, to).Inc()
}

func IncSweep(outcome string) {
	sweepRuns.WithLabelValues(outcome).Inc()
}

// Serve は /metrics を公開し、ctxがキャンセルされるまでブロックします
func Serve(ctx context.Context, addr string) error {
	Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	log.Printf("metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
