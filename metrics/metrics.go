package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AvaProtocol/aa-relay/pkg/logger"
)

type RelayMetrics interface {
	ObserveBundlerRequest(method, status string, elapsed time.Duration)
	IncSubmission(version, status string)
	IncReceiptOutcome(outcome string)
	IncSignature(kind string)
}

// RelayerMetrics records relayer traffic and operation outcomes.
type RelayerMetrics struct {
	bundlerRequests *prometheus.CounterVec
	bundlerLatency  *prometheus.HistogramVec
	submissions     *prometheus.CounterVec
	receiptOutcomes *prometheus.CounterVec
	signatures      *prometheus.CounterVec
}

const aaNamespace = "aa"

func NewRelayerMetrics(reg prometheus.Registerer) *RelayerMetrics {
	return &RelayerMetrics{
		bundlerRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "bundler_requests_total",
				Help:      "The number of JSON-RPC requests sent to the bundler, by method and outcome",
			}, []string{"method", "status"}),

		bundlerLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: aaNamespace,
				Name:      "bundler_request_duration_seconds",
				Help:      "Round trip time of bundler JSON-RPC requests",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),

		submissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "submissions_total",
				Help:      "The number of user operations and delegated transactions submitted",
			}, []string{"version", "status"}),

		receiptOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "receipt_outcomes_total",
				Help:      "Receipt polling outcomes. timed_out means the inclusion status is unknown, not failed",
			}, []string{"outcome"}),

		signatures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "signatures_total",
				Help:      "The number of signatures produced, by kind",
			}, []string{"kind"}),
	}
}

func (m *RelayerMetrics) ObserveBundlerRequest(method, status string, elapsed time.Duration) {
	m.bundlerRequests.WithLabelValues(method, status).Inc()
	m.bundlerLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *RelayerMetrics) IncSubmission(version, status string) {
	m.submissions.WithLabelValues(version, status).Inc()
}

func (m *RelayerMetrics) IncReceiptOutcome(outcome string) {
	m.receiptOutcomes.WithLabelValues(outcome).Inc()
}

func (m *RelayerMetrics) IncSignature(kind string) {
	m.signatures.WithLabelValues(kind).Inc()
}

type noopMetrics struct{}

func (noopMetrics) ObserveBundlerRequest(string, string, time.Duration) {}
func (noopMetrics) IncSubmission(string, string)                         {}
func (noopMetrics) IncReceiptOutcome(string)                             {}
func (noopMetrics) IncSignature(string)                                  {}

// NewNoopMetrics discards everything.
func NewNoopMetrics() RelayMetrics {
	return noopMetrics{}
}

// EnsureMetrics returns m, or a no-op implementation when m is nil.
func EnsureMetrics(m RelayMetrics) RelayMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// Serve exposes reg on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer, lgr logger.Logger) error {
	log := logger.EnsureLogger(lgr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
