// Package metrics records storefront session and cart metrics to Prometheus and,
// when configured, mirrors them to a StatsD sink.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	obserrors "github.com/target/storefront-api/internal/observability/errors"
	"github.com/target/storefront-api/internal/observability/statsd"
)

const namespace = "storefront"

// Reconcile sources.
const (
	SourceInitial  = "initial"
	SourceProvider = "provider_event"
	SourceLogin    = "login"
	SourceSignUp   = "signup"
	SourceLogout   = "logout"
)

// Reconcile results.
const (
	ResultAuthenticated   = "authenticated"
	ResultUnauthenticated = "unauthenticated"
	ResultStale           = "stale"
	ResultError           = "error"
)

// ReconcileMetric describes one completed reconciliation attempt.
type ReconcileMetric struct {
	Source   string
	Result   string
	Duration time.Duration
	Err      error
}

// CartMetric describes one cart mutation.
type CartMetric struct {
	Op  string
	Err error
}

// RecorderOptions configures a Recorder. A nil Registerer registers nothing,
// which keeps parallel tests from colliding on the default registry.
type RecorderOptions struct {
	Registerer prometheus.Registerer
	Sink       statsd.Sink
}

// Recorder is safe for concurrent use. A nil *Recorder is a no-op.
type Recorder struct {
	reconciles        *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	cartMutations     *prometheus.CounterVec
	activeReconcilers prometheus.Gauge
	sink              statsd.Sink
}

// NewRecorder creates the storefront collectors on opts.Registerer.
func NewRecorder(opts RecorderOptions) *Recorder {
	factory := promauto.With(opts.Registerer)
	return &Recorder{
		reconciles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_reconcile_total",
			Help:      "Session reconciliation attempts by source and result",
		}, []string{"source", "result", "error_class"}),
		reconcileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_reconcile_duration_seconds",
			Help:      "Duration of session reconciliation attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		cartMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation and result",
		}, []string{"op", "result"}),
		activeReconcilers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_reconcilers",
			Help:      "Session reconcilers currently held by the hub",
		}),
		sink: opts.Sink,
	}
}

// ObserveReconcile records a reconciliation attempt.
func (r *Recorder) ObserveReconcile(m ReconcileMetric) {
	if r == nil {
		return
	}
	class := obserrors.Classify(m.Err)
	label := class
	if label == "" {
		label = "none"
	}
	r.reconciles.WithLabelValues(m.Source, m.Result, label).Inc()
	if m.Duration > 0 {
		r.reconcileDuration.WithLabelValues(m.Source).Observe(m.Duration.Seconds())
	}

	if r.sink == nil {
		return
	}
	tags := map[string]string{"source": m.Source, "result": m.Result}
	if class != "" {
		tags["error_class"] = class
	}
	r.sink.Count("session.reconcile", 1, tags)
	if m.Duration > 0 {
		r.sink.Timing("session.reconcile.duration", m.Duration, map[string]string{"source": m.Source})
	}
}

// ObserveCartMutation records a cart mutation.
func (r *Recorder) ObserveCartMutation(m CartMetric) {
	if r == nil {
		return
	}
	result := "ok"
	if m.Err != nil {
		result = obserrors.Classify(m.Err)
	}
	r.cartMutations.WithLabelValues(m.Op, result).Inc()
	if r.sink != nil {
		r.sink.Count("cart.mutation", 1, map[string]string{"op": m.Op, "result": result})
	}
}

// SetActiveReconcilers reports the number of live reconcilers.
func (r *Recorder) SetActiveReconcilers(n int) {
	if r == nil {
		return
	}
	r.activeReconcilers.Set(float64(n))
	if r.sink != nil {
		r.sink.Gauge("session.reconcilers.active", float64(n), nil)
	}
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
