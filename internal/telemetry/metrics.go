// Package telemetry exposes the router's observability surface as
// Prometheus metrics, grounded verbatim on tokenhub's
// internal/metrics/metrics.go Registry/New/Handler shape.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine exports: decision latency and
// guardrail rejections from the Router, predictor-unavailable and
// fallback counts from the Scorer/Router boundary, the retrain counter from
// the Candidate Store, and the feedback-drop counter from the feedback
// Ingestor.
type Registry struct {
	reg *prometheus.Registry

	DecisionsTotal       *prometheus.CounterVec
	DecisionLatencyMs    prometheus.Histogram
	GuardrailRejections  *prometheus.CounterVec
	PredictorFallbacks   prometheus.Counter
	PredictorUnavailable prometheus.Counter
	RetrainsTotal        prometheus.Counter
	FeedbackDroppedTotal prometheus.Counter
}

// New constructs a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psp_router_decisions_total",
			Help: "Total routing decisions made, by guardrail tag",
		}, []string{"guardrail"}),
		DecisionLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "psp_router_decision_latency_ms",
			Help:    "Decide() call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 8),
		}),
		GuardrailRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psp_router_guardrail_rejections_total",
			Help: "Count of Decide calls whose candidate set was emptied, by guardrail",
		}, []string{"guardrail"}),
		PredictorFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psp_router_predictor_fallbacks_total",
			Help: "Count of candidates scored via the deterministic fallback path",
		}),
		PredictorUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psp_router_predictor_unavailable_total",
			Help: "Count of Predict calls that failed or timed out",
		}),
		RetrainsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psp_router_retrains_total",
			Help: "Total retrain cycles triggered",
		}),
		FeedbackDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psp_router_feedback_dropped_total",
			Help: "Total feedback entries dropped due to queue overflow",
		}),
	}
	reg.MustRegister(
		m.DecisionsTotal, m.DecisionLatencyMs, m.GuardrailRejections,
		m.PredictorFallbacks, m.PredictorUnavailable, m.RetrainsTotal,
		m.FeedbackDroppedTotal,
	)
	return m
}

// Handler exposes the registry on a /metrics-style endpoint.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// OnRouterEvent adapts the (event string, fields ...any) shape shared by
// router.Router.OnEvent, candidatestore.Store.OnEvent, and
// feedback.Ingestor.OnEvent into metric updates. Wired to all three from the
// same Registry, so one event vocabulary drives every exported counter.
func (m *Registry) OnRouterEvent(event string, fields ...any) {
	switch event {
	case "guardrail_emptied_candidates":
		m.GuardrailRejections.WithLabelValues(stringField(fields, "guardrail")).Inc()
	case "predictor_fallback":
		m.PredictorFallbacks.Inc()
		m.PredictorUnavailable.Inc()
	case "decision_made":
		m.DecisionsTotal.WithLabelValues(stringField(fields, "guardrail")).Inc()
		if ms, ok := floatField(fields, "latency_ms"); ok {
			m.DecisionLatencyMs.Observe(ms)
		}
	case "retrain_triggered":
		m.RetrainsTotal.Inc()
	case "feedback_dropped":
		m.FeedbackDroppedTotal.Inc()
	}
}

func stringField(fields []any, key string) string {
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok && k == key {
			return fmt.Sprintf("%v", fields[i+1])
		}
	}
	return "unknown"
}

func floatField(fields []any, key string) (float64, bool) {
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok && k == key {
			v, ok := fields[i+1].(float64)
			return v, ok
		}
	}
	return 0, false
}
