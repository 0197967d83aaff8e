// Package metrics records turn-level metrics for the shopping agent.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives agent events.
type Recorder interface {
	ObserveTurn(intent, replyKind, tier string, duration time.Duration)
	IncFallback(component string)
	IncActuation(op string, success bool)
	IncBusy()
}

// Nop discards every event.
type Nop struct{}

func (Nop) ObserveTurn(string, string, string, time.Duration) {}
func (Nop) IncFallback(string)                                {}
func (Nop) IncActuation(string, bool)                         {}
func (Nop) IncBusy()                                          {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg prometheus.Gatherer

	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	fallbacksTotal  *prometheus.CounterVec
	actuationsTotal *prometheus.CounterVec
	busyTotal       prometheus.Counter
}

// NewPrometheusRecorder registers the agent metrics on reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewPrometheusRecorder(reg *prometheus.Registry) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		reg: reg,
		turnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clickless_turns_total",
				Help: "Total number of turns by intent, reply kind and confidence tier",
			},
			[]string{"intent", "reply_kind", "tier"},
		),
		turnDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clickless_turn_duration_seconds",
				Help:    "Duration of a turn from utterance to reply",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"intent"},
		),
		fallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clickless_fallbacks_total",
				Help: "Times a component degraded to its fallback",
			},
			[]string{"component"},
		),
		actuationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clickless_cart_actuations_total",
				Help: "Cart actuator calls by operation and status",
			},
			[]string{"op", "status"},
		),
		busyTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "clickless_busy_rejections_total",
				Help: "Utterances rejected because the session had a turn in flight",
			},
		),
	}
}

func (p *PrometheusRecorder) ObserveTurn(intent, replyKind, tier string, duration time.Duration) {
	if tier == "" {
		tier = "none"
	}
	p.turnsTotal.WithLabelValues(intent, replyKind, tier).Inc()
	p.turnDuration.WithLabelValues(intent).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncFallback(component string) {
	p.fallbacksTotal.WithLabelValues(component).Inc()
}

func (p *PrometheusRecorder) IncActuation(op string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	p.actuationsTotal.WithLabelValues(op, status).Inc()
}

func (p *PrometheusRecorder) IncBusy() {
	p.busyTotal.Inc()
}

// Handler serves the registered metrics in the Prometheus text format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
