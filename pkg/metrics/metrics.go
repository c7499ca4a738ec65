// Package metrics exposes Prometheus collectors for the decision pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder wraps the pipeline's Prometheus collectors. A nil *Recorder is
// valid and records nothing, so tests and the replay CLI can skip metrics
// wiring entirely.
type Recorder struct {
	ticksTotal     *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	regimeProb     *prometheus.GaugeVec
	uncertainty    *prometheus.GaugeVec
	canaryWeight   *prometheus.GaugeVec
	recommendedPct *prometheus.GaugeVec
}

// New registers the pipeline collectors on reg (the default registerer
// when nil) and returns a Recorder.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		ticksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_ticks_total",
				Help: "Ticks processed per symbol",
			},
			[]string{"symbol"},
		),
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_decisions_total",
				Help: "Sizing decisions by outcome (trade, no_trade)",
			},
			[]string{"symbol", "outcome"},
		),
		regimeProb: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quant_regime_probability",
				Help: "Posterior probability per regime",
			},
			[]string{"symbol", "regime"},
		),
		uncertainty: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quant_filter_uncertainty",
				Help: "Trace of the mixed filter covariance",
			},
			[]string{"symbol"},
		),
		canaryWeight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quant_canary_weight",
				Help: "Live-capital weight from the rollout controller",
			},
			[]string{"symbol"},
		),
		recommendedPct: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quant_recommended_size_pct",
				Help: "Last recommended position size as portfolio fraction",
			},
			[]string{"symbol"},
		),
	}
}

// RecordTick counts one processed tick.
func (r *Recorder) RecordTick(symbol string) {
	if r == nil {
		return
	}
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordDecision counts a sizing decision outcome.
func (r *Recorder) RecordDecision(symbol, outcome string) {
	if r == nil {
		return
	}
	r.decisionsTotal.WithLabelValues(symbol, outcome).Inc()
}

// RecordRegime records the regime posterior and uncertainty.
func (r *Recorder) RecordRegime(symbol string, regime string, prob float64) {
	if r == nil {
		return
	}
	r.regimeProb.WithLabelValues(symbol, regime).Set(prob)
}

// RecordUncertainty records the mixed-covariance trace.
func (r *Recorder) RecordUncertainty(symbol string, v float64) {
	if r == nil {
		return
	}
	r.uncertainty.WithLabelValues(symbol).Set(v)
}

// RecordCanaryWeight records the current rollout weight.
func (r *Recorder) RecordCanaryWeight(symbol string, w float64) {
	if r == nil {
		return
	}
	r.canaryWeight.WithLabelValues(symbol).Set(w)
}

// RecordRecommendedSize records the last recommended size.
func (r *Recorder) RecordRecommendedSize(symbol string, pct float64) {
	if r == nil {
		return
	}
	r.recommendedPct.WithLabelValues(symbol).Set(pct)
}
