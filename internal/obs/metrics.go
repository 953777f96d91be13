// Package obs exposes the platform's Prometheus metrics.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pestypig/casimirbot/internal/guardrail"
	"github.com/pestypig/casimirbot/internal/pipeline"
	"github.com/pestypig/casimirbot/internal/sensitivity"
	"github.com/pestypig/casimirbot/internal/transition"
)

const namespace = "casimirbot"

// #region metrics

// Metrics holds the platform's Prometheus collectors. Create once per
// registry via NewMetrics.
type Metrics struct {
	RecomputesTotal  prometheus.Counter
	TransitionsTotal *prometheus.CounterVec
	EvaluationsTotal *prometheus.CounterVec
	SweepCasesTotal  prometheus.Counter

	PowerAvgMW   prometheus.Gauge
	ExoticMassKg prometheus.Gauge
	Zeta         prometheus.Gauge
	MarginRatio  prometheus.Gauge
}

// NewMetrics registers the platform collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecomputesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputes_total",
			Help:      "Total pipeline recomputations.",
		}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total mode transitions by applied mode and fallback flag.",
		}, []string{"applied_mode", "fallback"}),
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_evaluations_total",
			Help:      "Total guardrail evaluations by applicability and classification.",
		}, []string{"applicability", "classification"}),
		SweepCasesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_cases_total",
			Help:      "Total sensitivity cases evaluated.",
		}),
		PowerAvgMW: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_avg_mw",
			Help:      "Duty-averaged hull power of the active state, megawatts.",
		}),
		ExoticMassKg: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exotic_mass_kg",
			Help:      "Exotic mass estimate of the active state, kilograms.",
		}),
		Zeta: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zeta",
			Help:      "Ford-Roman duty-cycle proxy of the active state.",
		}),
		MarginRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "guardrail_margin_ratio",
			Help:      "Clamped quantum-inequality margin ratio of the last evaluation.",
		}),
	}
}

// #endregion metrics

// #region observers

// ObserveState publishes the headline figures of a committed state.
func (m *Metrics) ObserveState(st pipeline.State) {
	m.RecomputesTotal.Inc()
	m.PowerAvgMW.Set(st.PowerAvgMW)
	mass := st.ExoticMassRawKg
	if st.Variant == pipeline.VariantCalibrated {
		mass = st.ExoticMassCalKg
	}
	m.ExoticMassKg.Set(mass)
	m.Zeta.Set(st.Zeta)
}

// ObserveEvaluation publishes one guardrail verdict.
func (m *Metrics) ObserveEvaluation(sum guardrail.Summary) {
	m.EvaluationsTotal.WithLabelValues(sum.ApplicabilityStatus, string(sum.Classification)).Inc()
	m.MarginRatio.Set(sum.MarginRatio)
}

// ObserveTransition publishes one mode decision.
func (m *Metrics) ObserveTransition(res transition.TransitionResult) {
	fallback := "false"
	if res.FallbackApplied {
		fallback = "true"
	}
	m.TransitionsTotal.WithLabelValues(string(res.AppliedMode), fallback).Inc()
}

// ObserveSweep publishes the case count of one sensitivity run.
func (m *Metrics) ObserveSweep(res sensitivity.RunResult) {
	m.SweepCasesTotal.Add(float64(len(res.Cases)))
}

// #endregion observers
