// Package metrics exports tracker activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

// Recorder implements signal.Observer using Prometheus.
type Recorder struct {
	signals        *prometheus.CounterVec
	vetoes         *prometheus.CounterVec
	regimeChanges  *prometheus.CounterVec
	zScore         *prometheus.GaugeVec
	regime         *prometheus.GaugeVec
	positionSize   *prometheus.GaugeVec
	entryThreshold *prometheus.GaugeVec
	hedgeRatio     *prometheus.GaugeVec
	portfolioHeat  prometheus.Gauge
	latency        *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
}

// New creates a recorder whose metrics are registered on reg under namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Total number of emitted signals by pair and position",
			},
			[]string{"pair", "position"},
		),
		vetoes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_vetoes_total",
				Help:      "Total number of signals vetoed by transaction costs",
			},
			[]string{"pair"},
		),
		regimeChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regime_changes_total",
				Help:      "Total number of regime transitions by target regime",
			},
			[]string{"pair", "regime"},
		),
		zScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "z_score",
				Help:      "Last spread z-score",
			},
			[]string{"pair"},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "regime",
				Help:      "Current regime (0 normal, 1 stress, 2 crisis)",
			},
			[]string{"pair"},
		),
		positionSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "position_size",
				Help:      "Last volatility-targeted position size",
			},
			[]string{"pair"},
		),
		entryThreshold: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entry_threshold",
				Help:      "Last dynamic entry threshold",
			},
			[]string{"pair"},
		),
		hedgeRatio: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hedge_ratio",
				Help:      "Last hedge ratio",
			},
			[]string{"pair"},
		),
		portfolioHeat: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_heat",
				Help:      "Mean absolute off-diagonal spread correlation",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "update_duration_seconds",
				Help:      "Duration of tracker updates in seconds",
				Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2},
			},
			[]string{"pair"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// ObserveSignal records one processed tick.
func (r *Recorder) ObserveSignal(ev signal.Event) {
	s := ev.Signal
	r.signals.WithLabelValues(ev.Tracker, s.Signal.String()).Inc()
	if s.Vetoed {
		r.vetoes.WithLabelValues(ev.Tracker).Inc()
	}
	if ev.RegimeChanged {
		r.regimeChanges.WithLabelValues(ev.Tracker, s.Regime.String()).Inc()
	}
	r.zScore.WithLabelValues(ev.Tracker).Set(s.ZScore)
	r.regime.WithLabelValues(ev.Tracker).Set(float64(s.Regime))
	r.positionSize.WithLabelValues(ev.Tracker).Set(s.PositionSize)
	r.entryThreshold.WithLabelValues(ev.Tracker).Set(s.EntryThreshold)
	r.hedgeRatio.WithLabelValues(ev.Tracker).Set(s.HedgeRatio)
	r.latency.WithLabelValues(ev.Tracker).Observe(ev.Elapsed.Seconds())
}

// RecordPortfolioHeat records the portfolio correlation heat.
func (r *Recorder) RecordPortfolioHeat(heat float64) {
	r.portfolioHeat.Set(heat)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
