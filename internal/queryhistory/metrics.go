package queryhistory

import (
	"errors"

	"qhist/internal/domain"
	"qhist/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the store and the sweeper.
// A nil *Metrics records nothing.
type Metrics struct {
	saves         *prometheus.CounterVec
	removed       prometheus.Counter
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qhist",
			Name:      "saves_total",
			Help:      "Query history save attempts by result.",
		}, []string{"result"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qhist",
			Name:      "removed_records_total",
			Help:      "Query history records removed by retention.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qhist",
			Name:      "sweeps_total",
			Help:      "Retention sweeps by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qhist",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of retention sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.saves, m.removed, m.sweeps, m.sweepDuration)
	return m
}

func (m *Metrics) observeSave(err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		result = "invalid"
	case errors.Is(err, storage.ErrAlreadyExists):
		result = "duplicate"
	default:
		result = "error"
	}
	m.saves.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRemoved(n int64) {
	if m == nil {
		return
	}
	m.removed.Add(float64(n))
}

func (m *Metrics) observeSweep(seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(seconds)
}
