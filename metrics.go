package autotune

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trial and fit outcomes used as metric label values.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeSuccess   = "success"
	outcomeError     = "error"
)

// Metrics holds the Prometheus collectors of the tuning engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	trials        *prometheus.CounterVec
	trialDuration *prometheus.HistogramVec
	fits          *prometheus.CounterVec
	bestLoss      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		trials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autotune",
			Name:      "trials_total",
			Help:      "Tuning trials evaluated, by model type and outcome.",
		}, []string{"model", "outcome"}),
		trialDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autotune",
			Name:      "trial_duration_seconds",
			Help:      "Wall-clock duration of one tuning trial across all splits.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"model"}),
		fits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autotune",
			Name:      "fits_total",
			Help:      "Per label set tune-and-fit runs, by model type and outcome.",
		}, []string{"model", "outcome"}),
		bestLoss: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autotune",
			Name:      "best_loss",
			Help:      "Best average objective loss of the most recent tuning run.",
		}, []string{"model"}),
	}
}

func (m *Metrics) observeTrial(model string, failed bool, d time.Duration) {
	if m == nil {
		return
	}

	outcome := outcomeCompleted
	if failed {
		outcome = outcomeFailed
	}

	m.trials.WithLabelValues(model, outcome).Inc()
	m.trialDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) observeFit(model string, err error) {
	if m == nil {
		return
	}

	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}

	m.fits.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) setBestLoss(model string, loss float64) {
	if m == nil {
		return
	}

	m.bestLoss.WithLabelValues(model).Set(loss)
}
