package lua

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Load outcomes recorded by Metrics.
const (
	OutcomeLoaded   = "loaded"
	OutcomeCached   = "cached"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)

// Metrics holds Prometheus metrics for the load registry.
// A nil *Metrics records nothing.
type Metrics struct {
	Loads        *prometheus.CounterVec
	LoadDuration prometheus.Histogram
	Modules      prometheus.Gauge
	Reloads      *prometheus.CounterVec
}

// NewMetrics creates the load metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modrt",
				Name:      "loads_total",
				Help:      "Module load attempts by outcome",
			},
			[]string{"outcome"},
		),
		LoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "modrt",
				Name:      "load_duration_seconds",
				Help:      "Time spent compiling and running module files",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		Modules: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "modrt",
				Name:      "modules_loaded",
				Help:      "Number of modules in the load registry",
			},
		),
		Reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modrt",
				Name:      "reloads_total",
				Help:      "Hot reloads by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) load(outcome string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ran(d time.Duration) {
	if m == nil {
		return
	}
	m.LoadDuration.Observe(d.Seconds())
}

func (m *Metrics) registered(n int) {
	if m == nil {
		return
	}
	m.Modules.Set(float64(n))
}

func (m *Metrics) reload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Reloads.WithLabelValues(result).Inc()
}
