package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"optionflow/models"
)

// Metrics holds the Prometheus series derived from published results.
type Metrics struct {
	registry   *prometheus.Registry
	cycles     *prometheus.CounterVec
	underlying *prometheus.GaugeVec
	pcrOI      *prometheus.GaugeVec
	windowRows *prometheus.GaugeVec
}

// NewMetrics registers the result series plus the Go and process collectors
// on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionflow_cycles_total",
				Help: "Number of pipeline results seen, by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		underlying: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optionflow_underlying_value",
				Help: "Underlying value of the latest result",
			},
			[]string{"symbol"},
		),
		pcrOI: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optionflow_pcr_oi",
				Help: "Put/call open interest ratio of the latest result",
			},
			[]string{"symbol"},
		),
		windowRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optionflow_window_rows",
				Help: "Rows in the latest strike window",
			},
			[]string{"symbol"},
		),
	}
	m.registry.MustRegister(
		m.cycles,
		m.underlying,
		m.pcrOI,
		m.windowRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe updates the series for r. Gauges keep their last value when r
// carries no data.
func (m *Metrics) Observe(r *models.Result) {
	if !r.Available() {
		m.cycles.WithLabelValues(r.Symbol, "unavailable").Inc()
		return
	}
	m.cycles.WithLabelValues(r.Symbol, "ok").Inc()
	m.underlying.WithLabelValues(r.Symbol).Set(r.Underlying)
	m.windowRows.WithLabelValues(r.Symbol).Set(float64(len(r.Window)))
	if r.Summary.PCROI.Valid {
		m.pcrOI.WithLabelValues(r.Symbol).Set(r.Summary.PCROI.Value)
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
