package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the AGC and the sample
// stream.
type Metrics struct {
	peakScore       prometheus.Gauge       // Last window peak score
	accumulated     prometheus.Gauge       // Integrated gain error
	gainIndex       prometheus.Gauge       // Current gain table index
	gainDB          prometheus.Gauge       // Current tuner gain in dB
	windowsTotal    prometheus.Counter     // Closed observation windows
	gainSteps       *prometheus.CounterVec // Applied gain steps (by direction)
	gainSetFailures prometheus.Counter     // Failed hardware gain writes
	streamBytes     prometheus.Counter     // I/Q bytes written to the sink

	gatherer prometheus.Gatherer
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		peakScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agc_peak_score",
			Help: "Peak power score of the last closed window (100*ln of normalized magnitude)",
		}),
		accumulated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agc_accumulated_error",
			Help: "Integrated difference between target and peak score",
		}),
		gainIndex: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agc_gain_index",
			Help: "Index into the tuner gain table",
		}),
		gainDB: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agc_gain_db",
			Help: "Tuner gain in dB",
		}),
		windowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agc_windows_total",
			Help: "Total observation windows closed",
		}),
		gainSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agc_gain_steps_total",
			Help: "Total gain steps applied",
		}, []string{"direction"}),
		gainSetFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "agc_gain_set_failures_total",
			Help: "Total failed hardware gain writes",
		}),
		streamBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_bytes_total",
			Help: "Total I/Q bytes written to the output",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) ObservePeak(peak int, accumulated int64) {
	m.peakScore.Set(float64(peak))
	m.accumulated.Set(float64(accumulated))
	m.windowsTotal.Inc()
}

func (m *Metrics) GainChanged(step string, index int, tenthsDB int) {
	m.gainSteps.WithLabelValues(step).Inc()
	m.SetGain(index, tenthsDB)
}

func (m *Metrics) SetGain(index int, tenthsDB int) {
	m.gainIndex.Set(float64(index))
	m.gainDB.Set(float64(tenthsDB) / 10)
}

func (m *Metrics) GainSetFailed() {
	m.gainSetFailures.Inc()
}

func (m *Metrics) AddStreamBytes(n int) {
	m.streamBytes.Add(float64(n))
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
