package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mcp9808"

// Metrics collected by the monitor
type Metrics struct {
	received    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	stale       *prometheus.CounterVec
	temperature *prometheus.GaugeVec
	updated     *prometheus.GaugeVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_received_total",
			Help:      "Readings received from the broker.",
		}, []string{"topic"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Messages that could not be used as a reading.",
		}, []string{"topic", "reason"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Changes of the alert level.",
		}, []string{"topic", "level"}),
		stale: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_stale_total",
			Help:      "Times a sensor stopped reporting for longer than the stale timeout.",
		}, []string{"topic"}),
		temperature: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature reported by the sensor.",
		}, []string{"topic"}),
		updated: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix time of the last reading.",
		}, []string{"topic"}),
	}
}

// The methods are safe to call on a nil *Metrics

func (m *Metrics) Received(topic string, celsius float64, unixMilli int64) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(topic).Inc()
	m.temperature.WithLabelValues(topic).Set(celsius)
	m.updated.WithLabelValues(topic).Set(float64(unixMilli) / 1000)
}

func (m *Metrics) Rejected(topic, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(topic, reason).Inc()
}

func (m *Metrics) Alert(topic, level string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(topic, level).Inc()
}

func (m *Metrics) Stale(topic string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(topic).Inc()
	m.temperature.DeleteLabelValues(topic)
}
