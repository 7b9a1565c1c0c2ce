package observability

import (
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/port"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var (
	_ port.CycleObserver    = (*Metrics)(nil)
	_ port.SnapshotObserver = (*Metrics)(nil)
)

// Metrics exports acquisition cycle and meter reading metrics.
type Metrics struct {
	cycles      *prometheus.CounterVec
	cycleTime   prometheus.Histogram
	operations  *prometheus.HistogramVec
	energy      *prometheus.GaugeVec
	activePower prometheus.Gauge
	direction   *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smlmeter_cycles_total",
			Help: "Acquisition cycles by outcome.",
		}, []string{"outcome"}),
		cycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smlmeter_cycle_duration_seconds",
			Help:    "Duration of one acquisition cycle, from read to decoded snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smlmeter_connector_operation_seconds",
			Help:    "Duration of connector operations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"operation"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smlmeter_energy_kwh",
			Help: "Cumulative energy counters of the meter.",
		}, []string{"obis"}),
		activePower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smlmeter_active_power_watts",
			Help: "Instantaneous active power reported by the meter.",
		}),
		direction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smlmeter_power_direction",
			Help: "1 for the current power flow direction, 0 otherwise.",
		}, []string{"direction"}),
	}
	reg.MustRegister(m.cycles, m.cycleTime, m.operations, m.energy, m.activePower, m.direction)
	return m
}

func (m *Metrics) ObserveCycle(outcome string, duration time.Duration) {
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleTime.Observe(duration.Seconds())
}

func (m *Metrics) ObserveSnapshot(snapshot *sml.MeterSnapshot, direction sml.PowerDirection) {
	m.setEnergy(sml.ObisImportTotal, snapshot.Obis180)
	m.setEnergy(sml.ObisImportT1, snapshot.Obis181)
	m.setEnergy(sml.ObisExportTotal, snapshot.Obis280)
	m.setEnergy(sml.ObisExportT1, snapshot.Obis281)
	if snapshot.Obis1570.Valid {
		m.activePower.Set(snapshot.Obis1570.Decimal.InexactFloat64())
	}

	for _, d := range []sml.PowerDirection{sml.PowerDirectionUnknown, sml.PowerDirectionIn, sml.PowerDirectionOut, sml.PowerDirectionNone} {
		value := 0.0
		if d == direction {
			value = 1
		}
		m.direction.WithLabelValues(d.String()).Set(value)
	}
}

// Instrument feeds connector timings into the operation histogram.
func (m *Metrics) Instrument() sml.Instrument {
	return sml.Instrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			m.operations.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}

// setEnergy leaves counters missing from the telegram unexported.
func (m *Metrics) setEnergy(obis sml.ObisCode, value decimal.NullDecimal) {
	if value.Valid {
		m.energy.WithLabelValues(obis.String()).Set(value.Decimal.InexactFloat64())
	}
}
