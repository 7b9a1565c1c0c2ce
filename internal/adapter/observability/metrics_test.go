package observability

import (
	"testing"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestObserveCycle(t *testing.T) {
	assert := assert.New(t)

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveCycle(domain.CYCLE_OUTCOME_OK, 200*time.Millisecond)
	m.ObserveCycle(domain.CYCLE_OUTCOME_OK, 300*time.Millisecond)
	m.ObserveCycle(domain.CYCLE_OUTCOME_CHECKSUM_MISMATCH, 250*time.Millisecond)

	assert.Equal(2.0, testutil.ToFloat64(m.cycles.WithLabelValues(domain.CYCLE_OUTCOME_OK)))
	assert.Equal(1.0, testutil.ToFloat64(m.cycles.WithLabelValues(domain.CYCLE_OUTCOME_CHECKSUM_MISMATCH)))
	assert.Equal(1, testutil.CollectAndCount(m.cycleTime))
}

func TestObserveSnapshot(t *testing.T) {
	assert := assert.New(t)

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveSnapshot(&sml.MeterSnapshot{
		Obis180:  decimal.NewNullDecimal(decimal.RequireFromString("28069.1772")),
		Obis1570: decimal.NewNullDecimal(decimal.NewFromInt(3072)),
	}, sml.PowerDirectionIn)

	assert.InDelta(28069.1772, testutil.ToFloat64(m.energy.WithLabelValues("1-0:1.8.0*255")), 1e-9)
	assert.Equal(3072.0, testutil.ToFloat64(m.activePower))
	assert.Equal(1.0, testutil.ToFloat64(m.direction.WithLabelValues("IN")))
	assert.Equal(0.0, testutil.ToFloat64(m.direction.WithLabelValues("OUT")))
	// unset counters are not exported
	assert.Equal(1, testutil.CollectAndCount(m.energy))
}

func TestInstrument(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	done := sml.RecordTimer("ReadRawFrame", []sml.Instrument{m.Instrument()})
	done()

	assert.Equal(t, 1, testutil.CollectAndCount(m.operations))
}
