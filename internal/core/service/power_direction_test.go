package service

import (
	"testing"

	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func counters(obis180, obis280 *int64) *sml.MeterSnapshot {
	s := &sml.MeterSnapshot{}
	if obis180 != nil {
		s.Obis180 = decimal.NewNullDecimal(decimal.NewFromInt(*obis180))
	}
	if obis280 != nil {
		s.Obis280 = decimal.NewNullDecimal(decimal.NewFromInt(*obis280))
	}
	return s
}

func v(n int64) *int64 {
	return &n
}

func TestFirstClassificationIsUnknown(t *testing.T) {
	assert := assert.New(t)

	c := NewPowerDirectionClassifier()
	assert.Equal(sml.PowerDirectionUnknown, c.Classify(counters(v(10), v(10))))

	c = NewPowerDirectionClassifier()
	assert.Equal(sml.PowerDirectionUnknown, c.Classify(&sml.MeterSnapshot{}))
}

func TestClassifyTransitions(t *testing.T) {
	tests := []struct {
		name     string
		previous *sml.MeterSnapshot
		current  *sml.MeterSnapshot
		expected sml.PowerDirection
	}{
		{"export advanced", counters(v(10), v(10)), counters(v(10), v(11)), sml.PowerDirectionOut},
		{"import advanced", counters(v(10), nil), counters(v(11), v(10)), sml.PowerDirectionIn},
		{"nothing advanced", counters(v(10), v(10)), counters(v(10), v(10)), sml.PowerDirectionNone},
		{"both advanced", counters(v(10), v(10)), counters(v(11), v(11)), sml.PowerDirectionIn},
		{"import decreased", counters(v(10), v(10)), counters(v(9), v(10)), sml.PowerDirectionNone},
		{"counters missing", counters(nil, nil), counters(v(11), v(11)), sml.PowerDirectionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPowerDirectionClassifier()
			c.Classify(tt.previous)
			assert.Equal(t, tt.expected, c.Classify(tt.current))
		})
	}
}

func TestPreviousIsAlwaysReplaced(t *testing.T) {
	assert := assert.New(t)

	c := NewPowerDirectionClassifier()
	c.Classify(counters(v(10), v(10)))
	assert.Equal(sml.PowerDirectionIn, c.Classify(counters(v(11), v(10))))
	// compared against 11 now, not 10
	assert.Equal(sml.PowerDirectionNone, c.Classify(counters(v(11), v(10))))
	assert.Equal(sml.PowerDirectionOut, c.Classify(counters(v(11), v(12))))

	c.Reset()
	assert.Equal(sml.PowerDirectionUnknown, c.Classify(counters(v(12), v(12))))
}

func TestClassifyFractionalCounters(t *testing.T) {
	assert := assert.New(t)

	c := NewPowerDirectionClassifier()
	c.Classify(&sml.MeterSnapshot{Obis180: decimal.NewNullDecimal(decimal.RequireFromString("28069.1772"))})
	next := &sml.MeterSnapshot{Obis180: decimal.NewNullDecimal(decimal.RequireFromString("28069.1773"))}
	assert.Equal(sml.PowerDirectionIn, c.Classify(next))
}
