package service

import (
	"github.com/berfenger/smlmeter2mqtt/internal/core/port"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/shopspring/decimal"
)

var _ port.PowerDirectionClassifier = (*DefaultPowerDirectionClassifier)(nil)

// DefaultPowerDirectionClassifier infers the flow direction from the
// cumulative import and export counters of two successive snapshots.
// It must be owned by a single acquisition loop.
type DefaultPowerDirectionClassifier struct {
	previous *sml.MeterSnapshot
}

func NewPowerDirectionClassifier() *DefaultPowerDirectionClassifier {
	return &DefaultPowerDirectionClassifier{}
}

func (c *DefaultPowerDirectionClassifier) Classify(current *sml.MeterSnapshot) sml.PowerDirection {
	previous := c.previous
	c.previous = current

	if previous == nil {
		return sml.PowerDirectionUnknown
	}
	// import is checked first, simultaneous advancement reports IN
	if advanced(previous.Obis180, current.Obis180) {
		return sml.PowerDirectionIn
	}
	if advanced(previous.Obis280, current.Obis280) {
		return sml.PowerDirectionOut
	}
	return sml.PowerDirectionNone
}

func (c *DefaultPowerDirectionClassifier) Reset() {
	c.previous = nil
}

// advanced reports whether the counter increased. A counter missing from
// either snapshot never counts as advanced.
func advanced(previous, current decimal.NullDecimal) bool {
	if !previous.Valid || !current.Valid {
		return false
	}
	return current.Decimal.GreaterThan(previous.Decimal)
}
