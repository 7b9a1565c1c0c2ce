package domain

import (
	"fmt"

	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
	"github.com/shopspring/decimal"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type DecimalSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    decimal.Decimal
	Decimals int32
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// MeterSnapshotEvent is published once per successful cycle, after the
// sensor updates derived from the same snapshot.
type MeterSnapshotEvent struct {
	Snapshot  *sml.MeterSnapshot
	Direction sml.PowerDirection
}

// DiscoveryRequestedEvent is raised when Home Assistant announces it came
// back online and discovery configs have to be sent again.
type DiscoveryRequestedEvent struct{}
