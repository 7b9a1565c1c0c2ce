package events

import (
	. "github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/shopspring/decimal"
)

// SnapshotToUpdateEvents converts a snapshot into sensor updates. Fields
// missing from the telegram produce no event.
func SnapshotToUpdateEvents(snapshot *sml.MeterSnapshot, direction sml.PowerDirection) []any {
	var events []any

	// Energy counters
	events = appendDecimal(events, SENSOR_ID_IMPORT_TOTAL, snapshot.Obis180, ENERGY_DECIMALS)
	events = appendDecimal(events, SENSOR_ID_IMPORT_T1, snapshot.Obis181, ENERGY_DECIMALS)
	events = appendDecimal(events, SENSOR_ID_EXPORT_TOTAL, snapshot.Obis280, ENERGY_DECIMALS)
	events = appendDecimal(events, SENSOR_ID_EXPORT_T1, snapshot.Obis281, ENERGY_DECIMALS)
	// Active power
	events = appendDecimal(events, SENSOR_ID_ACTIVE_POWER, snapshot.Obis1570, POWER_DECIMALS)

	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_POWER_DIRECTION,
		},
		Value: direction.String(),
	})

	// Identification
	if snapshot.VendorID != "" {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_VENDOR_ID,
			},
			Value: snapshot.VendorID,
		})
	}
	if snapshot.DeviceID != "" {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_DEVICE_ID,
			},
			Value: snapshot.DeviceID,
		})
	}

	return events
}

func BridgeStateToUpdateEvent(online bool) any {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}

func appendDecimal(events []any, id string, value decimal.NullDecimal, decimals int32) []any {
	if !value.Valid {
		return events
	}
	return append(events, DecimalSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    value.Decimal,
		Decimals: decimals,
	})
}
