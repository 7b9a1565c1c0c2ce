package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SENSOR_ID_IMPORT_TOTAL       = "obis_1_8_0"
	SENSOR_ID_IMPORT_T1          = "obis_1_8_1"
	SENSOR_ID_EXPORT_TOTAL       = "obis_2_8_0"
	SENSOR_ID_EXPORT_T1          = "obis_2_8_1"
	SENSOR_ID_ACTIVE_POWER       = "obis_15_7_0"
	SENSOR_ID_VENDOR_ID          = "vendor_id"
	SENSOR_ID_DEVICE_ID          = "device_id"
	SENSOR_ID_POWER_DIRECTION    = "power_direction"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"

	ENERGY_DECIMALS = 4
	POWER_DECIMALS  = 1
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("smlmeter_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "SmlMeter",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SmlMeter %s", md5HashShort(baseTopic)),
	}
}

// MeterDevice names the meter after its vendor and server id. Meters that
// do not report a vendor are labeled by the id alone.
func MeterDevice(snapshot *sml.MeterSnapshot) Device {
	key := snapshot.DeviceID
	if key == "" {
		key = snapshot.VendorID
	}
	name := strings.TrimSpace(fmt.Sprintf("%s %s", snapshot.VendorID, md5HashShort(key)))
	return Device{
		Id:           fmt.Sprintf("sml_meter_%s", md5HashShort(key)),
		Manufacturer: snapshot.VendorID,
		Model:        "SML meter",
		Name:         name,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func MeterSensors(meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Import energy
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_IMPORT_TOTAL,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total energy imported",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_IMPORT_TOTAL),
	})
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_IMPORT_T1,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy imported tariff 1",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_IMPORT_T1),
	})

	// Export energy
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_EXPORT_TOTAL,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total energy exported",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_EXPORT_TOTAL),
	})
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_EXPORT_T1,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy exported tariff 1",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_EXPORT_T1),
	})

	// Active power
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_ACTIVE_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Active power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_ACTIVE_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:     meterDevice,
		Id:         SENSOR_ID_POWER_DIRECTION,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Power direction",
		Icon:       "mdi:transmission-tower",
		UniqueId:   uniqueId(meterDevice.Id, SENSOR_ID_POWER_DIRECTION),
	})

	// Identification
	sensors = append(sensors, GenericSensor{
		Device:         meterDevice,
		Id:             SENSOR_ID_VENDOR_ID,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Vendor",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(meterDevice.Id, SENSOR_ID_VENDOR_ID),
	})
	sensors = append(sensors, GenericSensor{
		Device:         meterDevice,
		Id:             SENSOR_ID_DEVICE_ID,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Server id",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:identifier",
		UniqueId:       uniqueId(meterDevice.Id, SENSOR_ID_DEVICE_ID),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

// DiscoverySensors lists the bridge and meter entities. Only the first
// entity of each device carries the full device block.
func DiscoverySensors(baseTopic string, snapshot *sml.MeterSnapshot) []GenericSensor {
	var sensors []GenericSensor

	bridgeDevice := BridgeDevice(baseTopic)
	sensors = append(sensors, BridgeSensors(bridgeDevice)...)

	meterDevice := MeterDevice(snapshot)
	meterDevice.ViaDevice = bridgeDevice.Id
	meterSensors := MeterSensors(meterDevice)
	for i := range meterSensors {
		if i > 0 {
			meterSensors[i].Device = IdDevice(meterDevice)
		}
		sensors = append(sensors, meterSensors[i])
	}
	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
