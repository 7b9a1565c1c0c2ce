package domain

import (
	"time"

	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_METER        = "meter"
	ACTOR_ID_METER_POLL   = "meter_poll"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_HISTORY      = "history"
)

// MeterReadyRequest probes the connector without reading a telegram.
type MeterReadyRequest struct {
	ActorRequestMixIn
}

type MeterReadyResponse struct {
	ActorResponseMixIn
	Ready bool
}

// GetMeterSnapshotRequest runs one acquisition cycle on the meter actor.
type GetMeterSnapshotRequest struct {
	ActorRequestMixIn
}

// GetMeterSnapshotResponse carries a nil Snapshot whenever the cycle
// produced nothing usable. Outcome tells why. ResponseError is only set
// for transport failures.
type GetMeterSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot *sml.MeterSnapshot
	Outcome  string
	Duration time.Duration
}

type GetLastSnapshotRequest struct {
	ActorRequestMixIn
}

type GetLastSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot  *sml.MeterSnapshot
	Direction sml.PowerDirection
	Cycles    uint64
}

type SaveSnapshotResponse struct {
	ActorResponseMixIn
	DeviceID string
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
