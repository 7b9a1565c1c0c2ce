package actor

import (
	"testing"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/mqtt"
	"github.com/berfenger/smlmeter2mqtt/internal/util"
	"github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}
	published := &PublishedMessages{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, published, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(resp.Healthy)

	es.Publish(domain.DecimalSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_IMPORT_TOTAL,
		},
		Value:    decimal.RequireFromString("28069.1772"),
		Decimals: domain.ENERGY_DECIMALS,
	})
	es.Publish(domain.DecimalSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_ACTIVE_POWER,
		},
		Value:    decimal.NewFromInt(3072),
		Decimals: domain.POWER_DECIMALS,
	})
	es.Publish(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_POWER_DIRECTION,
		},
		Value: "IN",
	})
	es.Publish(domain.BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_BRIDGE_STATE,
		},
		Value: false,
	})
	// not a sensor update, filtered out
	es.Publish(domain.DiscoveryRequestedEvent{})

	time.Sleep(500 * time.Millisecond)

	payload, _ := published.Get("smlmeter/sensor/obis_1_8_0/state")
	assert.Equal("28069.1772", payload)
	payload, _ = published.Get("smlmeter/sensor/obis_15_7_0/state")
	assert.Equal("3072.0", payload)
	payload, _ = published.Get("smlmeter/sensor/power_direction/state")
	assert.Equal("IN", payload)
	payload, _ = published.Get("smlmeter/bridge/state")
	assert.Equal(mqtt.MQTT_PAYLOAD_OFFLINE, payload)
	assert.Equal(4, published.Len())

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestMQTTActorHAStatus(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := eventstream.EventStream{}
	requested := make(chan struct{}, 2)
	sub := es.Subscribe(func(evt any) {
		if _, ok := evt.(domain.DiscoveryRequestedEvent); ok {
			requested <- struct{}{}
		}
	})
	defer es.Unsubscribe(sub)

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTestMQTTActor(&cfg, &es, &PublishedMessages{}, logger)
	}))

	context.Send(pid, haStatusReceived{status: &mqtt.ParsedHAStatus{Online: false}})
	context.Send(pid, haStatusReceived{status: &mqtt.ParsedHAStatus{Online: true}})

	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("discovery was not requested")
	}
	assert.Len(requested, 0, "offline status does not request discovery")

	context.Stop(pid)
	as.Shutdown()
}

func TestMQTTActorDiscovery(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	published := &PublishedMessages{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTestMQTTActor(&cfg, &eventstream.EventStream{}, published, logger)
	}))

	sensors := domain.MeterSensors(domain.Device{Id: "sml_meter_x"})
	future := actor.NewFuture(as, time.Second)
	context.Send(pid, domain.PublishDiscoveryRequest{
		ActorRequestMixIn: domain.ActorRequestMixIn{ReplyToRef: (*domain.ActorRef)(future.PID())},
		Sensors:           sensors,
	})
	result, err := future.Result()
	assert.NoError(err)
	assert.IsType(domain.PublishDiscoveryResponse{}, result)

	assert.Equal(len(sensors), published.Len())
	payload, ok := published.Get("homeassistant/sensor/sml_meter_x/obis_15_7_0/config")
	assert.True(ok)
	assert.Contains(payload, `"state_topic":"smlmeter/sensor/obis_15_7_0/state"`)

	context.Stop(pid)
	as.Shutdown()
}
