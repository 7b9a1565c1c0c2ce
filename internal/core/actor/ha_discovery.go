package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/config"
	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the meter to Home Assistant once the first
// snapshot tells which meter is attached. Discovery is sent again when
// Home Assistant comes back online or the meter identity changes.
type HADiscoveryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription

	meterDeviceId string
	snapshot      *sml.MeterSnapshot
	published     int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		self := ctx.Self()
		root := ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(value any) {
			root.Send(self, value)
		}, func(evt any) bool {
			switch evt.(type) {
			case domain.MeterSnapshotEvent, domain.DiscoveryRequestedEvent:
				return true
			}
			return false
		})
		state.behavior.Become(state.WaitingMeterReceive)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@starting: drop", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingMeterReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MeterSnapshotEvent:
		if msg.Snapshot == nil {
			return
		}
		state.publish(ctx, msg.Snapshot)
		state.behavior.Become(state.DefaultReceive)
	case domain.DiscoveryRequestedEvent:
		// nothing to announce before the meter identified itself
		state.logger.Debug("hadiscovery@waitingMeter discovery requested, no meter yet")
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "waiting_meter",
		})
	case *actor.Stopping:
		state.unsubscribe()
	case *actor.Restarting:
		state.unsubscribe()
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MeterSnapshotEvent:
		if msg.Snapshot == nil {
			return
		}
		if domain.MeterDevice(msg.Snapshot).Id != state.meterDeviceId {
			state.logger.Info("hadiscovery@default meter identity changed", zap.String("device_id", msg.Snapshot.DeviceID))
			state.publish(ctx, msg.Snapshot)
		}
	case domain.DiscoveryRequestedEvent:
		state.logger.Debug("hadiscovery@default discovery requested")
		state.publish(ctx, state.snapshot)
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			// forget the meter so the next snapshot retries
			state.logger.Warn("hadiscovery@default discovery publish failed", zap.Error(msg.GetResponseError()))
			state.meterDeviceId = ""
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   fmt.Sprintf("published=%d", state.published),
		})
	case *actor.Stopping:
		state.unsubscribe()
	case *actor.Restarting:
		state.unsubscribe()
	}
}

func (state *HADiscoveryActor) publish(ctx actor.Context, snapshot *sml.MeterSnapshot) {
	state.snapshot = snapshot
	state.meterDeviceId = domain.MeterDevice(snapshot).Id
	state.published++
	sensors := domain.DiscoverySensors(state.config.MQTT.BaseTopic, snapshot)
	state.logger.Debug("hadiscovery publish", zap.Int("sensors", len(sensors)))
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors: sensors,
	}, 5*time.Second), func(err error) any {
		return domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
		}
	})
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
