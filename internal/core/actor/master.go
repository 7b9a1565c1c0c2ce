package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/smlmeter2mqtt/internal/adapter/actor"
	"github.com/berfenger/smlmeter2mqtt/internal/config"
	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/core/port"
	"github.com/berfenger/smlmeter2mqtt/internal/core/service"
	. "github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type MeterActorProvider func() *adactor.MeterActor

// HistoryActorProvider is optional. A nil provider disables snapshot history.
type HistoryActorProvider func(*eventstream.EventStream) *adactor.HistoryActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck   healthCheckResult
	eventStream          *eventstream.EventStream
	meterActor           *actor.PID
	mqttActor            *actor.PID
	meterPollActor       *actor.PID
	meterActorProvider   MeterActorProvider
	mqttActorProvider    MQTTActorProvider
	historyActorProvider HistoryActorProvider
	snapshotObserver     port.SnapshotObserver
	logger               *zap.Logger
}

type healthCheckResult struct {
	meterActorHealthy     bool
	mqttActorHealthy      bool
	meterPollActorHealthy bool
	checksReceived        int
	respondTo             *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, meterActorProvider MeterActorProvider, mqttActorProvider MQTTActorProvider,
	historyActorProvider HistoryActorProvider, snapshotObserver port.SnapshotObserver, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:               config,
		behavior:             actor.NewBehavior(),
		stash:                &Stash{},
		logger:               ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:          &eventstream.EventStream{},
		meterActorProvider:   meterActorProvider,
		mqttActorProvider:    mqttActorProvider,
		historyActorProvider: historyActorProvider,
		snapshotObserver:     snapshotObserver,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start Meter child
		meterActorPID, err := state.startMeterActor(ctx)
		if err != nil {
			panic(err)
		}
		state.meterActor = meterActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start History child
		if state.historyActorProvider != nil {
			_, err := state.startHistoryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		// start MeterPoll child last, its first snapshot must reach every subscriber
		meterPollActorPID, err := state.startMeterPollActor(ctx)
		if err != nil {
			panic(err)
		}
		state.meterPollActor = meterPollActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// Meter Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.meterActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_METER,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// MeterPoll Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.meterPollActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_METER_POLL,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetLastSnapshotRequest:
		state.logger.Debug("master@default GetLastSnapshotRequest")
		ctx.Forward(state.meterPollActor)
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_METER) {
			state.logger.Error("master@default meter error")
			panic(errors.New("meter terminated"))
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy), zap.String("state", msg.State))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_METER:
				state.currentHealthCheck.meterActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_METER_POLL:
				state.currentHealthCheck.meterPollActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startMeterActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	meterProps := actor.PropsFromProducer(func() actor.Actor {
		return state.meterActorProvider()
	}, actor.WithSupervisor(supervisor))
	meterActorPID, err := ctx.SpawnNamed(meterProps, domain.ACTOR_ID_METER)
	if err != nil {
		return nil, err
	}

	return meterActorPID, nil
}

func (state *MasterOfPuppetsActor) startMeterPollActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewAllForOneStrategy(1, 10*time.Second, decider)

	meterPollProps := actor.PropsFromProducer(func() actor.Actor {
		// a restarted poll actor starts with a fresh classifier
		return NewMeterPollActor(&state.config, state.meterActor, state.eventStream,
			service.NewPowerDirectionClassifier(), state.snapshotObserver, state.logger)
	}, actor.WithSupervisor(supervisor))
	meterPollActorPID, err := ctx.SpawnNamed(meterPollProps, domain.ACTOR_ID_METER_POLL)
	if err != nil {
		return nil, err
	}

	return meterPollActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startHistoryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	historyProps := actor.PropsFromProducer(func() actor.Actor {
		return state.historyActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	historyPID, err := ctx.SpawnNamed(historyProps, domain.ACTOR_ID_HISTORY)
	if err != nil {
		return nil, err
	}

	return historyPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.meterActorHealthy = false
	state.mqttActorHealthy = false
	state.meterPollActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 3
}

func (state *healthCheckResult) allHealthy() bool {
	return state.meterActorHealthy && state.mqttActorHealthy && state.meterPollActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
