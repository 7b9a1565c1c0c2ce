package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/config"
	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/core/events"
	"github.com/berfenger/smlmeter2mqtt/internal/core/port"
	. "github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const meterRequestTimeoutPad = 2 * time.Second

// MeterPollActor drives the acquisition loop: one snapshot request per
// tick, classification of the result and fan out on the event stream.
// It owns the power direction classifier, so classification never runs
// concurrently.
type MeterPollActor struct {
	behavior   actor.Behavior
	stash      *Stash
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc

	meterActor       *actor.PID
	config           *config.Config
	eventStream      *eventstream.EventStream
	classifier       port.PowerDirectionClassifier
	snapshotObserver port.SnapshotObserver

	lastSnapshot  *sml.MeterSnapshot
	lastDirection sml.PowerDirection
	cycles        uint64
	bridgeOffline bool
	failure       error

	logger *zap.Logger
}

type meterPollTick struct {
}

type meterReadyTick struct {
}

func NewMeterPollActor(config *config.Config, meterActor *actor.PID, eventStream *eventstream.EventStream,
	classifier port.PowerDirectionClassifier, snapshotObserver port.SnapshotObserver, logger *zap.Logger) *MeterPollActor {
	act := &MeterPollActor{
		config:           config,
		meterActor:       meterActor,
		behavior:         actor.NewBehavior(),
		stash:            &Stash{},
		logger:           ActorLogger(domain.ACTOR_ID_METER_POLL, logger),
		eventStream:      eventStream,
		classifier:       classifier,
		snapshotObserver: snapshotObserver,
		lastDirection:    sml.PowerDirectionUnknown,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterPollActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterPollActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter_poll@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.requestReady(ctx)
		state.behavior.Become(state.WaitingReadyReceive)
	case *actor.Restarting:
		state.stopTicks()
	default:
		state.logger.Debug("meter_poll@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterPollActor) WaitingReadyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MeterReadyResponse:
		if msg.HasResponseError() || !msg.Ready {
			state.logger.Warn("meter_poll@waitingReady meter is not ready, retrying", zap.Error(msg.GetResponseError()))
			state.setBridgeState(false)
			state.cancelTick = state.scheduler.RequestOnce(state.config.MonitorConfig.PollInterval(), ctx.Self(), meterReadyTick{})
			return
		}
		state.logger.Info("meter_poll@waitingReady meter ready, start polling")
		state.setBridgeState(true)
		state.behavior.Become(state.DefaultReceive)
		ctx.Send(ctx.Self(), meterPollTick{})
		state.stash.UnstashAll(ctx)
	case meterReadyTick:
		state.requestReady(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER_POLL,
			Healthy: false,
			State:   "waiting_ready",
		})
	case domain.GetLastSnapshotRequest:
		state.respondLastSnapshot(ctx, msg)
	case *actor.Stopping:
		state.stopTicks()
	case *actor.Restarting:
		state.stopTicks()
	default:
		state.logger.Debug("meter_poll@waitingReady: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterPollActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("meter_poll@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER_POLL,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetLastSnapshotRequest:
		state.respondLastSnapshot(ctx, msg)
	case meterPollTick:
		state.logger.Debug("meter_poll@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.meterActor, domain.GetMeterSnapshotRequest{},
			state.config.Meter.ReadTimeout()+meterRequestTimeoutPad), func(err error) any {
			return domain.GetMeterSnapshotResponse{
				ActorResponseMixIn: domain.ResponseWithError(err),
				Outcome:            domain.CYCLE_OUTCOME_TRANSPORT_ERROR,
			}
		})

		// schedule next tick
		state.cancelTick = state.scheduler.RequestOnce(state.config.MonitorConfig.PollInterval(), ctx.Self(), meterPollTick{})
		state.behavior.BecomeStacked(state.WaitingSnapshotReceive)
	case *actor.Stopping:
		state.stopTicks()
	case *actor.Restarting:
		state.stopTicks()
	default:
		state.logger.Debug("meter_poll@default: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterPollActor) WaitingSnapshotReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetMeterSnapshotResponse:
		if msg.HasResponseError() {
			err := msg.GetResponseError()
			if msg.HasTerminalError() {
				state.logger.Error("meter_poll@waiting terminal transport error, polling stopped", zap.Error(err))
				state.fail(ctx, err)
				return
			}
			state.logger.Warn("meter_poll@waiting transport error, skipping cycle", zap.Error(err))
		} else if msg.Snapshot == nil {
			state.logger.Debug("meter_poll@waiting no snapshot this cycle", zap.String("outcome", msg.Outcome))
		} else {
			state.publishSnapshot(msg.Snapshot)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case meterPollTick:
		// the previous cycle is still running, skip this one but keep ticking
		state.logger.Debug("meter_poll@waiting tick overlaps running cycle")
		state.cancelTick = state.scheduler.RequestOnce(state.config.MonitorConfig.PollInterval(), ctx.Self(), meterPollTick{})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER_POLL,
			Healthy: true,
			State:   "polling",
		})
	case domain.GetLastSnapshotRequest:
		state.respondLastSnapshot(ctx, msg)
	case *actor.Stopping:
		state.stopTicks()
	case *actor.Restarting:
		state.stopTicks()
	default:
		state.logger.Debug("meter_poll@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// FailedReceive is final. A terminal connector failure needs a restart of
// the bridge, or of this actor, to resume polling.
func (state *MeterPollActor) FailedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER_POLL,
			Healthy: false,
			State:   fmt.Sprintf("failed: %s", state.failure),
		})
	case domain.GetLastSnapshotRequest:
		state.respondLastSnapshot(ctx, msg)
	case meterPollTick, meterReadyTick:
	default:
		state.logger.Debug("meter_poll@failed: drop", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterPollActor) publishSnapshot(snapshot *sml.MeterSnapshot) {
	direction := state.classifier.Classify(snapshot)
	state.lastSnapshot = snapshot
	state.lastDirection = direction
	state.cycles++

	state.logger.Debug("meter_poll@waiting snapshot",
		zap.String("device_id", snapshot.DeviceID),
		zap.Stringer("direction", direction))

	evs := events.SnapshotToUpdateEvents(snapshot, direction)
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
	state.eventStream.Publish(domain.MeterSnapshotEvent{
		Snapshot:  snapshot,
		Direction: direction,
	})
	if state.snapshotObserver != nil {
		state.snapshotObserver.ObserveSnapshot(snapshot, direction)
	}
}

func (state *MeterPollActor) fail(ctx actor.Context, err error) {
	state.failure = err
	state.stopTicks()
	state.setBridgeState(false)
	state.stash = &Stash{}
	state.behavior.Become(state.FailedReceive)
}

func (state *MeterPollActor) requestReady(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.meterActor, domain.MeterReadyRequest{}, 5*time.Second), func(err error) any {
		return domain.MeterReadyResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
		}
	})
}

func (state *MeterPollActor) respondLastSnapshot(ctx actor.Context, msg domain.GetLastSnapshotRequest) {
	ForRequest(msg).Respond(ctx, domain.GetLastSnapshotResponse{
		ActorResponseMixIn: domain.ResponseWithError(state.failure),
		Snapshot:           state.lastSnapshot,
		Direction:          state.lastDirection,
		Cycles:             state.cycles,
	})
}

// setBridgeState publishes bridge availability on changes only.
func (state *MeterPollActor) setBridgeState(online bool) {
	if online == !state.bridgeOffline {
		return
	}
	state.bridgeOffline = !online
	state.eventStream.Publish(events.BridgeStateToUpdateEvent(online))
}

func (state *MeterPollActor) stopTicks() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
