package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/core/port"
	"github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const historySaveTimeout = 5 * time.Second

// HistoryActor persists every snapshot published on the event stream.
// Failed writes are logged and dropped, the next cycle brings fresh data.
type HistoryActor struct {
	behavior       actor.Behavior
	stash          *actorutil.Stash
	store          port.SnapshotStore
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	saved          uint64
	failed         uint64
	logger         *zap.Logger
}

func NewHistoryActor(store port.SnapshotStore, eventStream *eventstream.EventStream, logger *zap.Logger) *HistoryActor {
	act := &HistoryActor{
		store:       store,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HISTORY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *HistoryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HistoryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("history@default started")
		self := ctx.Self()
		root := ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(value any) {
			root.Send(self, value)
		}, func(evt any) bool {
			_, ok := evt.(domain.MeterSnapshotEvent)
			return ok
		})
	case *actor.Stopping:
		state.unsubscribe()
	case *actor.Restarting:
		state.unsubscribe()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HISTORY,
			Healthy: true,
			State:   fmt.Sprintf("saved=%d failed=%d", state.saved, state.failed),
		})
	case domain.MeterSnapshotEvent:
		if msg.Snapshot == nil {
			return
		}
		state.logger.Debug("history@default MeterSnapshotEvent", zap.String("device_id", msg.Snapshot.DeviceID))
		snapshotEvent := msg
		actorutil.NewBackgroundTaskCtx(ctx, func(c context.Context) (*domain.SaveSnapshotResponse, error) {
			err := state.store.Save(c, snapshotEvent.Snapshot, snapshotEvent.Direction)
			return &domain.SaveSnapshotResponse{
				ActorResponseMixIn: domain.ResponseWithError(err),
				DeviceID:           snapshotEvent.Snapshot.DeviceID,
			}, nil
		}).Recover(func(err error) domain.SaveSnapshotResponse {
			return domain.SaveSnapshotResponse{
				ActorResponseMixIn: domain.ResponseWithError(err),
			}
		}).WithTimeout(historySaveTimeout).PipeTo(ctx.Self())
	case domain.SaveSnapshotResponse:
		if msg.HasResponseError() {
			state.failed++
			state.logger.Warn("history@default could not save snapshot", zap.Error(msg.GetResponseError()))
			return
		}
		state.saved++
	default:
		state.logger.Debug("history@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HistoryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
