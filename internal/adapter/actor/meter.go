package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/core/port"
	"github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	METER_ACTOR_ID      = domain.ACTOR_ID_METER
	meterReadyTimeout   = 3 * time.Second
	meterTaskTimeoutPad = 1 * time.Second
)

// MeterActor runs acquisition cycles for one meter endpoint, one at a time.
// The connector is looked up in the registry per request, a terminal read
// failure drops it so the next request dials anew. Reads happen off the actor
// goroutine, so health checks are answered while a telegram is awaited.
type MeterActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	connectors  *sml.ConnectorRegistry
	endpoint    sml.Endpoint
	reader      *sml.Reader
	observer    port.CycleObserver
	readTimeout time.Duration
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewMeterActor(connectors *sml.ConnectorRegistry, endpoint sml.Endpoint, reader *sml.Reader, observer port.CycleObserver,
	readTimeout time.Duration, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		connectors:  connectors,
		endpoint:    endpoint,
		reader:      reader,
		observer:    observer,
		readTimeout: readTimeout,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(METER_ACTOR_ID, logger).With(zap.String("endpoint", endpoint.Key())),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("meter@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      METER_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.MeterReadyRequest:
		state.logger.Debug("meter@default: MeterReadyRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskCtx(ctx, state.isReady),
			mapTaskResult[domain.MeterReadyResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.MeterReadyResponse{
					ActorResponseMixIn: domain.ResponseWithError(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(meterReadyTimeout).PipeToAsync(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingMeter)
	case domain.GetMeterSnapshotRequest:
		state.logger.Debug("meter@default: GetMeterSnapshotRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		start := time.Now()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskCtx(ctx, state.readSnapshot),
			mapTaskResult[domain.GetMeterSnapshotResponse](sender)).Recover(func(err error) backgroundTaskResult {
			elapsed := time.Since(start)
			state.observe(domain.CYCLE_OUTCOME_TRANSPORT_ERROR, elapsed)
			return backgroundTaskResult{
				message: domain.GetMeterSnapshotResponse{
					ActorResponseMixIn: domain.ResponseWithError(err),
					Outcome:            domain.CYCLE_OUTCOME_TRANSPORT_ERROR,
					Duration:           elapsed,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.readTimeout + meterTaskTimeoutPad).PipeToAsync(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingMeter)
	default:
		state.logger.Debug("meter@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) WaitingMeter(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("meter@WaitingMeter backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      METER_ACTOR_ID,
			Healthy: true,
			State:   "reading",
		})
	default:
		state.logger.Debug("meter@WaitingMeter stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterActor) isReady(ctx context.Context) (*domain.MeterReadyResponse, error) {
	connector, err := state.connectors.Get(state.endpoint)
	if err != nil {
		return nil, err
	}
	return &domain.MeterReadyResponse{
		Ready: connector.IsDeviceReady(ctx),
	}, nil
}

// readSnapshot runs one cycle. Decode failures are reported through the
// response outcome, only transport failures are returned as errors.
func (state *MeterActor) readSnapshot(taskCtx context.Context) (*domain.GetMeterSnapshotResponse, error) {
	start := time.Now()
	readCtx, cancel := context.WithTimeout(taskCtx, state.readTimeout)
	defer cancel()

	connector, err := state.connectors.Get(state.endpoint)
	if err != nil {
		return nil, err
	}
	raw, err := connector.ReadRawFrame(readCtx)
	if err != nil {
		if errors.Is(err, sml.ErrNoFrame) {
			state.logger.Debug("meter: no frame received")
			return state.cycleResult(nil, domain.CYCLE_OUTCOME_NO_FRAME, start), nil
		}
		if sml.IsTerminal(err) {
			if cerr := state.connectors.Remove(state.endpoint); cerr != nil {
				state.logger.Warn("meter: closing failed connector", zap.Error(cerr))
			}
		}
		return nil, err
	}

	snapshot, ok, err := state.reader.Read(raw)
	if err != nil {
		outcome := domain.CycleOutcome(err)
		if errors.Is(err, sml.ErrStructural) {
			state.logger.Warn("meter: discarding transmission", zap.String("outcome", outcome), zap.Error(err))
		} else {
			state.logger.Debug("meter: discarding transmission", zap.String("outcome", outcome), zap.Error(err))
		}
		return state.cycleResult(nil, outcome, start), nil
	}
	if !ok {
		return state.cycleResult(nil, domain.CYCLE_OUTCOME_NO_SNAPSHOT, start), nil
	}
	return state.cycleResult(snapshot, domain.CYCLE_OUTCOME_OK, start), nil
}

func (state *MeterActor) cycleResult(snapshot *sml.MeterSnapshot, outcome string, start time.Time) *domain.GetMeterSnapshotResponse {
	elapsed := time.Since(start)
	state.observe(outcome, elapsed)
	return &domain.GetMeterSnapshotResponse{
		Snapshot: snapshot,
		Outcome:  outcome,
		Duration: elapsed,
	}
}

func (state *MeterActor) observe(outcome string, d time.Duration) {
	if state.observer != nil {
		state.observer.ObserveCycle(outcome, d)
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
