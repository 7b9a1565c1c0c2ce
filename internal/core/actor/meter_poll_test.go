package actor

import (
	"context"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	adactor "github.com/berfenger/smlmeter2mqtt/internal/adapter/actor"
	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/core/service"
	"github.com/berfenger/smlmeter2mqtt/internal/util"
	"github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) snapshots() []domain.MeterSnapshotEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []domain.MeterSnapshotEvent
	for _, evt := range r.events {
		if s, ok := evt.(domain.MeterSnapshotEvent); ok {
			res = append(res, s)
		}
	}
	return res
}

func (r *eventRecorder) bridgeStates() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []bool
	for _, evt := range r.events {
		if s, ok := evt.(domain.BridgeStateUpdateEvent); ok {
			res = append(res, s.Value)
		}
	}
	return res
}

type recordingSnapshotObserver struct {
	mu         sync.Mutex
	directions []sml.PowerDirection
}

func (o *recordingSnapshotObserver) ObserveSnapshot(_ *sml.MeterSnapshot, direction sml.PowerDirection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.directions = append(o.directions, direction)
}

func (o *recordingSnapshotObserver) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.directions)
}

type pollFixture struct {
	as        *actor.ActorSystem
	pid       *actor.PID
	connector *sml.TestConnector
	recorder  *eventRecorder
	observer  *recordingSnapshotObserver
}

// slowConnector delays every read past the poll interval.
type slowConnector struct {
	*sml.TestConnector
	delay time.Duration
}

func (c *slowConnector) ReadRawFrame(ctx context.Context) (string, error) {
	time.Sleep(c.delay)
	return c.TestConnector.ReadRawFrame(ctx)
}

// replayRegistry serves connector for a test endpoint of its own.
func replayRegistry(t *testing.T, connector sml.Connector) (*sml.ConnectorRegistry, sml.Endpoint) {
	registry := sml.NewConnectorRegistry(zap.NewNop())
	endpoint := sml.Endpoint{Type: sml.CONNECTOR_TYPE_TEST, Host: t.Name(), Port: 1}
	registry.Put(endpoint, connector)
	t.Cleanup(func() { registry.Close() })
	return registry, endpoint
}

func spawnMeterPoll(t *testing.T, connector *sml.TestConnector) *pollFixture {
	return spawnMeterPollWith(t, connector, connector)
}

func spawnMeterPollWith(t *testing.T, connector sml.Connector, replay *sml.TestConnector) *pollFixture {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.PollIntervalMillis = 100

	eventStream := &eventstream.EventStream{}
	recorder := &eventRecorder{}
	eventStream.Subscribe(recorder.record)
	observer := &recordingSnapshotObserver{}

	reader := sml.NewReader(logger, sml.DecodeOptions{})
	connectors, endpoint := replayRegistry(t, connector)
	meterPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewMeterActor(connectors, endpoint, reader, nil, cfg.Meter.ReadTimeout(), logger)
	}))
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMeterPollActor(&cfg, meterPID, eventStream, service.NewPowerDirectionClassifier(), observer, logger)
	}))
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Root.Stop(meterPID)
		as.Shutdown()
	})
	return &pollFixture{as: as, pid: pid, connector: replay, recorder: recorder, observer: observer}
}

func (f *pollFixture) health(t *testing.T) domain.ActorHealthResponse {
	res, err := f.as.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	return health
}

func TestMeterPollClassifiesSnapshots(t *testing.T) {
	f := spawnMeterPoll(t, sml.NewTestConnector(sml.ReferenceTelegramStreams()...))

	require.Eventually(t, func() bool {
		return len(f.recorder.snapshots()) >= 4
	}, 5*time.Second, 20*time.Millisecond)

	snapshots := f.recorder.snapshots()
	assert.Equal(t, sml.PowerDirectionUnknown, snapshots[0].Direction)
	assert.Equal(t, sml.PowerDirectionIn, snapshots[1].Direction)
	assert.Equal(t, sml.PowerDirectionOut, snapshots[2].Direction)
	// the last stream repeats, no counter advances
	assert.Equal(t, sml.PowerDirectionNone, snapshots[3].Direction)
	assert.GreaterOrEqual(t, f.observer.Len(), 4)
	assert.Empty(t, f.recorder.bridgeStates())

	res, err := f.as.Root.RequestFuture(f.pid, domain.GetLastSnapshotRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	last, ok := res.(domain.GetLastSnapshotResponse)
	require.True(t, ok)
	assert.False(t, last.HasResponseError())
	require.NotNil(t, last.Snapshot)
	assert.GreaterOrEqual(t, last.Cycles, uint64(4))

	assert.True(t, f.health(t).Healthy)
}

func TestMeterPollSensorEventsPrecedeSnapshot(t *testing.T) {
	f := spawnMeterPoll(t, sml.NewTestConnector(sml.ReferenceTelegramStreams()...))

	require.Eventually(t, func() bool {
		return len(f.recorder.snapshots()) >= 1
	}, 5*time.Second, 20*time.Millisecond)

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	seenSensor := false
	for _, evt := range f.recorder.events {
		switch evt.(type) {
		case domain.SensorUpdateEvent:
			seenSensor = true
		case domain.MeterSnapshotEvent:
			assert.True(t, seenSensor, "sensor updates are published before the snapshot event")
			return
		}
	}
}

func TestMeterPollStopsOnTerminalError(t *testing.T) {
	connector := sml.NewTestConnector(sml.ReferenceTelegramStreams()...)
	connector.Fail(&sml.TransportError{Op: "dial", Err: syscall.ECONNREFUSED, Terminal: true})
	f := spawnMeterPoll(t, connector)

	require.Eventually(t, func() bool {
		return !f.health(t).Healthy
	}, 5*time.Second, 50*time.Millisecond)

	health := f.health(t)
	assert.True(t, strings.HasPrefix(health.State, "failed"), health.State)
	assert.Equal(t, []bool{false}, f.recorder.bridgeStates())
	assert.Empty(t, f.recorder.snapshots())

	// no further reads once failed
	reads := connector.Reads()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, reads, connector.Reads())

	res, err := f.as.Root.RequestFuture(f.pid, domain.GetLastSnapshotRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	last, ok := res.(domain.GetLastSnapshotResponse)
	require.True(t, ok)
	assert.True(t, sml.IsTerminal(last.GetResponseError()))
	assert.Nil(t, last.Snapshot)
}

func TestMeterPollSkipsTransientErrors(t *testing.T) {
	connector := sml.NewTestConnector(sml.ReferenceTelegramStreams()...)
	connector.Fail(&sml.TransportError{Op: "read", Err: syscall.ECONNRESET})
	f := spawnMeterPoll(t, connector)

	require.Eventually(t, func() bool {
		return connector.Reads() >= 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, f.health(t).Healthy)
	assert.Empty(t, f.recorder.snapshots())

	connector.Fail(nil)
	require.Eventually(t, func() bool {
		return len(f.recorder.snapshots()) >= 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, sml.PowerDirectionUnknown, f.recorder.snapshots()[0].Direction)
}

func TestMeterPollWaitsForReadyMeter(t *testing.T) {
	connector := sml.NewTestConnector(sml.ReferenceTelegramStreams()...)
	connector.SetReady(false)
	f := spawnMeterPoll(t, connector)

	require.Eventually(t, func() bool {
		return len(f.recorder.bridgeStates()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	health := f.health(t)
	assert.False(t, health.Healthy)
	assert.Equal(t, "waiting_ready", health.State)
	assert.Equal(t, 0, connector.Reads())

	connector.SetReady(true)
	require.Eventually(t, func() bool {
		return len(f.recorder.snapshots()) >= 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []bool{false, true}, f.recorder.bridgeStates())
}

func TestMeterPollKeepsPollingAfterSlowCycles(t *testing.T) {
	replay := sml.NewTestConnector(sml.ReferenceTelegramStreams()...)
	f := spawnMeterPollWith(t, &slowConnector{TestConnector: replay, delay: 250 * time.Millisecond}, replay)

	require.Eventually(t, func() bool {
		return len(f.recorder.snapshots()) >= 3
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, sml.PowerDirectionIn, f.recorder.snapshots()[1].Direction)
}
