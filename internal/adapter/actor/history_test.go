package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu         sync.Mutex
	fail       bool
	devices    []string
	directions []sml.PowerDirection
}

func (s *memoryStore) Save(ctx context.Context, snapshot *sml.MeterSnapshot, direction sml.PowerDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database unavailable")
	}
	s.devices = append(s.devices, snapshot.DeviceID)
	s.directions = append(s.directions, direction)
	return nil
}

func (s *memoryStore) saved() ([]string, []sml.PowerDirection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.devices...), append([]sml.PowerDirection(nil), s.directions...)
}

func TestHistoryActor(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}
	store := &memoryStore{}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHistoryActor(store, es, logger)
	}))
	time.Sleep(200 * time.Millisecond)

	es.Publish(domain.MeterSnapshotEvent{
		Snapshot:  &sml.MeterSnapshot{DeviceID: "0A-01"},
		Direction: sml.PowerDirectionUnknown,
	})
	// sensor updates are not persisted
	es.Publish(domain.TextSensorUpdateEvent{Value: "IN"})
	es.Publish(domain.MeterSnapshotEvent{
		Snapshot:  &sml.MeterSnapshot{DeviceID: "0A-01"},
		Direction: sml.PowerDirectionIn,
	})
	time.Sleep(300 * time.Millisecond)

	devices, directions := store.saved()
	assert.Equal([]string{"0A-01", "0A-01"}, devices)
	assert.Equal([]sml.PowerDirection{sml.PowerDirectionUnknown, sml.PowerDirectionIn}, directions)

	store.mu.Lock()
	store.fail = true
	store.mu.Unlock()
	es.Publish(domain.MeterSnapshotEvent{Snapshot: &sml.MeterSnapshot{}, Direction: sml.PowerDirectionNone})
	time.Sleep(300 * time.Millisecond)

	result, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	assert.NoError(err)
	health := result.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal("saved=2 failed=1", health.State)

	as.Root.Stop(pid)
	as.Shutdown()
}
