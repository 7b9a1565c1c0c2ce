package port

import (
	"context"
	"time"

	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
)

type PowerDirectionClassifier interface {
	Classify(current *sml.MeterSnapshot) sml.PowerDirection
	Reset()
}

// CycleObserver receives the outcome label and duration of every
// acquisition cycle.
type CycleObserver interface {
	ObserveCycle(outcome string, duration time.Duration)
}

type SnapshotStore interface {
	Save(ctx context.Context, snapshot *sml.MeterSnapshot, direction sml.PowerDirection) error
}

// SnapshotObserver is told about every snapshot that completed a cycle.
type SnapshotObserver interface {
	ObserveSnapshot(snapshot *sml.MeterSnapshot, direction sml.PowerDirection)
}
