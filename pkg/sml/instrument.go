package sml

import (
	"time"

	"go.uber.org/zap"
)

type Instrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func RecordTimer(name string, instrument []Instrument) func() {
	if len(instrument) == 0 {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func DebugLoggerInstrument(logger *zap.Logger) Instrument {
	return Instrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("sml timing", zap.String("op", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
