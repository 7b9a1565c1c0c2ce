package sml

import (
	"go.uber.org/zap"
)

// Reader decodes raw frames into snapshots.
type Reader struct {
	logger *zap.Logger
	mapper *Mapper
	opts   DecodeOptions
}

func NewReader(logger *zap.Logger, opts DecodeOptions) *Reader {
	return &Reader{
		logger: logger,
		mapper: NewMapper(logger),
		opts:   opts,
	}
}

// WithDeviceIDCode sets the entry the device id is read from.
func (r *Reader) WithDeviceIDCode(code ObisCode) *Reader {
	r.mapper.WithDeviceIDCode(code)
	return r
}

// Read decodes one raw frame. A frame that decodes but carries no readings
// returns ok == false and no error; decode failures wrap the sentinel errors of
// this package.
func (r *Reader) Read(rawFrame string) (*MeterSnapshot, bool, error) {
	messages, err := DecodeTransmissionWithOptions(rawFrame, r.opts)
	if err != nil {
		return nil, false, err
	}
	r.logger.Debug("decoded sml transmission", zap.Int("messages", len(messages)))
	snapshot, ok := r.mapper.MapToSnapshot(messages)
	return snapshot, ok, nil
}
