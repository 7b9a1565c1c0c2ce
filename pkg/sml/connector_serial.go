package sml

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const (
	serialDefaultBaud   = 9600
	serialPollTimeout   = 500 * time.Millisecond
	serialReadBufferLen = 1024
)

// SerialConnector reads binary SML transmissions from an IR read head on a
// local serial port. The port stays open between reads.
type SerialConnector struct {
	device     string
	baud       int
	logger     *zap.Logger
	instrument []Instrument

	mu     sync.Mutex
	port   io.ReadCloser
	reader *bufio.Reader
}

func NewSerialConnector(device string, baud int, logger *zap.Logger, instrument ...Instrument) *SerialConnector {
	if baud <= 0 {
		baud = serialDefaultBaud
	}
	return &SerialConnector{
		device:     device,
		baud:       baud,
		logger:     logger,
		instrument: instrument,
	}
}

func (c *SerialConnector) open() error {
	if c.port != nil {
		return nil
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        c.device,
		Baud:        c.baud,
		ReadTimeout: serialPollTimeout,
	})
	if err != nil {
		return err
	}
	c.port = port
	c.reader = bufio.NewReaderSize(port, serialReadBufferLen)
	return nil
}

func (c *SerialConnector) IsDeviceReady(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.open(); err != nil {
		c.logger.Error("could not open serial device", zap.String("device", c.device), zap.Error(err))
		return false
	}
	return true
}

func (c *SerialConnector) ReadRawFrame(ctx context.Context) (string, error) {
	defer RecordTimer("ReadRawFrame", c.instrument)()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.open(); err != nil {
		return "", transportError("open", err)
	}

	transmission, found, err := ExtractTransmission(&contextByteReader{ctx: ctx, r: c.reader})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", &TransportError{Op: "read", Err: err}
		}
		terr := transportError("read", err)
		if terr.Terminal {
			c.closePort()
		}
		return "", terr
	}
	if !found {
		return "", ErrNoFrame
	}
	c.logger.Debug("read sml transmission", zap.Int("length", len(transmission)))
	return strings.ToUpper(hex.EncodeToString(transmission)), nil
}

func (c *SerialConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closePort()
}

func (c *SerialConnector) closePort() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	c.reader = nil
	return err
}

// contextByteReader keeps reading through the idle gaps between telegrams,
// which the port reports as empty reads, until ctx is done.
type contextByteReader struct {
	ctx context.Context
	r   io.ByteReader
}

func (r *contextByteReader) ReadByte() (byte, error) {
	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
		b, err := r.r.ReadByte()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrNoProgress) {
			continue
		}
		return b, err
	}
}
