package sml

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	tcpConnectTimeout  = 2 * time.Second
	tcpDefaultDeadline = 10 * time.Second
)

// TCPConnector reads frames from a CometCOM1 style IR gateway which streams
// the meter telegrams as '(' hex ')' over TCP. It connects for every read.
type TCPConnector struct {
	address    string
	logger     *zap.Logger
	dialer     net.Dialer
	instrument []Instrument
}

func NewTCPConnector(host string, port int, logger *zap.Logger, instrument ...Instrument) *TCPConnector {
	return &TCPConnector{
		address:    net.JoinHostPort(host, strconv.Itoa(port)),
		logger:     logger,
		dialer:     net.Dialer{Timeout: tcpConnectTimeout},
		instrument: instrument,
	}
}

func (c *TCPConnector) IsDeviceReady(ctx context.Context) bool {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		c.logger.Error("could not connect to the gateway", zap.String("address", c.address), zap.Error(err))
		return false
	}
	_ = conn.Close()
	return true
}

func (c *TCPConnector) ReadRawFrame(ctx context.Context) (string, error) {
	defer RecordTimer("ReadRawFrame", c.instrument)()

	c.logger.Debug("connecting", zap.String("address", c.address))
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", transportError("connect", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(tcpDefaultDeadline)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", transportError("read", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	frame, found, err := ExtractFrame(bufio.NewReader(conn))
	if err != nil {
		return "", transportError("read", err)
	}
	if !found {
		return "", ErrNoFrame
	}
	c.logger.Debug("read raw sml frame", zap.Int("length", len(frame)))
	return frame, nil
}

func (c *TCPConnector) Close() error {
	return nil
}
