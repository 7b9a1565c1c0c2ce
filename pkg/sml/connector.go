package sml

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

const (
	CONNECTOR_TYPE_COMET  = "CometCom1"
	CONNECTOR_TYPE_SERIAL = "serial"
	CONNECTOR_TYPE_TEST   = "test"
)

// Connector delivers raw SML frames (hex text) from a meter.
type Connector interface {
	// ReadRawFrame blocks until one frame was read. It returns ErrNoFrame when
	// the source ended without a complete frame and a *TransportError when the
	// source failed.
	ReadRawFrame(ctx context.Context) (string, error)
	IsDeviceReady(ctx context.Context) bool
	Close() error
}

// Endpoint describes where a meter is reachable.
type Endpoint struct {
	Type         string
	Host         string
	Port         int
	SerialDevice string
	Baud         int
}

func (e Endpoint) Key() string {
	switch e.Type {
	case CONNECTOR_TYPE_SERIAL:
		return e.Type + ":" + e.SerialDevice
	default:
		return e.Type + ":" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	}
}

// NewConnector builds the connector for the endpoint type.
func NewConnector(e Endpoint, logger *zap.Logger, instrument ...Instrument) (Connector, error) {
	switch e.Type {
	case CONNECTOR_TYPE_COMET:
		return NewTCPConnector(e.Host, e.Port, logger, instrument...), nil
	case CONNECTOR_TYPE_SERIAL:
		return NewSerialConnector(e.SerialDevice, e.Baud, logger, instrument...), nil
	case CONNECTOR_TYPE_TEST:
		return NewTestConnector(ReferenceTelegramStreams()...), nil
	default:
		return nil, fmt.Errorf("connector type %q is not supported", e.Type)
	}
}

// ConnectorRegistry keeps one connector per endpoint for as long as the
// registry lives.
type ConnectorRegistry struct {
	logger     *zap.Logger
	instrument []Instrument

	mu         sync.Mutex
	connectors map[string]Connector
}

func NewConnectorRegistry(logger *zap.Logger, instrument ...Instrument) *ConnectorRegistry {
	return &ConnectorRegistry{
		logger:     logger,
		instrument: instrument,
		connectors: make(map[string]Connector),
	}
}

func (r *ConnectorRegistry) Get(e Endpoint) (Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.Key()
	if c, ok := r.connectors[key]; ok {
		return c, nil
	}
	c, err := NewConnector(e, r.logger.With(zap.String("endpoint", key)), r.instrument...)
	if err != nil {
		return nil, err
	}
	r.connectors[key] = c
	return c, nil
}

// Put registers a connector for an endpoint, replacing any previous one.
func (r *ConnectorRegistry) Put(e Endpoint, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[e.Key()] = c
}

// Remove closes and forgets the connector of an endpoint.
func (r *ConnectorRegistry) Remove(e Endpoint) error {
	r.mu.Lock()
	c, ok := r.connectors[e.Key()]
	delete(r.connectors, e.Key())
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

func (r *ConnectorRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for key, c := range r.connectors {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(r.connectors, key)
	}
	return errors.Join(errs...)
}

// transportError classifies a byte source failure. Resets, refused
// connections and vanished devices end the connection; timeouts do not.
func transportError(op string, err error) *TransportError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Op: op, Err: err}
	}
	terminal := errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
	return &TransportError{Op: op, Err: err, Terminal: terminal}
}
