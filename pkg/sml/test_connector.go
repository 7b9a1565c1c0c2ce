package sml

import (
	"bytes"
	"context"
	"embed"
	"sync"
)

//go:embed testdata/emh_ehz_*.sml
var referenceTelegrams embed.FS

// ReferenceTelegramStreams returns synthetic gateway streams built around
// reference telegrams in the EMH eHZ layout. Each one holds a single framed
// telegram between line noise, the import counter advances in the second and
// the export counter in the third.
func ReferenceTelegramStreams() [][]byte {
	names := []string{"emh_ehz_1.sml", "emh_ehz_2.sml", "emh_ehz_3.sml"}
	streams := make([][]byte, 0, len(names))
	for _, name := range names {
		b, err := referenceTelegrams.ReadFile("testdata/" + name)
		if err != nil {
			panic(err)
		}
		streams = append(streams, b)
	}
	return streams
}

// TestConnector replays byte streams. Every read consumes the next stream,
// the last one is repeated once all were read.
type TestConnector struct {
	mu       sync.Mutex
	streams  [][]byte
	next     int
	failure  error
	notReady bool
	reads    int
}

func NewTestConnector(streams ...[]byte) *TestConnector {
	return &TestConnector{streams: streams}
}

// Fail makes every following read return err. A nil err restores reading.
func (c *TestConnector) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
}

func (c *TestConnector) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notReady = !ready
}

func (c *TestConnector) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *TestConnector) IsDeviceReady(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.notReady
}

func (c *TestConnector) ReadRawFrame(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.failure != nil {
		return "", c.failure
	}
	if len(c.streams) == 0 {
		return "", ErrNoFrame
	}
	stream := c.streams[min(c.next, len(c.streams)-1)]
	c.next++
	frame, ok, err := ExtractFrame(bytes.NewReader(stream))
	if err != nil {
		return "", &TransportError{Op: "read", Err: err}
	}
	if !ok {
		return "", ErrNoFrame
	}
	return frame, nil
}

func (c *TestConnector) Close() error {
	return nil
}
