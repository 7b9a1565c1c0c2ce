package sml

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadReferenceTelegram(t *testing.T) {
	require := require.New(t)

	start := time.Now()

	connector := NewTestConnector(ReferenceTelegramStreams()...)
	frame, err := connector.ReadRawFrame(context.Background())
	require.NoError(err)

	reader := NewReader(zap.Must(zap.NewDevelopment()), DecodeOptions{VerifyMessageCRC: true})
	snapshot, ok, err := reader.Read(frame)
	require.NoError(err)
	require.True(ok)

	require.Equal("EMH", snapshot.VendorID)
	require.Equal("06-45-4D-48-01-02-71-5A-72-7E", snapshot.DeviceID)
	assertDecimal(t, "28069.1772", snapshot.Obis180)
	assertDecimal(t, "28069.1772", snapshot.Obis181)
	assertDecimal(t, "35352.5595", snapshot.Obis280)
	assertDecimal(t, "35352.5595", snapshot.Obis281)
	assertDecimal(t, "3072.0", snapshot.Obis1570)
	require.True(snapshot.CapturedAt.After(start))
}

func TestReadReferenceSequence(t *testing.T) {
	require := require.New(t)

	connector := NewTestConnector(ReferenceTelegramStreams()...)
	reader := NewReader(zap.NewNop(), DecodeOptions{})

	var snapshots []*MeterSnapshot
	for i := 0; i < 4; i++ {
		frame, err := connector.ReadRawFrame(context.Background())
		require.NoError(err)
		snapshot, ok, err := reader.Read(frame)
		require.NoError(err)
		require.True(ok)
		snapshots = append(snapshots, snapshot)
	}

	require.True(snapshots[1].Obis180.Decimal.GreaterThan(snapshots[0].Obis180.Decimal))
	require.True(snapshots[1].Obis280.Decimal.Equal(snapshots[0].Obis280.Decimal))
	require.True(snapshots[2].Obis280.Decimal.GreaterThan(snapshots[1].Obis280.Decimal))
	require.True(snapshots[2].Obis1570.Decimal.Equal(decimal.RequireFromString("-1280")))
	// the last stream repeats
	require.True(snapshots[3].Obis280.Decimal.Equal(snapshots[2].Obis280.Decimal))
	require.Equal(4, connector.Reads())
}

func TestReadErrors(t *testing.T) {
	assert := assert.New(t)
	reader := NewReader(zap.NewNop(), DecodeOptions{})

	snapshot, ok, err := reader.Read("not hex")
	assert.ErrorIs(err, ErrMalformedInput)
	assert.False(ok)
	assert.Nil(snapshot)

	_, _, err = reader.Read("1B1B1B1B01010101")
	assert.ErrorIs(err, ErrStructural)
}

func TestReadWithoutMessages(t *testing.T) {
	reader := NewReader(zap.NewNop(), DecodeOptions{})

	snapshot, ok, err := reader.Read(seal(envelope(nil, 0)))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snapshot)
}
