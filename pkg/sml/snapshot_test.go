package sml

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func listEntry(obis ObisCode, unit uint8, scaler int8, v Value) ListEntry {
	return ListEntry{ObjName: obis, Unit: unit, Scaler: scaler, Value: v}
}

func getList(entries ...ListEntry) Message {
	return Message{Tag: TagGetListResponse, Body: GetListResponse{ValList: entries}}
}

func assertDecimal(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	if assert.True(t, got.Valid, "value not set") {
		assert.True(t, got.Decimal.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got.Decimal)
	}
}

func TestMapToSnapshotUnitNormalization(t *testing.T) {
	mapper := NewMapper(zap.NewNop())

	snapshot, ok := mapper.MapToSnapshot([]Message{getList(
		listEntry(ObisImportTotal, UnitWattHour, -1, Int64Value(280691772)),
		listEntry(ObisImportT1, 33, -1, Int64Value(280691772)),
		listEntry(ObisExportTotal, UnitWattHour, 0, Int32Value(1500)),
		listEntry(ObisExportT1, 0, -4, Int64Value(15)),
		listEntry(ObisActivePower, 27, -1, Int32Value(30720)),
	)})
	require.True(t, ok)

	assertDecimal(t, "28069.1772", snapshot.Obis180)
	assert.Equal(t, "28069.1772", snapshot.Obis180.Decimal.String())
	assertDecimal(t, "28069177.2", snapshot.Obis181)
	assertDecimal(t, "1.5", snapshot.Obis280)
	assertDecimal(t, "0.0015", snapshot.Obis281)
	assertDecimal(t, "3072.0", snapshot.Obis1570)
}

func TestMapToSnapshotIdentifiers(t *testing.T) {
	mapper := NewMapper(zap.NewNop())

	snapshot, ok := mapper.MapToSnapshot([]Message{getList(
		listEntry(ObisVendorID, 0, 0, OctetStringValue([]byte("EMH"))),
		listEntry(ObisDeviceID, 0, 0, OctetStringValue([]byte{0x06, 0x45, 0x4D, 0x48, 0x01, 0x02, 0x71, 0x5A, 0x72, 0x7E})),
	)})
	require.True(t, ok)
	assert.Equal(t, "EMH", snapshot.VendorID)
	assert.Equal(t, "06-45-4D-48-01-02-71-5A-72-7E", snapshot.DeviceID)
	assert.False(t, snapshot.Obis180.Valid)
	assert.False(t, snapshot.Obis1570.Valid)
}

func TestMapToSnapshotDeviceIDCode(t *testing.T) {
	serverID := ObisCode{0x01, 0x00, 0x60, 0x01, 0x00, 0xFF}
	mapper := NewMapper(zap.NewNop()).WithDeviceIDCode(serverID)

	snapshot, ok := mapper.MapToSnapshot([]Message{getList(
		listEntry(ObisDeviceID, 0, 0, OctetStringValue([]byte{0x01, 0x02})),
		listEntry(serverID, 0, 0, OctetStringValue([]byte{0x0A, 0x01, 0x45, 0x53})),
	)})
	require.True(t, ok)
	assert.Equal(t, "0A-01-45-53", snapshot.DeviceID)
}

func TestMapToSnapshotNothingToReport(t *testing.T) {
	mapper := NewMapper(zap.NewNop())

	snapshot, ok := mapper.MapToSnapshot(nil)
	assert.False(t, ok)
	assert.Nil(t, snapshot)

	snapshot, ok = mapper.MapToSnapshot([]Message{
		{Tag: TagOpenResponse, Body: OpenResponse{}},
		{Tag: TagCloseResponse, Body: CloseResponse{}},
	})
	assert.False(t, ok)
	assert.Nil(t, snapshot)
}

func TestMapToSnapshotSkipsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mapper := NewMapper(zap.New(core))

	snapshot, ok := mapper.MapToSnapshot([]Message{getList(
		listEntry(ObisCode{0x81, 0x81, 0xC7, 0x82, 0x05, 0xFF}, 0, 0, OctetStringValue([]byte{0x01, 0x02})),
		listEntry(ObisImportTotal, UnitWattHour, -1, Int64Value(100)),
		listEntry(ObisExportTotal, UnitWattHour, -1, Uint32Value(100)),
		listEntry(ObisActivePower, 27, 0, Int8Value(-3)),
	)})
	require.True(t, ok)

	assertDecimal(t, "0.01", snapshot.Obis180)
	assert.False(t, snapshot.Obis280.Valid)
	assertDecimal(t, "-3", snapshot.Obis1570)

	assert.Equal(t, 1, logs.FilterMessage("skipping unsupported list entry").Len())
	assert.Equal(t, 1, logs.FilterMessage("list entry has a non numeric value").FilterField(zap.Stringer("obis", ObisExportTotal)).Len())
}

func TestMapToSnapshotLaterListWins(t *testing.T) {
	mapper := NewMapper(zap.NewNop())

	snapshot, ok := mapper.MapToSnapshot([]Message{
		getList(listEntry(ObisImportTotal, UnitWattHour, 0, Int64Value(1000))),
		{Tag: TagCloseResponse, Body: CloseResponse{}},
		getList(listEntry(ObisImportTotal, UnitWattHour, 0, Int64Value(2000))),
	})
	require.True(t, ok)
	assertDecimal(t, "2", snapshot.Obis180)
}

func TestMapToSnapshotDeterministic(t *testing.T) {
	require := require.New(t)
	mapper := NewMapper(zap.NewNop())

	messages, err := DecodeTransmission(referenceFrame(t, "emh_ehz_1.sml"))
	require.NoError(err)

	first, ok := mapper.MapToSnapshot(messages)
	require.True(ok)
	second, ok := mapper.MapToSnapshot(messages)
	require.True(ok)

	require.False(second.CapturedAt.Before(first.CapturedAt))
	second.CapturedAt = first.CapturedAt
	require.Equal(first, second)
}

func TestFormatDeviceID(t *testing.T) {
	assert.Equal(t, "", FormatDeviceID(nil))
	assert.Equal(t, "0A", FormatDeviceID([]byte{0x0a}))
	assert.Equal(t, "FF-00-1B", FormatDeviceID([]byte{0xff, 0x00, 0x1b}))
}
