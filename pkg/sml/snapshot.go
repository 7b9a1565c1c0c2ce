package sml

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UnitWattHour is the DLMS unit code of Wh.
const UnitWattHour uint8 = 30

// MeterSnapshot holds the values of one telegram. Energy counters are in kWh,
// fields the telegram did not carry are left invalid.
type MeterSnapshot struct {
	CapturedAt time.Time           `json:"captured_at"`
	VendorID   string              `json:"vendor_id,omitempty"`
	DeviceID   string              `json:"device_id,omitempty"`
	Obis180    decimal.NullDecimal `json:"obis_1_8_0"`
	Obis181    decimal.NullDecimal `json:"obis_1_8_1"`
	Obis280    decimal.NullDecimal `json:"obis_2_8_0"`
	Obis281    decimal.NullDecimal `json:"obis_2_8_1"`
	Obis1570   decimal.NullDecimal `json:"obis_15_7_0"`
}

// Mapper turns decoded messages into a MeterSnapshot.
type Mapper struct {
	logger       *zap.Logger
	deviceIDCode ObisCode
}

func NewMapper(logger *zap.Logger) *Mapper {
	return &Mapper{logger: logger, deviceIDCode: ObisDeviceID}
}

// WithDeviceIDCode reads the device id from another entry, for meters that
// report their server id as 1-0:96.1.0*255 instead of 1-0:0.0.9*255.
func (m *Mapper) WithDeviceIDCode(code ObisCode) *Mapper {
	m.deviceIDCode = code
	return m
}

// MapToSnapshot reads the known entries of every get-list response. It returns
// false when no get-list response is present, which is a normal outcome.
func (m *Mapper) MapToSnapshot(messages []Message) (*MeterSnapshot, bool) {
	if len(messages) == 0 {
		m.logger.Debug("transmission does not contain any messages")
		return nil, false
	}
	var snapshot MeterSnapshot
	found := false
	for _, msg := range messages {
		resp, ok := msg.Body.(GetListResponse)
		if !ok {
			continue
		}
		found = true
		for _, entry := range resp.ValList {
			m.mapEntry(&snapshot, entry)
		}
	}
	if !found {
		m.logger.Debug("transmission does not contain a get-list response", zap.Int("messages", len(messages)))
		return nil, false
	}
	snapshot.CapturedAt = time.Now()
	return &snapshot, true
}

func (m *Mapper) mapEntry(s *MeterSnapshot, entry ListEntry) {
	var err error
	switch entry.ObjName {
	case ObisVendorID:
		s.VendorID = entry.Value.String()
	case m.deviceIDCode:
		s.DeviceID = FormatDeviceID(entry.Value.Bytes())
	case ObisImportTotal:
		s.Obis180, err = energyValue(entry)
	case ObisImportT1:
		s.Obis181, err = energyValue(entry)
	case ObisExportTotal:
		s.Obis280, err = energyValue(entry)
	case ObisExportT1:
		s.Obis281, err = energyValue(entry)
	case ObisActivePower:
		s.Obis1570, err = scaledValue(entry)
	default:
		m.logger.Debug("skipping unsupported list entry",
			zap.Stringer("obis", entry.ObjName),
			zap.Uint8("unit", entry.Unit),
			zap.Stringer("value", entry.Value))
		return
	}
	if err != nil {
		var unsupported *UnsupportedValueTypeError
		if errors.As(err, &unsupported) {
			m.logger.Warn("list entry has a non numeric value", zap.Stringer("obis", entry.ObjName), zap.Error(err))
		} else {
			m.logger.Debug("could not read list entry", zap.Stringer("obis", entry.ObjName), zap.Error(err))
		}
	}
}

// energyValue converts Wh counters to kWh. Any other unit is taken as kWh.
func energyValue(entry ListEntry) (decimal.NullDecimal, error) {
	v, err := scaledValue(entry)
	if err != nil || entry.Unit != UnitWattHour {
		return v, err
	}
	return decimal.NewNullDecimal(v.Decimal.Shift(-3)), nil
}

func scaledValue(entry ListEntry) (decimal.NullDecimal, error) {
	v, err := entry.Value.Decimal(entry.Scaler)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// FormatDeviceID renders id as uppercase hex pairs joined by '-'. The octets
// are used as received, bytes from 0x80 up included.
func FormatDeviceID(id []byte) string {
	if len(id) == 0 {
		return ""
	}
	pairs := make([]string, len(id))
	for i, b := range id {
		pairs[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(pairs, "-")
}
