package sml

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind identifies the encoded type of a Value.
type Kind uint8

const (
	KindOctetString Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindList
)

var kindNames = map[Kind]string{
	KindOctetString: "OctetString",
	KindBool:        "Boolean",
	KindInt8:        "Integer8",
	KindInt16:       "Integer16",
	KindInt32:       "Integer32",
	KindInt64:       "Integer64",
	KindUint8:       "Unsigned8",
	KindUint16:      "Unsigned16",
	KindUint32:      "Unsigned32",
	KindUint64:      "Unsigned64",
	KindList:        "List",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the decoded choice of an SML_Value. Only one of the payload fields
// is meaningful, selected by the kind.
type Value struct {
	kind  Kind
	i     int64
	u     uint64
	b     bool
	bytes []byte
}

func Int8Value(v int8) Value   { return Value{kind: KindInt8, i: int64(v)} }
func Int16Value(v int16) Value { return Value{kind: KindInt16, i: int64(v)} }
func Int32Value(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }
func Int64Value(v int64) Value { return Value{kind: KindInt64, i: v} }

func Uint8Value(v uint8) Value   { return Value{kind: KindUint8, u: uint64(v)} }
func Uint16Value(v uint16) Value { return Value{kind: KindUint16, u: uint64(v)} }
func Uint32Value(v uint32) Value { return Value{kind: KindUint32, u: uint64(v)} }
func Uint64Value(v uint64) Value { return Value{kind: KindUint64, u: v} }

func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

func OctetStringValue(v []byte) Value { return Value{kind: KindOctetString, bytes: v} }

func (v Value) Kind() Kind {
	return v.kind
}

// Bytes returns the octet string payload, nil for any other kind.
func (v Value) Bytes() []byte {
	if v.kind != KindOctetString {
		return nil
	}
	return v.bytes
}

// Int64 converts the value to an integer. Only Integer8, Integer32 and Integer64
// are accepted; there is no coercion between widths.
func (v Value) Int64() (int64, error) {
	switch v.kind {
	case KindInt8, KindInt32, KindInt64:
		return v.i, nil
	default:
		return 0, &UnsupportedValueTypeError{Kind: v.kind}
	}
}

// Decimal returns value × 10^scaler.
func (v Value) Decimal(scaler int8) (decimal.Decimal, error) {
	n, err := v.Int64()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(n, int32(scaler)), nil
}

// String renders the value the way meters mean it to be read: octet strings as
// text, numbers in base 10.
func (v Value) String() string {
	switch v.kind {
	case KindOctetString:
		return string(v.bytes)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(v.u, 10)
	default:
		return v.kind.String()
	}
}

func valueFromElement(e element) (Value, error) {
	switch e.kind {
	case elementOctetString:
		return OctetStringValue(e.data), nil
	case elementBool:
		return BoolValue(e.boolean()), nil
	case elementInt:
		n, err := e.int64()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: signedKind(len(e.data)), i: n}, nil
	case elementUint:
		n, err := e.uint64()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: unsignedKind(len(e.data)), u: n}, nil
	case elementList:
		return Value{kind: KindList}, nil
	default:
		return Value{}, structuralf("unexpected element for value")
	}
}

// Meters may send integers in fewer bytes than their nominal width.
func signedKind(size int) Kind {
	switch {
	case size <= 1:
		return KindInt8
	case size == 2:
		return KindInt16
	case size <= 4:
		return KindInt32
	default:
		return KindInt64
	}
}

func unsignedKind(size int) Kind {
	switch {
	case size <= 1:
		return KindUint8
	case size == 2:
		return KindUint16
	case size <= 4:
		return KindUint32
	default:
		return KindUint64
	}
}
