package sml

import "math"

// Message tags of the SML message bodies this package decodes.
const (
	TagOpenResponse      uint32 = 0x0101
	TagCloseResponse     uint32 = 0x0201
	TagGetListResponse   uint32 = 0x0701
	TagAttentionResponse uint32 = 0xFF01
)

// Message is one decoded SML message.
type Message struct {
	TransactionID []byte
	GroupNo       uint8
	AbortOnError  uint8
	Tag           uint32
	Body          Body
	CRC           uint16
}

// Body is implemented by the message body types of this package.
type Body interface {
	body()
}

type OpenResponse struct {
	Codepage   []byte
	ClientID   []byte
	ReqFileID  []byte
	ServerID   []byte
	RefTime    *Time
	SMLVersion *uint64
}

type CloseResponse struct {
	GlobalSignature []byte
}

type GetListResponse struct {
	ClientID       []byte
	ServerID       []byte
	ListName       []byte
	ActSensorTime  *Time
	ValList        []ListEntry
	ListSignature  []byte
	ActGatewayTime *Time
}

type AttentionResponse struct {
	ServerID     []byte
	AttentionNo  []byte
	AttentionMsg string
}

// OtherBody is any message body without a dedicated type.
type OtherBody struct {
	Tag uint32
}

func (OpenResponse) body()      {}
func (CloseResponse) body()     {}
func (GetListResponse) body()   {}
func (AttentionResponse) body() {}
func (OtherBody) body()         {}

// TimeKind is the choice tag of an SML_Time.
type TimeKind uint8

const (
	TimeSecIndex  TimeKind = 1
	TimeTimestamp TimeKind = 2
)

type Time struct {
	Kind    TimeKind
	Seconds uint32
}

// ListEntry is one measured value of a get-list response.
type ListEntry struct {
	ObjName   ObisCode
	Status    *uint64
	ValTime   *Time
	Unit      uint8
	Scaler    int8
	Value     Value
	Signature []byte
}

func decodeMessage(el element) (Message, error) {
	fields, err := el.list(6)
	if err != nil {
		return Message{}, err
	}
	msg := Message{TransactionID: fields[0].data}
	if msg.GroupNo, err = optionalUint8(fields[1]); err != nil {
		return Message{}, err
	}
	if msg.AbortOnError, err = optionalUint8(fields[2]); err != nil {
		return Message{}, err
	}
	choice, err := fields[3].list(2)
	if err != nil {
		return Message{}, err
	}
	tag, err := choice[0].uint64()
	if err != nil {
		return Message{}, err
	}
	if tag > math.MaxUint32 {
		return Message{}, structuralf("message tag 0x%x at offset %d out of range", tag, choice[0].start)
	}
	msg.Tag = uint32(tag)
	if msg.Body, err = decodeBody(msg.Tag, choice[1]); err != nil {
		return Message{}, err
	}
	crc, err := fields[4].uint64()
	if err != nil {
		return Message{}, err
	}
	if crc > math.MaxUint16 {
		return Message{}, structuralf("message crc 0x%x at offset %d out of range", crc, fields[4].start)
	}
	msg.CRC = uint16(crc)
	if fields[5].kind != elementEnd {
		return Message{}, structuralf("missing end of message at offset %d", fields[5].start)
	}
	return msg, nil
}

func decodeBody(tag uint32, el element) (Body, error) {
	switch tag {
	case TagOpenResponse:
		return decodeOpenResponse(el)
	case TagCloseResponse:
		f, err := el.list(1)
		if err != nil {
			return nil, err
		}
		return CloseResponse{GlobalSignature: f[0].data}, nil
	case TagGetListResponse:
		return decodeGetListResponse(el)
	case TagAttentionResponse:
		if el.kind != elementList || len(el.children) < 3 {
			return nil, structuralf("expected attention response at offset %d", el.start)
		}
		f := el.children
		return AttentionResponse{ServerID: f[0].data, AttentionNo: f[1].data, AttentionMsg: string(f[2].data)}, nil
	default:
		return OtherBody{Tag: tag}, nil
	}
}

func decodeOpenResponse(el element) (Body, error) {
	f, err := el.list(6)
	if err != nil {
		return nil, err
	}
	resp := OpenResponse{
		Codepage:  f[0].data,
		ClientID:  f[1].data,
		ReqFileID: f[2].data,
		ServerID:  f[3].data,
	}
	if resp.RefTime, err = decodeTime(f[4]); err != nil {
		return nil, err
	}
	if !f[5].absent() {
		v, err := f[5].uint64()
		if err != nil {
			return nil, err
		}
		resp.SMLVersion = &v
	}
	return resp, nil
}

func decodeGetListResponse(el element) (Body, error) {
	f, err := el.list(7)
	if err != nil {
		return nil, err
	}
	resp := GetListResponse{
		ClientID:      f[0].data,
		ServerID:      f[1].data,
		ListName:      f[2].data,
		ListSignature: f[5].data,
	}
	if resp.ActSensorTime, err = decodeTime(f[3]); err != nil {
		return nil, err
	}
	if f[4].kind != elementList {
		return nil, structuralf("expected value list at offset %d", f[4].start)
	}
	resp.ValList = make([]ListEntry, 0, len(f[4].children))
	for _, child := range f[4].children {
		entry, err := decodeListEntry(child)
		if err != nil {
			return nil, err
		}
		resp.ValList = append(resp.ValList, entry)
	}
	if resp.ActGatewayTime, err = decodeTime(f[6]); err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeListEntry(el element) (ListEntry, error) {
	f, err := el.list(7)
	if err != nil {
		return ListEntry{}, err
	}
	var entry ListEntry
	if f[0].kind != elementOctetString || len(f[0].data) != len(entry.ObjName) {
		return ListEntry{}, structuralf("object name at offset %d is not a 6 byte obis code", f[0].start)
	}
	copy(entry.ObjName[:], f[0].data)
	if !f[1].absent() {
		status, err := f[1].uint64()
		if err != nil {
			return ListEntry{}, err
		}
		entry.Status = &status
	}
	if entry.ValTime, err = decodeTime(f[2]); err != nil {
		return ListEntry{}, err
	}
	if entry.Unit, err = optionalUint8(f[3]); err != nil {
		return ListEntry{}, err
	}
	if !f[4].absent() {
		scaler, err := f[4].int64()
		if err != nil {
			return ListEntry{}, err
		}
		if scaler < math.MinInt8 || scaler > math.MaxInt8 {
			return ListEntry{}, structuralf("scaler %d at offset %d out of range", scaler, f[4].start)
		}
		entry.Scaler = int8(scaler)
	}
	if entry.Value, err = valueFromElement(f[5]); err != nil {
		return ListEntry{}, err
	}
	entry.Signature = f[6].data
	return entry, nil
}

// decodeTime returns nil for an absent time.
func decodeTime(el element) (*Time, error) {
	if el.absent() {
		return nil, nil
	}
	// some meters send the seconds index without the choice wrapper
	if el.kind == elementUint {
		secs, err := timeSeconds(el)
		if err != nil {
			return nil, err
		}
		return &Time{Kind: TimeSecIndex, Seconds: secs}, nil
	}
	f, err := el.list(2)
	if err != nil {
		return nil, err
	}
	kind, err := f[0].uint64()
	if err != nil {
		return nil, err
	}
	secs, err := timeSeconds(f[1])
	if err != nil {
		return nil, err
	}
	return &Time{Kind: TimeKind(kind), Seconds: secs}, nil
}

func timeSeconds(el element) (uint32, error) {
	v, err := el.uint64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, structuralf("time value %d at offset %d out of range", v, el.start)
	}
	return uint32(v), nil
}

func optionalUint8(el element) (uint8, error) {
	if el.absent() {
		return 0, nil
	}
	v, err := el.uint64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint8 {
		return 0, structuralf("value %d at offset %d exceeds 8 bits", v, el.start)
	}
	return uint8(v), nil
}
