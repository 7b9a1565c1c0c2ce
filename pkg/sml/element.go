package sml

const (
	tlTypeOctetString = 0x0
	tlTypeBool        = 0x4
	tlTypeInt         = 0x5
	tlTypeUint        = 0x6
	tlTypeList        = 0x7

	tlEndOfMessage = 0x00
	maxListDepth   = 16
)

type elementKind uint8

const (
	elementOctetString elementKind = iota
	elementBool
	elementInt
	elementUint
	elementList
	elementEnd
)

// element is one node of the TL tree. Lists carry children, everything else
// carries the raw payload without the TL header.
type element struct {
	kind     elementKind
	data     []byte
	children []element
	// offset of the TL header within the buffer it was parsed from
	start int
}

// absent reports the optional-field marker 0x01 (an empty octet string).
func (e element) absent() bool {
	return e.kind == elementOctetString && len(e.data) == 0
}

func (e element) int64() (int64, error) {
	if e.kind != elementInt || len(e.data) == 0 || len(e.data) > 8 {
		return 0, structuralf("expected signed integer at offset %d", e.start)
	}
	var n int64
	if e.data[0]&0x80 != 0 {
		n = -1
	}
	for _, b := range e.data {
		n = n<<8 | int64(b)
	}
	return n, nil
}

func (e element) uint64() (uint64, error) {
	if e.kind != elementUint || len(e.data) == 0 || len(e.data) > 8 {
		return 0, structuralf("expected unsigned integer at offset %d", e.start)
	}
	var n uint64
	for _, b := range e.data {
		n = n<<8 | uint64(b)
	}
	return n, nil
}

func (e element) boolean() bool {
	return len(e.data) > 0 && e.data[0] != 0
}

func (e element) list(size int) ([]element, error) {
	if e.kind != elementList || len(e.children) != size {
		return nil, structuralf("expected list of %d at offset %d", size, e.start)
	}
	return e.children, nil
}

// parseElement decodes the element starting at pos and returns it together with
// the offset just past it.
func parseElement(buf []byte, pos int) (element, int, error) {
	return parseElementDepth(buf, pos, 0)
}

func parseElementDepth(buf []byte, pos int, depth int) (element, int, error) {
	if depth > maxListDepth {
		return element{}, pos, structuralf("lists nested too deep at offset %d", pos)
	}
	if pos >= len(buf) {
		return element{}, pos, structuralf("truncated element at offset %d", pos)
	}
	first := buf[pos]
	if first == tlEndOfMessage {
		return element{kind: elementEnd, start: pos}, pos + 1, nil
	}

	typ := (first >> 4) & 0x07
	length := int(first & 0x0f)
	tlLen := 1
	for more := first&0x80 != 0; more; {
		if pos+tlLen >= len(buf) {
			return element{}, pos, structuralf("truncated type-length field at offset %d", pos)
		}
		next := buf[pos+tlLen]
		if (next>>4)&0x07 != 0 {
			return element{}, pos, structuralf("invalid type-length continuation at offset %d", pos+tlLen)
		}
		length = length<<4 | int(next&0x0f)
		more = next&0x80 != 0
		tlLen++
	}

	if typ == tlTypeList {
		el := element{kind: elementList, start: pos, children: make([]element, 0, length)}
		next := pos + tlLen
		for i := 0; i < length; i++ {
			child, end, err := parseElementDepth(buf, next, depth+1)
			if err != nil {
				return element{}, pos, err
			}
			el.children = append(el.children, child)
			next = end
		}
		return el, next, nil
	}

	if length < tlLen {
		return element{}, pos, structuralf("length %d shorter than its type-length field at offset %d", length, pos)
	}
	end := pos + length
	if end > len(buf) {
		return element{}, pos, structuralf("element at offset %d runs past the end of the data", pos)
	}
	el := element{start: pos, data: buf[pos+tlLen : end]}
	switch typ {
	case tlTypeOctetString:
		el.kind = elementOctetString
	case tlTypeBool:
		el.kind = elementBool
	case tlTypeInt:
		el.kind = elementInt
	case tlTypeUint:
		el.kind = elementUint
	default:
		return element{}, pos, structuralf("unknown type 0x%x at offset %d", typ, pos)
	}
	return el, end, nil
}
