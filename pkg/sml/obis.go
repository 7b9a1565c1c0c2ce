package sml

import (
	"fmt"
	"strconv"
	"strings"
)

// ObisCode identifies a measured quantity (IEC 62056-61), six bytes A-B:C.D.E*F.
type ObisCode [6]byte

var (
	ObisVendorID    = ObisCode{0x81, 0x81, 0xC7, 0x82, 0x03, 0xFF}
	ObisDeviceID    = ObisCode{0x01, 0x00, 0x00, 0x00, 0x09, 0xFF}
	ObisImportTotal = ObisCode{0x01, 0x00, 0x01, 0x08, 0x00, 0xFF} // 1.8.0
	ObisImportT1    = ObisCode{0x01, 0x00, 0x01, 0x08, 0x01, 0xFF} // 1.8.1
	ObisExportTotal = ObisCode{0x01, 0x00, 0x02, 0x08, 0x00, 0xFF} // 2.8.0
	ObisExportT1    = ObisCode{0x01, 0x00, 0x02, 0x08, 0x01, 0xFF} // 2.8.1
	ObisActivePower = ObisCode{0x01, 0x00, 0x0F, 0x07, 0x00, 0xFF} // 15.7.0
)

func (o ObisCode) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", o[0], o[1], o[2], o[3], o[4], o[5])
}

// ParseObisCode accepts the A-B:C.D.E*F notation as well as 12 hex digits.
func ParseObisCode(s string) (ObisCode, error) {
	var code ObisCode
	s = strings.TrimSpace(s)
	if len(s) == 12 && !strings.ContainsAny(s, "-:.*") {
		for i := 0; i < 6; i++ {
			b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
			if err != nil {
				return code, fmt.Errorf("invalid obis code %q: %w", s, err)
			}
			code[i] = byte(b)
		}
		return code, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == ':' || r == '.' || r == '*'
	})
	if len(parts) != 6 {
		return code, fmt.Errorf("invalid obis code %q: expected 6 groups, got %d", s, len(parts))
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return code, fmt.Errorf("invalid obis code %q: %w", s, err)
		}
		code[i] = byte(b)
	}
	return code, nil
}
