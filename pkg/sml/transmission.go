package sml

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/bits"

	"github.com/sigurn/crc16"
)

var (
	escapeSequence = []byte{0x1b, 0x1b, 0x1b, 0x1b}
	startSequence  = []byte{0x1b, 0x1b, 0x1b, 0x1b, 0x01, 0x01, 0x01, 0x01}

	x25Table = crc16.MakeTable(crc16.CRC16_X_25)
)

const (
	endMarker     = 0x1a
	envelopeWords = 4 // start (2 words) + end (2 words)
	maxPadding    = 3
)

// DecodeOptions tunes the transmission decoder.
type DecodeOptions struct {
	// VerifyMessageCRC additionally checks the CRC of every message. The
	// transmission CRC is always checked.
	VerifyMessageCRC bool
}

// DecodeTransmission decodes the hex text of one SML transmission into its
// messages, in wire order. A transmission without messages yields an empty slice.
func DecodeTransmission(hexText string) ([]Message, error) {
	return DecodeTransmissionWithOptions(hexText, DecodeOptions{})
}

func DecodeTransmissionWithOptions(hexText string, opts DecodeOptions) ([]Message, error) {
	raw, err := hex.DecodeString(hexText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	payload, err := openEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return decodeMessages(payload, opts)
}

// openEnvelope validates the escape framing and the transmission CRC and returns
// the unescaped message bytes without padding.
func openEnvelope(raw []byte) ([]byte, error) {
	if len(raw) < envelopeWords*4 {
		return nil, structuralf("transmission too short (%d bytes)", len(raw))
	}
	if len(raw)%4 != 0 {
		return nil, structuralf("transmission length %d is not a multiple of 4", len(raw))
	}

	// the crc covers the escape sequences too, so check it before them
	want := uint16(raw[len(raw)-2]) | uint16(raw[len(raw)-1])<<8
	if got := crc16.Checksum(raw[:len(raw)-2], x25Table); got != want {
		return nil, fmt.Errorf("%w: transmission crc 0x%04x, computed 0x%04x", ErrChecksumMismatch, want, got)
	}

	if !bytes.HasPrefix(raw, startSequence) {
		return nil, structuralf("missing start sequence")
	}
	end := len(raw) - 8
	if !bytes.Equal(raw[end:end+4], escapeSequence) || raw[end+4] != endMarker {
		return nil, structuralf("missing end sequence")
	}

	padding := int(raw[end+5])
	if padding > maxPadding {
		return nil, structuralf("invalid padding %d", padding)
	}

	payload := make([]byte, 0, end-8)
	for i := 8; i < end; i += 4 {
		word := raw[i : i+4]
		if !bytes.Equal(word, escapeSequence) {
			payload = append(payload, word...)
			continue
		}
		if i+8 > end || !bytes.Equal(raw[i+4:i+8], escapeSequence) {
			return nil, structuralf("unexpected escape sequence at offset %d", i)
		}
		payload = append(payload, escapeSequence...)
		i += 4
	}
	if padding > len(payload) {
		return nil, structuralf("padding %d exceeds payload of %d bytes", padding, len(payload))
	}
	return payload[:len(payload)-padding], nil
}

func decodeMessages(payload []byte, opts DecodeOptions) ([]Message, error) {
	messages := make([]Message, 0, 3)
	pos := 0
	for pos < len(payload) {
		// filler between messages
		if payload[pos] == tlEndOfMessage {
			pos++
			continue
		}
		el, next, err := parseElement(payload, pos)
		if err != nil {
			return nil, err
		}
		msg, err := decodeMessage(el)
		if err != nil {
			return nil, err
		}
		if opts.VerifyMessageCRC {
			if err := verifyMessageCRC(payload, el, msg); err != nil {
				return nil, err
			}
		}
		messages = append(messages, msg)
		pos = next
	}
	return messages, nil
}

// The CRC field covers the message bytes up to its own TL header and is sent
// least significant byte first.
func verifyMessageCRC(payload []byte, el element, msg Message) error {
	crcField := el.children[4]
	sum := crc16.Checksum(payload[el.start:crcField.start], x25Table)
	if bits.ReverseBytes16(sum) != msg.CRC {
		return fmt.Errorf("%w: message %x crc 0x%04x, computed 0x%04x",
			ErrChecksumMismatch, msg.TransactionID, msg.CRC, bits.ReverseBytes16(sum))
	}
	return nil
}
