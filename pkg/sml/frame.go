package sml

import (
	"bytes"
	"errors"
	"io"
)

const (
	frameOpen  = '('
	frameClose = ')'
)

// ExtractFrame reads r until it has seen one '(' ... ')' frame and returns the
// text between the delimiters. Every '(' restarts the frame, bytes outside a
// frame are dropped. ok is false when r ran out first.
//
// There is no size limit: a source that never closes a frame is consumed to its
// end, so r must be bounded by the caller (deadline, limited reader).
func ExtractFrame(r io.ByteReader) (frame string, ok bool, err error) {
	var buf []byte
	open := false
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", false, nil
			}
			return "", false, err
		}
		switch {
		case b == frameOpen:
			buf = buf[:0]
			open = true
		case b == frameClose && open:
			return string(buf), true, nil
		case open:
			buf = append(buf, b)
		}
	}
}

// ExtractTransmission reads one binary SML transmission, from start sequence to
// the end of the end sequence, as a local IR head emits it. Escaped escape
// sequences are kept as they are so that the result can be handed to the
// decoder unchanged.
func ExtractTransmission(r io.ByteReader) (transmission []byte, ok bool, err error) {
	window := make([]byte, 0, len(startSequence))
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, false, eofIsNoFrame(err)
		}
		window = append(window, b)
		if len(window) > len(startSequence) {
			window = window[1:]
		}
		if bytes.Equal(window, startSequence) {
			break
		}
	}

	buf := append(make([]byte, 0, 512), startSequence...)
	word := make([]byte, 4)
	for {
		if err := readWord(r, word); err != nil {
			return nil, false, eofIsNoFrame(err)
		}
		buf = append(buf, word...)
		if !bytes.Equal(word, escapeSequence) {
			continue
		}
		if err := readWord(r, word); err != nil {
			return nil, false, eofIsNoFrame(err)
		}
		switch {
		case word[0] == endMarker:
			return append(buf, word...), true, nil
		case bytes.Equal(word, startSequence[4:]):
			// a new transmission started before this one ended
			buf = append(buf[:0], startSequence...)
		default:
			buf = append(buf, word...)
		}
	}
}

func readWord(r io.ByteReader, word []byte) error {
	for i := range word {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		word[i] = b
	}
	return nil
}

func eofIsNoFrame(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}
