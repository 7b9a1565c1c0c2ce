package sml

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput is returned when a raw frame is not a valid hex string.
	ErrMalformedInput = errors.New("sml: malformed input")
	// ErrChecksumMismatch is returned when the transmission (or message) CRC does not match.
	// Noisy IR links produce it routinely; callers should skip the cycle.
	ErrChecksumMismatch = errors.New("sml: checksum mismatch")
	// ErrStructural is returned for truncated or unexpected message structure.
	ErrStructural = errors.New("sml: structural error")
	// ErrNoFrame is returned by connectors when the source was exhausted before a complete frame.
	ErrNoFrame = errors.New("sml: no frame received")
)

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

// UnsupportedValueTypeError is returned when a value that is not an 8, 32 or 64 bit
// signed integer is converted to a number.
type UnsupportedValueTypeError struct {
	Kind Kind
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("sml: value is not a numeric type (%s)", e.Kind)
}

// TransportError wraps a failure of the byte source. Terminal errors mean the
// connection cannot recover and polling for it should stop.
type TransportError struct {
	Op       string
	Err      error
	Terminal bool
}

func (e *TransportError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("sml transport %s (terminal): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sml transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err is a terminal transport failure.
func IsTerminal(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Terminal
}
