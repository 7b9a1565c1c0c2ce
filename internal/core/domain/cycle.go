package domain

import (
	"errors"

	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
)

const (
	CYCLE_OUTCOME_OK                = "ok"
	CYCLE_OUTCOME_NO_SNAPSHOT       = "no_snapshot"
	CYCLE_OUTCOME_NO_FRAME          = "no_frame"
	CYCLE_OUTCOME_MALFORMED_INPUT   = "malformed_input"
	CYCLE_OUTCOME_CHECKSUM_MISMATCH = "checksum_mismatch"
	CYCLE_OUTCOME_STRUCTURAL_ERROR  = "structural_error"
	CYCLE_OUTCOME_TRANSPORT_ERROR   = "transport_error"
)

// CycleOutcome maps the error of an acquisition cycle to its metrics label.
func CycleOutcome(err error) string {
	switch {
	case err == nil:
		return CYCLE_OUTCOME_OK
	case errors.Is(err, sml.ErrNoFrame):
		return CYCLE_OUTCOME_NO_FRAME
	case errors.Is(err, sml.ErrMalformedInput):
		return CYCLE_OUTCOME_MALFORMED_INPUT
	case errors.Is(err, sml.ErrChecksumMismatch):
		return CYCLE_OUTCOME_CHECKSUM_MISMATCH
	case errors.Is(err, sml.ErrStructural):
		return CYCLE_OUTCOME_STRUCTURAL_ERROR
	default:
		return CYCLE_OUTCOME_TRANSPORT_ERROR
	}
}
