package sml

// PowerDirection tells whether energy flowed from the grid (IN) or to the
// grid (OUT) between two snapshots.
type PowerDirection int

const (
	PowerDirectionUnknown PowerDirection = iota
	PowerDirectionIn
	PowerDirectionOut
	PowerDirectionNone
)

func (d PowerDirection) String() string {
	switch d {
	case PowerDirectionIn:
		return "IN"
	case PowerDirectionOut:
		return "OUT"
	case PowerDirectionNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}
