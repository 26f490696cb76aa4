package model

// Outcome reports whether a conditional write matched its precondition.
type Outcome uint8

const (
	// NoMatch means the precondition did not hold and nothing was written.
	NoMatch Outcome = iota
	// Updated means the write was applied.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case NoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}
