package state

import "fmt"

// DateStatus is the lifecycle of a calendar date in the ledger.
type DateStatus int

const (
	// Unseen dates have no entry.
	Unseen DateStatus = iota
	// FlightsRecorded dates list at least one processed file.
	FlightsRecorded
	// FullyProcessed dates were explicitly closed by MarkDateProcessed.
	FullyProcessed
)

func (s DateStatus) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case FlightsRecorded:
		return "flights_recorded"
	case FullyProcessed:
		return "fully_processed"
	default:
		return fmt.Sprintf("DateStatus(%d)", int(s))
	}
}

func (s DateStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DateStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "unseen":
		*s = Unseen
	case "flights_recorded":
		*s = FlightsRecorded
	case "fully_processed":
		*s = FullyProcessed
	default:
		return fmt.Errorf("unknown date status %q", text)
	}
	return nil
}
