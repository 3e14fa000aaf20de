package state

import "time"

// DocumentVersion is written into every new ledger.
const DocumentVersion = "1.0"

type document struct {
	Scope            string                   `json:"scope"`
	LastUpdated      *time.Time               `json:"last_updated"`
	ProcessedDates   map[string]*DateEntry    `json:"processed_dates"`
	ProcessedFlights map[string]*FlightRecord `json:"processed_flights"`
	Metadata         documentMeta             `json:"metadata"`
}

type documentMeta struct {
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
}

// FlightRecord is the ledger entry of one processed file.
type FlightRecord struct {
	Date        string    `json:"date"`
	Uploaded    bool      `json:"uploaded_to_r2"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DateEntry is the ledger entry of one calendar date.
type DateEntry struct {
	Flights       []string        `json:"flights"`
	Status        DateStatus      `json:"status"`
	LastProcessed *time.Time      `json:"last_processed"`
	Flags         map[string]bool `json:"flags,omitempty"`
}

func newDocument(scope string, now time.Time) document {
	return document{
		Scope:            scope,
		ProcessedDates:   map[string]*DateEntry{},
		ProcessedFlights: map[string]*FlightRecord{},
		Metadata:         documentMeta{CreatedAt: now, Version: DocumentVersion},
	}
}

// repair fills nil maps and derives statuses missing from older documents.
func (d *document) repair() {
	if d.ProcessedDates == nil {
		d.ProcessedDates = map[string]*DateEntry{}
	}
	if d.ProcessedFlights == nil {
		d.ProcessedFlights = map[string]*FlightRecord{}
	}
	if d.Metadata.Version == "" {
		d.Metadata.Version = DocumentVersion
	}
	for date, entry := range d.ProcessedDates {
		if entry == nil {
			delete(d.ProcessedDates, date)
			continue
		}
		if entry.Status == Unseen {
			if entry.LastProcessed != nil {
				entry.Status = FullyProcessed
			} else {
				entry.Status = FlightsRecorded
			}
		}
	}
	for name, rec := range d.ProcessedFlights {
		if rec == nil {
			delete(d.ProcessedFlights, name)
		}
	}
}
