package metadata

import (
	"time"

	"olcsync/internal/flight"
)

// Status is the reconciliation result of one record.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusMissing    Status = "missing"
	StatusFailed     Status = "failed"
)

// Record is one flight's persisted attributes.
type Record struct {
	ID             string    `json:"dsid"`
	LegacyFlightID string    `json:"flight_id"`
	Date           string    `json:"date"`
	Pilot          string    `json:"pilot"`
	Airport        string    `json:"airport"`
	Score          *float64  `json:"points"`
	Filename       string    `json:"filename"`
	DownloadURL    string    `json:"download_url"`
	DownloadedAt   time.Time `json:"downloaded_at"`
	Status         Status    `json:"download_status"`
	Distance       *float64  `json:"distance"`
	Speed          *float64  `json:"speed"`
	Aircraft       string    `json:"aircraft,omitempty"`
}

// FromDescriptor builds a downloaded record for d.
func FromDescriptor(d flight.Descriptor, downloadedAt time.Time) Record {
	return Record{
		ID:             d.ID,
		LegacyFlightID: d.LegacyFlightID,
		Date:           d.Date,
		Pilot:          d.Pilot,
		Airport:        d.Airport,
		Score:          d.Score,
		Filename:       d.Filename(),
		DownloadURL:    d.DownloadURL,
		DownloadedAt:   downloadedAt,
		Status:         StatusDownloaded,
		Distance:       d.Distance,
		Speed:          d.Speed,
		Aircraft:       d.Aircraft,
	}
}

type document struct {
	Scope     string    `json:"scope"`
	Year      string    `json:"year"`
	UpdatedAt time.Time `json:"updated_at"`
	Flights   []Record  `json:"flights"`
}
