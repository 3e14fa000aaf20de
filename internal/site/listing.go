package site

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"olcsync/internal/flight"
	"olcsync/internal/logging"
)

// row is a listing entry before detail resolution.
type row struct {
	ID       string
	Date     string
	Pilot    string
	Airport  string
	Score    *float64
	Distance *float64
	Speed    *float64
	Aircraft string
	// InfoURL is the detail page; derived from ID when the listing has none.
	InfoURL string
}

type airfieldRequest struct {
	Q      string `json:"q"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type airfieldResponse struct {
	Result []airfieldRow `json:"result"`
	Count  *int          `json:"count"`
}

type airfieldRow struct {
	ID       flexString `json:"id"`
	Points   flexString `json:"points"`
	Distance flexString `json:"distance"`
	Speed    flexString `json:"speed"`
	Plane    flexString `json:"plane"`
	Date     flexString `json:"date"`
	Pilot    pilotName  `json:"pilot"`
}

// flexString accepts JSON strings, numbers, booleans and null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		*f = flexString(string(data))
	}
	return nil
}

// pilotName accepts either {"firstName","surName"} or a plain string.
type pilotName string

func (p *pilotName) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			FirstName string `json:"firstName"`
			SurName   string `json:"surName"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*p = pilotName(strings.TrimSpace(strings.TrimSpace(obj.FirstName) + " " + strings.TrimSpace(obj.SurName)))
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = pilotName(s)
	return nil
}

// listAirfield pages through the airfield JSON endpoint until the reported
// total is reached.
func (a *Adapter) listAirfield(ctx context.Context, airport, year string) ([]row, error) {
	endpoint := a.resolve(airfieldPath, url.Values{
		"aa": {airport},
		"st": {"olcp"},
		"rt": {"olc"},
		"c":  {"C0"},
		"sc": {""},
		"sp": {year},
	})
	logger := logging.WithContext(ctx, a.logger)

	var rows []row
	offset, total := 0, -1
	for total < 0 || offset < total {
		limit := BatchSize
		if total >= 0 {
			limit = min(BatchSize, total-offset)
		}
		page, err := a.fetchAirfieldPage(ctx, endpoint, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}
		if page.Count != nil {
			total = *page.Count
		} else if total < 0 {
			total = len(page.Result)
		}
		logger.Debug("listing batch",
			logging.Int("offset", offset),
			logging.Int("rows", len(page.Result)),
			logging.Int("total", total),
		)
		for _, r := range page.Result {
			rows = append(rows, a.airfieldRowToRow(r, airport))
		}
		if len(page.Result) == 0 {
			break
		}
		offset += len(page.Result)
	}
	return rows, nil
}

func (a *Adapter) fetchAirfieldPage(ctx context.Context, endpoint *url.URL, offset, limit int) (airfieldResponse, error) {
	payload, err := json.Marshal(airfieldRequest{Q: "ds", Offset: offset, Limit: limit})
	if err != nil {
		return airfieldResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return airfieldResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", a.base.Scheme+"://"+a.base.Host)
	req.Header.Set("Referer", endpoint.String())

	body, _, err := a.fetch(ctx, req)
	if err != nil {
		return airfieldResponse{}, err
	}
	var page airfieldResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return airfieldResponse{}, fmt.Errorf("decode listing: %w", err)
	}
	return page, nil
}

func (a *Adapter) airfieldRowToRow(r airfieldRow, airport string) row {
	pilot := string(r.Pilot)
	if pilot == "" {
		pilot = flight.UnknownPilot
	}
	id := string(r.ID)
	return row{
		ID:       id,
		Date:     flight.NormalizeDate(string(r.Date)),
		Pilot:    pilot,
		Airport:  "Airport " + airport,
		Score:    flight.ParseNumber(string(r.Points)),
		Distance: flight.ParseNumber(string(r.Distance)),
		Speed:    flight.ParseNumber(string(r.Speed)),
		Aircraft: string(r.Plane),
		InfoURL:  a.detailURL(id),
	}
}

func (a *Adapter) detailURL(id string) string {
	return a.resolve(flightInfoPath, url.Values{"dsId": {id}}).String()
}
