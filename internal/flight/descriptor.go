package flight

import (
	"fmt"
	"regexp"
	"strings"

	"olcsync/internal/services"
)

// UnknownPilot is used when the listing carries no usable pilot name.
const UnknownPilot = "Unknown"

// Descriptor describes one downloadable track log resolved from the listing
// and its detail page.
type Descriptor struct {
	// ID is the stable dataset identifier and the join key across stores.
	ID string
	// LegacyFlightID is the numeric id carried by the download link.
	LegacyFlightID string
	Year           string
	// Date is normalized to YYYY-MM-DD when the site value could be parsed.
	Date     string
	Pilot    string
	Airport  string
	Score    *float64
	Distance *float64
	Speed    *float64
	Aircraft string
	// DownloadURL and RefererURL are both required for the transfer.
	DownloadURL string
	RefererURL  string
}

// Filename returns the derived `{year}_{pilot}_{id}.igc` name.
func (d Descriptor) Filename() string {
	return Filename(d.Year, d.Pilot, d.ID)
}

// Resolved reports whether the descriptor carries everything a transfer needs.
func (d Descriptor) Resolved() bool {
	return d.ID != "" && d.DownloadURL != "" && d.RefererURL != ""
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s (%s)", d.Date, d.Pilot, d.ID)
}

// Scope selects which flights a run covers.
type Scope struct {
	// Airport is the site airfield code; empty selects the pilot flightbook.
	Airport string
	// PilotID is discovered after login when the scope is the flightbook.
	PilotID string
	// AirportFilter narrows flightbook rows by a case-insensitive substring.
	AirportFilter string
}

// airportCode is what the site accepts as an airfield code. The code also
// names directories, state files and bucket prefixes.
var airportCode = regexp.MustCompile(`^[A-Z0-9]+$`)

// AirportScope builds an all-public-flights scope. It does not validate
// code; use ParseAirportScope for user input.
func AirportScope(code string) Scope {
	return Scope{Airport: strings.ToUpper(strings.TrimSpace(code))}
}

// ParseAirportScope normalizes code and rejects anything but letters and
// digits with ErrConfiguration.
func ParseAirportScope(code string) (Scope, error) {
	scope := AirportScope(code)
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}

// Validate reports an airport code that is unsafe as a path component.
// The pilot scope is always valid.
func (s Scope) Validate() error {
	if s.IsPilot() || airportCode.MatchString(s.Airport) {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "flight", "scope",
		fmt.Sprintf("invalid airport code %q (letters and digits only)", s.Airport), nil)
}

// PilotScope builds a scope covering the authenticated pilot's flightbook.
func PilotScope(airportFilter string) Scope {
	return Scope{AirportFilter: strings.TrimSpace(airportFilter)}
}

// IsPilot reports whether the scope targets the authenticated pilot.
func (s Scope) IsPilot() bool {
	return s.Airport == ""
}

// PilotKey is the on-disk scope name of the personal flightbook.
const PilotKey = "pilot"

// Key names the scope on disk: the airport code or PilotKey.
func (s Scope) Key() string {
	if s.IsPilot() {
		return PilotKey
	}
	return s.Airport
}

func (s Scope) String() string {
	if s.IsPilot() {
		if s.AirportFilter != "" {
			return "pilot flightbook (" + s.AirportFilter + ")"
		}
		return "pilot flightbook"
	}
	return "airport " + s.Airport
}
