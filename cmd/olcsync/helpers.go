package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"olcsync/internal/flight"
)

// scopeFlags selects an airport or the pilot flightbook.
type scopeFlags struct {
	airport string
	pilot   bool
}

func (s *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.airport, "airport", "a", "", "Airport code (with --pilot: filter flightbook by airport name)")
	cmd.Flags().BoolVar(&s.pilot, "pilot", false, "Use the authenticated pilot's flightbook")
}

func (s *scopeFlags) scope() (flight.Scope, error) {
	airport := strings.TrimSpace(s.airport)
	switch {
	case s.pilot:
		return flight.PilotScope(airport), nil
	case airport != "":
		return flight.ParseAirportScope(airport)
	default:
		return flight.Scope{}, errors.New("choose a scope: --airport CODE or --pilot")
	}
}

// key is the on-disk scope name.
func (s *scopeFlags) key() (string, error) {
	scope, err := s.scope()
	if err != nil {
		return "", err
	}
	return scope.Key(), nil
}

// optionalFloat returns nil unless the flag was set.
func optionalFloat(cmd *cobra.Command, name string, value float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func validateYears(years []string) error {
	now := time.Now()
	for _, y := range years {
		if !flight.InRange(strings.TrimSpace(y), now) {
			return fmt.Errorf("unsupported year %q (supported: %d-%d)", y, flight.FirstYear, now.Year()+1)
		}
	}
	return nil
}

// normalizeScopeKey maps user input to the on-disk scope name.
func normalizeScopeKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, flight.PilotKey) {
		return strings.ToLower(value)
	}
	return flight.AirportScope(value).Key()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
