package state

import (
	"slices"
	"time"
)

// Summary condenses the ledger for display.
type Summary struct {
	Scope          string
	Flights        int
	Dates          int
	FullyProcessed int
	LastUpdated    *time.Time
	CreatedAt      time.Time
}

// DateInfo is one row of RecentDates.
type DateInfo struct {
	Date          string
	Flights       int
	Status        DateStatus
	LastProcessed *time.Time
	Flags         []string
}

// Summary returns ledger totals.
func (s *Store) Summary() Summary {
	sum := Summary{
		Scope:       s.doc.Scope,
		Flights:     len(s.doc.ProcessedFlights),
		Dates:       len(s.doc.ProcessedDates),
		LastUpdated: s.doc.LastUpdated,
		CreatedAt:   s.doc.Metadata.CreatedAt,
	}
	for _, entry := range s.doc.ProcessedDates {
		if entry.Status == FullyProcessed {
			sum.FullyProcessed++
		}
	}
	return sum
}

// RecentDates returns up to n dates, newest first.
func (s *Store) RecentDates(n int) []DateInfo {
	dates := make([]string, 0, len(s.doc.ProcessedDates))
	for date := range s.doc.ProcessedDates {
		dates = append(dates, date)
	}
	slices.Sort(dates)
	slices.Reverse(dates)
	if n > 0 && len(dates) > n {
		dates = dates[:n]
	}
	out := make([]DateInfo, 0, len(dates))
	for _, date := range dates {
		entry := s.doc.ProcessedDates[date]
		info := DateInfo{
			Date:          date,
			Flights:       len(entry.Flights),
			Status:        entry.Status,
			LastProcessed: entry.LastProcessed,
		}
		for flag, set := range entry.Flags {
			if set {
				info.Flags = append(info.Flags, flag)
			}
		}
		slices.Sort(info.Flags)
		out = append(out, info)
	}
	return out
}
