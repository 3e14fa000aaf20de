package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"olcsync/internal/metadata"
)

// Flight is one catalog row.
type Flight struct {
	Scope          string
	ID             string
	LegacyFlightID string
	Year           string
	Date           string
	Pilot          string
	Airport        string
	Aircraft       string
	Score          *float64
	Distance       *float64
	Speed          *float64
	Filename       string
	Status         string
	DownloadedAt   time.Time
	UpdatedAt      time.Time
}

// FlightFromRecord projects a metadata record into a catalog row.
func FlightFromRecord(scope, year string, rec metadata.Record) Flight {
	return Flight{
		Scope:          scope,
		ID:             rec.ID,
		LegacyFlightID: rec.LegacyFlightID,
		Year:           year,
		Date:           rec.Date,
		Pilot:          rec.Pilot,
		Airport:        rec.Airport,
		Aircraft:       rec.Aircraft,
		Score:          rec.Score,
		Distance:       rec.Distance,
		Speed:          rec.Speed,
		Filename:       rec.Filename,
		Status:         string(rec.Status),
		DownloadedAt:   rec.DownloadedAt,
	}
}

const flightColumns = "scope, dataset_id, legacy_flight_id, year, flight_date, pilot, airport, aircraft, score, distance_km, speed_kmh, filename, status, downloaded_at, updated_at"

const upsertFlightSQL = `INSERT INTO flights (` + flightColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(scope, dataset_id) DO UPDATE SET
    legacy_flight_id = excluded.legacy_flight_id,
    year = excluded.year,
    flight_date = excluded.flight_date,
    pilot = excluded.pilot,
    airport = excluded.airport,
    aircraft = excluded.aircraft,
    score = excluded.score,
    distance_km = excluded.distance_km,
    speed_kmh = excluded.speed_kmh,
    filename = excluded.filename,
    status = excluded.status,
    downloaded_at = excluded.downloaded_at,
    updated_at = excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertFlight(ctx context.Context, ex execer, f Flight) error {
	if f.Scope == "" || f.ID == "" {
		return fmt.Errorf("catalog flight requires scope and id")
	}
	_, err := ex.ExecContext(ctx, upsertFlightSQL,
		f.Scope, f.ID, f.LegacyFlightID, f.Year, f.Date, f.Pilot, f.Airport, f.Aircraft,
		nullableFloat(f.Score), nullableFloat(f.Distance), nullableFloat(f.Speed),
		f.Filename, f.Status, formatTime(f.DownloadedAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert flight %s/%s: %w", f.Scope, f.ID, err)
	}
	return nil
}

// UpsertFlight inserts or replaces one flight.
func (s *Store) UpsertFlight(ctx context.Context, f Flight) error {
	return upsertFlight(ctx, s.db, f)
}

// UpsertFlights writes flights in one transaction.
func (s *Store) UpsertFlights(ctx context.Context, flights []Flight) error {
	if len(flights) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flights tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, f := range flights {
		if err := upsertFlight(ctx, tx, f); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flights: %w", err)
	}
	return nil
}

// FlightQuery filters Flights. Empty fields match everything.
type FlightQuery struct {
	Scope string
	Year  string
	// Pilot matches case-insensitively as a substring.
	Pilot    string
	MinScore *float64
	Limit    int
}

// Flights returns matching rows, best score first.
func (s *Store) Flights(ctx context.Context, q FlightQuery) ([]Flight, error) {
	var (
		where []string
		args  []any
	)
	if q.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, q.Scope)
	}
	if q.Year != "" {
		where = append(where, "year = ?")
		args = append(args, q.Year)
	}
	if q.Pilot != "" {
		where = append(where, "LOWER(pilot) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Pilot)+"%")
	}
	if q.MinScore != nil {
		where = append(where, "score >= ?")
		args = append(args, *q.MinScore)
	}
	query := "SELECT " + flightColumns + " FROM flights"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY score IS NULL, score DESC, flight_date DESC, dataset_id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer rows.Close()

	var out []Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FlightCounts returns the number of flights per status for scope.
func (s *Store) FlightCounts(ctx context.Context, scope string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM flights WHERE scope = ? GROUP BY status`, scope)
	if err != nil {
		return nil, fmt.Errorf("flight counts: %w", err)
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanFlight(scanner interface{ Scan(dest ...any) error }) (Flight, error) {
	var (
		f          Flight
		legacy     sql.NullString
		date       sql.NullString
		pilot      sql.NullString
		airport    sql.NullString
		aircraft   sql.NullString
		score      sql.NullFloat64
		distance   sql.NullFloat64
		speed      sql.NullFloat64
		downloaded sql.NullString
		updated    sql.NullString
	)
	if err := scanner.Scan(&f.Scope, &f.ID, &legacy, &f.Year, &date, &pilot, &airport, &aircraft,
		&score, &distance, &speed, &f.Filename, &f.Status, &downloaded, &updated); err != nil {
		return Flight{}, fmt.Errorf("scan flight: %w", err)
	}
	f.LegacyFlightID = legacy.String
	f.Date = date.String
	f.Pilot = pilot.String
	f.Airport = airport.String
	f.Aircraft = aircraft.String
	f.Score = floatPtr(score)
	f.Distance = floatPtr(distance)
	f.Speed = floatPtr(speed)
	f.DownloadedAt = parseTime(downloaded)
	f.UpdatedAt = parseTime(updated)
	return f, nil
}
