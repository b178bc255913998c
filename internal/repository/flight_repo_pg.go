package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightsim/internal/domain"
)

const flightColumns = `id, flight_number, airline, from_airport, to_airport, departure_time, arrival_time,
	base_fare_cents, total_seats, available_seats, created_at, updated_at`

type PGFlightRepository struct {
	db querier
}

func NewFlightRepository(db DB) FlightRepository {
	return &PGFlightRepository{db: db}
}

func scanFlight(row scanner) (*domain.Flight, error) {
	var f domain.Flight
	if err := row.Scan(&f.ID, &f.FlightNumber, &f.Airline, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime,
		&f.BaseFareCents, &f.TotalSeats, &f.AvailableSeats, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func queryFlights(ctx context.Context, q querier, sql string, args ...any) ([]domain.Flight, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}

func (r *PGFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	return queryFlights(ctx, r.db, `SELECT `+flightColumns+` FROM flights ORDER BY departure_time, id`)
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	f, err := scanFlight(r.db.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("flight %d: %w", id, mapErr(err))
	}
	return f, nil
}

const takenSeatsSQL = `
	SELECT t.seat_number FROM booking_travelers t
	JOIN bookings b ON b.id = t.booking_id
	WHERE b.flight_id = $1 AND b.status <> 'CANCELLED'
	UNION
	SELECT t.return_seat_number FROM booking_travelers t
	JOIN bookings b ON b.id = t.booking_id
	WHERE b.return_flight_id = $1 AND b.status <> 'CANCELLED' AND t.return_seat_number > 0`

func takenSeats(ctx context.Context, q querier, flightID int64) (map[int]bool, error) {
	rows, err := q.Query(ctx, takenSeatsSQL, flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[int]bool)
	for rows.Next() {
		var seat int
		if err := rows.Scan(&seat); err != nil {
			return nil, err
		}
		taken[seat] = true
	}
	return taken, rows.Err()
}

func (r *PGFlightRepository) TakenSeats(ctx context.Context, flightID int64) (map[int]bool, error) {
	return takenSeats(ctx, r.db, flightID)
}

func (r *PGFlightRepository) FareHistory(ctx context.Context, flightID int64, limit int) ([]domain.FareSample, error) {
	rows, err := r.db.Query(ctx, `SELECT id, flight_id, price_cents, recorded_at FROM fare_history
		WHERE flight_id=$1 ORDER BY recorded_at DESC, id DESC LIMIT $2`, flightID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.FareSample, 0)
	for rows.Next() {
		var s domain.FareSample
		if err := rows.Scan(&s.ID, &s.FlightID, &s.PriceCents, &s.RecordedAt); err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	return history, rows.Err()
}

var _ FlightRepository = (*PGFlightRepository)(nil)
