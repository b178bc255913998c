package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, reference, passenger_id, flight_id, return_flight_id, trip_type, seat_number,
	return_seat_number, fare_paid_cents, status, created_at, updated_at`

type PGBookingRepository struct {
	db querier
}

func NewBookingRepository(db DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

func scanBooking(row scanner) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.Reference, &b.PassengerID, &b.FlightID, &b.ReturnFlightID, &b.TripType, &b.SeatNumber,
		&b.ReturnSeatNumber, &b.FarePaidCents, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// loadTravelers fills Travelers for every booking in one query.
func loadTravelers(ctx context.Context, q querier, bookings ...*domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Booking, len(bookings))
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	rows, err := q.Query(ctx, `SELECT booking_id, full_name, age, gender, seat_number, return_seat_number
		FROM booking_travelers WHERE booking_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			bookingID int64
			t         domain.Traveler
		)
		if err := rows.Scan(&bookingID, &t.FullName, &t.Age, &t.Gender, &t.SeatNumber, &t.ReturnSeatNumber); err != nil {
			return err
		}
		b := byID[bookingID]
		b.Travelers = append(b.Travelers, t)
	}
	return rows.Err()
}

func insertBooking(ctx context.Context, tx pgx.Tx, b *domain.Booking) error {
	if err := tx.QueryRow(ctx, `INSERT INTO bookings (reference, passenger_id, flight_id, return_flight_id, trip_type,
			seat_number, return_seat_number, fare_paid_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		b.Reference, b.PassengerID, b.FlightID, b.ReturnFlightID, b.TripType,
		b.SeatNumber, b.ReturnSeatNumber, b.FarePaidCents, b.Status).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return mapErr(err)
	}

	batch := &pgx.Batch{}
	for _, t := range b.Travelers {
		batch.Queue(`INSERT INTO booking_travelers (booking_id, full_name, age, gender, seat_number, return_seat_number)
			VALUES ($1, $2, $3, $4, $5, $6)`, b.ID, t.FullName, t.Age, t.Gender, t.SeatNumber, t.ReturnSeatNumber)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1`, reference))
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", reference, mapErr(err))
	}
	if err := loadTravelers(ctx, r.db, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) List(ctx context.Context, passengerID *int64) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE $1::bigint IS NULL OR passenger_id = $1 ORDER BY id`, passengerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	refs := make([]*domain.Booking, len(bookings))
	for i := range bookings {
		refs[i] = &bookings[i]
	}
	if err := loadTravelers(ctx, r.db, refs...); err != nil {
		return nil, err
	}
	return bookings, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
