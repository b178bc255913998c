package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PGStore runs transactions against PostgreSQL. Row locks are taken with
// SELECT ... FOR UPDATE and savepoints with nested pgx transactions.
type PGStore struct {
	db         DB
	flights    FlightRepository
	bookings   BookingRepository
	passengers PassengerRepository
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{
		db:         db,
		flights:    NewFlightRepository(db),
		bookings:   NewBookingRepository(db),
		passengers: NewPassengerRepository(db),
	}
}

func (s *PGStore) Flights() FlightRepository       { return s.flights }
func (s *PGStore) Bookings() BookingRepository     { return s.bookings }
func (s *PGStore) Passengers() PassengerRepository { return s.passengers }

func (s *PGStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapErr(err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) GetFlightForUpdate(ctx context.Context, id int64) (*domain.Flight, error) {
	f, err := scanFlight(t.tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("flight %d: %w", id, mapErr(err))
	}
	return f, nil
}

func (t *pgTx) ListFlightsForUpdate(ctx context.Context) ([]domain.Flight, error) {
	return queryFlights(ctx, t.tx, `SELECT `+flightColumns+` FROM flights ORDER BY id FOR UPDATE`)
}

func (t *pgTx) UpdateAvailableSeats(ctx context.Context, flightID int64, available int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE flights SET available_seats=$2, updated_at=now() WHERE id=$1`, flightID, available)
	if err != nil {
		return fmt.Errorf("flight %d: %w", flightID, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("flight %d: %w", flightID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetPassenger(ctx context.Context, id int64) (*domain.Passenger, error) {
	p, err := scanPassenger(t.tx.QueryRow(ctx, `SELECT `+passengerColumns+` FROM passengers WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("passenger %d: %w", id, mapErr(err))
	}
	return p, nil
}

func (t *pgTx) TakenSeats(ctx context.Context, flightID int64) (map[int]bool, error) {
	return takenSeats(ctx, t.tx, flightID)
}

func (t *pgTx) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE reference=$1)`, reference).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertBooking(ctx context.Context, booking *domain.Booking) error {
	if err := insertBooking(ctx, t.tx, booking); err != nil {
		return fmt.Errorf("insert booking %s: %w", booking.Reference, err)
	}
	return nil
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, reference string) (*domain.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1 FOR UPDATE`, reference))
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", reference, mapErr(err))
	}
	if err := loadTravelers(ctx, t.tx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bookings SET status=$2, updated_at=now() WHERE id=$1`, bookingID, status)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %d: %w", bookingID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) AppendFareSample(ctx context.Context, sample *domain.FareSample) error {
	return t.tx.QueryRow(ctx, `INSERT INTO fare_history (flight_id, price_cents, recorded_at)
		VALUES ($1, $2, COALESCE($3, now())) RETURNING id, recorded_at`,
		sample.FlightID, sample.PriceCents, nullTime(sample)).Scan(&sample.ID, &sample.RecordedAt)
}

func nullTime(sample *domain.FareSample) any {
	if sample.RecordedAt.IsZero() {
		return nil
	}
	return sample.RecordedAt
}

func (t *pgTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: sp}); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

var _ Store = (*PGStore)(nil)
