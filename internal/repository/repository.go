package repository

import (
	"context"

	"github.com/Domenick1991/flightsim/internal/domain"
)

// TxRunner runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on panic.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view used by the booking state machine, the
// inventory ledger and the market simulator. Methods ending in ForUpdate
// take an exclusive row lock held until the transaction ends. Flights are
// always locked in ascending id order.
type Tx interface {
	GetFlightForUpdate(ctx context.Context, id int64) (*domain.Flight, error)
	ListFlightsForUpdate(ctx context.Context) ([]domain.Flight, error)
	UpdateAvailableSeats(ctx context.Context, flightID int64, available int) error

	GetPassenger(ctx context.Context, id int64) (*domain.Passenger, error)

	// TakenSeats returns the seats held on a flight by bookings that are not
	// cancelled.
	TakenSeats(ctx context.Context, flightID int64) (map[int]bool, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	InsertBooking(ctx context.Context, booking *domain.Booking) error
	GetBookingForUpdate(ctx context.Context, reference string) (*domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error

	AppendFareSample(ctx context.Context, sample *domain.FareSample) error

	// Savepoint runs fn in a nested scope. An error from fn undoes only the
	// writes made inside that scope.
	Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type FlightRepository interface {
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	TakenSeats(ctx context.Context, flightID int64) (map[int]bool, error)
	// FareHistory returns up to limit samples, newest first.
	FareHistory(ctx context.Context, flightID int64, limit int) ([]domain.FareSample, error)
}

type BookingRepository interface {
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	// List returns every booking, or only the passenger's when passengerID is set.
	List(ctx context.Context, passengerID *int64) ([]domain.Booking, error)
}

type PassengerRepository interface {
	Create(ctx context.Context, passenger *domain.Passenger) error
	GetByID(ctx context.Context, id int64) (*domain.Passenger, error)
	GetByEmail(ctx context.Context, email string) (*domain.Passenger, error)
}

// Store bundles everything a process needs from persistence.
type Store interface {
	TxRunner
	Flights() FlightRepository
	Bookings() BookingRepository
	Passengers() PassengerRepository
}
