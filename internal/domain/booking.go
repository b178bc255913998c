package domain

import "time"

type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusPaid           BookingStatus = "PAID"
	BookingStatusPaymentFailed  BookingStatus = "PAYMENT_FAILED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPendingPayment: {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:      {BookingStatusPaid, BookingStatusPaymentFailed, BookingStatusCancelled},
	BookingStatusPaymentFailed:  {BookingStatusPaid, BookingStatusPaymentFailed, BookingStatusCancelled},
	BookingStatusPaid:           {BookingStatusCancelled},
}

// CanTransitionTo reports whether a booking in status s may move to next.
// CANCELLED is terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the booking still holds its seats.
func (s BookingStatus) Active() bool {
	return s != BookingStatusCancelled
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPendingPayment, BookingStatusConfirmed, BookingStatusPaid,
		BookingStatusPaymentFailed, BookingStatusCancelled:
		return true
	}
	return false
}

type TripType string

const (
	TripTypeOneWay    TripType = "ONE_WAY"
	TripTypeRoundTrip TripType = "ROUND_TRIP"
)

// Traveler is a person flying on a booking. The first traveler is the
// passenger who owns the booking unless co-travellers were listed explicitly.
type Traveler struct {
	FullName         string
	Age              int
	Gender           string
	SeatNumber       int
	ReturnSeatNumber int
}

type Booking struct {
	ID               int64
	Reference        string
	PassengerID      int64
	FlightID         int64
	ReturnFlightID   *int64
	TripType         TripType
	SeatNumber       int
	ReturnSeatNumber int
	FarePaidCents    int64
	Status           BookingStatus
	Travelers        []Traveler
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FlightIDs returns the legs of the booking, outbound first.
func (b *Booking) FlightIDs() []int64 {
	ids := []int64{b.FlightID}
	if b.ReturnFlightID != nil {
		ids = append(ids, *b.ReturnFlightID)
	}
	return ids
}

// SeatsOn returns the seats the booking holds on the given flight.
func (b *Booking) SeatsOn(flightID int64) []int {
	var seats []int
	for _, t := range b.Travelers {
		switch {
		case flightID == b.FlightID:
			seats = append(seats, t.SeatNumber)
		case b.ReturnFlightID != nil && flightID == *b.ReturnFlightID:
			seats = append(seats, t.ReturnSeatNumber)
		}
	}
	return seats
}
