package api

import (
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/pricing"
	"github.com/Domenick1991/flightsim/internal/service/flights"
)

// amount renders cents as a currency amount with two decimals.
func amount(cents int64) float64 {
	return float64(cents) / 100
}

type flightResponse struct {
	ID             int64     `json:"id"`
	FlightNumber   string    `json:"flight_number"`
	Airline        string    `json:"airline"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	Departure      time.Time `json:"departure"`
	Arrival        time.Time `json:"arrival"`
	DurationMin    int       `json:"duration_minutes"`
	BaseFare       float64   `json:"base_fare"`
	DynamicPrice   *float64  `json:"dynamic_price,omitempty"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
}

func newFlightResponse(f domain.Flight) flightResponse {
	return flightResponse{
		ID:             f.ID,
		FlightNumber:   f.FlightNumber,
		Airline:        f.Airline,
		Origin:         f.FromAirport,
		Destination:    f.ToAirport,
		Departure:      f.DepartureTime,
		Arrival:        f.ArrivalTime,
		DurationMin:    int(f.Duration().Minutes()),
		BaseFare:       amount(f.BaseFareCents),
		TotalSeats:     f.TotalSeats,
		AvailableSeats: f.AvailableSeats,
	}
}

func newFlightViews(views []flights.FlightView) []flightResponse {
	out := make([]flightResponse, len(views))
	for i, v := range views {
		out[i] = newFlightResponse(v.Flight)
		price := amount(v.DynamicPriceCents)
		out[i].DynamicPrice = &price
	}
	return out
}

type priceResponse struct {
	FlightID       int64           `json:"flight_id"`
	FlightNumber   string          `json:"flight_number"`
	DynamicPrice   float64         `json:"dynamic_price"`
	BaseFare       float64         `json:"base_fare"`
	AvailableSeats int             `json:"available_seats"`
	Factors        pricing.Factors `json:"factors"`
}

type seatMapResponse struct {
	FlightID             int64 `json:"flight_id"`
	TotalSeats           int   `json:"total_seats"`
	AvailableSeats       int   `json:"available_seats"`
	AvailableSeatNumbers []int `json:"available_seat_numbers"`
}

type fareSampleResponse struct {
	Price      float64   `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}

type passengerResponse struct {
	ID       int64  `json:"passenger_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

func newPassengerResponse(p *domain.Passenger) passengerResponse {
	return passengerResponse{ID: p.ID, FullName: p.FullName, Email: p.Email, Phone: p.Phone}
}

type travelerResponse struct {
	FullName         string `json:"full_name"`
	Age              int    `json:"age,omitempty"`
	Gender           string `json:"gender,omitempty"`
	SeatNumber       int    `json:"seat_number"`
	ReturnSeatNumber int    `json:"return_seat_number,omitempty"`
}

type bookingResponse struct {
	ID               int64              `json:"booking_id"`
	Reference        string             `json:"pnr"`
	PassengerID      int64              `json:"passenger_id"`
	FlightID         int64              `json:"flight_id"`
	ReturnFlightID   *int64             `json:"return_flight_id,omitempty"`
	TripType         string             `json:"trip_type"`
	SeatNumber       int                `json:"seat_number"`
	ReturnSeatNumber int                `json:"return_seat_number,omitempty"`
	FarePaid         float64            `json:"fare_paid"`
	Status           string             `json:"status"`
	Travelers        []travelerResponse `json:"travelers"`
	BookedAt         time.Time          `json:"booking_date"`
}

func newBookingResponse(b *domain.Booking) bookingResponse {
	travelers := make([]travelerResponse, len(b.Travelers))
	for i, t := range b.Travelers {
		travelers[i] = travelerResponse{
			FullName:         t.FullName,
			Age:              t.Age,
			Gender:           t.Gender,
			SeatNumber:       t.SeatNumber,
			ReturnSeatNumber: t.ReturnSeatNumber,
		}
	}
	return bookingResponse{
		ID:               b.ID,
		Reference:        b.Reference,
		PassengerID:      b.PassengerID,
		FlightID:         b.FlightID,
		ReturnFlightID:   b.ReturnFlightID,
		TripType:         string(b.TripType),
		SeatNumber:       b.SeatNumber,
		ReturnSeatNumber: b.ReturnSeatNumber,
		FarePaid:         amount(b.FarePaidCents),
		Status:           string(b.Status),
		Travelers:        travelers,
		BookedAt:         b.CreatedAt,
	}
}

type paymentResponse struct {
	Booking bookingResponse `json:"booking"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
}

type cancelResponse struct {
	Booking          bookingResponse `json:"booking"`
	AlreadyCancelled bool            `json:"already_cancelled"`
}
