package domain

import "time"

type Flight struct {
	ID             int64
	FlightNumber   string
	Airline        string
	FromAirport    string
	ToAirport      string
	DepartureTime  time.Time
	ArrivalTime    time.Time
	BaseFareCents  int64
	TotalSeats     int
	AvailableSeats int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (f Flight) Duration() time.Duration {
	return f.ArrivalTime.Sub(f.DepartureTime)
}

// FareSample is one observed price of a flight. Samples are never updated.
type FareSample struct {
	ID         int64
	FlightID   int64
	PriceCents int64
	RecordedAt time.Time
}
