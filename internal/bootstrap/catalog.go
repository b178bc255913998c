package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/flightsim/config"
	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/service/passengers"
)

// FlightAdder accepts catalog flights. *repository.MemoryStore satisfies it.
type FlightAdder interface {
	AddFlight(f domain.Flight) (domain.Flight, error)
}

// SeedCatalog loads the configured flights and demo passengers. Departure
// offsets are relative to now. Passengers that already exist are skipped.
func SeedCatalog(ctx context.Context, cat config.CatalogConfig, flightsDst FlightAdder, passengerSvc passengers.PassengerUseCase, now time.Time) error {
	for i, seed := range cat.Flights {
		available := seed.TotalSeats
		if seed.AvailableSeats != nil {
			available = *seed.AvailableSeats
		}
		departure := now.Add(time.Duration(seed.DepartsInHours) * time.Hour).Truncate(time.Minute)
		_, err := flightsDst.AddFlight(domain.Flight{
			FlightNumber:   seed.FlightNumber,
			Airline:        seed.Airline,
			FromAirport:    seed.From,
			ToAirport:      seed.To,
			DepartureTime:  departure,
			ArrivalTime:    departure.Add(time.Duration(seed.DurationMinutes) * time.Minute),
			BaseFareCents:  seed.BaseFareCents,
			TotalSeats:     seed.TotalSeats,
			AvailableSeats: available,
		})
		if err != nil {
			return fmt.Errorf("seed flight %d (%s): %w", i, seed.FlightNumber, err)
		}
	}

	for _, seed := range cat.Passengers {
		_, err := passengerSvc.Register(ctx, passengers.RegisterInput{
			FullName: seed.FullName,
			Email:    seed.Email,
			Phone:    seed.Phone,
			Password: seed.Password,
		})
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("seed passenger %s: %w", seed.Email, err)
		}
	}
	return nil
}
