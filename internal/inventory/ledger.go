// Package inventory owns the available-seat counter of every flight. Nothing
// else in the module writes it.
package inventory

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/random"
	"github.com/Domenick1991/flightsim/internal/repository"
)

type PerturbPolicy string

const (
	// PolicyExclusive applies at most one of drop or restock per call. The
	// restock draw only happens when the drop branch was not taken.
	PolicyExclusive PerturbPolicy = "exclusive"
	// PolicyIndependent draws drop and restock separately; both may apply.
	PolicyIndependent PerturbPolicy = "independent"
)

const (
	DefaultDropProbability    = 0.12
	DefaultRestockProbability = 0.04
	DefaultMaxDrop            = 3
	DefaultMaxRestock         = 2
)

type Ledger struct {
	rnd        random.Source
	policy     PerturbPolicy
	pDrop      float64
	pRestock   float64
	maxDrop    int
	maxRestock int
}

type Option func(*Ledger)

func WithRandom(src random.Source) Option {
	return func(l *Ledger) {
		if src != nil {
			l.rnd = src
		}
	}
}

func WithPolicy(p PerturbPolicy) Option {
	return func(l *Ledger) {
		if p != "" {
			l.policy = p
		}
	}
}

// WithDrift overrides the market drift probabilities and step sizes.
func WithDrift(pDrop, pRestock float64, maxDrop, maxRestock int) Option {
	return func(l *Ledger) {
		l.pDrop, l.pRestock = pDrop, pRestock
		if maxDrop > 0 {
			l.maxDrop = maxDrop
		}
		if maxRestock > 0 {
			l.maxRestock = maxRestock
		}
	}
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		rnd:        random.Default,
		policy:     PolicyExclusive,
		pDrop:      DefaultDropProbability,
		pRestock:   DefaultRestockProbability,
		maxDrop:    DefaultMaxDrop,
		maxRestock: DefaultMaxRestock,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock returns the flight with an exclusive lock held until tx ends.
func (l *Ledger) Lock(ctx context.Context, tx repository.Tx, flightID int64) (*domain.Flight, error) {
	return tx.GetFlightForUpdate(ctx, flightID)
}

type SeatRequest struct {
	// Seat is the requested seat number, zero to let the ledger assign one.
	Seat int
	// Taken lists seats already held on the flight.
	Taken map[int]bool
}

// Reserve takes one seat from a locked flight. It fails with
// domain.ErrUnavailable and leaves the counter alone when nothing is left.
func (l *Ledger) Reserve(ctx context.Context, tx repository.Tx, f *domain.Flight, req SeatRequest) (int, error) {
	if f.AvailableSeats <= 0 {
		return 0, fmt.Errorf("flight %d: %w", f.ID, domain.ErrUnavailable)
	}

	seat := req.Seat
	if seat != 0 {
		if seat < 1 || seat > f.TotalSeats {
			return 0, fmt.Errorf("seat %d outside 1..%d: %w", seat, f.TotalSeats, domain.ErrInvalidInput)
		}
	} else {
		seat = l.assignSeat(f.TotalSeats, req.Taken)
	}

	next := f.AvailableSeats - 1
	if err := tx.UpdateAvailableSeats(ctx, f.ID, next); err != nil {
		return 0, fmt.Errorf("reserve seat on flight %d: %w", f.ID, err)
	}
	f.AvailableSeats = next
	return seat, nil
}

func (l *Ledger) assignSeat(total int, taken map[int]bool) int {
	if len(taken) < total {
		free := make([]int, 0, total-len(taken))
		for seat := 1; seat <= total; seat++ {
			if !taken[seat] {
				free = append(free, seat)
			}
		}
		if len(free) > 0 {
			return free[l.rnd.IntN(len(free))]
		}
	}
	return random.Between(l.rnd, 1, total)
}

// Release returns one seat to a locked flight, never above capacity.
func (l *Ledger) Release(ctx context.Context, tx repository.Tx, f *domain.Flight) error {
	next := min(f.TotalSeats, f.AvailableSeats+1)
	if next == f.AvailableSeats {
		return nil
	}
	if err := tx.UpdateAvailableSeats(ctx, f.ID, next); err != nil {
		return fmt.Errorf("release seat on flight %d: %w", f.ID, err)
	}
	f.AvailableSeats = next
	return nil
}

type Drift struct {
	Before int
	After  int
}

func (d Drift) Delta() int   { return d.After - d.Before }
func (d Drift) Changed() bool { return d.After != d.Before }

// Perturb applies one step of simulated outside demand to a locked flight.
func (l *Ledger) Perturb(ctx context.Context, tx repository.Tx, f *domain.Flight) (Drift, error) {
	total := f.TotalSeats
	avail := f.AvailableSeats
	d := Drift{Before: avail}

	drop := func() { avail -= random.Between(l.rnd, 1, min(l.maxDrop, avail)) }
	restock := func() { avail += random.Between(l.rnd, 1, min(l.maxRestock, total-avail)) }

	switch l.policy {
	case PolicyIndependent:
		if l.rnd.Float64() < l.pDrop && avail > 0 {
			drop()
		}
		if l.rnd.Float64() < l.pRestock && avail < total {
			restock()
		}
	default:
		if l.rnd.Float64() < l.pDrop && avail > 0 {
			drop()
		} else if l.rnd.Float64() < l.pRestock && avail < total {
			restock()
		}
	}

	d.After = avail
	if !d.Changed() {
		return d, nil
	}
	if err := tx.UpdateAvailableSeats(ctx, f.ID, avail); err != nil {
		return Drift{Before: d.Before, After: d.Before}, fmt.Errorf("perturb flight %d: %w", f.ID, err)
	}
	f.AvailableSeats = avail
	return d, nil
}
