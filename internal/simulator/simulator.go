// Package simulator drives the market: every tick it nudges the seat counter
// of each flight and records a fresh fare sample.
package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/inventory"
	"github.com/Domenick1991/flightsim/internal/pricing"
	"github.com/Domenick1991/flightsim/internal/repository"
	"go.uber.org/zap"
)

// Invalidator drops cached flight listings after a tick.
type Invalidator interface {
	InvalidateFlights(ctx context.Context) error
}

type TickReport struct {
	Flights int
	Changed int
	Failed  int
	Samples int
}

type Simulator struct {
	store  repository.TxRunner
	ledger *inventory.Ledger
	engine *pricing.Engine
	cache  Invalidator
	now    func() time.Time
	log    *zap.Logger
}

type Option func(*Simulator)

func WithCache(c Invalidator) Option {
	return func(s *Simulator) { s.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store repository.TxRunner, ledger *inventory.Ledger, engine *pricing.Engine, opts ...Option) *Simulator {
	s := &Simulator{
		store:  store,
		ledger: ledger,
		engine: engine,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick perturbs every flight in one transaction. A flight that fails is
// rolled back on its own and the rest of the batch still commits.
func (s *Simulator) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		report = TickReport{}
		flights, err := tx.ListFlightsForUpdate(ctx)
		if err != nil {
			return fmt.Errorf("list flights: %w", err)
		}
		report.Flights = len(flights)

		for i := range flights {
			f := &flights[i]
			var drift inventory.Drift
			err := tx.Savepoint(ctx, func(ctx context.Context, tx repository.Tx) error {
				var err error
				drift, err = s.ledger.Perturb(ctx, tx, f)
				if err != nil {
					return err
				}
				return tx.AppendFareSample(ctx, &domain.FareSample{
					FlightID:   f.ID,
					PriceCents: s.engine.Quote(pricing.FlightInput(*f)),
					RecordedAt: s.now(),
				})
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				report.Failed++
				s.log.Warn("market tick skipped flight", zap.Int64("flight_id", f.ID), zap.Error(err))
				continue
			}
			report.Samples++
			if drift.Changed() {
				report.Changed++
			}
		}
		return nil
	})
	if err != nil {
		return TickReport{}, err
	}

	if s.cache != nil && report.Changed > 0 {
		if err := s.cache.InvalidateFlights(ctx); err != nil {
			s.log.Warn("invalidate flights cache", zap.Error(err))
		}
	}
	return report, nil
}
