// Package pricing computes the dynamic fare of a flight from seat scarcity,
// time to departure, an external demand index and a fare tier.
package pricing

import (
	"math"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/random"
)

const (
	minDemand = 0.5
	maxDemand = 2.0

	maxTimeFactor      = 1.6
	departedTimeFactor = 1.5

	jitterLow  = 0.97
	jitterSpan = 0.09
)

type Input struct {
	BaseFareCents  int64
	AvailableSeats int
	TotalSeats     int
	Departure      time.Time
	// DemandIndex of zero is treated as not supplied and replaced by the
	// engine default; it is never clamped up to the 0.5 floor.
	DemandIndex float64
	// TierMultiplier of zero means "not supplied".
	TierMultiplier float64
}

// FlightInput prices f at its current seat count with the engine defaults.
func FlightInput(f domain.Flight) Input {
	return Input{
		BaseFareCents:  f.BaseFareCents,
		AvailableSeats: f.AvailableSeats,
		TotalSeats:     f.TotalSeats,
		Departure:      f.DepartureTime,
	}
}

// Factors is the decomposition of a single quote.
type Factors struct {
	SoldRatio       float64 `json:"sold_ratio"`
	SeatFactor      float64 `json:"seat_factor"`
	DaysToDeparture float64 `json:"days_to_departure"`
	TimeFactor      float64 `json:"time_factor"`
	Demand          float64 `json:"demand"`
	Tier            float64 `json:"tier"`
	Jitter          float64 `json:"jitter"`
}

type Engine struct {
	rnd            random.Source
	now            func() time.Time
	demandIndex    float64
	tierMultiplier float64
}

type Option func(*Engine)

func WithRandom(src random.Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.rnd = src
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDefaults sets the demand index and tier used when an Input leaves
// them unset.
func WithDefaults(demandIndex, tierMultiplier float64) Option {
	return func(e *Engine) {
		e.demandIndex = demandIndex
		e.tierMultiplier = tierMultiplier
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rnd:            random.Default,
		now:            time.Now,
		demandIndex:    1.0,
		tierMultiplier: 1.0,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Quote returns the price in cents. It never returns a negative value.
func (e *Engine) Quote(in Input) int64 {
	price, _ := e.Breakdown(in)
	return price
}

func (e *Engine) Breakdown(in Input) (int64, Factors) {
	total := in.TotalSeats
	if total < 1 {
		total = 1
	}
	available := min(max(in.AvailableSeats, 0), total)
	base := float64(max(in.BaseFareCents, 0))

	var f Factors
	f.SoldRatio = float64(total-available) / float64(total)
	f.SeatFactor = 1 + 0.6*f.SoldRatio

	f.DaysToDeparture = in.Departure.Sub(e.now()).Seconds() / 86400
	if f.DaysToDeparture <= 0 {
		f.TimeFactor = departedTimeFactor
	} else {
		f.TimeFactor = math.Min(maxTimeFactor, 1+(30/math.Max(1, f.DaysToDeparture))*0.05)
	}

	f.Demand = clampDemand(orDefault(in.DemandIndex, e.demandIndex))

	f.Tier = orDefault(in.TierMultiplier, e.tierMultiplier)
	if math.IsNaN(f.Tier) || math.IsInf(f.Tier, 0) || f.Tier <= 0 {
		f.Tier = 1
	}

	f.Jitter = jitterLow + e.rnd.Float64()*jitterSpan

	price := base * f.SeatFactor * f.TimeFactor * f.Demand * f.Tier * f.Jitter
	cents := int64(math.Round(price))
	if cents < 0 {
		cents = 0
	}
	return cents, f
}

func orDefault(v, def float64) float64 {
	if v == 0 || math.IsNaN(v) {
		if def == 0 || math.IsNaN(def) {
			return 1
		}
		return def
	}
	return v
}

func clampDemand(d float64) float64 {
	return math.Max(minDemand, math.Min(maxDemand, d))
}
