package flights

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/pricing"
	"github.com/Domenick1991/flightsim/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultListLimit    = 100
	DefaultSearchLimit  = 20
	MaxSearchLimit      = 50
	DefaultHistoryLimit = 100

	SortByPrice    = "price"
	SortByDuration = "duration"
	OrderAsc       = "asc"
	OrderDesc      = "desc"
)

type FlightUseCase interface {
	List(ctx context.Context, skip, limit int) ([]FlightView, error)
	Search(ctx context.Context, q SearchQuery) ([]FlightView, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	Price(ctx context.Context, id int64) (*PriceQuote, error)
	Seats(ctx context.Context, id int64) (*SeatMap, error)
	FareHistory(ctx context.Context, id int64, limit int) ([]domain.FareSample, error)
	Airports(ctx context.Context) ([]string, error)
}

type FlightCache interface {
	GetFlights(ctx context.Context) ([]domain.Flight, error)
	SetFlights(ctx context.Context, flights []domain.Flight) error
}

// FlightView is a flight with the price it would sell at right now.
type FlightView struct {
	domain.Flight
	DynamicPriceCents int64
}

type SearchQuery struct {
	Origin      string
	Destination string
	// Date is YYYY-MM-DD, empty for any day.
	Date   string
	SortBy string
	Order  string
	Skip   int
	Limit  int
}

type PriceQuote struct {
	FlightID          int64
	FlightNumber      string
	DynamicPriceCents int64
	BaseFareCents     int64
	AvailableSeats    int
	Factors           pricing.Factors
}

type SeatMap struct {
	FlightID             int64
	TotalSeats           int
	AvailableSeats       int
	AvailableSeatNumbers []int
}

type FlightService struct {
	repo    repository.FlightRepository
	pricing *pricing.Engine
	cache   FlightCache
	log     *zap.Logger
}

func NewFlightService(repo repository.FlightRepository, engine *pricing.Engine, cache FlightCache, log *zap.Logger) *FlightService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FlightService{repo: repo, pricing: engine, cache: cache, log: log}
}

func (s *FlightService) all(ctx context.Context) ([]domain.Flight, error) {
	if s.cache != nil {
		cached, err := s.cache.GetFlights(ctx)
		if err != nil {
			s.log.Warn("read flights cache", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	flights, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetFlights(ctx, flights); err != nil {
			s.log.Warn("write flights cache", zap.Error(err))
		}
	}
	return flights, nil
}

func (s *FlightService) List(ctx context.Context, skip, limit int) ([]FlightView, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}
	if skip < 0 || limit < 1 || limit > DefaultListLimit {
		return nil, fmt.Errorf("skip %d limit %d: %w", skip, limit, domain.ErrInvalidInput)
	}

	flights, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return s.price(page(flights, skip, limit)), nil
}

// Search filters by airport (case-insensitive) and departure date, then
// sorts and pages the result.
func (s *FlightService) Search(ctx context.Context, q SearchQuery) ([]FlightView, error) {
	if q.Limit == 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Skip < 0 || q.Limit < 1 || q.Limit > MaxSearchLimit {
		return nil, fmt.Errorf("skip %d limit %d: %w", q.Skip, q.Limit, domain.ErrInvalidInput)
	}
	q.SortBy = strings.ToLower(q.SortBy)
	if q.SortBy != "" && q.SortBy != SortByPrice && q.SortBy != SortByDuration {
		return nil, fmt.Errorf("sort_by %q: %w", q.SortBy, domain.ErrInvalidInput)
	}
	q.Order = strings.ToLower(q.Order)
	if q.Order == "" {
		q.Order = OrderAsc
	}
	if q.Order != OrderAsc && q.Order != OrderDesc {
		return nil, fmt.Errorf("order %q: %w", q.Order, domain.ErrInvalidInput)
	}
	if q.Date != "" {
		if _, err := time.Parse(time.DateOnly, q.Date); err != nil {
			return nil, fmt.Errorf("date %q: %w", q.Date, domain.ErrInvalidInput)
		}
	}

	flights, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	var matched []domain.Flight
	for _, f := range flights {
		if q.Origin != "" && !strings.EqualFold(f.FromAirport, q.Origin) {
			continue
		}
		if q.Destination != "" && !strings.EqualFold(f.ToAirport, q.Destination) {
			continue
		}
		if q.Date != "" && f.DepartureTime.Format(time.DateOnly) != q.Date {
			continue
		}
		matched = append(matched, f)
	}

	views := s.price(matched)
	switch q.SortBy {
	case SortByPrice:
		slices.SortStableFunc(views, func(a, b FlightView) int { return cmp.Compare(a.DynamicPriceCents, b.DynamicPriceCents) })
	case SortByDuration:
		slices.SortStableFunc(views, func(a, b FlightView) int { return cmp.Compare(a.Duration(), b.Duration()) })
	}
	if q.SortBy != "" && q.Order == OrderDesc {
		slices.Reverse(views)
	}
	return page(views, q.Skip, q.Limit), nil
}

func (s *FlightService) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *FlightService) Price(ctx context.Context, id int64) (*PriceQuote, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	price, factors := s.pricing.Breakdown(pricing.FlightInput(*f))
	return &PriceQuote{
		FlightID:          f.ID,
		FlightNumber:      f.FlightNumber,
		DynamicPriceCents: price,
		BaseFareCents:     f.BaseFareCents,
		AvailableSeats:    f.AvailableSeats,
		Factors:           factors,
	}, nil
}

// Seats lists the first AvailableSeats seat numbers not held by a booking.
func (s *FlightService) Seats(ctx context.Context, id int64) (*SeatMap, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.TakenSeats(ctx, id)
	if err != nil {
		return nil, err
	}

	free := make([]int, 0, f.AvailableSeats)
	for seat := 1; seat <= f.TotalSeats && len(free) < f.AvailableSeats; seat++ {
		if !taken[seat] {
			free = append(free, seat)
		}
	}
	return &SeatMap{
		FlightID:             f.ID,
		TotalSeats:           f.TotalSeats,
		AvailableSeats:       f.AvailableSeats,
		AvailableSeatNumbers: free,
	}, nil
}

func (s *FlightService) FareHistory(ctx context.Context, id int64, limit int) ([]domain.FareSample, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.FareHistory(ctx, id, limit)
}

// Airports returns every airport served, sorted.
func (s *FlightService) Airports(ctx context.Context) ([]string, error) {
	flights, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range flights {
		for _, a := range []string{f.FromAirport, f.ToAirport} {
			if a != "" && !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *FlightService) price(flights []domain.Flight) []FlightView {
	views := make([]FlightView, len(flights))
	for i, f := range flights {
		views[i] = FlightView{Flight: f, DynamicPriceCents: s.pricing.Quote(pricing.FlightInput(f))}
	}
	return views
}

func page[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	return items[skip:min(len(items), skip+limit)]
}

var _ FlightUseCase = (*FlightService)(nil)
