package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/inventory"
	"github.com/Domenick1991/flightsim/internal/kafka"
	"github.com/Domenick1991/flightsim/internal/pricing"
	"github.com/Domenick1991/flightsim/internal/random"
	"github.com/Domenick1991/flightsim/internal/reference"
	"github.com/Domenick1991/flightsim/internal/repository"
	"github.com/Domenick1991/flightsim/internal/validation"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	PayBooking(ctx context.Context, reference string) (*PaymentResult, error)
	CancelBooking(ctx context.Context, reference string) (*CancelResult, error)
	GetBooking(ctx context.Context, reference string) (*domain.Booking, error)
	ListBookings(ctx context.Context, passengerID *int64) ([]domain.Booking, error)
}

type Cache interface {
	AcquireSeatLock(ctx context.Context, flightID int64, seatNumber int, ttl time.Duration) (bool, error)
	ReleaseSeatLock(ctx context.Context, flightID int64, seatNumber int) error
	InvalidateFlights(ctx context.Context) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// PaymentGateway decides whether a booking's fare is collected.
type PaymentGateway interface {
	Charge(ctx context.Context, booking *domain.Booking) (bool, error)
}

// RandomGateway approves a payment with a fixed probability.
type RandomGateway struct {
	rate float64
	rnd  random.Source
}

func NewRandomGateway(successRate float64, rnd random.Source) *RandomGateway {
	if rnd == nil {
		rnd = random.Default
	}
	return &RandomGateway{rate: successRate, rnd: rnd}
}

func (g *RandomGateway) Charge(_ context.Context, _ *domain.Booking) (bool, error) {
	return g.rnd.Float64() < g.rate, nil
}

const DefaultPaymentSuccessRate = 0.9

type TravelerInput struct {
	FullName         string `json:"full_name" validate:"required,max=120"`
	Age              int    `json:"age" validate:"gte=0,lte=130"`
	Gender           string `json:"gender" validate:"omitempty,max=16"`
	SeatNumber       int    `json:"seat_number" validate:"gte=0"`
	ReturnSeatNumber int    `json:"return_seat_number" validate:"gte=0"`
}

type CreateBookingInput struct {
	PassengerID      int64  `json:"passenger_id" validate:"required,gt=0"`
	FlightID         int64  `json:"flight_id" validate:"required,gt=0"`
	ReturnFlightID   *int64 `json:"return_flight_id,omitempty" validate:"omitempty,gt=0"`
	SeatNumber       int    `json:"seat_number" validate:"gte=0"`
	ReturnSeatNumber int    `json:"return_seat_number" validate:"gte=0"`
	// Travelers lists everyone flying. Empty means the passenger alone, in
	// SeatNumber and ReturnSeatNumber.
	Travelers []TravelerInput `json:"travelers,omitempty" validate:"omitempty,max=9,dive"`
}

type PaymentResult struct {
	Booking *domain.Booking
	Success bool
	Message string
}

type CancelResult struct {
	Booking *domain.Booking
	// AlreadyCancelled is set when the call found the booking cancelled and
	// changed nothing.
	AlreadyCancelled bool
}

type BookingService struct {
	store      repository.Store
	ledger     *inventory.Ledger
	pricing    *pricing.Engine
	references reference.Generator
	gateway    PaymentGateway

	cache              Cache
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	holdTTL            time.Duration
	now                func() time.Time
	log                *zap.Logger
}

type BookingServiceOption func(*BookingService)

func WithCache(c Cache) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = c
	}
}

// WithProducer publishes booking events to bookingTopic.
func WithProducer(p Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = p
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithSeatHold(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.holdTTL = ttl
	}
}

func WithPaymentGateway(g PaymentGateway) BookingServiceOption {
	return func(s *BookingService) {
		if g != nil {
			s.gateway = g
		}
	}
}

func WithLogger(l *zap.Logger) BookingServiceOption {
	return func(s *BookingService) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewBookingService(
	store repository.Store,
	ledger *inventory.Ledger,
	engine *pricing.Engine,
	references reference.Generator,
	opts ...BookingServiceOption,
) *BookingService {
	s := &BookingService{
		store:      store,
		ledger:     ledger,
		pricing:    engine,
		references: references,
		gateway:    NewRandomGateway(DefaultPaymentSuccessRate, nil),
		holdTTL:    5 * time.Minute,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// seatHold is a seat explicitly requested on one leg.
type seatHold struct {
	flightID int64
	seat     int
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if errs := validation.ValidateStruct(input); errs != nil {
		return nil, fmt.Errorf("%s: %w", validation.FormatValidationErrors(errs), domain.ErrInvalidInput)
	}
	if input.ReturnFlightID != nil && *input.ReturnFlightID == input.FlightID {
		return nil, fmt.Errorf("return flight must differ from outbound: %w", domain.ErrInvalidInput)
	}

	travelers := travelersFrom(input)
	holds, err := requestedSeats(input, travelers)
	if err != nil {
		return nil, err
	}

	release, err := s.holdSeats(ctx, holds)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		booking *domain.Booking
		email   string
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		legs := []int64{input.FlightID}
		if input.ReturnFlightID != nil {
			legs = append(legs, *input.ReturnFlightID)
		}

		flights, err := s.lockFlights(ctx, tx, legs)
		if err != nil {
			return err
		}

		for _, id := range legs {
			if flights[id].AvailableSeats < len(travelers) {
				return fmt.Errorf("flight %d has %d seats left for %d travellers: %w",
					id, flights[id].AvailableSeats, len(travelers), domain.ErrUnavailable)
			}
		}

		passenger, err := tx.GetPassenger(ctx, input.PassengerID)
		if err != nil {
			return err
		}
		email = passenger.Email
		if travelers[0].FullName == "" {
			travelers[0].FullName = passenger.FullName
		}

		var fare int64
		samples := make([]domain.FareSample, 0, len(legs))
		for leg, id := range legs {
			f := flights[id]
			taken, err := tx.TakenSeats(ctx, id)
			if err != nil {
				return err
			}
			for i := range travelers {
				seat := &travelers[i].SeatNumber
				if leg == 1 {
					seat = &travelers[i].ReturnSeatNumber
				}
				if *seat != 0 && taken[*seat] {
					return fmt.Errorf("seat %d on flight %d is taken: %w", *seat, id, domain.ErrConflict)
				}

				quote := s.pricing.Quote(pricing.FlightInput(*f))
				assigned, err := s.ledger.Reserve(ctx, tx, f, inventory.SeatRequest{Seat: *seat, Taken: taken})
				if err != nil {
					return err
				}
				*seat = assigned
				taken[assigned] = true
				fare += quote
				if i == 0 {
					samples = append(samples, domain.FareSample{FlightID: id, PriceCents: quote, RecordedAt: s.now()})
				}
			}
		}

		code, err := s.references.Generate(ctx, tx.ReferenceExists)
		if err != nil {
			return err
		}

		booking = &domain.Booking{
			Reference:        code,
			PassengerID:      input.PassengerID,
			FlightID:         input.FlightID,
			ReturnFlightID:   input.ReturnFlightID,
			TripType:         domain.TripTypeOneWay,
			SeatNumber:       travelers[0].SeatNumber,
			ReturnSeatNumber: travelers[0].ReturnSeatNumber,
			FarePaidCents:    fare,
			Status:           domain.BookingStatusConfirmed,
			Travelers:        travelers,
		}
		if input.ReturnFlightID != nil {
			booking.TripType = domain.TripTypeRoundTrip
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}

		for i := range samples {
			if err := tx.AppendFareSample(ctx, &samples[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		zap.String("reference", booking.Reference),
		zap.Int64("flight_id", booking.FlightID),
		zap.Int("travelers", len(booking.Travelers)),
		zap.Int64("fare_paid_cents", booking.FarePaidCents),
	)
	s.afterCommit(ctx, kafka.EventBookingCreated, booking, email)
	return booking, nil
}

func (s *BookingService) PayBooking(ctx context.Context, ref string) (*PaymentResult, error) {
	var (
		result *PaymentResult
		email  string
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(domain.BookingStatusPaid) {
			return fmt.Errorf("pay booking in status %s: %w", b.Status, domain.ErrInvalidTransition)
		}

		ok, err := s.gateway.Charge(ctx, b)
		if err != nil {
			return fmt.Errorf("charge booking %s: %w", ref, err)
		}

		result = &PaymentResult{Booking: b, Success: ok, Message: "Payment successful"}
		next := domain.BookingStatusPaid
		if !ok {
			next = domain.BookingStatusPaymentFailed
			result.Message = "Payment failed"
		}
		if err := tx.UpdateBookingStatus(ctx, b.ID, next); err != nil {
			return err
		}
		b.Status = next

		if p, err := tx.GetPassenger(ctx, b.PassengerID); err == nil {
			email = p.Email
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := kafka.EventBookingPaid
	if !result.Success {
		event = kafka.EventBookingPaymentFailed
	}
	s.log.Info("booking payment",
		zap.String("reference", ref),
		zap.Bool("success", result.Success),
	)
	s.afterCommit(ctx, event, result.Booking, email)
	return result, nil
}

// CancelBooking returns every seat of a booking to inventory. Cancelling a
// cancelled booking is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, ref string) (*CancelResult, error) {
	var (
		result *CancelResult
		email  string
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingStatusCancelled {
			result = &CancelResult{Booking: b, AlreadyCancelled: true}
			return nil
		}
		if !b.Status.CanTransitionTo(domain.BookingStatusCancelled) {
			return fmt.Errorf("cancel booking in status %s: %w", b.Status, domain.ErrInvalidTransition)
		}

		legs := b.FlightIDs()
		flights, err := s.lockFlights(ctx, tx, legs)
		if err != nil {
			return err
		}
		seats := max(1, len(b.Travelers))
		for _, id := range legs {
			for i := 0; i < seats; i++ {
				if err := s.ledger.Release(ctx, tx, flights[id]); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateBookingStatus(ctx, b.ID, domain.BookingStatusCancelled); err != nil {
			return err
		}
		b.Status = domain.BookingStatusCancelled
		result = &CancelResult{Booking: b}

		if p, err := tx.GetPassenger(ctx, b.PassengerID); err == nil {
			email = p.Email
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyCancelled {
		return result, nil
	}

	s.log.Info("booking cancelled", zap.String("reference", ref))
	s.afterCommit(ctx, kafka.EventBookingCancelled, result.Booking, email)
	return result, nil
}

func (s *BookingService) GetBooking(ctx context.Context, ref string) (*domain.Booking, error) {
	return s.store.Bookings().GetByReference(ctx, ref)
}

func (s *BookingService) ListBookings(ctx context.Context, passengerID *int64) ([]domain.Booking, error) {
	return s.store.Bookings().List(ctx, passengerID)
}

// lockFlights locks ids in ascending order so concurrent bookings over the
// same legs cannot deadlock.
func (s *BookingService) lockFlights(ctx context.Context, tx repository.Tx, ids []int64) (map[int64]*domain.Flight, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	flights := make(map[int64]*domain.Flight, len(ordered))
	for _, id := range ordered {
		f, err := s.ledger.Lock(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		flights[id] = f
	}
	return flights, nil
}

func (s *BookingService) holdSeats(ctx context.Context, holds []seatHold) (func(), error) {
	if s.cache == nil || len(holds) == 0 {
		return func() {}, nil
	}

	var acquired []seatHold
	release := func() {
		for _, h := range acquired {
			if err := s.cache.ReleaseSeatLock(context.WithoutCancel(ctx), h.flightID, h.seat); err != nil {
				s.log.Warn("release seat hold", zap.Int64("flight_id", h.flightID), zap.Int("seat", h.seat), zap.Error(err))
			}
		}
	}
	for _, h := range holds {
		ok, err := s.cache.AcquireSeatLock(ctx, h.flightID, h.seat, s.holdTTL)
		if err != nil {
			release()
			return nil, fmt.Errorf("hold seat %d on flight %d: %w", h.seat, h.flightID, err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("seat %d on flight %d is being booked: %w", h.seat, h.flightID, domain.ErrConflict)
		}
		acquired = append(acquired, h)
	}
	return release, nil
}

func (s *BookingService) afterCommit(ctx context.Context, eventType string, b *domain.Booking, email string) {
	ctx = context.WithoutCancel(ctx)
	if s.cache != nil {
		if err := s.cache.InvalidateFlights(ctx); err != nil {
			s.log.Warn("invalidate flights cache", zap.Error(err))
		}
	}
	if err := s.publish(ctx, eventType, b, email); err != nil {
		s.log.Warn("publish booking event",
			zap.String("type", eventType),
			zap.String("reference", b.Reference),
			zap.Error(err),
		)
	}
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking, email string) error {
	if s.producer == nil || s.bookingTopic == "" {
		return nil
	}
	event := kafka.NewBookingEvent(eventType, b, email)
	err := s.producer.Publish(ctx, s.bookingTopic, b.Reference, event)
	if s.notificationsTopic != "" {
		err = errors.Join(err, s.producer.Publish(ctx, s.notificationsTopic, b.Reference, event))
	}
	return err
}

func travelersFrom(input CreateBookingInput) []domain.Traveler {
	var out []domain.Traveler
	if len(input.Travelers) == 0 {
		out = []domain.Traveler{{
			SeatNumber:       input.SeatNumber,
			ReturnSeatNumber: input.ReturnSeatNumber,
		}}
	} else {
		out = make([]domain.Traveler, len(input.Travelers))
		for i, t := range input.Travelers {
			out[i] = domain.Traveler{
				FullName:         t.FullName,
				Age:              t.Age,
				Gender:           t.Gender,
				SeatNumber:       t.SeatNumber,
				ReturnSeatNumber: t.ReturnSeatNumber,
			}
		}
	}
	if input.ReturnFlightID == nil {
		for i := range out {
			out[i].ReturnSeatNumber = 0
		}
	}
	return out
}

// requestedSeats lists explicit seats per leg and rejects a seat asked for
// twice on the same leg.
func requestedSeats(input CreateBookingInput, travelers []domain.Traveler) ([]seatHold, error) {
	var holds []seatHold
	seen := make(map[seatHold]bool)
	add := func(flightID int64, seat int) error {
		if seat == 0 {
			return nil
		}
		h := seatHold{flightID: flightID, seat: seat}
		if seen[h] {
			return fmt.Errorf("seat %d requested twice on flight %d: %w", seat, flightID, domain.ErrConflict)
		}
		seen[h] = true
		holds = append(holds, h)
		return nil
	}

	for _, t := range travelers {
		if err := add(input.FlightID, t.SeatNumber); err != nil {
			return nil, err
		}
		if input.ReturnFlightID != nil {
			if err := add(*input.ReturnFlightID, t.ReturnSeatNumber); err != nil {
				return nil, err
			}
		}
	}
	return holds, nil
}

var _ BookingUseCase = (*BookingService)(nil)
