package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/inventory"
	"github.com/Domenick1991/flightsim/internal/kafka"
	"github.com/Domenick1991/flightsim/internal/pricing"
	"github.com/Domenick1991/flightsim/internal/random"
	"github.com/Domenick1991/flightsim/internal/reference"
	"github.com/Domenick1991/flightsim/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) AcquireSeatLock(ctx context.Context, flightID int64, seatNumber int, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, flightID, seatNumber, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) ReleaseSeatLock(ctx context.Context, flightID int64, seatNumber int) error {
	args := m.Called(ctx, flightID, seatNumber)
	return args.Error(0)
}

func (m *MockCache) InvalidateFlights(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, b *domain.Booking) (bool, error) {
	args := m.Called(ctx, b)
	return args.Bool(0), args.Error(1)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *repository.MemoryStore
	flight    domain.Flight
	ret       domain.Flight
	passenger domain.Passenger
	engine    *pricing.Engine
}

func newFixture(t *testing.T, available int) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	out, err := store.AddFlight(domain.Flight{
		FlightNumber:   "AI101",
		FromAirport:    "Delhi",
		ToAirport:      "Mumbai",
		DepartureTime:  testNow.Add(240 * time.Hour),
		ArrivalTime:    testNow.Add(242 * time.Hour),
		BaseFareCents:  20000,
		TotalSeats:     100,
		AvailableSeats: available,
	})
	require.NoError(t, err)
	ret, err := store.AddFlight(domain.Flight{
		FlightNumber:   "AI102",
		FromAirport:    "Mumbai",
		ToAirport:      "Delhi",
		DepartureTime:  testNow.Add(360 * time.Hour),
		ArrivalTime:    testNow.Add(362 * time.Hour),
		BaseFareCents:  15000,
		TotalSeats:     100,
		AvailableSeats: 100,
	})
	require.NoError(t, err)

	p := domain.Passenger{FullName: "Asha Rao", Email: "asha@example.com", PasswordHash: "x"}
	require.NoError(t, store.Passengers().Create(context.Background(), &p))

	return &fixture{
		store:     store,
		flight:    out,
		ret:       ret,
		passenger: p,
		engine:    pricing.NewEngine(pricing.WithRandom(random.Fixed(0)), pricing.WithClock(func() time.Time { return testNow })),
	}
}

func (f *fixture) service(t *testing.T, opts ...BookingServiceOption) *BookingService {
	t.Helper()
	gen, err := reference.New(reference.Config{}, random.NewSeeded(42))
	require.NoError(t, err)
	ledger := inventory.NewLedger(inventory.WithRandom(random.NewSeeded(7)))
	return NewBookingService(f.store, ledger, f.engine, gen, opts...)
}

func (f *fixture) available(t *testing.T, id int64) int {
	t.Helper()
	got, err := f.store.Flights().GetByID(context.Background(), id)
	require.NoError(t, err)
	return got.AvailableSeats
}

func TestBookingService_CreateBooking_Success(t *testing.T) {
	f := newFixture(t, 100)
	mockCache := &MockCache{}
	mockProducer := &MockProducer{}
	svc := f.service(t,
		WithCache(mockCache),
		WithProducer(mockProducer, "booking-events"),
		WithNotificationsTopic("notifications"),
	)
	ctx := context.Background()

	mockCache.On("InvalidateFlights", mock.Anything).Return(nil).Once()
	mockProducer.On("Publish", mock.Anything, "booking-events", mock.Anything, mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()
	mockProducer.On("Publish", mock.Anything, "notifications", mock.Anything, mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()

	b, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	assert.Equal(t, domain.TripTypeOneWay, b.TripType)
	assert.Equal(t, int64(22310), b.FarePaidCents)
	assert.Len(t, b.Reference, reference.DefaultLength)
	assert.True(t, b.SeatNumber >= 1 && b.SeatNumber <= 100)
	require.Len(t, b.Travelers, 1)
	assert.Equal(t, "Asha Rao", b.Travelers[0].FullName)
	assert.Equal(t, 99, f.available(t, f.flight.ID))

	history, err := f.store.Flights().FareHistory(ctx, f.flight.ID, 100)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(22310), history[0].PriceCents)

	stored, err := svc.GetBooking(ctx, b.Reference)
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)

	mockCache.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
	event := mockProducer.Calls[0].Arguments.Get(3).(kafka.BookingEvent)
	assert.Equal(t, kafka.EventBookingCreated, event.Type)
	assert.Equal(t, "asha@example.com", event.Email)
	assert.Equal(t, b.Reference, event.Reference)
}

func TestBookingService_CreateBooking_FareWithinJitterBounds(t *testing.T) {
	f := newFixture(t, 100)
	f.engine = pricing.NewEngine(pricing.WithClock(func() time.Time { return testNow }))
	svc := f.service(t)

	for i := 0; i < 20; i++ {
		b, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
		require.NoError(t, err)
		// each quote sees one more seat sold
		low := pricing.NewEngine(pricing.WithRandom(random.Fixed(0)), pricing.WithClock(func() time.Time { return testNow })).
			Quote(pricing.Input{BaseFareCents: 20000, AvailableSeats: 100 - i, TotalSeats: 100, Departure: f.flight.DepartureTime})
		high := pricing.NewEngine(pricing.WithRandom(random.Fixed(1)), pricing.WithClock(func() time.Time { return testNow })).
			Quote(pricing.Input{BaseFareCents: 20000, AvailableSeats: 100 - i, TotalSeats: 100, Departure: f.flight.DepartureTime})
		assert.GreaterOrEqual(t, b.FarePaidCents, low)
		assert.LessOrEqual(t, b.FarePaidCents, high)
	}
	assert.Equal(t, 80, f.available(t, f.flight.ID))
}

func TestBookingService_CancelBooking_RestoresSeatAndKeepsFare(t *testing.T) {
	f := newFixture(t, 100)
	mockProducer := &MockProducer{}
	svc := f.service(t, WithProducer(mockProducer, "booking-events"))
	ctx := context.Background()
	mockProducer.On("Publish", mock.Anything, "booking-events", mock.Anything, mock.Anything).Return(nil)

	b, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
	require.NoError(t, err)
	require.Equal(t, 99, f.available(t, f.flight.ID))

	res, err := svc.CancelBooking(ctx, b.Reference)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCancelled)
	assert.Equal(t, domain.BookingStatusCancelled, res.Booking.Status)
	assert.Equal(t, b.FarePaidCents, res.Booking.FarePaidCents)
	assert.Equal(t, 100, f.available(t, f.flight.ID))

	again, err := svc.CancelBooking(ctx, b.Reference)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCancelled)
	assert.Equal(t, 100, f.available(t, f.flight.ID))

	// created and cancelled only, nothing for the repeated cancel
	mockProducer.AssertNumberOfCalls(t, "Publish", 2)
}

func TestBookingService_CreateBooking_SoldOut(t *testing.T) {
	f := newFixture(t, 0)
	svc := f.service(t)

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, 0, f.available(t, f.flight.ID))

	list, err := svc.ListBookings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBookingService_CreateBooking_NotFound(t *testing.T) {
	f := newFixture(t, 100)
	svc := f.service(t)

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: f.passenger.ID, FlightID: 999})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: 999, FlightID: f.flight.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 100, f.available(t, f.flight.ID))
}

func TestBookingService_CreateBooking_InvalidInput(t *testing.T) {
	f := newFixture(t, 100)
	svc := f.service(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, CreateBookingInput{FlightID: f.flight.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	same := f.flight.ID
	_, err = svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, ReturnFlightID: &same})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, SeatNumber: 101})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 100, f.available(t, f.flight.ID))
}

func TestBookingService_CreateBooking_SeatConflicts(t *testing.T) {
	f := newFixture(t, 100)
	svc := f.service(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, SeatNumber: 7})
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, SeatNumber: 7})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.CreateBooking(ctx, CreateBookingInput{
		PassengerID: f.passenger.ID,
		FlightID:    f.flight.ID,
		Travelers: []TravelerInput{
			{FullName: "A", SeatNumber: 9},
			{FullName: "B", SeatNumber: 9},
		},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 99, f.available(t, f.flight.ID))
}

func TestBookingService_CreateBooking_SoldOutBeforePassengerLookup(t *testing.T) {
	f := newFixture(t, 0)
	svc := f.service(t)

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: 999, FlightID: f.flight.ID})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_CreateBooking_ErrorsNameEntityOnce(t *testing.T) {
	f := newFixture(t, 100)
	svc := f.service(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: 999, FlightID: f.flight.ID})
	assert.EqualError(t, err, "passenger 999: not found")

	_, err = svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: 999})
	assert.EqualError(t, err, "flight 999: not found")

	_, err = svc.PayBooking(ctx, "NOPE1234")
	assert.EqualError(t, err, "booking NOPE1234: not found")
}

func TestBookingService_CreateBooking_RollsBackReservedSeats(t *testing.T) {
	f := newFixture(t, 100)
	svc := f.service(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, SeatNumber: 7})
	require.NoError(t, err)
	require.Equal(t, 99, f.available(t, f.flight.ID))

	// seat 3 is reserved inside the transaction before seat 7 is found taken
	_, err = svc.CreateBooking(ctx, CreateBookingInput{
		PassengerID: f.passenger.ID,
		FlightID:    f.flight.ID,
		Travelers: []TravelerInput{
			{FullName: "A", SeatNumber: 3},
			{FullName: "B", SeatNumber: 7},
		},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 99, f.available(t, f.flight.ID))

	list, err := svc.ListBookings(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	history, err := f.store.Flights().FareHistory(ctx, f.flight.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	b, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, SeatNumber: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, b.SeatNumber)
	assert.Equal(t, 98, f.available(t, f.flight.ID))
}

func TestBookingService_CreateBooking_RoundTripGroup(t *testing.T) {
	f := newFixture(t, 100)
	svc := f.service(t)
	ctx := context.Background()
	ret := f.ret.ID

	b, err := svc.CreateBooking(ctx, CreateBookingInput{
		PassengerID:    f.passenger.ID,
		FlightID:       f.flight.ID,
		ReturnFlightID: &ret,
		Travelers: []TravelerInput{
			{FullName: "Asha Rao", Age: 34, SeatNumber: 1, ReturnSeatNumber: 2},
			{FullName: "Ravi Rao", Age: 36},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TripTypeRoundTrip, b.TripType)
	assert.Equal(t, 98, f.available(t, f.flight.ID))
	assert.Equal(t, 98, f.available(t, f.ret.ID))
	assert.Equal(t, 1, b.SeatNumber)
	assert.Equal(t, 2, b.ReturnSeatNumber)
	assert.NotEqual(t, 1, b.Travelers[1].SeatNumber)
	assert.NotEqual(t, 2, b.Travelers[1].ReturnSeatNumber)

	quote := func(base int64, avail int, dep time.Time) int64 {
		return f.engine.Quote(pricing.Input{BaseFareCents: base, AvailableSeats: avail, TotalSeats: 100, Departure: dep})
	}
	want := quote(20000, 100, f.flight.DepartureTime) + quote(20000, 99, f.flight.DepartureTime) +
		quote(15000, 100, f.ret.DepartureTime) + quote(15000, 99, f.ret.DepartureTime)
	assert.Equal(t, want, b.FarePaidCents)

	for _, id := range []int64{f.flight.ID, f.ret.ID} {
		history, err := f.store.Flights().FareHistory(ctx, id, 100)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	}

	res, err := svc.CancelBooking(ctx, b.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, res.Booking.Status)
	assert.Equal(t, 100, f.available(t, f.flight.ID))
	assert.Equal(t, 100, f.available(t, f.ret.ID))
}

func TestBookingService_CreateBooking_SeatHeldElsewhere(t *testing.T) {
	f := newFixture(t, 100)
	mockCache := &MockCache{}
	svc := f.service(t, WithCache(mockCache), WithSeatHold(time.Minute))

	mockCache.On("AcquireSeatLock", mock.Anything, f.flight.ID, 5, time.Minute).Return(false, nil).Once()

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, SeatNumber: 5})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 100, f.available(t, f.flight.ID))
	mockCache.AssertNotCalled(t, "ReleaseSeatLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_ReleasesHoldAfterCommit(t *testing.T) {
	f := newFixture(t, 100)
	mockCache := &MockCache{}
	svc := f.service(t, WithCache(mockCache), WithSeatHold(time.Minute))

	mockCache.On("AcquireSeatLock", mock.Anything, f.flight.ID, 5, time.Minute).Return(true, nil).Once()
	mockCache.On("ReleaseSeatLock", mock.Anything, f.flight.ID, 5).Return(nil).Once()
	mockCache.On("InvalidateFlights", mock.Anything).Return(errors.New("redis down")).Once()

	b, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID, SeatNumber: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, b.SeatNumber)
	mockCache.AssertExpectations(t)
}

func TestBookingService_CreateBooking_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, 100)
	mockProducer := &MockProducer{}
	svc := f.service(t, WithProducer(mockProducer, "booking-events"))
	mockProducer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	b, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
}

func TestBookingService_PayBooking(t *testing.T) {
	f := newFixture(t, 100)
	gateway := &MockGateway{}
	svc := f.service(t, WithPaymentGateway(gateway))
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
	require.NoError(t, err)

	gateway.On("Charge", mock.Anything, mock.Anything).Return(false, nil).Once()
	res, err := svc.PayBooking(ctx, b.Reference)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Payment failed", res.Message)
	assert.Equal(t, domain.BookingStatusPaymentFailed, res.Booking.Status)

	gateway.On("Charge", mock.Anything, mock.Anything).Return(true, nil).Once()
	res, err = svc.PayBooking(ctx, b.Reference)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.BookingStatusPaid, res.Booking.Status)
	assert.Equal(t, b.FarePaidCents, res.Booking.FarePaidCents)
	assert.Equal(t, 99, f.available(t, f.flight.ID))

	_, err = svc.PayBooking(ctx, b.Reference)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.ErrorIs(t, err, domain.ErrConflict)
	gateway.AssertNumberOfCalls(t, "Charge", 2)
}

func TestBookingService_PayBooking_Errors(t *testing.T) {
	f := newFixture(t, 100)
	gateway := &MockGateway{}
	svc := f.service(t, WithPaymentGateway(gateway))
	ctx := context.Background()

	_, err := svc.PayBooking(ctx, "NOPE0000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, b.Reference)
	require.NoError(t, err)

	_, err = svc.PayBooking(ctx, b.Reference)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestBookingService_CancelBooking_NotFound(t *testing.T) {
	f := newFixture(t, 100)
	_, err := f.service(t).CancelBooking(context.Background(), "NOPE0000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_ListBookings(t *testing.T) {
	f := newFixture(t, 100)
	svc := f.service(t)
	ctx := context.Background()

	other := domain.Passenger{FullName: "Other", Email: "other@example.com"}
	require.NoError(t, f.store.Passengers().Create(ctx, &other))

	_, err := svc.CreateBooking(ctx, CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, CreateBookingInput{PassengerID: other.ID, FlightID: f.flight.ID})
	require.NoError(t, err)

	all, err := svc.ListBookings(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.ListBookings(ctx, &f.passenger.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.passenger.ID, mine[0].PassengerID)
}

func TestBookingService_ConcurrentBookingsNeverOversell(t *testing.T) {
	f := newFixture(t, 5)
	svc := f.service(t)

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  []string
		soldOut int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := svc.CreateBooking(context.Background(), CreateBookingInput{PassengerID: f.passenger.ID, FlightID: f.flight.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked = append(booked, b.Reference)
			case errors.Is(err, domain.ErrUnavailable):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, booked, 5)
	assert.Equal(t, workers-5, soldOut)
	assert.Equal(t, 0, f.available(t, f.flight.ID))

	seen := make(map[string]bool)
	for _, ref := range booked {
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}

func TestRandomGateway(t *testing.T) {
	ok, err := NewRandomGateway(0.9, random.Fixed(0.5)).Charge(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = NewRandomGateway(0.9, random.Fixed(0.95)).Charge(context.Background(), nil)
	assert.False(t, ok)
}
