package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/random"
	"github.com/Domenick1991/flightsim/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type MockTx struct {
	mock.Mock
}

func (m *MockTx) GetFlightForUpdate(ctx context.Context, id int64) (*domain.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockTx) ListFlightsForUpdate(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockTx) UpdateAvailableSeats(ctx context.Context, flightID int64, available int) error {
	args := m.Called(ctx, flightID, available)
	return args.Error(0)
}

func (m *MockTx) GetPassenger(ctx context.Context, id int64) (*domain.Passenger, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Passenger), args.Error(1)
}

func (m *MockTx) TakenSeats(ctx context.Context, flightID int64) (map[int]bool, error) {
	args := m.Called(ctx, flightID)
	return args.Get(0).(map[int]bool), args.Error(1)
}

func (m *MockTx) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	args := m.Called(ctx, reference)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) InsertBooking(ctx context.Context, booking *domain.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *MockTx) GetBookingForUpdate(ctx context.Context, reference string) (*domain.Booking, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockTx) UpdateBookingStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) error {
	return m.Called(ctx, bookingID, status).Error(0)
}

func (m *MockTx) AppendFareSample(ctx context.Context, sample *domain.FareSample) error {
	return m.Called(ctx, sample).Error(0)
}

func (m *MockTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, m)
}

// scripted replays fixed draws; once exhausted it returns values that take
// no branch.
type scripted struct {
	floats []float64
	ints   []int
}

func (s *scripted) Float64() float64 {
	if len(s.floats) == 0 {
		return 0.999
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scripted) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func TestLedger_Reserve_Decrements(t *testing.T) {
	ctx := context.Background()
	tx := &MockTx{}
	l := NewLedger(WithRandom(random.NewSeeded(1)))
	f := &domain.Flight{ID: 1, TotalSeats: 100, AvailableSeats: 100}

	tx.On("UpdateAvailableSeats", ctx, int64(1), 99).Return(nil).Once()

	seat, err := l.Reserve(ctx, tx, f, SeatRequest{Seat: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, seat)
	assert.Equal(t, 99, f.AvailableSeats)
	tx.AssertExpectations(t)
}

func TestLedger_Reserve_AtZeroFailsWithoutWrite(t *testing.T) {
	tx := &MockTx{}
	l := NewLedger()
	f := &domain.Flight{ID: 1, TotalSeats: 10, AvailableSeats: 0}

	_, err := l.Reserve(context.Background(), tx, f, SeatRequest{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, 0, f.AvailableSeats)
	tx.AssertNotCalled(t, "UpdateAvailableSeats", mock.Anything, mock.Anything, mock.Anything)
}

func TestLedger_Reserve_SeatOutOfRange(t *testing.T) {
	tx := &MockTx{}
	l := NewLedger()
	f := &domain.Flight{ID: 1, TotalSeats: 10, AvailableSeats: 10}

	for _, seat := range []int{-1, 11} {
		_, err := l.Reserve(context.Background(), tx, f, SeatRequest{Seat: seat})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	assert.Equal(t, 10, f.AvailableSeats)
	tx.AssertNotCalled(t, "UpdateAvailableSeats", mock.Anything, mock.Anything, mock.Anything)
}

func TestLedger_Reserve_AssignsFreeSeat(t *testing.T) {
	ctx := context.Background()
	tx := &MockTx{}
	tx.On("UpdateAvailableSeats", ctx, int64(1), mock.Anything).Return(nil)
	l := NewLedger(WithRandom(random.NewSeeded(3)))

	taken := map[int]bool{1: true, 2: true, 4: true}
	for i := 0; i < 50; i++ {
		f := &domain.Flight{ID: 1, TotalSeats: 5, AvailableSeats: 2}
		seat, err := l.Reserve(ctx, tx, f, SeatRequest{Taken: taken})
		require.NoError(t, err)
		assert.Contains(t, []int{3, 5}, seat)
	}

	// every number taken: still a number in range
	full := map[int]bool{1: true, 2: true, 3: true}
	f := &domain.Flight{ID: 1, TotalSeats: 3, AvailableSeats: 1}
	seat, err := l.Reserve(ctx, tx, f, SeatRequest{Taken: full})
	require.NoError(t, err)
	assert.True(t, seat >= 1 && seat <= 3)
}

func TestLedger_Reserve_PropagatesStoreError(t *testing.T) {
	ctx := context.Background()
	tx := &MockTx{}
	tx.On("UpdateAvailableSeats", ctx, int64(1), 4).Return(errors.New("db down"))
	f := &domain.Flight{ID: 1, TotalSeats: 5, AvailableSeats: 5}

	_, err := NewLedger().Reserve(ctx, tx, f, SeatRequest{Seat: 1})
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 5, f.AvailableSeats)
}

func TestLedger_Release_CappedAtTotal(t *testing.T) {
	ctx := context.Background()
	tx := &MockTx{}
	l := NewLedger()

	f := &domain.Flight{ID: 1, TotalSeats: 10, AvailableSeats: 9}
	tx.On("UpdateAvailableSeats", ctx, int64(1), 10).Return(nil).Once()
	require.NoError(t, l.Release(ctx, tx, f))
	assert.Equal(t, 10, f.AvailableSeats)

	require.NoError(t, l.Release(ctx, tx, f))
	assert.Equal(t, 10, f.AvailableSeats)
	tx.AssertExpectations(t)
}

func TestLedger_Perturb_Exclusive(t *testing.T) {
	ctx := context.Background()

	t.Run("drop", func(t *testing.T) {
		tx := &MockTx{}
		tx.On("UpdateAvailableSeats", ctx, int64(1), 48).Return(nil).Once()
		l := NewLedger(WithRandom(&scripted{floats: []float64{0.05}, ints: []int{1}}))
		f := &domain.Flight{ID: 1, TotalSeats: 100, AvailableSeats: 50}

		d, err := l.Perturb(ctx, tx, f)
		require.NoError(t, err)
		assert.Equal(t, -2, d.Delta())
		assert.Equal(t, 48, f.AvailableSeats)
		tx.AssertExpectations(t)
	})

	t.Run("restock only when drop not taken", func(t *testing.T) {
		tx := &MockTx{}
		tx.On("UpdateAvailableSeats", ctx, int64(1), 52).Return(nil).Once()
		src := &scripted{floats: []float64{0.5, 0.01}, ints: []int{1}}
		l := NewLedger(WithRandom(src))
		f := &domain.Flight{ID: 1, TotalSeats: 100, AvailableSeats: 50}

		d, err := l.Perturb(ctx, tx, f)
		require.NoError(t, err)
		assert.Equal(t, 2, d.Delta())
		assert.Empty(t, src.floats)
	})

	t.Run("drop skips restock draw", func(t *testing.T) {
		tx := &MockTx{}
		tx.On("UpdateAvailableSeats", ctx, int64(1), mock.Anything).Return(nil)
		src := &scripted{floats: []float64{0.01, 0.01}}
		l := NewLedger(WithRandom(src))
		f := &domain.Flight{ID: 1, TotalSeats: 100, AvailableSeats: 50}

		d, err := l.Perturb(ctx, tx, f)
		require.NoError(t, err)
		assert.Equal(t, -1, d.Delta())
		assert.Len(t, src.floats, 1)
	})

	t.Run("no change writes nothing", func(t *testing.T) {
		tx := &MockTx{}
		l := NewLedger(WithRandom(&scripted{floats: []float64{0.5, 0.5}}))
		f := &domain.Flight{ID: 1, TotalSeats: 100, AvailableSeats: 50}

		d, err := l.Perturb(ctx, tx, f)
		require.NoError(t, err)
		assert.False(t, d.Changed())
		tx.AssertNotCalled(t, "UpdateAvailableSeats", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sold out flight only restocks", func(t *testing.T) {
		tx := &MockTx{}
		tx.On("UpdateAvailableSeats", ctx, int64(1), 1).Return(nil).Once()
		l := NewLedger(WithRandom(&scripted{floats: []float64{0.01, 0.01}}))
		f := &domain.Flight{ID: 1, TotalSeats: 100, AvailableSeats: 0}

		d, err := l.Perturb(ctx, tx, f)
		require.NoError(t, err)
		assert.Equal(t, 1, d.Delta())
	})
}

func TestLedger_Perturb_Independent(t *testing.T) {
	ctx := context.Background()
	tx := &MockTx{}
	tx.On("UpdateAvailableSeats", ctx, int64(1), 49).Return(nil).Once()

	// drop 3 then restock 2
	src := &scripted{floats: []float64{0.01, 0.01}, ints: []int{2, 1}}
	l := NewLedger(WithRandom(src), WithPolicy(PolicyIndependent))
	f := &domain.Flight{ID: 1, TotalSeats: 100, AvailableSeats: 50}

	d, err := l.Perturb(ctx, tx, f)
	require.NoError(t, err)
	assert.Equal(t, -1, d.Delta())
	tx.AssertExpectations(t)
}

func TestProperty_CounterStaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		total := rapid.IntRange(1, 300).Draw(t, "total")
		f := &domain.Flight{ID: 1, TotalSeats: total, AvailableSeats: rapid.IntRange(0, total).Draw(t, "available")}
		policy := rapid.SampledFrom([]PerturbPolicy{PolicyExclusive, PolicyIndependent}).Draw(t, "policy")
		l := NewLedger(
			WithRandom(random.NewSeeded(rapid.Uint64().Draw(t, "seed"))),
			WithPolicy(policy),
			WithDrift(rapid.Float64Range(0, 1).Draw(t, "pDrop"), rapid.Float64Range(0, 1).Draw(t, "pRestock"), 3, 2),
		)
		tx := &boundsTx{total: total}

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 200).Draw(t, "ops")
		for _, op := range ops {
			before := f.AvailableSeats
			var err error
			switch op {
			case 0:
				_, err = l.Reserve(ctx, tx, f, SeatRequest{})
				if before == 0 {
					if !errors.Is(err, domain.ErrUnavailable) || f.AvailableSeats != 0 {
						t.Fatalf("reserve at zero: err=%v available=%d", err, f.AvailableSeats)
					}
					continue
				}
				if f.AvailableSeats != before-1 {
					t.Fatalf("reserve moved counter %d -> %d", before, f.AvailableSeats)
				}
			case 1:
				err = l.Release(ctx, tx, f)
				if f.AvailableSeats != min(total, before+1) {
					t.Fatalf("release moved counter %d -> %d", before, f.AvailableSeats)
				}
			case 2:
				var d Drift
				d, err = l.Perturb(ctx, tx, f)
				if d.Delta() < -3 || d.Delta() > 2 {
					t.Fatalf("perturb delta %d out of range", d.Delta())
				}
			}
			if err != nil {
				t.Fatalf("op %d: %v", op, err)
			}
			if f.AvailableSeats < 0 || f.AvailableSeats > total {
				t.Fatalf("counter %d outside [0, %d]", f.AvailableSeats, total)
			}
		}
	})
}

// boundsTx rejects any write outside [0, total].
type boundsTx struct {
	MockTx
	total int
}

func (b *boundsTx) UpdateAvailableSeats(_ context.Context, _ int64, available int) error {
	if available < 0 || available > b.total {
		return domain.ErrInvalidInput
	}
	return nil
}

func TestLedger_ReleaseThenReserveRoundTrip(t *testing.T) {
	store := repository.NewMemoryStore()
	f, err := store.AddFlight(domain.Flight{FlightNumber: "RT1", TotalSeats: 10, AvailableSeats: 4, DepartureTime: time.Now()})
	require.NoError(t, err)
	l := NewLedger()
	ctx := context.Background()

	err = store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := l.Lock(ctx, tx, f.ID)
		if err != nil {
			return err
		}
		if err := l.Release(ctx, tx, locked); err != nil {
			return err
		}
		_, err = l.Reserve(ctx, tx, locked, SeatRequest{})
		return err
	})
	require.NoError(t, err)

	got, _ := store.Flights().GetByID(ctx, f.ID)
	assert.Equal(t, 4, got.AvailableSeats)
}

func TestLedger_ConcurrentReserveLastSeat(t *testing.T) {
	store := repository.NewMemoryStore()
	f, err := store.AddFlight(domain.Flight{FlightNumber: "LS1", TotalSeats: 10, AvailableSeats: 1, DepartureTime: time.Now()})
	require.NoError(t, err)
	l := NewLedger()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		failed  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				locked, err := l.Lock(ctx, tx, f.ID)
				if err != nil {
					return err
				}
				_, err = l.Reserve(ctx, tx, locked, SeatRequest{})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
			} else if errors.Is(err, domain.ErrUnavailable) {
				failed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, failed)
	got, _ := store.Flights().GetByID(context.Background(), f.ID)
	assert.Equal(t, 0, got.AvailableSeats)
}
