package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
)

// rowLock is an exclusive lock that can be abandoned when the caller's
// context is cancelled.
type rowLock chan struct{}

func newRowLock() rowLock { return make(rowLock, 1) }

func (l rowLock) acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l rowLock) release() { <-l }

// MemoryStore is an in-process Store. Transactions take per-row locks, stage
// their writes and apply them atomically on commit.
type MemoryStore struct {
	mu         sync.Mutex
	flights    map[int64]domain.Flight
	passengers map[int64]domain.Passenger
	emails     map[string]int64
	bookings   map[int64]domain.Booking
	references map[string]int64
	samples    []domain.FareSample

	flightLocks  map[int64]rowLock
	bookingLocks map[string]rowLock

	flightSeq    atomic.Int64
	passengerSeq atomic.Int64
	bookingSeq   atomic.Int64
	sampleSeq    atomic.Int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flights:      make(map[int64]domain.Flight),
		passengers:   make(map[int64]domain.Passenger),
		emails:       make(map[string]int64),
		bookings:     make(map[int64]domain.Booking),
		references:   make(map[string]int64),
		flightLocks:  make(map[int64]rowLock),
		bookingLocks: make(map[string]rowLock),
		now:          time.Now,
	}
}

// AddFlight inserts a flight into the catalogue and returns it with its id.
func (s *MemoryStore) AddFlight(f domain.Flight) (domain.Flight, error) {
	if f.TotalSeats < 1 || f.AvailableSeats < 0 || f.AvailableSeats > f.TotalSeats {
		return domain.Flight{}, fmt.Errorf("flight %s seats %d/%d: %w", f.FlightNumber, f.AvailableSeats, f.TotalSeats, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == 0 {
		f.ID = s.flightSeq.Add(1)
	} else if _, exists := s.flights[f.ID]; exists {
		return domain.Flight{}, fmt.Errorf("flight %d: %w", f.ID, domain.ErrConflict)
	} else if f.ID > s.flightSeq.Load() {
		s.flightSeq.Store(f.ID)
	}
	now := s.now()
	f.CreatedAt, f.UpdatedAt = now, now
	s.flights[f.ID] = f
	s.flightLocks[f.ID] = newRowLock()
	return f, nil
}

func (s *MemoryStore) Flights() FlightRepository       { return memFlights{s} }
func (s *MemoryStore) Bookings() BookingRepository     { return memBookings{s} }
func (s *MemoryStore) Passengers() PassengerRepository { return memPassengers{s} }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		s:            s,
		flightLocks:  make(map[int64]rowLock),
		bookingLocks: make(map[string]rowLock),
		stage:        newMemStage(),
	}
	defer func() {
		if p := recover(); p != nil {
			tx.releaseLocks()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.releaseLocks()
		return err
	}
	return tx.commit()
}

func cloneBooking(b domain.Booking) domain.Booking {
	if b.ReturnFlightID != nil {
		id := *b.ReturnFlightID
		b.ReturnFlightID = &id
	}
	b.Travelers = append([]domain.Traveler(nil), b.Travelers...)
	return b
}

func addTakenSeats(taken map[int]bool, b *domain.Booking, flightID int64) {
	if !b.Status.Active() {
		return
	}
	for _, seat := range b.SeatsOn(flightID) {
		if seat > 0 {
			taken[seat] = true
		}
	}
}

type memStage struct {
	seats    map[int64]int
	inserted []domain.Booking
	statuses map[int64]domain.BookingStatus
	samples  []domain.FareSample
}

func newMemStage() memStage {
	return memStage{
		seats:    make(map[int64]int),
		statuses: make(map[int64]domain.BookingStatus),
	}
}

func (st memStage) clone() memStage {
	c := newMemStage()
	for k, v := range st.seats {
		c.seats[k] = v
	}
	for k, v := range st.statuses {
		c.statuses[k] = v
	}
	c.inserted = append([]domain.Booking(nil), st.inserted...)
	c.samples = append([]domain.FareSample(nil), st.samples...)
	return c
}

type memTx struct {
	s            *MemoryStore
	flightLocks  map[int64]rowLock
	bookingLocks map[string]rowLock
	stage        memStage
}

var _ Tx = (*memTx)(nil)

func (tx *memTx) lockFlight(ctx context.Context, id int64) error {
	if _, held := tx.flightLocks[id]; held {
		return nil
	}
	tx.s.mu.Lock()
	l, ok := tx.s.flightLocks[id]
	tx.s.mu.Unlock()
	if !ok {
		return fmt.Errorf("flight %d: %w", id, domain.ErrNotFound)
	}
	if err := l.acquire(ctx); err != nil {
		return fmt.Errorf("lock flight %d: %w", id, err)
	}
	tx.flightLocks[id] = l
	return nil
}

func (tx *memTx) flight(id int64) domain.Flight {
	tx.s.mu.Lock()
	f := tx.s.flights[id]
	tx.s.mu.Unlock()
	if seats, ok := tx.stage.seats[id]; ok {
		f.AvailableSeats = seats
	}
	return f
}

func (tx *memTx) GetFlightForUpdate(ctx context.Context, id int64) (*domain.Flight, error) {
	if err := tx.lockFlight(ctx, id); err != nil {
		return nil, err
	}
	f := tx.flight(id)
	return &f, nil
}

func (tx *memTx) ListFlightsForUpdate(ctx context.Context) ([]domain.Flight, error) {
	tx.s.mu.Lock()
	ids := make([]int64, 0, len(tx.s.flights))
	for id := range tx.s.flights {
		ids = append(ids, id)
	}
	tx.s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	flights := make([]domain.Flight, 0, len(ids))
	for _, id := range ids {
		if err := tx.lockFlight(ctx, id); err != nil {
			return nil, err
		}
		flights = append(flights, tx.flight(id))
	}
	return flights, nil
}

func (tx *memTx) UpdateAvailableSeats(_ context.Context, flightID int64, available int) error {
	if _, held := tx.flightLocks[flightID]; !held {
		return fmt.Errorf("flight %d is not locked by this transaction", flightID)
	}
	f := tx.flight(flightID)
	if available < 0 || available > f.TotalSeats {
		return fmt.Errorf("flight %d available seats %d out of [0, %d]: %w", flightID, available, f.TotalSeats, domain.ErrInvalidInput)
	}
	tx.stage.seats[flightID] = available
	return nil
}

func (tx *memTx) GetPassenger(ctx context.Context, id int64) (*domain.Passenger, error) {
	return memPassengers{tx.s}.GetByID(ctx, id)
}

func (tx *memTx) TakenSeats(_ context.Context, flightID int64) (map[int]bool, error) {
	taken := make(map[int]bool)

	tx.s.mu.Lock()
	for id, b := range tx.s.bookings {
		if status, ok := tx.stage.statuses[id]; ok {
			b.Status = status
		}
		addTakenSeats(taken, &b, flightID)
	}
	tx.s.mu.Unlock()

	for _, b := range tx.stage.inserted {
		if status, ok := tx.stage.statuses[b.ID]; ok {
			b.Status = status
		}
		addTakenSeats(taken, &b, flightID)
	}
	return taken, nil
}

func (tx *memTx) ReferenceExists(_ context.Context, reference string) (bool, error) {
	for _, b := range tx.stage.inserted {
		if b.Reference == reference {
			return true, nil
		}
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	_, ok := tx.s.references[reference]
	return ok, nil
}

func (tx *memTx) InsertBooking(ctx context.Context, booking *domain.Booking) error {
	exists, err := tx.ReferenceExists(ctx, booking.Reference)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("reference %s: %w", booking.Reference, domain.ErrConflict)
	}

	now := tx.s.now()
	booking.ID = tx.s.bookingSeq.Add(1)
	booking.CreatedAt, booking.UpdatedAt = now, now
	tx.stage.inserted = append(tx.stage.inserted, cloneBooking(*booking))
	return nil
}

func (tx *memTx) GetBookingForUpdate(ctx context.Context, reference string) (*domain.Booking, error) {
	for _, b := range tx.stage.inserted {
		if b.Reference == reference {
			b = cloneBooking(b)
			if status, ok := tx.stage.statuses[b.ID]; ok {
				b.Status = status
			}
			return &b, nil
		}
	}

	if _, held := tx.bookingLocks[reference]; !held {
		tx.s.mu.Lock()
		if _, ok := tx.s.references[reference]; !ok {
			tx.s.mu.Unlock()
			return nil, fmt.Errorf("booking %s: %w", reference, domain.ErrNotFound)
		}
		l, ok := tx.s.bookingLocks[reference]
		if !ok {
			l = newRowLock()
			tx.s.bookingLocks[reference] = l
		}
		tx.s.mu.Unlock()

		if err := l.acquire(ctx); err != nil {
			return nil, fmt.Errorf("lock booking %s: %w", reference, err)
		}
		tx.bookingLocks[reference] = l
	}

	tx.s.mu.Lock()
	b := cloneBooking(tx.s.bookings[tx.s.references[reference]])
	tx.s.mu.Unlock()
	if status, ok := tx.stage.statuses[b.ID]; ok {
		b.Status = status
	}
	return &b, nil
}

func (tx *memTx) UpdateBookingStatus(_ context.Context, bookingID int64, status domain.BookingStatus) error {
	found := false
	for _, b := range tx.stage.inserted {
		if b.ID == bookingID {
			found = true
			break
		}
	}
	if !found {
		tx.s.mu.Lock()
		_, found = tx.s.bookings[bookingID]
		tx.s.mu.Unlock()
	}
	if !found {
		return fmt.Errorf("booking %d: %w", bookingID, domain.ErrNotFound)
	}
	tx.stage.statuses[bookingID] = status
	return nil
}

func (tx *memTx) AppendFareSample(_ context.Context, sample *domain.FareSample) error {
	sample.ID = tx.s.sampleSeq.Add(1)
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = tx.s.now()
	}
	tx.stage.samples = append(tx.stage.samples, *sample)
	return nil
}

func (tx *memTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	snapshot := tx.stage.clone()
	if err := fn(ctx, tx); err != nil {
		tx.stage = snapshot
		return err
	}
	return nil
}

func (tx *memTx) commit() error {
	defer tx.releaseLocks()

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range tx.stage.inserted {
		if _, dup := s.references[b.Reference]; dup {
			return fmt.Errorf("reference %s: %w", b.Reference, domain.ErrConflict)
		}
	}

	now := s.now()
	for id, seats := range tx.stage.seats {
		f := s.flights[id]
		f.AvailableSeats = seats
		f.UpdatedAt = now
		s.flights[id] = f
	}
	for _, b := range tx.stage.inserted {
		s.bookings[b.ID] = b
		s.references[b.Reference] = b.ID
	}
	for id, status := range tx.stage.statuses {
		b := s.bookings[id]
		b.Status = status
		b.UpdatedAt = now
		s.bookings[id] = b
	}
	s.samples = append(s.samples, tx.stage.samples...)
	return nil
}

func (tx *memTx) releaseLocks() {
	for id, l := range tx.flightLocks {
		l.release()
		delete(tx.flightLocks, id)
	}
	for ref, l := range tx.bookingLocks {
		l.release()
		delete(tx.bookingLocks, ref)
	}
}

type memFlights struct{ s *MemoryStore }

func (r memFlights) List(_ context.Context) ([]domain.Flight, error) {
	r.s.mu.Lock()
	flights := make([]domain.Flight, 0, len(r.s.flights))
	for _, f := range r.s.flights {
		flights = append(flights, f)
	}
	r.s.mu.Unlock()

	sort.Slice(flights, func(i, j int) bool {
		if !flights[i].DepartureTime.Equal(flights[j].DepartureTime) {
			return flights[i].DepartureTime.Before(flights[j].DepartureTime)
		}
		return flights[i].ID < flights[j].ID
	})
	return flights, nil
}

func (r memFlights) GetByID(_ context.Context, id int64) (*domain.Flight, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.flights[id]
	if !ok {
		return nil, fmt.Errorf("flight %d: %w", id, domain.ErrNotFound)
	}
	return &f, nil
}

func (r memFlights) TakenSeats(_ context.Context, flightID int64) (map[int]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	taken := make(map[int]bool)
	for _, b := range r.s.bookings {
		addTakenSeats(taken, &b, flightID)
	}
	return taken, nil
}

func (r memFlights) FareHistory(_ context.Context, flightID int64, limit int) ([]domain.FareSample, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	history := make([]domain.FareSample, 0)
	for i := len(r.s.samples) - 1; i >= 0 && (limit <= 0 || len(history) < limit); i-- {
		if r.s.samples[i].FlightID == flightID {
			history = append(history, r.s.samples[i])
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].RecordedAt.After(history[j].RecordedAt)
	})
	return history, nil
}

type memBookings struct{ s *MemoryStore }

func (r memBookings) GetByReference(_ context.Context, reference string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.references[reference]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", reference, domain.ErrNotFound)
	}
	b := cloneBooking(r.s.bookings[id])
	return &b, nil
}

func (r memBookings) List(_ context.Context, passengerID *int64) ([]domain.Booking, error) {
	r.s.mu.Lock()
	bookings := make([]domain.Booking, 0, len(r.s.bookings))
	for _, b := range r.s.bookings {
		if passengerID != nil && b.PassengerID != *passengerID {
			continue
		}
		bookings = append(bookings, cloneBooking(b))
	}
	r.s.mu.Unlock()

	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID < bookings[j].ID })
	return bookings, nil
}

type memPassengers struct{ s *MemoryStore }

func (r memPassengers) Create(_ context.Context, p *domain.Passenger) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.emails[p.Email]; exists {
		return fmt.Errorf("passenger %s: %w", p.Email, domain.ErrConflict)
	}
	p.ID = r.s.passengerSeq.Add(1)
	p.CreatedAt = r.s.now()
	r.s.passengers[p.ID] = *p
	r.s.emails[p.Email] = p.ID
	return nil
}

func (r memPassengers) GetByID(_ context.Context, id int64) (*domain.Passenger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.passengers[id]
	if !ok {
		return nil, fmt.Errorf("passenger %d: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (r memPassengers) GetByEmail(_ context.Context, email string) (*domain.Passenger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.emails[email]
	if !ok {
		return nil, fmt.Errorf("passenger %s: %w", email, domain.ErrNotFound)
	}
	p := r.s.passengers[id]
	return &p, nil
}

var _ Store = (*MemoryStore)(nil)
