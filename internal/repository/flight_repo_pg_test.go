package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewFlightRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewFlightRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewPGStore(t *testing.T) {
	store := NewPGStore(&pgxpool.Pool{})
	assert.NotNil(t, store.Flights())
	assert.NotNil(t, store.Bookings())
	assert.NotNil(t, store.Passengers())
}

func TestMapErr(t *testing.T) {
	assert.Nil(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows), domain.ErrNotFound)
	assert.ErrorIs(t, mapErr(fmt.Errorf("scan: %w", pgx.ErrNoRows)), domain.ErrNotFound)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "bookings_reference_key"}), domain.ErrConflict)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: pgCheckViolation}), domain.ErrInvalidInput)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: pgForeignKey}), domain.ErrNotFound)

	other := errors.New("boom")
	assert.Equal(t, other, mapErr(other))
}
