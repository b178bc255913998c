package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightsim/internal/domain"
)

const passengerColumns = `id, full_name, email, phone, password_hash, created_at`

type PGPassengerRepository struct {
	db querier
}

func NewPassengerRepository(db DB) PassengerRepository {
	return &PGPassengerRepository{db: db}
}

func scanPassenger(row scanner) (*domain.Passenger, error) {
	var p domain.Passenger
	if err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &p.PasswordHash, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGPassengerRepository) Create(ctx context.Context, p *domain.Passenger) error {
	if err := r.db.QueryRow(ctx, `INSERT INTO passengers (full_name, email, phone, password_hash)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`, p.FullName, p.Email, p.Phone, p.PasswordHash).
		Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("passenger %s: %w", p.Email, mapErr(err))
	}
	return nil
}

func (r *PGPassengerRepository) GetByID(ctx context.Context, id int64) (*domain.Passenger, error) {
	p, err := scanPassenger(r.db.QueryRow(ctx, `SELECT `+passengerColumns+` FROM passengers WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("passenger %d: %w", id, mapErr(err))
	}
	return p, nil
}

func (r *PGPassengerRepository) GetByEmail(ctx context.Context, email string) (*domain.Passenger, error) {
	p, err := scanPassenger(r.db.QueryRow(ctx, `SELECT `+passengerColumns+` FROM passengers WHERE email=$1`, email))
	if err != nil {
		return nil, fmt.Errorf("passenger %s: %w", email, mapErr(err))
	}
	return p, nil
}

var _ PassengerRepository = (*PGPassengerRepository)(nil)
