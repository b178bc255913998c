package passengers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/repository"
	"github.com/Domenick1991/flightsim/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt only looks at the first 72 bytes.
const maxPasswordBytes = 72

type PassengerUseCase interface {
	Register(ctx context.Context, input RegisterInput) (*domain.Passenger, error)
	Authenticate(ctx context.Context, email, password string) (*domain.Passenger, error)
	Get(ctx context.Context, id int64) (*domain.Passenger, error)
}

type RegisterInput struct {
	FullName string `json:"full_name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

type PassengerService struct {
	repo repository.PassengerRepository
	cost int
	log  *zap.Logger
}

func NewPassengerService(repo repository.PassengerRepository, cost int, log *zap.Logger) *PassengerService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PassengerService{repo: repo, cost: cost, log: log}
}

func (s *PassengerService) Register(ctx context.Context, input RegisterInput) (*domain.Passenger, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.FullName = strings.TrimSpace(input.FullName)
	if errs := validation.ValidateStruct(input); errs != nil {
		return nil, fmt.Errorf("%s: %w", validation.FormatValidationErrors(errs), domain.ErrInvalidInput)
	}

	hash, err := HashPassword(input.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p := &domain.Passenger{
		FullName:     input.FullName,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("email %s already registered: %w", input.Email, domain.ErrConflict)
		}
		return nil, err
	}
	s.log.Info("passenger registered", zap.Int64("passenger_id", p.ID))
	return p, nil
}

// Authenticate never tells an unknown e-mail apart from a wrong password.
func (s *PassengerService) Authenticate(ctx context.Context, email, password string) (*domain.Passenger, error) {
	p, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if p.PasswordHash == "" || !VerifyPassword(p.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}
	return p, nil
}

func (s *PassengerService) Get(ctx context.Context, id int64) (*domain.Passenger, error) {
	return s.repo.GetByID(ctx, id)
}

func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword(truncate(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(plain)) == nil
}

func truncate(plain string) []byte {
	b := []byte(plain)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

var _ PassengerUseCase = (*PassengerService)(nil)
