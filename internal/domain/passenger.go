package domain

import "time"

type Passenger struct {
	ID           int64
	FullName     string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}
