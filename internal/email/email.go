package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightsim/internal/kafka"
	"go.uber.org/zap"
)

// Sender pretends to mail passengers about their bookings. It renders the
// message and logs it.
type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.Email == "" {
		s.log.Debug("no recipient, skipping", zap.String("reference", event.Reference))
		return nil
	}
	s.log.Info("send email",
		zap.String("to", event.Email),
		zap.String("event_id", event.EventID),
		zap.String("subject", Subject(event)),
	)
	return nil
}

func Subject(event kafka.BookingEvent) string {
	switch event.Type {
	case kafka.EventBookingCreated:
		return fmt.Sprintf("Booking %s confirmed", event.Reference)
	case kafka.EventBookingPaid:
		return fmt.Sprintf("Payment received for %s", event.Reference)
	case kafka.EventBookingPaymentFailed:
		return fmt.Sprintf("Payment failed for %s", event.Reference)
	case kafka.EventBookingCancelled:
		return fmt.Sprintf("Booking %s cancelled", event.Reference)
	default:
		return fmt.Sprintf("Update on booking %s", event.Reference)
	}
}
