package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingPaid          = "booking_paid"
	EventBookingPaymentFailed = "booking_payment_failed"
	EventBookingCancelled     = "booking_cancelled"
)

type BookingEvent struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	Reference      string    `json:"reference"`
	PassengerID    int64     `json:"passenger_id"`
	Email          string    `json:"email,omitempty"`
	FlightID       int64     `json:"flight_id"`
	ReturnFlightID *int64    `json:"return_flight_id,omitempty"`
	SeatNumber     int       `json:"seat_number"`
	FarePaidCents  int64     `json:"fare_paid_cents"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewBookingEvent snapshots b under a fresh event id.
func NewBookingEvent(eventType string, b *domain.Booking, email string) BookingEvent {
	return BookingEvent{
		EventID:        uuid.NewString(),
		Type:           eventType,
		Reference:      b.Reference,
		PassengerID:    b.PassengerID,
		Email:          email,
		FlightID:       b.FlightID,
		ReturnFlightID: b.ReturnFlightID,
		SeatNumber:     b.SeatNumber,
		FarePaidCents:  b.FarePaidCents,
		Status:         string(b.Status),
		OccurredAt:     time.Now().UTC(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	brokers []string
	writer  messageWriter
	retries int
	log     *zap.Logger
}

func NewProducer(brokers []string, retries int, log *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newProducer(brokers, writer, retries, log)
}

func newProducer(brokers []string, w messageWriter, retries int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	if retries <= 0 {
		retries = 1
	}
	return &Producer{brokers: brokers, writer: w, retries: retries, log: log}
}

// Publish writes payload as JSON, retrying with a linear backoff.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	return p.PublishWithRetry(ctx, topic, key, payload, p.retries)
}

func (p *Producer) publishOnce(ctx context.Context, topic, key string, data []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}
	p.log.Debug("published", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (p *Producer) PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if lastErr = p.publishOnce(ctx, topic, key, data); lastErr == nil {
			return nil
		}
		p.log.Warn("publish attempt failed",
			zap.String("topic", topic),
			zap.Int("attempt", i+1),
			zap.Error(lastErr),
		)
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and reads its partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("connect to kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("read partitions: %w", err)
	}
	p.log.Info("connected to kafka", zap.Int("partitions", len(partitions)))
	return nil
}
