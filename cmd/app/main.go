package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightsim/config"
	"github.com/Domenick1991/flightsim/internal/bootstrap"
	"github.com/Domenick1991/flightsim/internal/logger"
	"github.com/Domenick1991/flightsim/internal/reference"
	"github.com/Domenick1991/flightsim/internal/service/booking"
	"github.com/Domenick1991/flightsim/internal/service/flights"
	"github.com/Domenick1991/flightsim/internal/service/passengers"
	"github.com/Domenick1991/flightsim/internal/simulator"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New("flightsim-app", cfg.Log.Path, cfg.Log.Debug)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.OpenInfra(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("open infrastructure", zap.Error(err))
	}
	defer func() {
		if err := infra.Close(); err != nil {
			zlog.Warn("close infrastructure", zap.Error(err))
		}
	}()

	engine := bootstrap.NewEngine(cfg.Pricing)
	ledger := bootstrap.NewLedger(cfg.Simulator)
	references, err := reference.New(reference.Config{
		Strategy:   cfg.Booking.ReferenceStrategy,
		Length:     cfg.Booking.ReferenceLength,
		Attempts:   cfg.Booking.ReferenceAttempts,
		FastMaxLen: cfg.Booking.ReferenceMaxLength,
		NodeID:     cfg.Booking.NodeID,
	}, nil)
	if err != nil {
		zlog.Fatal("reference generator", zap.Error(err))
	}

	passengerService := passengers.NewPassengerService(infra.Store.Passengers(), bcrypt.DefaultCost, zlog)

	if infra.Memory != nil {
		if err := bootstrap.SeedCatalog(ctx, cfg.Catalog, infra.Memory, passengerService, time.Now()); err != nil {
			zlog.Fatal("seed catalog", zap.Error(err))
		}
		zlog.Info("catalog seeded", zap.Int("flights", len(cfg.Catalog.Flights)), zap.Int("passengers", len(cfg.Catalog.Passengers)))
	}

	var flightCache flights.FlightCache
	bookingOpts := []booking.BookingServiceOption{
		booking.WithSeatHold(cfg.Booking.SeatHold()),
		booking.WithPaymentGateway(booking.NewRandomGateway(cfg.Booking.PaymentSuccessRate, nil)),
		booking.WithLogger(zlog),
	}
	simOpts := []simulator.Option{simulator.WithLogger(zlog)}
	if infra.Cache != nil {
		flightCache = infra.Cache
		bookingOpts = append(bookingOpts, booking.WithCache(infra.Cache))
		simOpts = append(simOpts, simulator.WithCache(infra.Cache))
	}
	if infra.Producer != nil {
		bookingOpts = append(bookingOpts,
			booking.WithProducer(infra.Producer, cfg.Kafka.BookingEventsTopic),
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		)
	}

	flightService := flights.NewFlightService(infra.Store.Flights(), engine, flightCache, zlog)
	bookingService := booking.NewBookingService(infra.Store, ledger, engine, references, bookingOpts...)

	if cfg.Simulator.RunInApp {
		runnerOpts := []simulator.RunnerOption{
			simulator.WithSchedule(cfg.Simulator.StartupDelay(), cfg.Simulator.Interval()),
			simulator.WithRunnerLogger(zlog),
		}
		if infra.Cache != nil {
			runnerOpts = append(runnerOpts, simulator.WithLocker(infra.Cache, cfg.Simulator.LockTTL()))
		}
		runner := simulator.NewRunner(simulator.New(infra.Store, ledger, engine, simOpts...), runnerOpts...)
		runner.Start(ctx)
		defer runner.Stop()
	}

	err = bootstrap.Run(ctx, cfg, zlog, bootstrap.Services{
		Flights:    flightService,
		Bookings:   bookingService,
		Passengers: passengerService,
		Health:     infra.Health,
	})
	if err != nil {
		zlog.Error("server error", zap.Error(err))
		return
	}
	zlog.Info("stopped")
}
