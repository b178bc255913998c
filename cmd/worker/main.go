package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/flightsim/config"
	"github.com/Domenick1991/flightsim/internal/bootstrap"
	"github.com/Domenick1991/flightsim/internal/email"
	"github.com/Domenick1991/flightsim/internal/kafka"
	"github.com/Domenick1991/flightsim/internal/logger"
	"github.com/Domenick1991/flightsim/internal/simulator"
	"go.uber.org/zap"
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

	zlog, err := logger.New("flightsim-worker", cfg.Log.Path, cfg.Log.Debug)
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
	if infra.Memory != nil {
		zlog.Warn("worker is using its own in-memory store; market drift will not reach the app")
	}

	engine := bootstrap.NewEngine(cfg.Pricing)
	ledger := bootstrap.NewLedger(cfg.Simulator)

	simOpts := []simulator.Option{simulator.WithLogger(zlog)}
	runnerOpts := []simulator.RunnerOption{
		simulator.WithSchedule(cfg.Simulator.StartupDelay(), cfg.Simulator.Interval()),
		simulator.WithRunnerLogger(zlog),
	}
	if infra.Cache != nil {
		simOpts = append(simOpts, simulator.WithCache(infra.Cache))
		runnerOpts = append(runnerOpts, simulator.WithLocker(infra.Cache, cfg.Simulator.LockTTL()))
	}
	runner := simulator.NewRunner(simulator.New(infra.Store, ledger, engine, simOpts...), runnerOpts...)
	runner.Start(ctx)
	defer runner.Stop()

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, zlog)
		defer consumer.Close()

		sender := email.NewSender(zlog)
		go func() {
			if err := consumer.ConsumeBookingEvents(ctx, sender.Send); err != nil {
				zlog.Error("notification consumer stopped", zap.Error(err))
			}
		}()
		zlog.Info("notification consumer started",
			zap.String("topic", cfg.Kafka.NotificationsTopic),
			zap.String("group_id", cfg.Kafka.GroupID),
		)
	}

	<-ctx.Done()
	zlog.Info("received shutdown signal")
}
