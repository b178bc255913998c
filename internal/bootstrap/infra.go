package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/flightsim/api"
	"github.com/Domenick1991/flightsim/config"
	"github.com/Domenick1991/flightsim/internal/cache"
	"github.com/Domenick1991/flightsim/internal/inventory"
	"github.com/Domenick1991/flightsim/internal/kafka"
	"github.com/Domenick1991/flightsim/internal/pricing"
	"github.com/Domenick1991/flightsim/internal/repository"
	"go.uber.org/zap"
)

// Infra holds the external dependencies shared by the app and the worker.
// Cache and Producer are nil when disabled in config.
type Infra struct {
	Store    repository.Store
	Memory   *repository.MemoryStore
	Cache    *cache.RedisCache
	Producer *kafka.Producer
	Health   map[string]api.Pinger

	closers []func() error
}

// OpenInfra connects the configured store, redis and kafka.
func OpenInfra(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Infra, error) {
	infra := &Infra{Health: map[string]api.Pinger{}}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		infra.Memory = repository.NewMemoryStore()
		infra.Store = infra.Memory
		log.Info("using in-memory store")
	default:
		pool, err := repository.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		infra.Store = repository.NewPGStore(pool)
		infra.Health["postgres"] = api.PingFunc(pool.Ping)
		infra.closers = append(infra.closers, func() error { pool.Close(); return nil })
		log.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))
	}

	if cfg.Redis.Enabled {
		infra.Cache = cache.NewRedisCache(cfg.Redis, cfg.Booking.CacheTTL())
		infra.Health["redis"] = infra.Cache
		infra.closers = append(infra.closers, infra.Cache.Close)
		if err := infra.Cache.Ping(ctx); err != nil {
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	if cfg.Kafka.Enabled {
		infra.Producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PublishRetries, log)
		infra.Health["kafka"] = api.PingFunc(infra.Producer.CheckConnection)
		infra.closers = append(infra.closers, infra.Producer.Close)
	}
	return infra, nil
}

// Close releases everything in reverse order of opening.
func (i *Infra) Close() error {
	var errs []error
	for j := len(i.closers) - 1; j >= 0; j-- {
		errs = append(errs, i.closers[j]())
	}
	return errors.Join(errs...)
}

func NewEngine(cfg config.PricingConfig) *pricing.Engine {
	return pricing.NewEngine(pricing.WithDefaults(cfg.DemandIndex, cfg.TierMultiplier))
}

func NewLedger(cfg config.SimulatorConfig) *inventory.Ledger {
	return inventory.NewLedger(
		inventory.WithPolicy(inventory.PerturbPolicy(cfg.Policy)),
		inventory.WithDrift(cfg.DropProbability, cfg.RestockProbability, cfg.MaxDrop, cfg.MaxRestock),
	)
}
