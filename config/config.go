package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	PerturbExclusive   = "exclusive"
	PerturbIndependent = "independent"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Booking   BookingConfig   `yaml:"booking"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Log       LogConfig       `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

type HTTPConfig struct {
	Address     string `yaml:"address"`
	SwaggerFile string `yaml:"swagger_file"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
	PublishRetries     int      `yaml:"publish_retries"`
}

type BookingConfig struct {
	FlightsCacheTTL    int     `yaml:"flights_cache_ttl_seconds"`
	SeatHoldSeconds    int     `yaml:"seat_hold_seconds"`
	PaymentSuccessRate float64 `yaml:"payment_success_rate"`
	ReferenceStrategy  string  `yaml:"reference_strategy"`
	ReferenceLength    int     `yaml:"reference_length"`
	ReferenceAttempts  int     `yaml:"reference_attempts"`
	ReferenceMaxLength int     `yaml:"reference_max_length"`
	NodeID             int64   `yaml:"node_id"`
	FareHistoryLimit   int     `yaml:"fare_history_limit"`
}

func (b BookingConfig) CacheTTL() time.Duration {
	return time.Duration(b.FlightsCacheTTL) * time.Second
}

func (b BookingConfig) SeatHold() time.Duration {
	return time.Duration(b.SeatHoldSeconds) * time.Second
}

type PricingConfig struct {
	DemandIndex    float64 `yaml:"demand_index"`
	TierMultiplier float64 `yaml:"tier_multiplier"`
}

type SimulatorConfig struct {
	RunInApp            bool    `yaml:"run_in_app"`
	IntervalSeconds     int     `yaml:"interval_seconds"`
	StartupDelaySeconds int     `yaml:"startup_delay_seconds"`
	DropProbability     float64 `yaml:"drop_probability"`
	RestockProbability  float64 `yaml:"restock_probability"`
	MaxDrop             int     `yaml:"max_drop"`
	MaxRestock          int     `yaml:"max_restock"`
	Policy              string  `yaml:"policy"`
	LockTTLSeconds      int     `yaml:"lock_ttl_seconds"`
}

func (s SimulatorConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

func (s SimulatorConfig) StartupDelay() time.Duration {
	return time.Duration(s.StartupDelaySeconds) * time.Second
}

func (s SimulatorConfig) LockTTL() time.Duration {
	return time.Duration(s.LockTTLSeconds) * time.Second
}

type LogConfig struct {
	Path  string `yaml:"path"`
	Debug bool   `yaml:"debug"`
}

// CatalogConfig seeds the memory driver.
type CatalogConfig struct {
	Flights    []FlightSeed    `yaml:"flights"`
	Passengers []PassengerSeed `yaml:"passengers"`
}

type FlightSeed struct {
	FlightNumber    string `yaml:"flight_number"`
	Airline         string `yaml:"airline"`
	From            string `yaml:"from"`
	To              string `yaml:"to"`
	DepartsInHours  int    `yaml:"departs_in_hours"`
	DurationMinutes int    `yaml:"duration_minutes"`
	BaseFareCents   int64  `yaml:"base_fare_cents"`
	TotalSeats      int    `yaml:"total_seats"`
	AvailableSeats  *int   `yaml:"available_seats"`
}

type PassengerSeed struct {
	FullName string `yaml:"full_name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{Address: ":8080"},
		GRPC: GRPCConfig{Address: ":9090"},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "flightsim",
			Name:     "flightsim",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Kafka: KafkaConfig{
			Brokers:            []string{"localhost:9092"},
			BookingEventsTopic: "booking-events",
			NotificationsTopic: "booking-notifications",
			GroupID:            "flightsim-notifier",
			PublishRetries:     3,
		},
		Booking: BookingConfig{
			FlightsCacheTTL:    30,
			SeatHoldSeconds:    30,
			PaymentSuccessRate: 0.9,
			ReferenceStrategy:  "checked",
			ReferenceLength:    8,
			ReferenceAttempts:  5,
			ReferenceMaxLength: 12,
			NodeID:             1,
			FareHistoryLimit:   100,
		},
		Pricing: PricingConfig{DemandIndex: 1.0, TierMultiplier: 1.0},
		Simulator: SimulatorConfig{
			IntervalSeconds:     30,
			StartupDelaySeconds: 1,
			DropProbability:     0.12,
			RestockProbability:  0.04,
			MaxDrop:             3,
			MaxRestock:          2,
			Policy:              PerturbExclusive,
			LockTTLSeconds:      25,
		},
	}
}

// LoadConfig reads an optional .env file, the YAML file at path on top of
// Default, and the FLIGHTSIM_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLIGHTSIM_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("FLIGHTSIM_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("FLIGHTSIM_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("FLIGHTSIM_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("FLIGHTSIM_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (c *Config) Validate() error {
	var errs []error
	probability := func(name string, p float64) {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, p))
		}
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	switch c.Simulator.Policy {
	case PerturbExclusive, PerturbIndependent:
	default:
		errs = append(errs, fmt.Errorf("unknown simulator policy %q", c.Simulator.Policy))
	}
	probability("booking.payment_success_rate", c.Booking.PaymentSuccessRate)
	probability("simulator.drop_probability", c.Simulator.DropProbability)
	probability("simulator.restock_probability", c.Simulator.RestockProbability)

	if c.Simulator.IntervalSeconds <= 0 {
		errs = append(errs, errors.New("simulator.interval_seconds must be positive"))
	}
	if c.Simulator.StartupDelaySeconds < 0 {
		errs = append(errs, errors.New("simulator.startup_delay_seconds must not be negative"))
	}
	if c.Booking.NodeID < 0 || c.Booking.NodeID > 1023 {
		errs = append(errs, errors.New("booking.node_id must be within [0, 1023]"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	for i, f := range c.Catalog.Flights {
		if f.TotalSeats < 1 {
			errs = append(errs, fmt.Errorf("catalog.flights[%d].total_seats must be positive", i))
		}
	}
	return errors.Join(errs...)
}
