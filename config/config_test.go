package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
simulator:
  interval_seconds: 10
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Simulator.IntervalSeconds)
	assert.Equal(t, 1, cfg.Simulator.StartupDelaySeconds)
	assert.Equal(t, 0.12, cfg.Simulator.DropProbability)
	assert.Equal(t, 0.04, cfg.Simulator.RestockProbability)
	assert.Equal(t, PerturbExclusive, cfg.Simulator.Policy)
	assert.Equal(t, 0.9, cfg.Booking.PaymentSuccessRate)
	assert.Equal(t, 100, cfg.Booking.FareHistoryLimit)
	assert.Equal(t, "checked", cfg.Booking.ReferenceStrategy)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("FLIGHTSIM_DB_PASSWORD", "s3cret")
	t.Setenv("FLIGHTSIM_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(writeConfig(t, "database:\n  password: plain\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"driver", "database:\n  driver: oracle\n"},
		{"policy", "simulator:\n  policy: sometimes\n"},
		{"probability", "simulator:\n  drop_probability: 1.5\n"},
		{"interval", "simulator:\n  interval_seconds: 0\n"},
		{"catalog", "catalog:\n  flights:\n    - flight_number: X1\n      total_seats: 0\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
