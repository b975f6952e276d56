package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "slot", cfg.Capacity.Unit)
	assert.Equal(t, time.Duration(0), cfg.Payment.DefaultTTL)
	assert.Equal(t, int64(1), cfg.Payment.AmountToleranceMinor)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/reg.db")
	t.Setenv("PAYMENT_TTL", "48h")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CAPACITY_UNIT", "person")
	t.Setenv("EXPIRY_SWEEP_BATCH", "not-a-number")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:/tmp/reg.db?cache=shared&_pragma=busy_timeout(5000)", cfg.Database.DSN())
	assert.Equal(t, 48*time.Hour, cfg.Payment.DefaultTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "person", cfg.Capacity.Unit)
	assert.Equal(t, 100, cfg.Worker.ExpiryBatch, "unparsable values fall back to the default")
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432", Username: "u", Password: "p@ss", Database: "registration", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/registration?sslmode=disable", d.DSN())
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.Payment.VariableSymbolDigits = 11
	assert.Error(t, cfg.Validate())
}
